package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/api"
	"github.com/tanderapp/tander/internal/app"
	"github.com/tanderapp/tander/internal/auth"
	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/chat"
	"github.com/tanderapp/tander/internal/discovery"
	"github.com/tanderapp/tander/internal/model"
	"github.com/tanderapp/tander/internal/status"
	"github.com/tanderapp/tander/internal/store"
	"github.com/tanderapp/tander/internal/tui/keys"
	"github.com/tanderapp/tander/internal/tui/ui"
	"github.com/tanderapp/tander/internal/tui/views"
)

// Page names. Pages stack: chats is the root after sign-in, everything
// else is pushed on top and popped with Escape.
const (
	pageLogin    = "login"
	pageChats    = "chats"
	pageChat     = "chat"
	pageDiscover = "discover"
	pageSearch   = "search"
	pageHelp     = "help"
	pageProfile  = "profile"
	pageMatch    = "match"
)

const (
	matchButtonChat   = "Send a message"
	matchButtonBrowse = "Keep browsing"
)

// uiRefreshInterval redraws the visible page from controller snapshots.
// Push events redraw immediately; the ticker covers clock ticks, flash
// expiry and delivery ticks that resolve without a push.
const uiRefreshInterval = 2 * time.Second

// App is the TANDER terminal client shell. It owns the tview event
// loop, the page stack and the key registry, and renders controller
// snapshots; all network and cache work stays in the controllers.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	registry *keys.Registry
	flash    *ui.FlashModel

	layout      *tview.Flex
	logo        *ui.Logo
	accountInfo *ui.AccountInfo
	menu        *ui.Menu
	crumbs      *ui.Crumbs
	flashBar    *ui.FlashBar
	prompt      *ui.Prompt
	statusBar   *views.StatusBar

	login    *views.LoginView
	inbox    *views.InboxView
	thread   *views.ThreadView
	discover *views.DiscoverView
	peerInfo *views.PeerInfo
	search   *views.SearchView
	help     *views.HelpView

	matchModal *tview.Modal
	components map[string]ui.Component

	rt      *app.Runtime
	machine *status.Machine
	bus     *bus.Bus
	db      *store.DB
	tokens  *auth.Store
	log     *zap.Logger

	account string
	started time.Time

	// promptOpen is touched only from the tview event goroutine.
	promptOpen bool

	mu sync.Mutex
	// threadCtl is the controller behind the open chat page. threadGen
	// invalidates a slow open that lost the race to a newer one.
	threadCtl  *chat.Thread
	threadGen  uint64
	openConv   model.Conversation
	match      discovery.MatchInfo
	loggingOut bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp assembles the shell. The runtime, status machine, bus, cache
// and token store come from the fx container.
func NewApp(rt *app.Runtime, machine *status.Machine, b *bus.Bus, db *store.DB, tokens *auth.Store, params app.Params, log *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		pages:    ui.NewPages(),
		registry: keys.NewRegistry(),
		flash:    ui.NewFlashModel(),

		logo:        ui.NewLogo(theme),
		accountInfo: ui.NewAccountInfo(theme),
		menu:        ui.NewMenu(theme),
		crumbs:      ui.NewCrumbs(theme),
		flashBar:    ui.NewFlashBar(theme),
		prompt:      ui.NewPrompt(theme),
		statusBar:   views.NewStatusBar(theme),

		login:    views.NewLoginView(theme),
		inbox:    views.NewInboxView(theme),
		thread:   views.NewThreadView(theme),
		discover: views.NewDiscoverView(theme),
		peerInfo: views.NewPeerInfo(theme),
		search:   views.NewSearchView(theme),
		help:     views.NewHelpView(theme),

		rt:      rt,
		machine: machine,
		bus:     b,
		db:      db,
		tokens:  tokens,
		log:     log,

		account: params.AccountName,
		started: time.Now(),

		ctx:    ctx,
		cancel: cancel,
	}

	a.components = map[string]ui.Component{
		pageLogin:    a.login,
		pageChats:    a.inbox,
		pageChat:     a.thread,
		pageDiscover: a.discover,
		pageSearch:   a.search,
		pageHelp:     a.help,
		pageProfile:  a.peerInfo,
	}

	a.matchModal = tview.NewModal().
		AddButtons([]string{matchButtonChat, matchButtonBrowse})
	a.matchModal.SetBackgroundColor(theme.BgColor)
	a.matchModal.SetTextColor(theme.MatchColor)
	a.matchModal.SetButtonBackgroundColor(theme.BorderFocusColor)
	a.matchModal.SetButtonTextColor(theme.CrumbActiveFg)
	a.matchModal.SetBorderColor(theme.MatchColor)

	a.statusBar.SetAccount(params.AccountName)
	a.inbox.SetPresence(func(userID int64) bool {
		p := a.rt.Presence()
		return p != nil && p.Online(userID)
	})

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "quit",
		Handler: func() {
			if a.pages.Depth() > 1 {
				a.popPage()
				return
			}
			a.Stop()
		},
	})
	a.registry.AddGlobal("discover", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Description: "discover",
		Handler:     a.showDiscover,
	})
	a.registry.AddGlobal("search", &keys.Action{
		Rune: 's', Key: tcell.KeyRune,
		Description: "search",
		Handler:     a.showSearch,
	})
	a.registry.AddGlobal("chats", &keys.Action{
		Rune: 'c', Key: tcell.KeyRune,
		Description: "chats",
		Handler:     a.goHome,
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Description: "help",
		Handler:     func() { a.pushPage(pageHelp) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune,
		Description: "command",
		Handler:     func() { a.openPrompt(ui.PromptCommand) },
	})

	a.registry.AddView(pageChats, "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Description: "filter",
		Handler:     func() { a.openPrompt(ui.PromptFilter) },
	})

	a.registry.AddView(pageChat, "resend", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "resend",
		Handler:     a.resendFailed,
	})
	a.registry.AddView(pageChat, "profile", &keys.Action{
		Rune: 'p', Key: tcell.KeyRune,
		Description: "profile",
		Handler:     a.showPeerProfile,
	})
	a.registry.AddView(pageChat, "older", &keys.Action{
		Key:         tcell.KeyPgUp,
		Description: "older messages",
		Handler: func() {
			t := a.currentThread()
			if t == nil {
				return
			}
			go func() {
				t.LoadOlder(a.ctx)
				a.app.QueueUpdateDraw(a.renderCurrent)
			}()
		},
	})

	a.registry.AddView(pageDiscover, "like", &keys.Action{
		Rune: 'l', Key: tcell.KeyRune,
		Description: "like",
		Handler:     func() { a.swipe(true) },
	})
	a.registry.AddView(pageDiscover, "pass", &keys.Action{
		Rune: 'x', Key: tcell.KeyRune,
		Description: "pass",
		Handler:     func() { a.swipe(false) },
	})
	a.registry.AddView(pageDiscover, "undo", &keys.Action{
		Rune: 'u', Key: tcell.KeyRune,
		Description: "undo",
		Handler: func() {
			if d := a.rt.Deck(); d != nil {
				d.Undo()
				a.renderCurrent()
			}
		},
	})
	a.registry.AddView(pageDiscover, "reload", &keys.Action{
		Rune: 'R', Key: tcell.KeyRune,
		Description: "reload",
		Handler: func() {
			d := a.rt.Deck()
			if d == nil {
				return
			}
			go func() {
				d.Refresh(a.ctx)
				a.app.QueueUpdateDraw(a.renderCurrent)
			}()
		},
	})
}

func (a *App) setupCallbacks() {
	a.login.SetOnLogin(a.doLogin)

	a.inbox.SetSelectedFunc(func(row, col int) {
		if conv, ok := a.inbox.Selected(); ok {
			a.openThread(conv)
		}
	})

	a.thread.SetOnSend(func(text string) {
		t := a.currentThread()
		if t == nil {
			return
		}
		// Send appends the optimistic entry before returning, so the
		// row is on screen before the network round-trip starts.
		t.Send(a.ctx, text)
		a.renderCurrent()
	})
	a.thread.SetOnTyping(func(active bool) {
		if t := a.currentThread(); t != nil {
			t.NotifyTyping(active)
		}
	})

	a.search.SetOnQuery(a.runSearch)
	a.search.Results().SetSelectedFunc(func(row, col int) {
		res, ok := a.search.Selected()
		if !ok {
			return
		}
		if conv, ok := a.findConversation(res.Message.ConversationID); ok {
			a.openThread(conv)
		}
	})

	a.matchModal.SetDoneFunc(func(_ int, label string) {
		a.mu.Lock()
		mi := a.match
		a.mu.Unlock()
		if a.pages.Current() == pageMatch {
			a.pages.Pop()
		}
		if label == matchButtonChat {
			go a.openMatchThread(mi)
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		switch mode {
		case ui.PromptCommand:
			a.runCommand(text)
		case ui.PromptFilter:
			a.inbox.SetFilter(text)
			a.renderCurrent()
		}
	})
	a.prompt.SetOnCancel(func() {
		a.closePrompt()
		a.inbox.ClearFilter()
		a.renderCurrent()
	})

	a.pages.SetOnChange(func(stack []string) {
		titles := make([]string, len(stack))
		for i, name := range stack {
			titles[i] = a.pageTitle(name)
		}
		a.crumbs.Update(titles)
		cur := a.pages.Current()
		if c, ok := a.components[cur]; ok {
			a.menu.Update(c.Hints())
		} else if cur == pageMatch {
			a.menu.Update([]ui.MenuHint{
				{Key: "←/→", Description: "Choose"},
				{Key: "enter", Description: "Confirm"},
				{Key: "esc", Description: "Keep browsing"},
			})
		}
		a.focusCurrent()
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageLogin, a.login, true, false)
	a.pages.AddPage(pageChats, a.inbox, true, false)
	a.pages.AddPage(pageChat, a.thread, true, false)
	a.pages.AddPage(pageDiscover, a.discover, true, false)
	a.pages.AddPage(pageSearch, a.search, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)
	a.pages.AddPage(pageProfile, a.peerInfo, true, false)
	a.pages.AddPage(pageMatch, a.matchModal, true, false)

	header := tview.NewFlex().
		AddItem(a.accountInfo, 0, 1, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(a.logo, 26, 0, false)

	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.layout, true)
	a.app.SetInputCapture(a.handleKey)
}

// handleKey runs before the focused widget sees the event. Text inputs
// keep every key except Escape; everything else goes through the
// registry, where view bindings shadow global ones.
func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	cur := a.pages.Current()

	if ev.Key() == tcell.KeyEscape {
		return a.handleEscape(cur, ev)
	}

	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		return ev
	}
	// The sign-in form and the match dialog own their keys.
	if cur == pageLogin || cur == pageMatch {
		return ev
	}

	if cur == pageChat && ev.Key() == tcell.KeyRune && ev.Rune() == 'i' {
		a.app.SetFocus(a.thread.Composer())
		return nil
	}
	if cur == pageChats && ev.Key() == tcell.KeyRune && ev.Rune() >= '0' && ev.Rune() <= '9' {
		if ev.Rune() == '0' {
			a.inbox.ClearFilter()
			a.renderCurrent()
		} else if conv, ok := a.inbox.ByIndex(int(ev.Rune() - '0')); ok {
			a.openThread(conv)
		}
		return nil
	}

	if a.registry.HandleEvent(cur, ev) {
		return nil
	}
	return ev
}

func (a *App) handleEscape(cur string, ev *tcell.EventKey) *tcell.EventKey {
	switch {
	case a.promptOpen:
		// The prompt's done handler cancels and closes.
		return ev
	case cur == pageMatch:
		a.dismissMatch()
		return nil
	case cur == pageLogin:
		return ev
	case cur == pageChat:
		if f, ok := a.app.GetFocus().(*tview.InputField); ok && f == a.thread.Composer() {
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		a.popPage()
		return nil
	case a.pages.Depth() > 1:
		a.popPage()
		return nil
	default:
		return ev
	}
}

// Run lands on the page the runtime's start decided, then hands the
// terminal to tview. The bus subscription happens before any loop
// starts so no status transition slips through the gap.
func (a *App) Run() error {
	events, unsub := a.bus.Subscribe("", 64)
	go a.eventLoop(events, unsub)
	go a.flashLoop()
	go a.refreshLoop()

	state := a.machine.Current()
	a.statusBar.SetState(state)
	if state == status.AuthRequired {
		a.login.Reset()
		a.pages.Reset(pageLogin)
	} else {
		a.pages.Reset(pageChats)
		a.renderCurrent()
	}

	return a.app.Run()
}

// Stop tears the shell down. Safe to call more than once.
func (a *App) Stop() {
	a.cancel()
	a.closeThread()
	a.app.Stop()
}

func (a *App) eventLoop(events <-chan bus.Event, unsub func()) {
	defer unsub()
	for {
		select {
		case evt := <-events:
			a.handleEvent(evt)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch {
	case evt.Kind == "session.status_changed":
		sc, ok := evt.Payload.(status.StatusChange)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetState(sc.To)
			if sc.To == status.AuthRequired {
				a.handleSignedOut()
			}
			a.renderAccount()
		})
	case evt.Kind == "match.found":
		m, ok := evt.Payload.(model.Match)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() {
			if a.pages.Current() == pageDiscover {
				// The deck snapshot carries the overlay.
				a.renderCurrent()
				return
			}
			a.flash.Info(fmt.Sprintf("You matched with %s! Press d to say hi.", m.Peer.Name))
		})
	default:
		// chat.*, conv.*, presence.*: redraw whatever page is visible.
		a.app.QueueUpdateDraw(a.renderCurrent)
	}
}

// handleSignedOut puts the login screen up. A deliberate logout gets a
// calm note; a rejected token explains itself.
func (a *App) handleSignedOut() {
	a.mu.Lock()
	wasLogout := a.loggingOut
	a.loggingOut = false
	a.mu.Unlock()

	go a.closeThread()
	if a.pages.Current() == pageLogin {
		return
	}
	a.login.Reset()
	if wasLogout {
		a.login.ShowMessage("Signed out.")
	} else {
		a.login.ShowError("Your session has expired. Please log in again.")
	}
	a.pages.Reset(pageLogin)
}

func (a *App) flashLoop() {
	for {
		select {
		case msg := <-a.flash.Watch():
			a.app.QueueUpdateDraw(func() {
				a.flashBar.Update(&msg)
			})
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(uiRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.statusBar.Refresh()
				a.flashBar.Update(a.flash.GetMessage())
				a.renderCurrent()
			})
		case <-a.ctx.Done():
			return
		}
	}
}

// renderCurrent redraws the visible page from controller snapshots.
// Must run on the tview event goroutine.
func (a *App) renderCurrent() {
	switch a.pages.Current() {
	case pageChats:
		a.renderInbox()
	case pageChat:
		a.renderThread()
	case pageDiscover:
		a.renderDiscover()
	case pageProfile:
		a.renderPeerProfile()
	}
	if p := a.rt.Presence(); p != nil {
		a.statusBar.SetOnlineCount(p.OnlineCount())
	} else {
		a.statusBar.SetOnlineCount(0)
	}
	a.renderAccount()
}

func (a *App) renderInbox() {
	in := a.rt.Inbox()
	if in == nil {
		a.inbox.Update(nil, nil)
		return
	}
	snap := in.Snapshot()
	if !snap.Loaded && snap.InitialErr != "" {
		a.inbox.SetNotice(snap.InitialErr)
	} else {
		a.inbox.SetNotice("")
	}
	a.inbox.Update(snap.Conversations, snap.Typing)
}

func (a *App) renderThread() {
	t := a.currentThread()
	if t == nil {
		return
	}
	snap := t.Snapshot()
	var online bool
	var lastActive int64
	if p := a.rt.Presence(); p != nil {
		online = p.Online(snap.Peer.ID)
		lastActive = p.LastActiveAt(snap.Peer.ID)
	}
	a.thread.Update(snap, online, lastActive)
}

func (a *App) renderDiscover() {
	d := a.rt.Deck()
	if d == nil {
		return
	}
	snap := d.Snapshot()
	a.discover.Update(snap)
	if snap.Match != nil {
		mi := *snap.Match
		d.DismissMatch()
		a.showMatch(mi)
	}
}

func (a *App) renderPeerProfile() {
	a.mu.Lock()
	peer := a.openConv.Peer
	a.mu.Unlock()
	var online bool
	var lastActive int64
	if p := a.rt.Presence(); p != nil {
		online = p.Online(peer.ID)
		lastActive = p.LastActiveAt(peer.ID)
	}
	a.peerInfo.Update(peer, online, lastActive)
}

func (a *App) renderAccount() {
	data := &ui.AccountData{
		Account:   a.account,
		Name:      a.tokens.Name(),
		Status:    string(a.machine.Current()),
		LikesLeft: -1,
		Uptime:    time.Since(a.started),
	}
	if in := a.rt.Inbox(); in != nil {
		snap := in.Snapshot()
		data.Chats = len(snap.Conversations)
		for _, c := range snap.Conversations {
			data.Unread += c.UnreadCount
		}
	}
	if d := a.rt.Deck(); d != nil {
		data.LikesLeft = d.Snapshot().SwipesRemaining
	}
	a.accountInfo.Update(data)
}

func (a *App) doLogin(phone, password string) {
	a.login.ShowMessage("Signing in…")
	go func() {
		user, err := a.rt.Login(a.ctx, phone, password)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.login.ShowError(loginMessage(err))
				a.login.ClearPassword()
				return
			}
			a.login.Reset()
			a.flash.Info(fmt.Sprintf("Kumusta, %s!", user.Name))
			a.pages.Reset(pageChats)
			a.renderCurrent()
		})
	}()
}

func (a *App) doLogout() {
	a.mu.Lock()
	a.loggingOut = true
	a.mu.Unlock()
	go func() {
		a.closeThread()
		a.rt.Logout()
	}()
}

// openThread swaps the chat page over to conv. The page goes up
// immediately; the controller lands in the background. A generation
// counter keeps a slow open from resurrecting a superseded thread.
func (a *App) openThread(conv model.Conversation) {
	a.thread.SetPeer(conv.Peer)

	a.mu.Lock()
	a.threadGen++
	gen := a.threadGen
	old := a.threadCtl
	a.threadCtl = nil
	a.openConv = conv
	a.mu.Unlock()

	if a.pages.Current() != pageChat {
		a.pages.Push(pageChat)
	}

	go func() {
		if old != nil {
			old.Close()
		}
		t := a.rt.OpenThread(a.ctx, conv)
		a.mu.Lock()
		if a.threadGen != gen {
			a.mu.Unlock()
			t.Close()
			return
		}
		a.threadCtl = t
		a.mu.Unlock()
		a.app.QueueUpdateDraw(a.renderCurrent)
	}()
}

func (a *App) closeThread() {
	a.mu.Lock()
	a.threadGen++
	t := a.threadCtl
	a.threadCtl = nil
	a.mu.Unlock()
	if t != nil {
		t.Close()
	}
}

func (a *App) currentThread() *chat.Thread {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.threadCtl
}

func (a *App) resendFailed() {
	t := a.currentThread()
	if t == nil {
		return
	}
	id := views.NewestFailedID(t.Snapshot())
	if id == "" {
		return
	}
	t.Resend(a.ctx, id)
	a.renderCurrent()
}

func (a *App) swipe(like bool) {
	d := a.rt.Deck()
	if d == nil {
		return
	}
	if like {
		d.Like(a.ctx)
	} else {
		d.Pass(a.ctx)
	}
	// The cursor moved synchronously; the verdict arrives later.
	a.renderCurrent()
}

func (a *App) showMatch(mi discovery.MatchInfo) {
	a.mu.Lock()
	a.match = mi
	a.mu.Unlock()
	a.matchModal.SetText(fmt.Sprintf("It's a match!\n\nYou and %s like each other.", mi.Name))
	if a.pages.Current() != pageMatch {
		a.pages.Push(pageMatch)
	}
}

func (a *App) dismissMatch() {
	if a.pages.Current() == pageMatch {
		a.pages.Pop()
	}
}

// openMatchThread opens the conversation behind a fresh match, creating
// it first when the match event arrived without one.
func (a *App) openMatchThread(mi discovery.MatchInfo) {
	convID := mi.ConversationID
	if convID == 0 {
		in := a.rt.Inbox()
		if in == nil {
			return
		}
		id, err := in.StartConversation(a.ctx, mi.PeerID)
		if err != nil {
			a.log.Warn("starting match conversation failed", zap.Error(err))
			a.flash.Warn(fmt.Sprintf("Couldn't open the chat. Find %s in your chats.", mi.Name))
			return
		}
		convID = id
	}
	conv := model.Conversation{ID: convID, Peer: model.User{ID: mi.PeerID, Name: mi.Name}}
	// Prefer the inbox copy; it carries age, city and the photo.
	if full, ok := a.findConversation(convID); ok {
		conv = full
	}
	a.app.QueueUpdateDraw(func() {
		a.openThread(conv)
	})
}

func (a *App) findConversation(convID int64) (model.Conversation, bool) {
	in := a.rt.Inbox()
	if in == nil {
		return model.Conversation{}, false
	}
	for _, c := range in.Snapshot().Conversations {
		if c.ID == convID {
			return c, true
		}
	}
	return model.Conversation{}, false
}

func (a *App) showDiscover() {
	if a.rt.Deck() == nil {
		return
	}
	a.pushPage(pageDiscover)
	a.renderCurrent()
}

func (a *App) showSearch() {
	a.pushPage(pageSearch)
}

func (a *App) showPeerProfile() {
	a.pushPage(pageProfile)
	a.renderCurrent()
}

// goHome pops everything back to the chat list.
func (a *App) goHome() {
	for a.pages.Depth() > 1 {
		a.popPage()
	}
	if a.pages.Current() != pageChats && a.pages.Current() != pageLogin {
		a.pages.Reset(pageChats)
	}
	a.renderCurrent()
}

func (a *App) pushPage(name string) {
	if a.pages.Current() == name {
		return
	}
	a.pages.Push(name)
}

func (a *App) popPage() {
	if a.pages.Depth() <= 1 {
		return
	}
	popped := a.pages.Pop()
	if popped == pageChat {
		go a.closeThread()
	}
	a.renderCurrent()
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageLogin:
		a.app.SetFocus(a.login)
	case pageChats:
		a.app.SetFocus(a.inbox)
	case pageChat:
		a.app.SetFocus(a.thread.Messages())
	case pageSearch:
		a.app.SetFocus(a.search.Input())
	case pageMatch:
		a.app.SetFocus(a.matchModal)
	default:
		if c, ok := a.components[a.pages.Current()]; ok {
			if p, ok := c.(tview.Primitive); ok {
				a.app.SetFocus(p)
			}
		}
	}
}

func (a *App) openPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.layout.ResizeItem(a.prompt, 3, 0)
	a.promptOpen = true
	a.app.SetFocus(a.prompt.InputField)
}

func (a *App) closePrompt() {
	a.layout.ResizeItem(a.prompt, 0, 0)
	a.promptOpen = false
	a.focusCurrent()
}

func (a *App) runSearch(query string) {
	results, err := a.db.SearchMessages(query, 0, 50)
	if err != nil {
		a.log.Warn("message search failed", zap.String("query", query), zap.Error(err))
		a.flash.Warn("Search didn't work. Try different words.")
		return
	}
	names := make(map[int64]string)
	if in := a.rt.Inbox(); in != nil {
		for _, c := range in.Snapshot().Conversations {
			names[c.ID] = c.Peer.Name
		}
	}
	a.search.Update(results, names)
	if len(results) > 0 {
		a.app.SetFocus(a.search.Results())
	}
}

func (a *App) runCommand(text string) {
	cmd := ParseCommand(text)
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "h", "help":
		a.pushPage(pageHelp)
	case "logout":
		a.doLogout()
	case "d", "discover":
		a.showDiscover()
	case "chats":
		a.goHome()
	case "search":
		a.showSearch()
		if cmd.Args != "" {
			a.search.SetQuery(cmd.Args)
			a.runSearch(cmd.Args)
		}
	case "chat":
		if cmd.Args == "" {
			a.flash.Warn("Usage: chat <name>")
			return
		}
		a.openChatByName(cmd.Args)
	default:
		a.flash.Warn(fmt.Sprintf("Unknown command: %s", cmd.Name))
	}
}

func (a *App) openChatByName(name string) {
	in := a.rt.Inbox()
	if in == nil {
		return
	}
	needle := strings.ToLower(name)
	for _, c := range in.Snapshot().Conversations {
		if strings.HasPrefix(strings.ToLower(c.Peer.Name), needle) {
			a.openThread(c)
			return
		}
	}
	a.flash.Warn(fmt.Sprintf("No chat with %q.", name))
}

func (a *App) pageTitle(name string) string {
	if c, ok := a.components[name]; ok {
		return c.Name()
	}
	if name == pageMatch {
		return "Match"
	}
	return name
}

// loginMessage translates a sign-in failure for the audience: no status
// codes, no jargon.
func loginMessage(err error) string {
	switch api.KindOf(err) {
	case api.KindUnauthorized:
		return "Wrong phone number or password."
	case api.KindNetwork:
		return "Can't reach TANDER. Check your connection."
	default:
		return "Sign in failed. Please try again."
	}
}
