package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/tanderapp/tander/internal/chat"
	"github.com/tanderapp/tander/internal/model"
	"github.com/tanderapp/tander/internal/tui/ui"
)

// ThreadView shows one conversation: scrollable history, a presence or
// typing line, and the composer.
type ThreadView struct {
	*tview.Flex
	theme     *ui.Theme
	messages  *tview.TextView
	indicator *tview.TextView
	composer  *tview.InputField
	peer      model.User
	onSend    func(text string)
	onTyping  func(active bool)
	// typingOn mirrors what the peer was last told, so composer
	// keystrokes fan in to one start and one stop notification.
	typingOn bool
	// newestID detects whether an update appended at the bottom (follow
	// the tail) or prepended an older page (hold the scroll position).
	newestID string
}

// NewThreadView creates the conversation screen.
func NewThreadView(theme *ui.Theme) *ThreadView {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	indicator := tview.NewTextView().
		SetDynamicColors(true)
	indicator.SetBackgroundColor(theme.BgColor)
	indicator.SetBorderPadding(0, 0, 1, 0)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(indicator, 1, 0, false).
		AddItem(composer, 3, 0, false)

	tv := &ThreadView{
		Flex:      flex,
		theme:     theme,
		messages:  messages,
		indicator: indicator,
		composer:  composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := composer.GetText()
		if text == "" {
			return
		}
		composer.SetText("")
		tv.notifyTyping(false)
		if tv.onSend != nil {
			tv.onSend(text)
		}
	})
	composer.SetChangedFunc(func(text string) {
		tv.notifyTyping(text != "")
	})

	return tv
}

// Name implements Component.
func (tv *ThreadView) Name() string {
	if tv.peer.Name != "" {
		return tv.peer.Name
	}
	return "Chat"
}

// Hints implements Component.
func (tv *ThreadView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "r", Description: "Resend failed"},
		{Key: "PgUp", Description: "Earlier messages"},
		{Key: "p", Description: "Profile"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnSend sets the callback for a submitted message.
func (tv *ThreadView) SetOnSend(fn func(text string)) {
	tv.onSend = fn
}

// SetOnTyping sets the callback for composer activity edges.
func (tv *ThreadView) SetOnTyping(fn func(active bool)) {
	tv.onTyping = fn
}

func (tv *ThreadView) notifyTyping(active bool) {
	if tv.typingOn == active {
		return
	}
	tv.typingOn = active
	if tv.onTyping != nil {
		tv.onTyping(active)
	}
}

// SetPeer resets the view for a different conversation.
func (tv *ThreadView) SetPeer(peer model.User) {
	tv.peer = peer
	tv.newestID = ""
	tv.composer.SetText("")
	tv.typingOn = false
	tv.messages.Clear()
	_, _ = fmt.Fprint(tv.messages, "\n [gray]Loading messages…[-]")
	tv.indicator.Clear()
	title := fmt.Sprintf(" %s, %d ", peer.Name, peer.Age)
	if peer.City != "" {
		title = fmt.Sprintf(" %s, %d · %s ", peer.Name, peer.Age, peer.City)
	}
	tv.messages.SetTitle(title)
}

// Update renders a thread snapshot plus the peer's presence.
func (tv *ThreadView) Update(snap chat.Snapshot, online bool, lastActive int64) {
	tv.renderMessages(snap)
	tv.renderIndicator(snap, online, lastActive)
}

func (tv *ThreadView) renderMessages(snap chat.Snapshot) {
	tv.messages.Clear()

	gray := "gray"
	if !snap.Loaded {
		if snap.InitialErr != "" {
			_, _ = fmt.Fprintf(tv.messages, "\n  [%s]%s[-]", colorName(tv.theme.FlashErrColor), tview.Escape(snap.InitialErr))
		} else {
			_, _ = fmt.Fprintf(tv.messages, "\n  [%s]Loading messages…[-]", gray)
		}
		return
	}

	switch {
	case snap.LoadingOlder:
		_, _ = fmt.Fprintf(tv.messages, "  [%s]loading earlier messages…[-]\n\n", gray)
	case snap.Exhausted:
		_, _ = fmt.Fprintf(tv.messages, "  [%s](start of your conversation)[-]\n\n", gray)
	}

	for _, m := range snap.Messages {
		tv.renderMessage(m)
	}

	// Follow the tail only when something new arrived at the bottom;
	// prepended history keeps the reader where they were.
	newest := ""
	if n := len(snap.Messages); n > 0 {
		newest = snap.Messages[n-1].ID
	}
	if newest != tv.newestID {
		tv.newestID = newest
		tv.messages.ScrollToEnd()
	}
}

func (tv *ThreadView) renderMessage(m model.Message) {
	ts := formatTimestamp(m.Timestamp)

	if m.Type == model.MessageCallEvent {
		_, _ = fmt.Fprintf(tv.messages, "      [gray]%s  %s[-]\n\n", callLine(m.Call), ts)
		return
	}

	sender := tv.peer.Name
	tick := ""
	if m.Mine {
		sender = "You"
		tick = " " + tv.coloredGlyph(m.Status)
	}

	_, _ = fmt.Fprintf(tv.messages, "[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n",
		tview.Escape(sanitizeForTerminal(sender)), ts, tick,
		tview.Escape(sanitizeForTerminal(m.Text)))

	if m.Mine && m.Status == model.StatusFailed {
		_, _ = fmt.Fprintf(tv.messages, "[%s]not sent. Press r to resend.[-]\n", colorName(tv.theme.FailedColor))
	}
	_, _ = fmt.Fprint(tv.messages, "\n")
}

func (tv *ThreadView) coloredGlyph(s model.Status) string {
	switch s {
	case model.StatusRead:
		return fmt.Sprintf("[%s]%s[-]", colorName(tv.theme.ReadTickColor), statusGlyph(s))
	case model.StatusFailed:
		return fmt.Sprintf("[%s]%s[-]", colorName(tv.theme.FailedColor), statusGlyph(s))
	default:
		return fmt.Sprintf("[::d]%s[-:-:-]", statusGlyph(s))
	}
}

func (tv *ThreadView) renderIndicator(snap chat.Snapshot, online bool, lastActive int64) {
	tv.indicator.Clear()
	switch {
	case snap.PeerTyping:
		_, _ = fmt.Fprintf(tv.indicator, "[%s]%s is typing…[-]",
			colorName(tv.theme.TypingColor), tview.Escape(tv.peer.Name))
	case online:
		_, _ = fmt.Fprintf(tv.indicator, "[%s]● online now[-]", colorName(tv.theme.OnlineColor))
	default:
		if ago := activeAgo(lastActive, time.Now()); ago != "" {
			_, _ = fmt.Fprintf(tv.indicator, "[gray]%s[-]", ago)
		}
	}
}

// NewestFailedID returns the id of the most recent failed own message
// in the snapshot, for the resend key.
func NewestFailedID(snap chat.Snapshot) string {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		m := snap.Messages[i]
		if m.Mine && m.Status == model.StatusFailed {
			return m.ID
		}
	}
	return ""
}

// Composer returns the composer input field (for focus management).
func (tv *ThreadView) Composer() *tview.InputField {
	return tv.composer
}

// Messages returns the messages text view (for focus management).
func (tv *ThreadView) Messages() *tview.TextView {
	return tv.messages
}
