// Package conversations owns the inbox: the list of open conversations
// with previews, unread badges and typing flags. Rows are seeded from
// the local cache for an instant first paint, then replaced by the
// server's answer and patched in place by pushed events. Rows are never
// deleted client-side; the server stays authoritative.
package conversations

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/api"
	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/model"
	"github.com/tanderapp/tander/internal/status"
)

// API is the REST slice the inbox uses.
type API interface {
	Conversations(ctx context.Context) ([]model.Conversation, error)
	MarkRead(ctx context.Context, convID int64) error
	StartConversation(ctx context.Context, otherUserID int64) (int64, error)
}

// Cache seeds the inbox before the first network answer. Nil is fine;
// the inbox just starts empty.
type Cache interface {
	ListConversations() ([]model.Conversation, error)
}

// Options tunes the inbox. Zero values fall back to the defaults.
type Options struct {
	RefreshInterval time.Duration
	TypingTTL       time.Duration
}

func (o Options) withDefaults() Options {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 5 * time.Second
	}
	if o.TypingTTL <= 0 {
		o.TypingTTL = 3 * time.Second
	}
	return o
}

// Deps bundles the inbox's collaborators.
type Deps struct {
	API     API
	Cache   Cache
	Bus     *bus.Bus
	Machine *status.Machine
	Log     *zap.Logger
	SelfID  int64
}

// Inbox is the controller behind the conversation list screen.
type Inbox struct {
	deps Deps
	opts Options

	mu         sync.Mutex
	convs      []model.Conversation
	typing     map[int64]time.Time
	loaded     bool
	refreshing bool
	initialErr string

	now func() time.Time

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Snapshot is what the inbox view renders.
type Snapshot struct {
	Conversations []model.Conversation
	// Typing holds the conversations whose peer is typing right now.
	Typing     map[int64]bool
	Loaded     bool
	InitialErr string
}

// NewInbox creates the inbox controller.
func NewInbox(deps Deps, opts Options) *Inbox {
	return &Inbox{
		deps:   deps,
		opts:   opts.withDefaults(),
		typing: make(map[int64]time.Time),
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Start seeds from the cache, fetches the authoritative list and begins
// the event consumer and the refresh loop.
func (i *Inbox) Start(ctx context.Context) {
	i.seed()
	i.refresh(ctx)

	chatEvents, unsubChat := i.deps.Bus.Subscribe("chat.message", 64)
	convEvents, unsubConv := i.deps.Bus.Subscribe("conv.", 64)
	matchEvents, unsubMatch := i.deps.Bus.Subscribe("match.", 16)
	i.wg.Add(2)
	go i.consume(chatEvents, convEvents, matchEvents, func() {
		unsubChat()
		unsubConv()
		unsubMatch()
	})
	go i.loop(ctx)
}

// Close stops the loops.
func (i *Inbox) Close() {
	i.closeOnce.Do(func() { close(i.done) })
	i.wg.Wait()
}

// Snapshot copies the render state.
func (i *Inbox) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	convs := make([]model.Conversation, len(i.convs))
	copy(convs, i.convs)
	typing := make(map[int64]bool, len(i.typing))
	now := i.now()
	for id, until := range i.typing {
		if now.Before(until) {
			typing[id] = true
		}
	}
	return Snapshot{
		Conversations: convs,
		Typing:        typing,
		Loaded:        i.loaded,
		InitialErr:    i.initialErr,
	}
}

// MarkRead zeroes the unread badge and tells the server.
func (i *Inbox) MarkRead(ctx context.Context, convID int64) {
	i.mu.Lock()
	for idx := range i.convs {
		if i.convs[idx].ID == convID {
			i.convs[idx].UnreadCount = 0
			break
		}
	}
	i.mu.Unlock()
	i.publish()
	if err := i.deps.API.MarkRead(ctx, convID); err != nil {
		i.deps.Log.Debug("mark read failed", zap.Int64("conversation_id", convID), zap.Error(err))
	}
}

// StartConversation opens (or finds) the conversation with a user, for
// the "say hi" action on a fresh match. The refresh pulls the new row.
func (i *Inbox) StartConversation(ctx context.Context, otherUserID int64) (int64, error) {
	id, err := i.deps.API.StartConversation(ctx, otherUserID)
	if err != nil {
		return 0, err
	}
	i.refresh(ctx)
	return id, nil
}

// Refresh forces a fetch outside the 5s cadence, for pull-to-refresh.
func (i *Inbox) Refresh(ctx context.Context) {
	i.refresh(ctx)
}

// seed paints cached rows before the network answers.
func (i *Inbox) seed() {
	if i.deps.Cache == nil {
		return
	}
	convs, err := i.deps.Cache.ListConversations()
	if err != nil {
		i.deps.Log.Debug("inbox cache seed failed", zap.Error(err))
		return
	}
	if len(convs) == 0 {
		return
	}
	i.mu.Lock()
	i.convs = convs
	i.sortLocked()
	i.mu.Unlock()
	i.publish()
}

// refresh replaces rows with the server's answer, patching in place so
// a row the server momentarily omits survives.
func (i *Inbox) refresh(ctx context.Context) {
	i.mu.Lock()
	if i.refreshing {
		i.mu.Unlock()
		return
	}
	i.refreshing = true
	i.mu.Unlock()

	convs, err := i.deps.API.Conversations(ctx)

	i.mu.Lock()
	i.refreshing = false
	if err != nil {
		if !i.loaded && len(i.convs) == 0 {
			i.initialErr = loadNotice(err)
		}
		i.mu.Unlock()
		i.deps.Log.Debug("inbox refresh failed", zap.Error(err))
		return
	}
	for _, c := range convs {
		i.upsertLocked(c)
	}
	i.sortLocked()
	i.loaded = true
	i.initialErr = ""
	i.mu.Unlock()

	i.publish()
	// The session is considered synced once the inbox has authoritative
	// data; the push gateway got it as far as SYNCING.
	if i.deps.Machine != nil && i.deps.Machine.Current() == status.Syncing {
		if err := i.deps.Machine.Transition(status.Online); err != nil {
			i.deps.Log.Debug("online transition refused", zap.Error(err))
		}
	}
}

func (i *Inbox) upsertLocked(c model.Conversation) {
	for idx := range i.convs {
		if i.convs[idx].ID == c.ID {
			i.convs[idx] = c
			return
		}
	}
	i.convs = append(i.convs, c)
}

func (i *Inbox) sortLocked() {
	sort.SliceStable(i.convs, func(a, b int) bool {
		return i.convs[a].LastMessageAt > i.convs[b].LastMessageAt
	})
}

// bump folds one arriving message into its row: newer preview, unread
// badge for peer messages, resort. A message for an unknown conversation
// means a row was created server-side; fetch it.
func (i *Inbox) bump(ctx context.Context, m model.Message) {
	i.mu.Lock()
	found := false
	for idx := range i.convs {
		c := &i.convs[idx]
		if c.ID != m.ConversationID {
			continue
		}
		found = true
		if m.Timestamp >= c.LastMessageAt {
			c.LastMessage = m.Text
			c.LastMessageAt = m.Timestamp
		}
		if !m.Mine {
			c.UnreadCount++
		}
		break
	}
	if found {
		i.sortLocked()
	}
	i.mu.Unlock()

	if !found {
		i.refresh(ctx)
		return
	}
	i.publish()
}

func (i *Inbox) publish() {
	i.mu.Lock()
	convs := make([]model.Conversation, len(i.convs))
	copy(convs, i.convs)
	i.mu.Unlock()
	i.deps.Bus.Publish(bus.Event{Kind: "conv.snapshot", Timestamp: i.now(), Payload: convs})
}

func (i *Inbox) consume(chatEvents, convEvents, matchEvents <-chan bus.Event, unsub func()) {
	defer i.wg.Done()
	defer unsub()
	for {
		select {
		case <-i.done:
			return
		case evt := <-chatEvents:
			if m, ok := evt.Payload.(model.Message); ok {
				i.bump(context.Background(), m)
			}
		case evt := <-convEvents:
			i.handleConv(evt)
		case evt := <-matchEvents:
			if evt.Kind == "match.found" {
				i.refresh(context.Background())
			}
		}
	}
}

func (i *Inbox) handleConv(evt bus.Event) {
	switch evt.Kind {
	case "conv.typing":
		ev, ok := evt.Payload.(model.TypingEvent)
		if !ok || ev.UserID == i.deps.SelfID {
			return
		}
		i.mu.Lock()
		if ev.Typing {
			i.typing[ev.ConversationID] = i.now().Add(i.opts.TypingTTL)
		} else {
			delete(i.typing, ev.ConversationID)
		}
		i.mu.Unlock()
		i.publish()
	case "conv.read":
		convID, ok := evt.Payload.(int64)
		if !ok {
			return
		}
		i.mu.Lock()
		for idx := range i.convs {
			if i.convs[idx].ID == convID {
				i.convs[idx].UnreadCount = 0
				break
			}
		}
		i.mu.Unlock()
		i.publish()
	}
}

// loop refetches the list on a fixed cadence. Pushed events carry no
// authoritative unread counts, so the list needs the server's numbers
// periodically either way.
func (i *Inbox) loop(ctx context.Context) {
	defer i.wg.Done()
	tick := time.NewTicker(i.opts.RefreshInterval)
	defer tick.Stop()
	for {
		select {
		case <-i.done:
			return
		case <-tick.C:
			i.refresh(ctx)
		}
	}
}

// loadNotice maps a first-load failure to the screen message.
func loadNotice(err error) string {
	switch api.KindOf(err) {
	case api.KindUnauthorized:
		return "Your session has expired. Please log in again."
	case api.KindNetwork:
		return "Can't reach TANDER. Check your connection."
	default:
		return "Something went wrong loading your conversations."
	}
}
