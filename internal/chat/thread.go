package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/api"
	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/model"
)

// API is the REST slice the thread controller uses.
type API interface {
	// Messages fetches one history page, newest first; the bool reports
	// whether it was the last (oldest) page.
	Messages(ctx context.Context, convID int64, page, size int) ([]model.Message, bool, error)
	SendMessage(ctx context.Context, receiverID int64, content, clientRef string) (model.Message, error)
	MarkRead(ctx context.Context, convID int64) error
}

// Push is the realtime slice the thread controller uses. All methods
// degrade to ErrNotConnected-style failures while the channel is down;
// the thread then falls back to REST or drops the nicety.
type Push interface {
	SendChatMessage(receiverID, convID int64, content, clientRef string) error
	SendTyping(convID int64, typing bool) error
	SendRead(convID int64) error
	SubscribeTyping(convID int64) error
	UnsubscribeTyping(convID int64)
	Connected() bool
}

// Options tunes a thread. Zero values fall back to the defaults.
type Options struct {
	PageSize     int
	PollInterval time.Duration
	TypingTTL    time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 20
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.TypingTTL <= 0 {
		o.TypingTTL = 3 * time.Second
	}
	return o
}

// Deps bundles what every thread shares.
type Deps struct {
	API    API
	Push   Push
	Bus    *bus.Bus
	Log    *zap.Logger
	SelfID int64
}

// Thread is the controller behind one open conversation screen. One
// instance per opened conversation; switching conversations closes the
// old instance, so a late response lands in a dead controller instead
// of the wrong screen.
type Thread struct {
	deps   Deps
	convID int64
	peer   model.User
	opts   Options

	mu         sync.Mutex
	msgs       []model.Message
	page       int
	exhausted  bool
	loadingOld bool
	loaded     bool
	initialErr string
	// typingUntil holds the instant the peer typing flag expires.
	typingUntil time.Time

	// test seams
	now    func() time.Time
	newRef func() string

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Snapshot is what the thread view renders.
type Snapshot struct {
	ConversationID int64
	Peer           model.User
	Messages       []model.Message
	PeerTyping     bool
	LoadingOlder   bool
	Exhausted      bool
	Loaded         bool
	// InitialErr is non-empty only while the very first load has failed
	// and nothing has been shown yet; the poll loop clears it.
	InitialErr string
}

// NewThread creates the controller for one conversation.
func NewThread(deps Deps, convID int64, peer model.User, opts Options) *Thread {
	return &Thread{
		deps:   deps,
		convID: convID,
		peer:   peer,
		opts:   opts.withDefaults(),
		now:    time.Now,
		newRef: uuid.NewString,
		done:   make(chan struct{}),
	}
}

// Start loads the first page, marks the conversation read and launches
// the push consumer and the polling fallback. A failed first load is
// remembered as InitialErr; the loops still start, so the thread heals
// itself once the network returns.
func (t *Thread) Start(ctx context.Context) {
	msgs, last, err := t.deps.API.Messages(ctx, t.convID, 0, t.opts.PageSize)
	if err != nil {
		t.mu.Lock()
		t.initialErr = friendly(err)
		t.mu.Unlock()
		t.deps.Log.Warn("initial history load failed",
			zap.Int64("conversation_id", t.convID), zap.Error(err))
	} else {
		t.mu.Lock()
		t.ingestLocked(msgs)
		t.loaded = true
		if last || len(msgs) < t.opts.PageSize {
			t.exhausted = true
		}
		t.mu.Unlock()
		t.publishHistory(msgs)
		t.markRead(ctx)
	}

	if t.deps.Push != nil {
		if err := t.deps.Push.SubscribeTyping(t.convID); err != nil {
			t.deps.Log.Debug("typing subscribe failed", zap.Error(err))
		}
	}

	chatEvents, unsubChat := t.deps.Bus.Subscribe("chat.", 64)
	convEvents, unsubConv := t.deps.Bus.Subscribe("conv.", 16)
	t.wg.Add(2)
	go t.consume(chatEvents, convEvents, func() {
		unsubChat()
		unsubConv()
	})
	go t.poll(ctx)
}

// Close stops the loops. Safe to call twice.
func (t *Thread) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		if t.deps.Push != nil {
			t.deps.Push.UnsubscribeTyping(t.convID)
		}
	})
	t.wg.Wait()
}

// Snapshot copies the render state.
func (t *Thread) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := make([]model.Message, len(t.msgs))
	copy(msgs, t.msgs)
	return Snapshot{
		ConversationID: t.convID,
		Peer:           t.peer,
		Messages:       msgs,
		PeerTyping:     t.now().Before(t.typingUntil),
		LoadingOlder:   t.loadingOld,
		Exhausted:      t.exhausted,
		Loaded:         t.loaded,
		InitialErr:     t.initialErr,
	}
}

// Send appends an optimistic entry and dispatches it, preferring the
// push channel and falling back to REST. Returns the placeholder id.
// The composer never blocks: a failure marks this one entry failed.
func (t *Thread) Send(ctx context.Context, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	now := t.now()
	m := model.Message{
		ID:             model.NewTempID(now),
		ConversationID: t.convID,
		SenderID:       t.deps.SelfID,
		Mine:           true,
		Text:           text,
		Type:           model.MessageText,
		Timestamp:      now.UnixMilli(),
		Status:         model.StatusSending,
		ClientRef:      t.newRef(),
	}
	t.mu.Lock()
	t.msgs = append(t.msgs, m)
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.deliver(ctx, m)
	}()
	return m.ID
}

// Resend re-dispatches a failed message. Only failed own messages are
// eligible; everything else is a no-op.
func (t *Thread) Resend(ctx context.Context, id string) {
	t.mu.Lock()
	var msg model.Message
	found := false
	for i := range t.msgs {
		if t.msgs[i].ID == id && t.msgs[i].Mine && t.msgs[i].Status == model.StatusFailed {
			t.msgs[i].Status = model.StatusSending
			msg = t.msgs[i]
			found = true
			break
		}
	}
	t.mu.Unlock()
	if !found {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.deliver(ctx, msg)
	}()
}

// deliver pushes the message out, marking it failed when both channels
// refuse. The push path resolves through the echoed copy on the
// messages queue; the REST path resolves through the response body.
func (t *Thread) deliver(ctx context.Context, m model.Message) {
	if t.deps.Push != nil && t.deps.Push.Connected() {
		if err := t.deps.Push.SendChatMessage(t.peer.ID, t.convID, m.Text, m.ClientRef); err == nil {
			return
		}
	}
	sent, err := t.deps.API.SendMessage(ctx, t.peer.ID, m.Text, m.ClientRef)
	if err != nil {
		t.deps.Log.Warn("send failed", zap.Int64("conversation_id", t.convID), zap.Error(err))
		t.markFailed(m.ID)
		return
	}
	t.Ingest(sent)
}

func (t *Thread) markFailed(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.msgs {
		if t.msgs[i].ID == id && model.CanAdvance(t.msgs[i].Status, model.StatusFailed) {
			t.msgs[i].Status = model.StatusFailed
			return
		}
	}
}

// Ingest feeds one confirmed server message through reconciliation and
// merge. Exported for the send path; batches go through ingestLocked.
func (t *Thread) Ingest(m model.Message) {
	t.mu.Lock()
	t.ingestLocked([]model.Message{m})
	t.mu.Unlock()
}

// ingestLocked reconciles own echoes against pending optimistic entries
// and merges the remainder. Reports whether anything changed. Caller
// holds t.mu.
func (t *Thread) ingestLocked(batch []model.Message) bool {
	reconciled := false
	fresh := batch[:0:0]
	for _, m := range batch {
		if m.ConversationID != t.convID {
			continue
		}
		if m.Mine && t.reconcileLocked(m) {
			reconciled = true
			continue
		}
		fresh = append(fresh, m)
	}
	before := len(t.msgs)
	t.msgs = Merge(t.msgs, fresh)
	return reconciled || len(t.msgs) != before
}

// reconcileLocked replaces a pending optimistic entry with its confirmed
// copy, preserving list position. The client ref match wins; the
// text+status heuristic stands in for servers that drop the ref. Returns
// false when nothing matched, which sends the message down the merge path.
func (t *Thread) reconcileLocked(server model.Message) bool {
	byRef, byText := -1, -1
	for i := range t.msgs {
		e := &t.msgs[i]
		if !model.IsTempID(e.ID) {
			continue
		}
		if server.ClientRef != "" && e.ClientRef == server.ClientRef {
			byRef = i
			break
		}
		if byText == -1 && e.Text == server.Text && e.Status == model.StatusSending {
			byText = i
		}
	}
	idx := byRef
	if idx == -1 {
		idx = byText
	}
	if idx == -1 {
		return false
	}
	if server.Status == "" {
		server.Status = model.StatusSent
	}
	t.msgs[idx] = server
	return true
}

// ApplyReceipt advances delivery state. Unknown ids, repeats and
// receipts for reconciled-away placeholders all fall through silently.
func (t *Thread) ApplyReceipt(r model.Receipt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch r.Kind {
	case model.ReceiptDelivered:
		for i := range t.msgs {
			if t.msgs[i].ID == r.MessageID {
				if t.msgs[i].Mine && model.CanAdvance(t.msgs[i].Status, model.StatusDelivered) {
					t.msgs[i].Status = model.StatusDelivered
				}
				return
			}
		}
	case model.ReceiptRead:
		for i := range t.msgs {
			if t.msgs[i].Mine && model.CanAdvance(t.msgs[i].Status, model.StatusRead) {
				t.msgs[i].Status = model.StatusRead
			}
		}
	}
}

// LoadOlder fetches the next older page and prepends it. No-op while a
// page load is in flight or after the oldest page arrived. The page
// counter only advances when the response carried messages, so a
// transient failure retries the same page next time.
func (t *Thread) LoadOlder(ctx context.Context) {
	t.mu.Lock()
	if t.loadingOld || t.exhausted {
		t.mu.Unlock()
		return
	}
	t.loadingOld = true
	next := t.page + 1
	size := t.opts.PageSize
	t.mu.Unlock()

	msgs, last, err := t.deps.API.Messages(ctx, t.convID, next, size)

	t.mu.Lock()
	t.loadingOld = false
	if err != nil {
		t.mu.Unlock()
		t.deps.Log.Debug("older page load failed", zap.Int("page", next), zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		t.exhausted = true
		t.mu.Unlock()
		return
	}
	t.page = next
	if last || len(msgs) < size {
		t.exhausted = true
	}
	t.ingestLocked(msgs)
	t.mu.Unlock()
	t.publishHistory(msgs)
}

// NotifyTyping forwards composer activity, best effort.
func (t *Thread) NotifyTyping(typing bool) {
	if t.deps.Push == nil || !t.deps.Push.Connected() {
		return
	}
	if err := t.deps.Push.SendTyping(t.convID, typing); err != nil {
		t.deps.Log.Debug("typing notify failed", zap.Error(err))
	}
}

// markRead tells the server everything here was seen and lets the inbox
// zero its badge.
func (t *Thread) markRead(ctx context.Context) {
	if t.deps.Push != nil && t.deps.Push.Connected() {
		_ = t.deps.Push.SendRead(t.convID)
	}
	if err := t.deps.API.MarkRead(ctx, t.convID); err != nil {
		t.deps.Log.Debug("mark read failed", zap.Int64("conversation_id", t.convID), zap.Error(err))
	}
	t.deps.Bus.Publish(bus.Event{Kind: "conv.read", Timestamp: t.now(), Payload: t.convID})
}

func (t *Thread) publishHistory(msgs []model.Message) {
	if len(msgs) == 0 {
		return
	}
	t.deps.Bus.Publish(bus.Event{
		Kind:      "chat.history",
		Timestamp: t.now(),
		Payload:   model.HistoryBatch{ConversationID: t.convID, Messages: msgs},
	})
}

// consume applies pushed events for this conversation.
func (t *Thread) consume(chatEvents, convEvents <-chan bus.Event, unsub func()) {
	defer t.wg.Done()
	defer unsub()
	for {
		select {
		case <-t.done:
			return
		case evt := <-chatEvents:
			t.handle(evt)
		case evt := <-convEvents:
			t.handle(evt)
		}
	}
}

func (t *Thread) handle(evt bus.Event) {
	switch evt.Kind {
	case "chat.message":
		m, ok := evt.Payload.(model.Message)
		if !ok || m.ConversationID != t.convID {
			return
		}
		t.Ingest(m)
		if !m.Mine {
			// The screen is open, so the message counts as seen.
			t.markRead(context.Background())
		}
	case "chat.receipt":
		r, ok := evt.Payload.(model.Receipt)
		if !ok || r.ConversationID != t.convID {
			return
		}
		t.ApplyReceipt(r)
	case "conv.typing":
		ev, ok := evt.Payload.(model.TypingEvent)
		if !ok || ev.ConversationID != t.convID || ev.UserID == t.deps.SelfID {
			return
		}
		t.setTyping(ev.Typing)
	}
}

func (t *Thread) setTyping(typing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if typing {
		t.typingUntil = t.now().Add(t.opts.TypingTTL)
	} else {
		t.typingUntil = time.Time{}
	}
}

// poll refetches the newest page on a fixed cadence until Close. The
// merge path makes the refetch idempotent, so this is the fallback that
// keeps a thread alive when the push channel is down, and a safety net
// for events the push channel dropped.
func (t *Thread) poll(ctx context.Context) {
	defer t.wg.Done()
	tick := time.NewTicker(t.opts.PollInterval)
	defer tick.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-tick.C:
			t.refresh(ctx)
		}
	}
}

func (t *Thread) refresh(ctx context.Context) {
	msgs, _, err := t.deps.API.Messages(ctx, t.convID, 0, t.opts.PageSize)
	if err != nil {
		// Transient: absorbed, next tick retries.
		t.deps.Log.Debug("poll failed", zap.Int64("conversation_id", t.convID), zap.Error(err))
		return
	}
	t.mu.Lock()
	changed := t.ingestLocked(msgs)
	firstData := !t.loaded
	t.loaded = true
	t.initialErr = ""
	t.mu.Unlock()
	if changed {
		t.publishHistory(msgs)
	}
	if firstData {
		t.markRead(ctx)
	}
}

// friendly maps an API failure to the string the screen shows.
func friendly(err error) string {
	switch api.KindOf(err) {
	case api.KindUnauthorized:
		return "Your session has expired. Please log in again."
	case api.KindNetwork:
		return "Can't reach TANDER. Check your connection."
	default:
		return "Something went wrong loading this conversation."
	}
}
