package conversations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/model"
	"github.com/tanderapp/tander/internal/status"
)

type fakeAPI struct {
	mu      sync.Mutex
	convs   []model.Conversation
	listErr error
	lists   int
	reads   []int64
	started []int64
}

func (f *fakeAPI) Conversations(context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Conversation(nil), f.convs...), nil
}

func (f *fakeAPI) MarkRead(_ context.Context, convID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, convID)
	return nil
}

func (f *fakeAPI) StartConversation(_ context.Context, otherUserID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, otherUserID)
	return 500 + otherUserID, nil
}

func (f *fakeAPI) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type fakeCache struct {
	convs []model.Conversation
	err   error
}

func (f *fakeCache) ListConversations() ([]model.Conversation, error) {
	return append([]model.Conversation(nil), f.convs...), f.err
}

func conv(id int64, name, preview string, at int64, unread int) model.Conversation {
	return model.Conversation{
		ID:            id,
		Peer:          model.User{ID: id + 100, Name: name},
		LastMessage:   preview,
		LastMessageAt: at,
		UnreadCount:   unread,
	}
}

func newTestInbox(f *fakeAPI, c Cache, m *status.Machine) (*Inbox, *bus.Bus) {
	b := bus.New()
	deps := Deps{API: f, Cache: c, Bus: b, Machine: m, Log: zap.NewNop(), SelfID: 1}
	// A long cadence keeps the refresh loop quiet during assertions.
	return NewInbox(deps, Options{RefreshInterval: time.Hour}), b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSeedFromCacheThenServerWins(t *testing.T) {
	f := &fakeAPI{convs: []model.Conversation{conv(1, "Rosa", "fresh from server", 200, 2)}}
	c := &fakeCache{convs: []model.Conversation{conv(1, "Rosa", "stale cached row", 100, 0)}}
	in, _ := newTestInbox(f, c, nil)
	in.Start(context.Background())
	defer in.Close()

	snap := in.Snapshot()
	if !snap.Loaded {
		t.Fatal("inbox not loaded after Start")
	}
	if len(snap.Conversations) != 1 {
		t.Fatalf("got %d rows, want 1", len(snap.Conversations))
	}
	got := snap.Conversations[0]
	if got.LastMessage != "fresh from server" || got.UnreadCount != 2 {
		t.Fatalf("server row did not replace cached row: %+v", got)
	}
}

func TestRefreshFlipsSyncingToOnline(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	if err := m.Transition(status.Connecting); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(status.Syncing); err != nil {
		t.Fatal(err)
	}

	f := &fakeAPI{convs: []model.Conversation{conv(1, "Rosa", "hi", 100, 0)}}
	in := NewInbox(Deps{API: f, Bus: b, Machine: m, Log: zap.NewNop(), SelfID: 1},
		Options{RefreshInterval: time.Hour})
	in.Start(context.Background())
	defer in.Close()

	if got := m.Current(); got != status.Online {
		t.Fatalf("machine state = %s, want ONLINE", got)
	}
}

func TestMessageBumpsPreviewUnreadAndOrder(t *testing.T) {
	f := &fakeAPI{convs: []model.Conversation{
		conv(1, "Rosa", "old", 200, 0),
		conv(2, "Lito", "older", 100, 0),
	}}
	in, b := newTestInbox(f, nil, nil)
	in.Start(context.Background())
	defer in.Close()

	b.Publish(bus.Event{Kind: "chat.message", Timestamp: time.Now(), Payload: model.Message{
		ID: "srv-9", ConversationID: 2, SenderID: 102, Text: "kumusta!", Timestamp: 300,
		Type: model.MessageText, Status: model.StatusSent,
	}})

	waitFor(t, "row bump", func() bool {
		snap := in.Snapshot()
		return len(snap.Conversations) == 2 && snap.Conversations[0].ID == 2
	})
	got := in.Snapshot().Conversations[0]
	if got.LastMessage != "kumusta!" || got.LastMessageAt != 300 || got.UnreadCount != 1 {
		t.Fatalf("bumped row wrong: %+v", got)
	}
}

func TestOwnMessageBumpsWithoutUnread(t *testing.T) {
	f := &fakeAPI{convs: []model.Conversation{conv(1, "Rosa", "old", 100, 0)}}
	in, b := newTestInbox(f, nil, nil)
	in.Start(context.Background())
	defer in.Close()

	b.Publish(bus.Event{Kind: "chat.message", Timestamp: time.Now(), Payload: model.Message{
		ID: "srv-10", ConversationID: 1, SenderID: 1, Mine: true, Text: "on my way",
		Timestamp: 400, Type: model.MessageText, Status: model.StatusSent,
	}})

	waitFor(t, "preview update", func() bool {
		return in.Snapshot().Conversations[0].LastMessage == "on my way"
	})
	if got := in.Snapshot().Conversations[0].UnreadCount; got != 0 {
		t.Fatalf("own message raised unread to %d", got)
	}
}

func TestUnknownConversationTriggersRefresh(t *testing.T) {
	f := &fakeAPI{convs: []model.Conversation{conv(1, "Rosa", "hi", 100, 0)}}
	in, b := newTestInbox(f, nil, nil)
	in.Start(context.Background())
	defer in.Close()

	f.mu.Lock()
	f.convs = append(f.convs, conv(9, "Ben", "bagong match!", 500, 1))
	f.mu.Unlock()

	b.Publish(bus.Event{Kind: "chat.message", Timestamp: time.Now(), Payload: model.Message{
		ID: "srv-11", ConversationID: 9, SenderID: 109, Text: "bagong match!", Timestamp: 500,
		Type: model.MessageText, Status: model.StatusSent,
	}})

	waitFor(t, "row for new conversation", func() bool {
		for _, c := range in.Snapshot().Conversations {
			if c.ID == 9 {
				return true
			}
		}
		return false
	})
}

func TestReadEventZeroesUnread(t *testing.T) {
	f := &fakeAPI{convs: []model.Conversation{conv(1, "Rosa", "hi", 100, 3)}}
	in, b := newTestInbox(f, nil, nil)
	in.Start(context.Background())
	defer in.Close()

	b.Publish(bus.Event{Kind: "conv.read", Timestamp: time.Now(), Payload: int64(1)})
	waitFor(t, "unread cleared", func() bool {
		return in.Snapshot().Conversations[0].UnreadCount == 0
	})
}

func TestTypingFlagExpires(t *testing.T) {
	f := &fakeAPI{convs: []model.Conversation{conv(1, "Rosa", "hi", 100, 0)}}
	in, b := newTestInbox(f, nil, nil)

	now := time.Unix(1_700_000_000, 0)
	var clockMu sync.Mutex
	in.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	in.Start(context.Background())
	defer in.Close()

	b.Publish(bus.Event{Kind: "conv.typing", Timestamp: now, Payload: model.TypingEvent{
		ConversationID: 1, UserID: 101, Typing: true,
	}})
	waitFor(t, "typing flag", func() bool { return in.Snapshot().Typing[1] })

	clockMu.Lock()
	now = now.Add(4 * time.Second)
	clockMu.Unlock()
	if in.Snapshot().Typing[1] {
		t.Fatal("typing flag outlived its TTL")
	}
}

func TestRowsSurviveServerOmission(t *testing.T) {
	f := &fakeAPI{convs: []model.Conversation{
		conv(1, "Rosa", "hi", 200, 0),
		conv(2, "Lito", "hello", 100, 0),
	}}
	in, _ := newTestInbox(f, nil, nil)
	in.Start(context.Background())
	defer in.Close()

	f.mu.Lock()
	f.convs = f.convs[:1] // server answer momentarily omits conversation 2
	f.mu.Unlock()
	in.Refresh(context.Background())

	if got := len(in.Snapshot().Conversations); got != 2 {
		t.Fatalf("row count after omission = %d, want 2", got)
	}
}

func TestInitialErrorOnlyWhenNothingToShow(t *testing.T) {
	f := &fakeAPI{listErr: errors.New("offline")}
	in, _ := newTestInbox(f, nil, nil)
	in.Start(context.Background())
	defer in.Close()

	if snap := in.Snapshot(); snap.InitialErr == "" || snap.Loaded {
		t.Fatalf("failed first load not surfaced: %+v", snap)
	}

	f.mu.Lock()
	f.listErr = nil
	f.convs = []model.Conversation{conv(1, "Rosa", "hi", 100, 0)}
	f.mu.Unlock()
	in.Refresh(context.Background())

	if snap := in.Snapshot(); snap.InitialErr != "" || !snap.Loaded {
		t.Fatalf("recovery did not clear the error: %+v", snap)
	}
}

func TestCachedRowsSuppressInitialError(t *testing.T) {
	// With cached rows on screen the failure stays a banner concern for
	// the status machine, not a full-screen error.
	f := &fakeAPI{listErr: errors.New("offline")}
	c := &fakeCache{convs: []model.Conversation{conv(1, "Rosa", "cached", 100, 0)}}
	in, _ := newTestInbox(f, c, nil)
	in.Start(context.Background())
	defer in.Close()

	snap := in.Snapshot()
	if snap.InitialErr != "" {
		t.Fatalf("error shown despite cached rows: %q", snap.InitialErr)
	}
	if len(snap.Conversations) != 1 {
		t.Fatalf("cached rows missing: %+v", snap.Conversations)
	}
}

func TestMarkReadUpdatesRowAndServer(t *testing.T) {
	f := &fakeAPI{convs: []model.Conversation{conv(1, "Rosa", "hi", 100, 5)}}
	in, _ := newTestInbox(f, nil, nil)
	in.Start(context.Background())
	defer in.Close()

	in.MarkRead(context.Background(), 1)
	if got := in.Snapshot().Conversations[0].UnreadCount; got != 0 {
		t.Fatalf("unread = %d after MarkRead", got)
	}
	f.mu.Lock()
	reads := append([]int64(nil), f.reads...)
	f.mu.Unlock()
	if len(reads) != 1 || reads[0] != 1 {
		t.Fatalf("server read calls = %v", reads)
	}
}

func TestStartConversationRefreshesList(t *testing.T) {
	f := &fakeAPI{}
	in, _ := newTestInbox(f, nil, nil)
	in.Start(context.Background())
	defer in.Close()

	before := f.listCalls()
	f.mu.Lock()
	f.convs = []model.Conversation{conv(12, "Ben", "", 0, 0)}
	f.mu.Unlock()

	id, err := in.StartConversation(context.Background(), 112)
	if err != nil {
		t.Fatal(err)
	}
	if id != 612 {
		t.Fatalf("conversation id = %d, want 612", id)
	}
	if got := f.listCalls(); got != before+1 {
		t.Fatalf("refresh after start: %d calls, want %d", got, before+1)
	}
}
