package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/model"
)

type fakeAPI struct {
	mu    sync.Mutex
	snap  model.PresenceSnapshot
	err   error
	calls int
}

func (f *fakeAPI) OnlineUsers(context.Context) (model.PresenceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return model.PresenceSnapshot{}, f.err
	}
	return f.snap, nil
}

func newTestStore(f *fakeAPI) (*Store, *bus.Bus) {
	b := bus.New()
	return NewStore(Deps{API: f, Bus: b, Log: zap.NewNop()}, Options{RefreshInterval: time.Hour}), b
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

func TestSnapshotSeedsOnlineSet(t *testing.T) {
	f := &fakeAPI{snap: model.PresenceSnapshot{
		UserIDs:    []int64{2, 3},
		LastActive: map[int64]int64{2: 1000, 5: 400},
	}}
	s, _ := newTestStore(f)
	s.Start(context.Background())
	defer s.Close()

	if !s.Online(2) || !s.Online(3) || s.Online(5) {
		t.Fatalf("online set wrong: 2=%v 3=%v 5=%v", s.Online(2), s.Online(3), s.Online(5))
	}
	if got := s.OnlineCount(); got != 2 {
		t.Fatalf("online count = %d, want 2", got)
	}
	if got := s.LastActiveAt(5); got != 400 {
		t.Fatalf("last active for offline user = %d, want 400", got)
	}
	if got := s.LastActiveAt(99); got != 0 {
		t.Fatalf("unknown user last active = %d, want 0", got)
	}
}

func TestPushedEventsPatchTheSet(t *testing.T) {
	f := &fakeAPI{snap: model.PresenceSnapshot{UserIDs: []int64{2}}}
	s, b := newTestStore(f)
	s.Start(context.Background())
	defer s.Close()

	b.Publish(bus.Event{Kind: "presence.changed", Timestamp: time.Now(), Payload: model.PresenceEvent{
		UserID: 7, Online: true, LastActiveAt: 900,
	}})
	waitFor(t, "user 7 online", func() bool { return s.Online(7) })

	b.Publish(bus.Event{Kind: "presence.changed", Timestamp: time.Now(), Payload: model.PresenceEvent{
		UserID: 2, Online: false, LastActiveAt: 1200,
	}})
	waitFor(t, "user 2 offline", func() bool { return !s.Online(2) })
	if got := s.LastActiveAt(2); got != 1200 {
		t.Fatalf("last active not patched: %d", got)
	}
}

func TestStaleLastActiveIgnored(t *testing.T) {
	f := &fakeAPI{snap: model.PresenceSnapshot{
		UserIDs:    []int64{2},
		LastActive: map[int64]int64{2: 2000},
	}}
	s, b := newTestStore(f)
	s.Start(context.Background())
	defer s.Close()

	// An event that raced the snapshot carries an older timestamp.
	b.Publish(bus.Event{Kind: "presence.changed", Timestamp: time.Now(), Payload: model.PresenceEvent{
		UserID: 2, Online: true, LastActiveAt: 1500,
	}})
	time.Sleep(30 * time.Millisecond)
	if got := s.LastActiveAt(2); got != 2000 {
		t.Fatalf("stale last-active overwrote newer value: %d", got)
	}
}

func TestFailedSnapshotKeepsStoreUsable(t *testing.T) {
	f := &fakeAPI{err: errors.New("offline")}
	s, b := newTestStore(f)
	s.Start(context.Background())
	defer s.Close()

	if got := s.OnlineCount(); got != 0 {
		t.Fatalf("count after failed fetch = %d", got)
	}
	b.Publish(bus.Event{Kind: "presence.changed", Timestamp: time.Now(), Payload: model.PresenceEvent{
		UserID: 4, Online: true,
	}})
	waitFor(t, "event applied despite failed snapshot", func() bool { return s.Online(4) })
}
