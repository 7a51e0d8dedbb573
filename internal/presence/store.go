// Package presence tracks which users are online right now. The store
// is the one deliberately shared read-only resource across screens: the
// inbox and the thread header both ask it, nobody but the snapshot
// fetch and pushed presence events write it. It is handed to consumers
// as an explicit dependency, never reached through a global.
package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/model"
)

// API is the REST slice the store uses.
type API interface {
	OnlineUsers(ctx context.Context) (model.PresenceSnapshot, error)
}

// Options tunes the store. Zero values fall back to the defaults.
type Options struct {
	RefreshInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 30 * time.Second
	}
	return o
}

// Deps bundles the store's collaborators.
type Deps struct {
	API API
	Bus *bus.Bus
	Log *zap.Logger
}

// Store holds the online set and last-active timestamps.
type Store struct {
	deps Deps
	opts Options

	mu         sync.RWMutex
	online     map[int64]bool
	lastActive map[int64]int64

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewStore creates the presence store.
func NewStore(deps Deps, opts Options) *Store {
	return &Store{
		deps:       deps,
		opts:       opts.withDefaults(),
		online:     make(map[int64]bool),
		lastActive: make(map[int64]int64),
		done:       make(chan struct{}),
	}
}

// Start fetches the first snapshot and begins the event consumer and
// the periodic re-fetch. A failed first fetch is fine; events and the
// next tick fill the store in.
func (s *Store) Start(ctx context.Context) {
	s.refresh(ctx)

	events, unsub := s.deps.Bus.Subscribe("presence.", 64)
	s.wg.Add(2)
	go s.consume(events, unsub)
	go s.loop(ctx)
}

// Close stops the loops.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

// Online reports whether the user is online right now.
func (s *Store) Online(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online[userID]
}

// LastActiveAt returns the user's last-active time in epoch
// milliseconds, zero when unknown.
func (s *Store) LastActiveAt(userID int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive[userID]
}

// OnlineCount returns the size of the online set.
func (s *Store) OnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, on := range s.online {
		if on {
			n++
		}
	}
	return n
}

// refresh replaces the whole set with the server's answer.
func (s *Store) refresh(ctx context.Context) {
	snap, err := s.deps.API.OnlineUsers(ctx)
	if err != nil {
		s.deps.Log.Debug("presence snapshot failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.online = make(map[int64]bool, len(snap.UserIDs))
	for _, id := range snap.UserIDs {
		s.online[id] = true
	}
	for id, at := range snap.LastActive {
		s.lastActive[id] = at
	}
	s.mu.Unlock()
}

// consume patches the set with pushed presence changes.
func (s *Store) consume(events <-chan bus.Event, unsub func()) {
	defer s.wg.Done()
	defer unsub()
	for {
		select {
		case <-s.done:
			return
		case evt := <-events:
			if evt.Kind != "presence.changed" {
				continue
			}
			ev, ok := evt.Payload.(model.PresenceEvent)
			if !ok {
				continue
			}
			s.mu.Lock()
			if ev.Online {
				s.online[ev.UserID] = true
			} else {
				delete(s.online, ev.UserID)
			}
			if ev.LastActiveAt > s.lastActive[ev.UserID] {
				s.lastActive[ev.UserID] = ev.LastActiveAt
			}
			s.mu.Unlock()
		}
	}
}

// loop re-fetches the snapshot on a fixed cadence so missed events
// cannot leave a ghost online forever.
func (s *Store) loop(ctx context.Context) {
	defer s.wg.Done()
	tick := time.NewTicker(s.opts.RefreshInterval)
	defer tick.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-tick.C:
			s.refresh(ctx)
		}
	}
}
