// Package app wires the client together: configuration, cache, REST
// client, push gateway and the screen controllers, composed with fx.
// The Runtime owns the part of that graph that only exists while a
// session is authenticated.
package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/api"
	"github.com/tanderapp/tander/internal/auth"
	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/chat"
	"github.com/tanderapp/tander/internal/config"
	"github.com/tanderapp/tander/internal/conversations"
	"github.com/tanderapp/tander/internal/discovery"
	"github.com/tanderapp/tander/internal/model"
	"github.com/tanderapp/tander/internal/presence"
	"github.com/tanderapp/tander/internal/push"
	"github.com/tanderapp/tander/internal/status"
	"github.com/tanderapp/tander/internal/store"
)

// Runtime drives the session lifecycle. The inbox, deck and presence
// controllers are built at login time, when the authenticated user id is
// known, and torn down at logout.
type Runtime struct {
	cfg     *config.Config
	log     *zap.Logger
	bus     *bus.Bus
	machine *status.Machine
	tokens  *auth.Store
	client  *api.Client
	gateway *push.Gateway
	db      *store.DB

	mu       sync.Mutex
	online   bool
	inbox    *conversations.Inbox
	deck     *discovery.Deck
	presence *presence.Store
}

// NewRuntime creates the runtime and hooks 401 handling into the client.
func NewRuntime(cfg *config.Config, log *zap.Logger, b *bus.Bus, m *status.Machine,
	tokens *auth.Store, client *api.Client, gateway *push.Gateway, db *store.DB) *Runtime {
	rt := &Runtime{
		cfg:     cfg,
		log:     log,
		bus:     b,
		machine: m,
		tokens:  tokens,
		client:  client,
		gateway: gateway,
		db:      db,
	}
	client.SetUnauthorizedHook(rt.onUnauthorized)
	return rt
}

// Start resumes a persisted session or lands on the login screen.
func (r *Runtime) Start(ctx context.Context) {
	if r.tokens.Valid(time.Now()) {
		r.log.Info("resuming session",
			zap.Int64("user_id", r.tokens.UserID()), zap.String("name", r.tokens.Name()))
		go r.GoOnline(ctx)
		return
	}
	r.toAuthRequired()
}

// Stop tears the session down and stops the push gateway for good.
func (r *Runtime) Stop() {
	r.goOffline()
	r.gateway.Stop()
}

// Login exchanges credentials for a session and brings it online. A
// re-login replaces the previous session's controllers, so an account
// switch never leaks the old user's state.
func (r *Runtime) Login(ctx context.Context, phone, password string) (model.User, error) {
	user, err := auth.Login(ctx, r.client, r.tokens, r.log, phone, password)
	if err != nil {
		return model.User{}, err
	}
	r.goOffline()
	r.GoOnline(ctx)
	return user, nil
}

// Logout forgets the session and returns to the login screen.
func (r *Runtime) Logout() {
	r.goOffline()
	if err := auth.Logout(r.tokens, r.log); err != nil {
		r.log.Warn("logout cleanup failed", zap.Error(err))
	}
	r.toAuthRequired()
}

// GoOnline builds and starts the session controllers. Synchronous: the
// initial inbox and deck loads run before it returns.
func (r *Runtime) GoOnline(ctx context.Context) {
	r.mu.Lock()
	if r.online {
		r.mu.Unlock()
		return
	}
	r.online = true
	selfID := r.tokens.UserID()
	inbox := conversations.NewInbox(conversations.Deps{
		API:     r.client,
		Cache:   r.db,
		Bus:     r.bus,
		Machine: r.machine,
		Log:     r.log,
		SelfID:  selfID,
	}, conversations.Options{})
	deck := discovery.NewDeck(discovery.Deps{
		API: r.client,
		Bus: r.bus,
		Log: r.log,
	}, discovery.Options{
		BatchSize:         r.cfg.Discovery.BatchSize,
		PrefetchThreshold: r.cfg.Discovery.PrefetchThreshold,
		Filter: model.DiscoveryFilter{
			MinAge: r.cfg.Discovery.MinAge,
			MaxAge: r.cfg.Discovery.MaxAge,
			City:   r.cfg.Discovery.City,
		},
	})
	pres := presence.NewStore(presence.Deps{
		API: r.client,
		Bus: r.bus,
		Log: r.log,
	}, presence.Options{})
	r.inbox, r.deck, r.presence = inbox, deck, pres
	r.mu.Unlock()

	switch r.machine.Current() {
	case status.Booting, status.AuthRequired:
		if err := r.machine.Transition(status.Connecting); err != nil {
			r.log.Warn("connecting transition refused", zap.Error(err))
		}
	}

	r.gateway.Start(ctx)
	inbox.Start(ctx)
	deck.Start(ctx)
	pres.Start(ctx)
	r.log.Info("session online", zap.Int64("user_id", selfID))
}

// goOffline stops and drops the session controllers. The gateway keeps
// its loop; without a token it just idles.
func (r *Runtime) goOffline() {
	r.mu.Lock()
	if !r.online {
		r.mu.Unlock()
		return
	}
	r.online = false
	inbox, deck, pres := r.inbox, r.deck, r.presence
	r.inbox, r.deck, r.presence = nil, nil, nil
	r.mu.Unlock()

	if inbox != nil {
		inbox.Close()
	}
	if deck != nil {
		deck.Close()
	}
	if pres != nil {
		pres.Close()
	}
}

// OpenThread builds and starts the controller for one conversation. The
// caller owns it and must Close it before opening another, so a stale
// response can only ever land in a dead controller.
func (r *Runtime) OpenThread(ctx context.Context, conv model.Conversation) *chat.Thread {
	t := chat.NewThread(chat.Deps{
		API:    r.client,
		Push:   r.gateway,
		Bus:    r.bus,
		Log:    r.log,
		SelfID: r.tokens.UserID(),
	}, conv.ID, conv.Peer, chat.Options{
		PageSize:     r.cfg.Chat.PageSize,
		PollInterval: r.cfg.Chat.PollInterval(),
		TypingTTL:    r.cfg.Chat.TypingTTL(),
	})
	t.Start(ctx)
	return t
}

// Online reports whether a session is active.
func (r *Runtime) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// Inbox returns the conversation list controller, nil while logged out.
func (r *Runtime) Inbox() *conversations.Inbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inbox
}

// Deck returns the discover controller, nil while logged out.
func (r *Runtime) Deck() *discovery.Deck {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deck
}

// Presence returns the shared presence store, nil while logged out.
func (r *Runtime) Presence() *presence.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence
}

// onUnauthorized fires when the server rejects the session token. It
// runs inside a request, so the teardown moves to a goroutine; closing
// a controller from its own network call would deadlock.
func (r *Runtime) onUnauthorized() {
	r.log.Warn("server rejected session token")
	go func() {
		r.goOffline()
		if err := r.tokens.Clear(); err != nil {
			r.log.Warn("token cleanup failed", zap.Error(err))
		}
		r.toAuthRequired()
	}()
}

// toAuthRequired moves the machine to AuthRequired, bridging through
// Degraded from states with no direct edge.
func (r *Runtime) toAuthRequired() {
	if err := r.machine.Transition(status.AuthRequired); err == nil {
		return
	}
	_ = r.machine.Transition(status.Degraded)
	_ = r.machine.Transition(status.AuthRequired)
}
