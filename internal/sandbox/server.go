package sandbox

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Options configure a sandbox server.
type Options struct {
	// Addr is the listen address, e.g. "127.0.0.1:8080".
	Addr string
	// Secret signs session tokens. A development default applies when empty.
	Secret string
	// DailyLimit caps likes per user per day. Non-positive means unlimited.
	DailyLimit int
	// Seed loads the demo cast when true.
	Seed bool
}

const defaultSecret = "tander-sandbox-secret"

// Server is the composed sandbox: world state, STOMP broker and the
// HTTP surface that serves both REST and /ws.
type Server struct {
	state   *State
	broker  *Broker
	handler http.Handler
	http    *http.Server
	log     *zap.Logger
}

// NewServer wires a sandbox. Tests typically skip Start and mount
// Handler on an httptest.Server instead.
func NewServer(opts Options, log *zap.Logger) *Server {
	if opts.Secret == "" {
		opts.Secret = defaultSecret
	}
	state := NewState(opts.Secret, opts.DailyLimit)
	if opts.Seed {
		Seed(state)
	}
	broker := NewBroker(state, log)
	handler := NewHandler(state, broker, log)
	return &Server{
		state:   state,
		broker:  broker,
		handler: handler,
		http: &http.Server{
			Addr:         opts.Addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// State exposes the world for seeding and assertions.
func (s *Server) State() *State { return s.state }

// Handler exposes the HTTP surface for httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Start serves until Shutdown. Blocks.
func (s *Server) Start() error {
	s.log.Info("sandbox listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the HTTP server. Live push sessions are hijacked
// connections and close when the process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
