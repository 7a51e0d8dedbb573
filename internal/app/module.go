package app

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/account"
	"github.com/tanderapp/tander/internal/api"
	"github.com/tanderapp/tander/internal/auth"
	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/config"
	"github.com/tanderapp/tander/internal/lock"
	"github.com/tanderapp/tander/internal/logging"
	"github.com/tanderapp/tander/internal/push"
	"github.com/tanderapp/tander/internal/status"
	"github.com/tanderapp/tander/internal/store"
	intsync "github.com/tanderapp/tander/internal/sync"
)

// Params holds the resolved account configuration passed to the fx module.
type Params struct {
	AccountName string
	// APIURL and WSURL override the config file when non-empty (--api/--ws flags).
	APIURL string
	WSURL  string
}

// Module returns the fx module for the client, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideTokens,
			provideClient,
			provideGateway,
			provideSyncEngine,
			NewRuntime,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(account.ConfigPath())
	if err != nil {
		return nil, err
	}
	if p.APIURL != "" {
		cfg.APIURL = p.APIURL
	}
	if p.WSURL != "" {
		cfg.WSURL = p.WSURL
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	// The terminal belongs to the UI; logs go to the account file only.
	return logging.NewFile(account.LogPath(p.AccountName), p.AccountName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := account.EnsureDir(p.AccountName); err != nil {
		return nil, err
	}
	logger.Info("acquiring account lock", zap.String("account", p.AccountName))
	l, err := lock.Acquire(account.Dir(p.AccountName))
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := account.CacheDBPath(p.AccountName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideTokens(p Params, logger *zap.Logger) *auth.Store {
	s := auth.NewStore(account.TokenPath(p.AccountName))
	if err := s.Load(); err != nil && !errors.Is(err, auth.ErrNoToken) {
		// An unreadable token file means logging in again, not a dead client.
		logger.Warn("persisted token unusable", zap.Error(err))
	}
	return s
}

func provideClient(cfg *config.Config, tokens *auth.Store, logger *zap.Logger) *api.Client {
	return api.NewClient(cfg.APIURL, tokens, logger)
}

func provideGateway(cfg *config.Config, tokens *auth.Store, b *bus.Bus, m *status.Machine, logger *zap.Logger) *push.Gateway {
	return push.NewGateway(cfg.WSURL, tokens, b, m, logger)
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, rt *Runtime, engine *intsync.Engine, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start the cache mirror (subscribes to chat/conv bus events).
			engine.Start(context.Background())

			// Decide between the login screen and going straight online.
			rt.Start(context.Background())
			return nil
		},
		OnStop: func(_ context.Context) error {
			rt.Stop()
			engine.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
