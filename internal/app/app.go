package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddlechat/huddle-server/internal/callengine/p2p"
	"github.com/huddlechat/huddle-server/internal/config"
	"github.com/huddlechat/huddle-server/internal/core"
	"github.com/huddlechat/huddle-server/internal/store"
	redisstore "github.com/huddlechat/huddle-server/internal/store/redis"
	"github.com/huddlechat/huddle-server/internal/store/sqlite"
	transporthttp "github.com/huddlechat/huddle-server/internal/transport/http"
)

// App wires together the stores, hub and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	callLog         store.CallLogStore
	log             *zerolog.Logger
}

// New constructs the application with the provided configuration. Startup
// fails if redis is unreachable.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := redisstore.New(cfg.RedisURL, logger)
	if err != nil {
		return nil, fmt.Errorf("init redis store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.Ping(pingCtx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	logger.Info().Str("redis_url", cfg.RedisURL).Msg("redis connected")

	callLog, err := sqlite.New(cfg.CallLogPath)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init call log: %w", err)
	}
	logger.Info().Str("db_path", cfg.CallLogPath).Msg("call log initialized")

	engine := p2p.New()

	hub := core.NewHub(st, callLog, engine, core.CallConfig{RingTimeout: cfg.RingTimeout}, logger)
	server := transporthttp.NewServer(hub, st, callLog, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		callLog:         callLog,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the stores.
func (a *App) cleanup() {
	if a.callLog != nil {
		if err := a.callLog.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close call log")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
