// Package app wires the Flare Hub server runtime: config, logging, storage,
// HTTP routes, conversations and the notification gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"flarehub/cmd/identity"
	authapi "flarehub/cmd/internal/auth/api"
	"flarehub/cmd/internal/auth/guard"
	"flarehub/cmd/internal/auth/session"
	"flarehub/cmd/internal/incubator"
	"flarehub/cmd/internal/messaging"
	"flarehub/cmd/internal/metrics"
	"flarehub/cmd/internal/notify"
	"flarehub/cmd/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// App is the Flare Hub server runtime. It owns the storage backend and the HTTP handler tree.
type App struct {
	cfg     Config
	log     Logger
	backend string

	kv     storage.KV
	dbPool *pgxpool.Pool
	rdb    *redis.Client

	metrics *metrics.Recorder
	bus     *notify.Bus
	ws      *notify.WSGateway

	auth      *authapi.Handler
	incubator *incubator.Handler
	messages  *messaging.Service
	messaging *messaging.Handler

	handler http.Handler
}

// New constructs a fully wired App. Session, auth, mail and gateway settings
// are read from their package-level FLAREHUB_* keys.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	mailCfg, err := notify.LoadMailerConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("mailer config: %w", err)
	}
	msgCfg, err := messaging.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("messaging config: %w", err)
	}

	a := &App{cfg: cfg, log: log}
	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	fail := func(err error) (*App, error) {
		a.closeStorage()
		return nil, err
	}

	a.metrics = metrics.New()
	a.bus = notify.NewBus(log)
	a.ws = notify.NewWSGateway(log, a.bus, notify.LoadGatewayConfigFromEnv())

	repo, err := identity.NewKVRepository(a.kv, identity.WithLogger(log))
	if err != nil {
		return fail(err)
	}
	tokens, err := session.NewClientTokenManager(sessCfg)
	if err != nil {
		return fail(fmt.Errorf("client tokens: %w", err))
	}

	g := guard.NewMiddleware(guard.WithLogger(log), guard.WithObserver(a.metrics))
	a.auth, err = authapi.NewHandler(log, authapi.LoadConfigFromEnv(), sessCfg, repo, tokens,
		authapi.WithSessionObserver(a.metrics),
		authapi.WithGuard(g),
	)
	if err != nil {
		return fail(err)
	}

	mailer := notify.NewSimulatedMailer(mailCfg,
		notify.WithLogger(log),
		notify.WithBus(a.bus),
		notify.WithObserver(a.metrics),
	)
	svc, err := incubator.NewService(a.kv, repo, mailer, incubator.WithLogger(log))
	if err != nil {
		return fail(err)
	}
	a.incubator, err = incubator.NewHandler(log, svc, a.auth)
	if err != nil {
		return fail(err)
	}

	msgStore, err := messaging.NewKVStore(a.kv, messaging.WithStoreLogger(log))
	if err != nil {
		return fail(err)
	}
	a.messages, err = messaging.NewService(msgStore, repo, msgCfg,
		messaging.WithLogger(log),
		messaging.WithObserver(a.metrics),
	)
	if err != nil {
		return fail(err)
	}
	a.messaging, err = messaging.NewHandler(log, a.messages, a.auth, msgCfg)
	if err != nil {
		return fail(err)
	}

	mux := http.NewServeMux()
	a.registerHTTP(mux)
	a.handler = WithRequestLogging(WithSecurityHeaders(WithCORS(mux, cfg, log)), log, a.metrics)

	return a, nil
}

// Handler returns the root HTTP handler with middleware applied.
func (a *App) Handler() http.Handler { return a.handler }

// Close releases storage resources.
func (a *App) Close() { a.closeStorage() }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"storage", a.backend,
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws/notifications",
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.closeStorage()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	a.ws.Shutdown()
	a.messages.Shutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.closeStorage()
		return err
	}

	a.closeStorage()
	a.log.Info("server.stopped")
	return nil
}

// openStorage connects the configured backend. Postgres is migrated before use.
func (a *App) openStorage(ctx context.Context) error {
	backend, err := a.cfg.StorageBackend()
	if err != nil {
		return err
	}
	a.backend = backend

	switch backend {
	case StoragePostgres:
		pool, kv, err := OpenPostgres(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.dbPool, a.kv = pool, kv
		a.log.Info("storage.enabled.postgres")

	case StorageRedis:
		rdb, err := NewRedisClient(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		kv, err := storage.NewRedisKV(rdb)
		if err != nil {
			_ = rdb.Close()
			return err
		}
		a.rdb, a.kv = rdb, kv
		a.log.Info("storage.enabled.redis")

	default:
		a.kv = storage.NewMemoryKV()
		a.log.Info("storage.enabled.memory")
	}
	return nil
}

func (a *App) closeStorage() {
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			a.log.Error("storage.close.fail", "err", err)
		}
		a.kv = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("storage.close.fail", "backend", StorageRedis, "err", err)
		}
		a.rdb = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL a local client can reach.
// Wildcard binds map to 127.0.0.1.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
