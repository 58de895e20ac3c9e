package app

import (
	"net/http"
	"time"

	"flarehub/cmd/internal/auth/guard"
	"flarehub/cmd/internal/auth/session"
)

const readinessTimeout = 2 * time.Second

func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", a.handleReady)
	mux.Handle("/metrics", a.metrics.Handler())

	// "{$}" keeps the landing view from swallowing unknown paths.
	mux.HandleFunc(session.LandingPath+"{$}", a.handleLanding)
	mux.HandleFunc(guard.LoginPath, a.handleLoginView)

	a.auth.Register(mux)
	a.incubator.Register(mux)
	a.messaging.Register(mux)

	mux.Handle("/ws/notifications", a.ws)
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	switch {
	case a.dbPool != nil:
		if err := PingDB(r.Context(), a.dbPool, readinessTimeout); err != nil {
			a.log.Info("readyz.db.not_ready", "backend", StoragePostgres, "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	case a.rdb != nil:
		if err := PingRedis(r.Context(), a.rdb, readinessTimeout); err != nil {
			a.log.Info("readyz.db.not_ready", "backend", StorageRedis, "err", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	case a.cfg.ReadinessRequireDB:
		http.Error(w, "db not configured", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}
