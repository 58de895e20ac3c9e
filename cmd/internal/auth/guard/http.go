package guard

import (
	"log/slog"
	"net/http"
	"strconv"

	"flarehub/cmd/internal/auth/session"
	"flarehub/cmd/internal/httpx"
)

// Observer receives every HTTP guard decision.
type Observer interface {
	ObserveGuardDecision(required, decision string)
}

// Middleware builds HTTP guards.
type Middleware struct {
	log        *slog.Logger
	obs        Observer
	retryAfter int
}

// Option configures Middleware.
type Option func(*Middleware)

// WithLogger sets the middleware logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Middleware) {
		if l != nil {
			m.log = l
		}
	}
}

// WithObserver sets the decision observer (metrics).
func WithObserver(o Observer) Option {
	return func(m *Middleware) { m.obs = o }
}

// NewMiddleware constructs guard middleware.
func NewMiddleware(opts ...Option) *Middleware {
	m := &Middleware{log: slog.Default(), retryAfter: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

type redirectResponse struct {
	Redirect string `json:"redirect,omitempty"`
	Reason   string `json:"reason"`
}

// Require gates next behind req.
//
// The session.Store must already be in the request context (see
// session.WithStore); a request without one is treated as unauthenticated.
// Wait maps to 503 with Retry-After, redirects to 303 See Other.
func (m *Middleware) Require(req Requirement, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := session.Snapshot{State: session.StateUnauthenticated}
		if s, ok := session.StoreFromContext(r.Context()); ok {
			snap = s.Snapshot()
		}

		d := Evaluate(snap, req)
		m.observe(req, d)

		switch d.Kind {
		case Render:
			next.ServeHTTP(w, r)
		case Wait:
			w.Header().Set("Retry-After", strconv.Itoa(m.retryAfter))
			httpx.WriteJSON(w, http.StatusServiceUnavailable, redirectResponse{Reason: d.Kind.String()})
		default:
			m.log.Debug("guard.redirect",
				"path", r.URL.Path,
				"required", requiredLabel(req),
				"decision", d.Kind.String(),
				"location", d.Location,
			)
			w.Header().Set("Location", d.Location)
			httpx.WriteJSON(w, http.StatusSeeOther, redirectResponse{Redirect: d.Location, Reason: d.Kind.String()})
		}
	})
}

// RequireFunc is Require for a HandlerFunc.
func (m *Middleware) RequireFunc(req Requirement, next http.HandlerFunc) http.Handler {
	return m.Require(req, next)
}

func (m *Middleware) observe(req Requirement, d Decision) {
	if m.obs == nil {
		return
	}
	m.obs.ObserveGuardDecision(requiredLabel(req), d.Kind.String())
}

func requiredLabel(req Requirement) string {
	if req.Role == "" {
		return "any"
	}
	return string(req.Role)
}
