package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"flarehub/cmd/identity"
	"flarehub/cmd/internal/auth/guard"
	"flarehub/cmd/internal/auth/session"
	"flarehub/cmd/internal/httpx"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Handler wires HTTP auth endpoints to per-client session stores.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessCfg session.Config
	repo    identity.Repository
	tokens  session.ClientTokenManager
	obs     session.Observer
	guard   *guard.Middleware

	busy *inflight
	now  func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithSessionObserver records session operation outcomes (metrics).
func WithSessionObserver(obs session.Observer) HandlerOption {
	return func(h *Handler) {
		if h == nil || obs == nil {
			return
		}
		h.obs = obs
	}
}

// WithGuard overrides the guard middleware used for protected auth routes.
func WithGuard(g *guard.Middleware) HandlerOption {
	return func(h *Handler) {
		if h == nil || g == nil {
			return
		}
		h.guard = g
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessCfg session.Config, repo identity.Repository, tokens session.ClientTokenManager, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if repo == nil {
		return nil, errors.New("auth: nil identity repository")
	}
	if tokens == nil {
		return nil, errors.New("auth: nil client token manager")
	}
	if cfg.RestoreTimeout <= 0 {
		cfg.RestoreTimeout = 3 * time.Second
	}

	h := &Handler{
		log:     log,
		cfg:     cfg,
		sessCfg: sessCfg,
		repo:    repo,
		tokens:  tokens,
		busy:    newInflight(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	if h.guard == nil {
		h.guard = guard.NewMiddleware(guard.WithLogger(log))
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.Handle("/auth/login", h.WithClient(http.HandlerFunc(h.handleLogin)))
	mux.Handle("/auth/signup", h.WithClient(http.HandlerFunc(h.handleSignup)))
	mux.Handle("/auth/logout", h.WithClient(http.HandlerFunc(h.handleLogout)))
	mux.Handle("/me", h.WithClient(h.guard.Require(guard.AnyRole(), http.HandlerFunc(h.handleMe))))
}

// Guard returns the guard middleware shared with other route groups.
func (h *Handler) Guard() *guard.Middleware {
	if h == nil {
		return nil
	}
	return h.guard
}

// Protect resolves the client and gates next behind req.
func (h *Handler) Protect(req guard.Requirement, next http.Handler) http.Handler {
	return h.WithClient(h.guard.Require(req, next))
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var req loginRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	req = trimLogin(req)
	if !h.validate(w, req) {
		return
	}

	store, release, ok := h.MutatingStore(w, r)
	if !ok {
		return
	}
	defer release()

	id, err := store.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.audit(r, "auth.login.fail", "email", req.Email, "reason", reasonOf(err))
		h.writeSessionError(w, "auth.login", err)
		return
	}

	h.audit(r, "auth.login.success", "identity_id", id.ID, "role", string(id.Role.Name()))
	httpx.WriteJSON(w, http.StatusOK, authResponse{User: id, Redirect: guard.DashboardPath})
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var req signupRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	req = trimSignup(req)
	if !h.validate(w, req) {
		return
	}

	store, release, ok := h.MutatingStore(w, r)
	if !ok {
		return
	}
	defer release()

	id, err := store.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.audit(r, "auth.signup.fail", "reason", reasonOf(err))
		h.writeSessionError(w, "auth.signup", err)
		return
	}

	h.audit(r, "auth.signup.success", "identity_id", id.ID)
	httpx.WriteJSON(w, http.StatusCreated, authResponse{User: id, Redirect: guard.DashboardPath})
}

// handleLogout always answers with a full navigation to the landing view.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}

	store, release, ok := h.MutatingStore(w, r)
	if !ok {
		return
	}
	defer release()

	nav, err := store.Logout(r.Context())

	// Memory is cleared either way; the browser must drop its client too.
	h.expireCookie(w, h.cfg.ClientCookieName)
	w.Header().Set("Clear-Site-Data", `"storage"`)

	switch {
	case errors.Is(err, session.ErrBusy):
		h.writeSessionError(w, "auth.logout", err)
		return
	case err != nil:
		// The persisted slot may survive; the client still navigates away.
		h.log.Error("auth.logout.storage_fail", "err", err)
	}

	h.audit(r, "auth.logout")
	w.Header().Set("Location", nav.Location)
	httpx.WriteJSON(w, http.StatusSeeOther, logoutResponse{Redirect: nav.Location, FullReload: nav.FullReload})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	snap := store.Snapshot()
	httpx.WriteJSON(w, http.StatusOK, meResponse{User: snap.Identity, State: snap.State.String()})
}

// ---- helpers ----

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*session.Store, bool) {
	s, ok := session.StoreFromContext(r.Context())
	if !ok {
		h.log.Error("auth.session.missing", "path", r.URL.Path)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return nil, false
	}
	return s, true
}

// MutatingStore returns the request's session store and marks the client
// busy until release is called. On failure the response is already written.
func (h *Handler) MutatingStore(w http.ResponseWriter, r *http.Request) (*session.Store, func(), bool) {
	s, ok := h.store(w, r)
	if !ok {
		return nil, nil, false
	}
	clientID, _ := ClientIDFromContext(r.Context())
	release, ok := h.busy.begin(clientID)
	if !ok {
		h.writeSessionError(w, "auth", session.ErrBusy)
		return nil, nil, false
	}
	return s, release, true
}

func (h *Handler) validate(w http.ResponseWriter, v validation.Validatable) bool {
	err := v.Validate()
	if err == nil {
		return true
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		httpx.WriteValidationError(w, verrs)
		return false
	}
	h.log.Error("auth.validate.fail", "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	return false
}

func (h *Handler) writeSessionError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
	case errors.Is(err, session.ErrBusy):
		httpx.WriteError(w, http.StatusConflict, "busy", "another operation is in progress")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(w, http.StatusServiceUnavailable, "timeout", "request canceled")
	default:
		h.log.Error(op+".fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		return "not_found"
	case errors.Is(err, session.ErrBusy):
		return "busy"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
