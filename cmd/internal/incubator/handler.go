package incubator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"flarehub/cmd/identity"
	authapi "flarehub/cmd/internal/auth/api"
	"flarehub/cmd/internal/auth/guard"
	"flarehub/cmd/internal/auth/session"
	"flarehub/cmd/internal/httpx"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Handler serves the incubator routes behind the auth layer.
type Handler struct {
	log          *slog.Logger
	svc          *Service
	auth         *authapi.Handler
	maxBodyBytes int64
}

// NewHandler constructs a Handler. auth supplies client resolution and guards.
func NewHandler(log *slog.Logger, svc *Service, auth *authapi.Handler) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if svc == nil || auth == nil {
		return nil, errors.New("incubator: nil dependency")
	}
	return &Handler{log: log, svc: svc, auth: auth, maxBodyBytes: httpx.DefaultMaxBodyBytes}, nil
}

// Register wires incubator routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	admin := guard.RequireRole(identity.RoleAdmin)
	mentor := guard.RequireRole(identity.RoleMentor)

	mux.Handle("/apply", h.auth.WithClient(http.HandlerFunc(h.handleApply)))

	mux.Handle("/dashboard", h.auth.Protect(guard.AnyRole(), http.HandlerFunc(h.handleDashboard)))
	mux.Handle("/dashboard/pending", h.auth.Protect(guard.AnyRole(), http.HandlerFunc(h.handlePending)))

	mux.Handle("/api/applications", h.auth.Protect(admin, http.HandlerFunc(h.handleApplications)))
	mux.Handle("/api/applications/{id}", h.auth.Protect(admin, http.HandlerFunc(h.handleApplication)))
	mux.Handle("/api/applications/{id}/approve", h.auth.Protect(admin, http.HandlerFunc(h.handleApprove)))
	mux.Handle("/api/applications/{id}/reject", h.auth.Protect(admin, http.HandlerFunc(h.handleReject)))

	mux.Handle("/api/users", h.auth.Protect(admin, http.HandlerFunc(h.handleUsers)))
	mux.Handle("/api/opportunities", h.auth.Protect(mentor, http.HandlerFunc(h.handleOpportunities)))
}

type applyResponse struct {
	Application Application       `json:"application"`
	User        identity.Identity `json:"user"`
	Redirect    string            `json:"redirect"`
}

type applicationsResponse struct {
	Applications []Application `json:"applications"`
}

type usersResponse struct {
	Users []identity.Identity `json:"users"`
}

type opportunitiesResponse struct {
	Opportunities []Opportunity `json:"opportunities"`
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var in ApplyInput
	if err := httpx.DecodeJSON(w, r, h.maxBodyBytes, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	in = trimApply(in)
	if !h.validate(w, in) {
		return
	}

	store, release, ok := h.auth.MutatingStore(w, r)
	if !ok {
		return
	}
	defer release()

	app, founder, err := h.svc.Apply(r.Context(), store, in)
	if err != nil {
		h.writeError(w, "incubator.apply", err)
		return
	}
	// The new applicant lands on the pending view until approval.
	httpx.WriteJSON(w, http.StatusCreated, applyResponse{Application: app, User: founder, Redirect: guard.PendingPath})
}

func (h *Handler) handleApplications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	apps, err := h.svc.Applications(r.Context())
	if err != nil {
		h.writeError(w, "incubator.applications", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, applicationsResponse{Applications: apps})
}

func (h *Handler) handleApplication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	app, err := h.svc.Application(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "incubator.application", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}
	app, err := h.svc.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "incubator.approve", err)
		return
	}
	h.audit(r, "incubator.application.approve", "application_id", app.ID)
	httpx.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var req rejectRequest
	// An empty body means no comments.
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}
	if !h.validate(w, req) {
		return
	}

	app, err := h.svc.Reject(r.Context(), r.PathValue("id"), req.Comments)
	if err != nil {
		h.writeError(w, "incubator.reject", err)
		return
	}
	h.audit(r, "incubator.application.reject", "application_id", app.ID)
	httpx.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := h.svc.Users(r.Context())
		if err != nil {
			h.writeError(w, "incubator.users", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, usersResponse{Users: users})

	case http.MethodPost:
		var in CreateUserInput
		if err := httpx.DecodeJSON(w, r, h.maxBodyBytes, &in); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		in = trimUser(in)
		if !h.validate(w, in) {
			return
		}
		user, err := h.svc.CreateUser(r.Context(), in)
		if err != nil {
			h.writeError(w, "incubator.users.create", err)
			return
		}
		h.audit(r, "incubator.user.create", "identity_id", user.ID, "role", string(user.Role.Name()))
		httpx.WriteJSON(w, http.StatusCreated, user)

	default:
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		opps, err := h.svc.Opportunities(r.Context())
		if err != nil {
			h.writeError(w, "incubator.opportunities", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, opportunitiesResponse{Opportunities: opps})

	case http.MethodPost:
		var in OpportunityInput
		if err := httpx.DecodeJSON(w, r, h.maxBodyBytes, &in); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		in = trimOpportunity(in)
		if !h.validate(w, in) {
			return
		}
		author, ok := h.identity(w, r)
		if !ok {
			return
		}
		o, err := h.svc.CreateOpportunity(r.Context(), author, in)
		if err != nil {
			h.writeError(w, "incubator.opportunities.create", err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, o)

	default:
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// ---- helpers ----

// identity returns the authenticated identity; guards have already run.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	s, ok := session.StoreFromContext(r.Context())
	if ok {
		if snap := s.Snapshot(); snap.Authenticated() {
			return snap.Identity, true
		}
	}
	h.log.Error("incubator.session.missing", "path", r.URL.Path)
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	return identity.Identity{}, false
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
	h.log.Error("incubator.validate.fail", "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, ErrDecided):
		httpx.WriteError(w, http.StatusConflict, "already_decided", "application was already reviewed")
	case errors.Is(err, ErrInvalidInput), errors.Is(err, identity.ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	case errors.Is(err, session.ErrBusy):
		httpx.WriteError(w, http.StatusConflict, "busy", "another operation is in progress")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(w, http.StatusServiceUnavailable, "timeout", "request canceled")
	default:
		h.log.Error(op+".fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (h *Handler) audit(r *http.Request, action string, attrs ...any) {
	if s, ok := session.StoreFromContext(r.Context()); ok {
		if snap := s.Snapshot(); snap.Authenticated() {
			attrs = append(attrs, "actor_id", snap.Identity.ID)
		}
	}
	h.log.Info(action, attrs...)
}
