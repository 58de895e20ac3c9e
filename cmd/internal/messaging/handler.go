package messaging

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"flarehub/cmd/identity"
	authapi "flarehub/cmd/internal/auth/api"
	"flarehub/cmd/internal/auth/guard"
	"flarehub/cmd/internal/auth/session"
	"flarehub/cmd/internal/httpx"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Handler serves the conversation routes behind the auth layer.
//
// Mentors reach a startup under /api/startups/{id}/messages and startups
// reach a mentor under /api/mentors/{id}/messages. The /live suffix upgrades
// to a websocket that streams the conversation.
type Handler struct {
	log  *slog.Logger
	cfg  Config
	svc  *Service
	auth *authapi.Handler
}

func NewHandler(log *slog.Logger, svc *Service, auth *authapi.Handler, cfg Config) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if svc == nil || auth == nil {
		return nil, errors.New("messaging: nil dependency")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}
	if cfg.SessionRecheck <= 0 {
		cfg.SessionRecheck = DefaultConfig().SessionRecheck
	}
	cfg.Live = cfg.Live.Normalized()
	return &Handler{log: log, cfg: cfg, svc: svc, auth: auth}, nil
}

// Register wires conversation routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mentor := guard.RequireRole(identity.RoleMentor)
	startup := guard.RequireRole(identity.RoleStartup)

	mux.Handle("/api/startups/{id}/messages", h.auth.Protect(mentor, http.HandlerFunc(h.handleMessages)))
	mux.Handle("/api/mentors/{id}/messages", h.auth.Protect(startup, http.HandlerFunc(h.handleMessages)))

	mux.Handle("/api/startups/{id}/messages/live", h.auth.Protect(mentor, h.live(mentor)))
	mux.Handle("/api/mentors/{id}/messages/live", h.auth.Protect(startup, h.live(startup)))
}

type peerView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type historyResponse struct {
	ConversationID string       `json:"conversationId"`
	Conversation   Conversation `json:"conversation"`
	Peer           peerView     `json:"peer"`
	Messages       []Message    `json:"messages"`
	HasMore        bool         `json:"hasMore"`
}

type sendResponse struct {
	Message    Message `json:"message"`
	Duplicated bool    `json:"duplicated"`
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}

	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	conv, peer, err := h.svc.Open(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		h.writeError(w, "messaging.open", err)
		return
	}

	if r.Method == http.MethodGet {
		h.handleHistory(w, r, conv, peer, caller)
		return
	}

	var in SendInput
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	res, err := h.svc.Send(r.Context(), conv, caller, in)
	if err != nil {
		h.writeError(w, "messaging.send", err)
		return
	}
	status := http.StatusCreated
	if res.Duplicated {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, sendResponse{Message: res.Stored, Duplicated: res.Duplicated})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request, conv Conversation, peer, caller identity.Identity) {
	q := r.URL.Query()

	var after *int64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			httpx.WriteValidationError(w, map[string]string{"after": "must be a non-negative integer"})
			return
		}
		after = &n
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpx.WriteValidationError(w, map[string]string{"limit": "must be a positive integer"})
			return
		}
		limit = n
	}

	page, err := h.svc.History(r.Context(), conv, caller, after, limit)
	if err != nil {
		h.writeError(w, "messaging.history", err)
		return
	}
	msgs := page.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	httpx.WriteJSON(w, http.StatusOK, historyResponse{
		ConversationID: conv.ID(),
		Conversation:   conv,
		Peer:           peerView{ID: peer.ID, Name: peer.Name, Role: string(peer.Role.Name())},
		Messages:       msgs,
		HasMore:        page.HasMore,
	})
}

// ---- helpers ----

// identity returns the authenticated identity; guards have already run.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	if s, ok := session.StoreFromContext(r.Context()); ok {
		if snap := s.Snapshot(); snap.Authenticated() {
			return snap.Identity, true
		}
	}
	h.log.Error("messaging.session.missing", "path", r.URL.Path)
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	return identity.Identity{}, false
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		httpx.WriteValidationError(w, verrs)
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "not a member of this conversation")
	case errors.Is(err, ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(w, http.StatusServiceUnavailable, "timeout", "request canceled")
	default:
		h.log.Error(op+".fail", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
