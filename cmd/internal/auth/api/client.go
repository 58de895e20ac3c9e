package authapi

import (
	"context"
	"net/http"

	"flarehub/cmd/identity/ids"
	"flarehub/cmd/internal/auth/session"
	"flarehub/cmd/internal/httpx"
)

type clientCtxKey struct{}

// ClientIDFromContext returns the client id resolved by WithClient.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(clientCtxKey{}).(string)
	return v, ok && v != ""
}

// WithClient resolves the calling client, restores its session and attaches
// both to the request context. Restore finishes before next runs, so guards
// downstream never observe the loading state for a resolved client.
//
// A missing or invalid client token mints a new client: the token is set as
// a cookie and echoed in the client token header.
func (h *Handler) WithClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID, err := h.resolveClient(w, r)
		if err != nil {
			h.log.Error("auth.client.resolve.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}

		store, err := session.NewStore(h.sessCfg, h.repo, clientID,
			session.WithLogger(h.log),
			session.WithObserver(h.obs),
		)
		if err != nil {
			h.log.Error("auth.session.new.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}

		rctx, cancel := context.WithTimeout(r.Context(), h.cfg.RestoreTimeout)
		store.Restore(rctx)
		cancel()

		ctx := context.WithValue(r.Context(), clientCtxKey{}, clientID)
		ctx = session.WithStore(ctx, store)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) resolveClient(w http.ResponseWriter, r *http.Request) (string, error) {
	now := h.now()

	raw := httpx.BearerToken(r)
	if raw == "" {
		raw, _ = h.clientTokenFromCookie(r)
	}
	if raw != "" {
		claims, err := h.tokens.Verify(raw, now)
		if err == nil {
			return claims.ClientID, nil
		}
		h.log.Debug("auth.client.token_invalid", "path", r.URL.Path)
	}

	clientID, err := ids.NewULID(now)
	if err != nil {
		return "", err
	}
	tok, exp, err := h.tokens.Issue(clientID, now)
	if err != nil {
		return "", err
	}
	h.setClientCookie(w, tok, exp)
	if h.cfg.ClientTokenHeader != "" {
		w.Header().Set(h.cfg.ClientTokenHeader, tok)
	}
	h.log.Debug("auth.client.minted", "path", r.URL.Path)
	return clientID, nil
}
