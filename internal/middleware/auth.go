package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/crmflow/api/internal/auth"
	"github.com/crmflow/api/internal/store"
)

type SessionStore interface {
	GetSessionPrincipalByTokenHash(ctx context.Context, tokenHash string) (store.SessionPrincipal, error)
	TouchSession(ctx context.Context, sessionID uuid.UUID) error
}

type AuthMiddleware struct {
	Sessions   SessionStore
	CookieName string
}

func (m AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.CookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
			return
		}

		principal, err := m.Sessions.GetSessionPrincipalByTokenHash(r.Context(), auth.HashToken(cookie.Value))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Session is invalid", nil)
				return
			}
			writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load session", nil)
			return
		}

		_ = m.Sessions.TouchSession(r.Context(), principal.SessionID)

		ctx := WithActor(r.Context(), Actor{
			SessionID:  principal.SessionID,
			UserID:     principal.UserID,
			TenantID:   principal.TenantID,
			Email:      principal.Email,
			FullName:   principal.FullName,
			TenantSlug: principal.TenantSlug,
			TenantName: principal.TenantName,
			CSRFToken:  principal.CSRFToken,
			ExpiresAt:  principal.ExpiresAt,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
