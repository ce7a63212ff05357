package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type PermissionChecker interface {
	UserHasPermission(ctx context.Context, userID, tenantID uuid.UUID, permission string) (bool, error)
}

// RequirePermission gates a route on one named permission, e.g. imports.run.
func RequirePermission(checker PermissionChecker, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
				return
			}

			has, err := checker.UserHasPermission(r.Context(), actor.UserID, actor.TenantID, permission)
			if err != nil {
				writeError(w, r, http.StatusInternalServerError, "internal_error", "Permission check failed", nil)
				return
			}
			if !has {
				writeError(w, r, http.StatusForbidden, "forbidden", "Permission denied", map[string]string{"permission": permission})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
