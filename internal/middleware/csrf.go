package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// EnforceCSRF requires the session's CSRF token in X-CSRF-Token on unsafe
// methods. Uploads are the only state-changing routes behind it.
func EnforceCSRF(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
				return
			}
			token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(actor.CSRFToken)) != 1 {
				writeError(w, r, http.StatusForbidden, "CSRF_INVALID", "Invalid CSRF token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
