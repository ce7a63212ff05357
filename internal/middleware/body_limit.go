package middleware

import (
	"net/http"
	"strings"
)

// BodyLimitOverride raises the body cap for paths under PathPrefix, which is
// matched with and without the /api mount prefix.
type BodyLimitOverride struct {
	PathPrefix string
	MaxBytes   int64
}

// LimitBodyBytesWithOverrides caps request bodies. A declared Content-Length
// over the cap is refused up front with 413; otherwise the body is wrapped in
// http.MaxBytesReader and the handler sees *http.MaxBytesError on overrun.
func LimitBodyBytesWithOverrides(defaultMax int64, overrides []BodyLimitOverride) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			maxBytes := bodyLimitFor(r.URL.Path, defaultMax, overrides)
			if maxBytes <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body is too large",
					map[string]int64{"maxBytes": maxBytes})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func bodyLimitFor(path string, defaultMax int64, overrides []BodyLimitOverride) int64 {
	apiPath := strings.TrimPrefix(path, "/api")
	for _, o := range overrides {
		if o.PathPrefix == "" || o.MaxBytes <= 0 {
			continue
		}
		if strings.HasPrefix(path, o.PathPrefix) || strings.HasPrefix(apiPath, o.PathPrefix) {
			return o.MaxBytes
		}
	}
	return defaultMax
}
