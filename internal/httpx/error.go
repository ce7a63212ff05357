package httpx

import (
	"net/http"

	"github.com/crmflow/api/internal/middleware"
)

type (
	ErrorEnvelope = middleware.ErrorEnvelope
	ErrorBody     = middleware.ErrorBody
)

// WriteError writes the standard error envelope carrying the request id.
// details is omitted from the body when nil.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, status, middleware.NewErrorEnvelope(r, code, message, details))
}
