package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope is the body of every JSON error response, whether it comes
// from a middleware rejection or a handler.
type ErrorEnvelope struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"requestId"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func NewErrorEnvelope(r *http.Request, code, message string, details any) ErrorEnvelope {
	return ErrorEnvelope{
		Error:     ErrorBody{Code: code, Message: message, Details: details},
		RequestID: RequestIDFromContext(r.Context()),
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorEnvelope(r, code, message, details))
}
