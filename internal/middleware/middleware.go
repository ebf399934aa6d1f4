// Package middleware holds the HTTP middleware shared by every route:
// request IDs, request-scoped logging, metrics, body and time limits,
// security headers and rate limiting.
package middleware

import (
	"encoding/json"
	"net/http"
)

type contextKey string

// Codes for failures raised by middleware before a handler runs.
const (
	codeTooLarge    = "too_large"
	codeRateLimited = "rate_limited"
	codeTimeout     = "timeout"
)

// respondWithError writes the same {"error":{code,message}} envelope the
// handlers use. It lives here because handler imports this package.
func respondWithError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	attrs := []any{
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}
	if reqID := GetRequestID(r.Context()); reqID != "" {
		attrs = append(attrs, "request_id", reqID)
	}
	GetLogger(r.Context()).Info("middleware rejected request", attrs...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
