// Package middleware provides the HTTP middleware stack for the search
// API.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
)

// RequestIDHeader is echoed back so callers can correlate responses with
// their own tracing.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request a trace ID, honoring one supplied by the
// caller, and stores it where the structured logger picks it up.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := logging.TraceContext(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromRequest returns the trace ID RequestID stored, or "".
func FromRequest(r *http.Request) string {
	return logging.TraceIDFrom(r.Context())
}
