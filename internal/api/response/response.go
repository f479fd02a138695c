// Package response provides the standard HTTP response envelope for the
// search API layer.
package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/apperrors"
)

// Envelope wraps every successful JSON body with request tracing fields.
type Envelope struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
	ElapsedMS int64       `json:"elapsed_ms"`
	Timestamp string      `json:"timestamp"`
}

// WriteSuccess writes data wrapped in the standard envelope.
func WriteSuccess(w http.ResponseWriter, data interface{}, requestID string, elapsed time.Duration) {
	WriteStatus(w, http.StatusOK, data, requestID, elapsed)
}

// WriteStatus writes data wrapped in the standard envelope under an
// explicit status code.
func WriteStatus(w http.ResponseWriter, status int, data interface{}, requestID string, elapsed time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	env := Envelope{
		Data:      data,
		RequestID: requestID,
		ElapsedMS: elapsed.Milliseconds(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// WriteError maps an error to its HTTP status and client payload.
func WriteError(w http.ResponseWriter, err error, requestID string) {
	payload := apperrors.ToPayload(err, requestID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatus(payload.ErrorKind))
	if encErr := json.NewEncoder(w).Encode(payload); encErr != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
