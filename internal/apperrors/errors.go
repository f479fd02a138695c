// Package apperrors defines the error taxonomy shared by the pool, the
// search orchestrator and the HTTP surface. Every failure that crosses a
// package boundary is one of these kinds; callers branch on KindOf rather
// than on concrete types.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind is a semantic error category.
type Kind string

const (
	KindInvalidRequest      Kind = "INVALID_REQUEST"
	KindTimeout             Kind = "TIMEOUT"
	KindPoolExhausted       Kind = "POOL_EXHAUSTED"
	KindConnectFailed       Kind = "CONNECT_FAILED"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindQueryFailed         Kind = "QUERY_FAILED"
	KindCancelled           Kind = "CANCELLED"
	KindShuttingDown        Kind = "SHUTTING_DOWN"
	KindInternal            Kind = "INTERNAL"
)

// Error is the structured error carried across the core. It keeps the kind,
// a short human message and the originating error, never a stack trace.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error. A nil cause
// yields nil so call sites can wrap unconditionally.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors are
// Internal; context cancellation and deadline errors map to their kinds.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the pool's acquire retry loop may retry this
// error. Only transient connect failures and timeouts qualify.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConnectFailed, KindTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a kind to its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindTimeout, KindCancelled:
		return http.StatusGatewayTimeout
	case KindPoolExhausted:
		return http.StatusTooManyRequests
	case KindConnectFailed, KindUpstreamUnavailable, KindShuttingDown:
		return http.StatusServiceUnavailable
	case KindQueryFailed, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ClientPayload is the structure returned to callers on failure.
type ClientPayload struct {
	ErrorKind Kind   `json:"error_kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ToPayload builds the user-visible failure body for an error.
func ToPayload(err error, requestID string) ClientPayload {
	kind := KindOf(err)
	msg := "internal error"
	var ae *Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	return ClientPayload{ErrorKind: kind, Message: msg, RequestID: requestID}
}
