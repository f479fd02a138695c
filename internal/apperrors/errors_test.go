package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindPoolExhausted, KindOf(New(KindPoolExhausted, "at capacity")))
	assert.Equal(t, KindInternal, KindOf(errors.New("something else")))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
}

func TestKindOfSurvivesWrapping(t *testing.T) {
	inner := New(KindConnectFailed, "dial refused")
	outer := fmt.Errorf("opening session: %w", inner)
	assert.Equal(t, KindConnectFailed, KindOf(outer))
	assert.True(t, Is(outer, KindConnectFailed))
	assert.False(t, Is(outer, KindTimeout))
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(KindQueryFailed, "scan", nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("row deleted")
	err := Wrap(KindQueryFailed, "scan failed", cause)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "QUERY_FAILED")
	assert.Contains(t, err.Error(), "row deleted")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(KindConnectFailed, "dial refused")))
	assert.True(t, Retryable(New(KindTimeout, "deadline")))
	assert.False(t, Retryable(New(KindPoolExhausted, "at capacity")))
	assert.False(t, Retryable(New(KindShuttingDown, "closing")))
	assert.False(t, Retryable(New(KindInvalidRequest, "bad limit")))
	assert.False(t, Retryable(nil))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(KindInvalidRequest))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(KindTimeout))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(KindCancelled))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(KindPoolExhausted))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(KindUpstreamUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(KindShuttingDown))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindQueryFailed))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Kind("bogus")))
}

func TestToPayload(t *testing.T) {
	p := ToPayload(New(KindPoolExhausted, "pool at capacity"), "req-1")
	assert.Equal(t, KindPoolExhausted, p.ErrorKind)
	assert.Equal(t, "pool at capacity", p.Message)
	assert.Equal(t, "req-1", p.RequestID)

	// Untyped causes never leak their message to clients.
	p = ToPayload(errors.New("password=hunter2 rejected"), "req-2")
	assert.Equal(t, KindInternal, p.ErrorKind)
	assert.Equal(t, "internal error", p.Message)
}

func TestFromContext(t *testing.T) {
	assert.NoError(t, FromContext(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, Is(FromContext(ctx), KindCancelled))

	ctx, cancel = context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	assert.True(t, Is(FromContext(ctx), KindTimeout))
}
