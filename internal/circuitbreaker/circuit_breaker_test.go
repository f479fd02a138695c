package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker() (*CircuitBreaker, *time.Time) {
	cb := New(Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Second,
	})
	clock := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return clock }
	return cb, &clock
}

func fail(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func(context.Context) error {
		return assert.AnError
	})
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func(context.Context) error {
		return nil
	})
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker()

	require.Error(t, fail(cb))
	require.Error(t, fail(cb))
	assert.Equal(t, StateClosed, cb.State())

	require.Error(t, fail(cb))
	assert.Equal(t, StateOpen, cb.State())

	err := succeed(cb)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker()

	require.Error(t, fail(cb))
	require.Error(t, fail(cb))
	require.NoError(t, succeed(cb))
	require.Error(t, fail(cb))
	require.Error(t, fail(cb))

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb, clock := newTestBreaker()
	for i := 0; i < 3; i++ {
		require.Error(t, fail(cb))
	}
	require.Equal(t, StateOpen, cb.State())

	*clock = clock.Add(11 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Two probe successes close the circuit again.
	require.NoError(t, succeed(cb))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, succeed(cb))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb, clock := newTestBreaker()
	for i := 0; i < 3; i++ {
		require.Error(t, fail(cb))
	}
	*clock = clock.Add(11 * time.Second)
	require.Equal(t, StateHalfOpen, cb.State())

	require.Error(t, fail(cb))
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, succeed(cb), ErrOpen)
}

func TestBreakerDefaultsApplied(t *testing.T) {
	cb := New(Config{})
	assert.Equal(t, DefaultConfig().FailureThreshold, cb.cfg.FailureThreshold)
	assert.Equal(t, DefaultConfig().SuccessThreshold, cb.cfg.SuccessThreshold)
	assert.Equal(t, DefaultConfig().OpenTimeout, cb.cfg.OpenTimeout)
}
