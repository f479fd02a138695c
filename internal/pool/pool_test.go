package pool

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/apperrors"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
)

// stubFactory hands out in-memory sessions and can be told to fail the
// next N opens or to back sessions with a sqlmock database.
type stubFactory struct {
	mu       sync.Mutex
	opened   int
	closed   int
	failNext int
	queryErr error
	db       *sql.DB
}

func (f *stubFactory) New(_ context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, apperrors.New(apperrors.KindConnectFailed, "stub connect refused")
	}
	f.opened++
	return &stubSession{f: f}, nil
}

func (f *stubFactory) openedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *stubFactory) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type stubSession struct {
	f      *stubFactory
	closed atomic.Bool
}

func (s *stubSession) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	s.f.mu.Lock()
	db, queryErr := s.f.db, s.f.queryErr
	s.f.mu.Unlock()
	if queryErr != nil {
		return nil, queryErr
	}
	if db != nil {
		return db.QueryContext(ctx, query, args...)
	}
	return nil, errors.New("stub session has no backing database")
}

func (s *stubSession) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errors.New("stub session has no backing database")
}

func (s *stubSession) PingContext(context.Context) error { return nil }

func (s *stubSession) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.f.mu.Lock()
		s.f.closed++
		s.f.mu.Unlock()
	}
	return nil
}

func newTestPool(t *testing.T, cfg Config, f *stubFactory) *Pool {
	t.Helper()
	p, err := New(cfg, f.New, logging.NewNoOpLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	return p
}

func TestNewRejectsInvalidBounds(t *testing.T) {
	f := &stubFactory{}
	_, err := New(Config{MinSessions: 0, MaxSessions: 5}, f.New, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{MinSessions: 6, MaxSessions: 5}, f.New, nil, nil)
	assert.Error(t, err)
}

func TestStartPrewarmsMinSessions(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 3, MaxSessions: 10}, f)
	defer p.Shutdown(time.Second)

	status := p.Status()
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 3, status.Idle)
	assert.Equal(t, StateReady.String(), status.State)
	assert.Equal(t, 10, status.CurrentMax)
}

func TestAcquireReusesIdleSession(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 5}, f)
	defer p.Shutdown(time.Second)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()

	lease, err = p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()

	assert.Equal(t, 1, f.openedCount())
}

func TestAcquireOpensUpToCurrentMax(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 2}, f)
	defer p.Shutdown(time.Second)

	l1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	l2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	status := p.Status()
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 2, status.Leased)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindPoolExhausted))

	l1.Release()
	l2.Release()
}

func TestWaitersServedInFIFOOrder(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 1}, f)
	defer p.Shutdown(time.Second)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	order := make(chan int, 2)
	startWaiter := func(id int) {
		go func() {
			lease, err := p.Acquire(context.Background())
			if err == nil {
				order <- id
				lease.Release()
			}
		}()
	}

	startWaiter(1)
	require.Eventually(t, func() bool { return p.Status().Waiting == 1 }, time.Second, 5*time.Millisecond)
	startWaiter(2)
	require.Eventually(t, func() bool { return p.Status().Waiting == 2 }, time.Second, 5*time.Millisecond)

	held.Release()

	first := <-order
	second := <-order
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestCancelledWaiterLeavesQueue(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 1}, f)
	defer p.Shutdown(time.Second)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return p.Status().Waiting == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	err = <-errCh
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindCancelled))
	assert.Equal(t, 0, p.Status().Waiting)
}

func TestResizeGrowServesWaiters(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 4}, f)
	defer p.Shutdown(time.Second)

	assert.Equal(t, 1, p.Resize(1))

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	got := make(chan error, 1)
	go func() {
		lease, err := p.Acquire(context.Background())
		if err == nil {
			defer lease.Release()
		}
		got <- err
	}()
	require.Eventually(t, func() bool { return p.Status().Waiting == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, p.Resize(2))
	require.NoError(t, <-got)
}

func TestCancelledWaiterDuringGrowKeepsSession(t *testing.T) {
	f := &stubFactory{}
	gate := make(chan struct{})
	var dials atomic.Int32
	factory := func(ctx context.Context) (Session, error) {
		if dials.Add(1) > 1 {
			<-gate
		}
		return f.New(ctx)
	}
	p, err := New(Config{MinSessions: 1, MaxSessions: 2}, factory, logging.NewNoOpLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer p.Shutdown(time.Second)

	assert.Equal(t, 1, p.Resize(1))

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return p.Status().Waiting == 1 }, time.Second, 5*time.Millisecond)

	// Growing dials a session for the queued waiter; the dial parks on
	// the gate so the waiter can give up while it is still in flight.
	assert.Equal(t, 2, p.Resize(2))
	require.Eventually(t, func() bool { return dials.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	err = <-errCh
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindCancelled))

	// The dial completes after the waiter gave up. The session must land
	// in the idle stack rather than stay leased to nobody.
	close(gate)
	require.Eventually(t, func() bool { return p.Status().Idle == 1 }, time.Second, 5*time.Millisecond)

	held.Release()
	status := p.Status()
	assert.Equal(t, 0, status.Leased)
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 2, status.Idle)
	assert.Equal(t, 0, status.Waiting)
}

func TestResizeShrinkClosesIdleOnly(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 3, MaxSessions: 6}, f)
	defer p.Shutdown(time.Second)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	applied := p.Resize(3)
	assert.Equal(t, 3, applied)

	// Clamped to configured bounds.
	assert.Equal(t, 3, p.Resize(1))
	assert.Equal(t, 6, p.Resize(100))

	held.Release()
	status := p.Status()
	assert.LessOrEqual(t, status.Total, status.CurrentMax)
}

func TestAcquireWithRetryRecoversFromConnectFailure(t *testing.T) {
	f := &stubFactory{failNext: 1}
	p, err := New(Config{MinSessions: 1, MaxSessions: 2}, f.New, logging.NewNoOpLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer p.Shutdown(time.Second)

	// Drain the pre-warmed session so the next acquire dials.
	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	f.mu.Lock()
	f.failNext = 1
	f.mu.Unlock()

	lease, err := p.AcquireWithRetry(context.Background(), 3, 10*time.Millisecond)
	require.NoError(t, err)
	lease.Release()
	held.Release()
}

func TestAcquireWithRetryGivesUpOnPermanentError(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 1}, f)
	p.Shutdown(time.Second)

	_, err := p.AcquireWithRetry(context.Background(), 3, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindShuttingDown))
}

func TestIdleTimeoutDiscardsStaleSessions(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 2, IdleTimeout: 20 * time.Millisecond}, f)
	defer p.Shutdown(time.Second)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()

	time.Sleep(40 * time.Millisecond)

	lease, err = p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()

	assert.Equal(t, 2, f.openedCount())
}

func TestLeaseReleaseIsIdempotent(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 2}, f)
	defer p.Shutdown(time.Second)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()
	lease.Release()
	lease.Discard()

	status := p.Status()
	assert.Equal(t, 1, status.Total)
	assert.Equal(t, 0, status.Leased)
}

func TestDiscardClosesSession(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 2}, f)
	defer p.Shutdown(time.Second)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Discard()

	assert.Equal(t, 1, f.closedCount())
	assert.Equal(t, 0, p.Status().Total)
}

func TestShutdownFailsWaitersAndReportsLeaks(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 1}, f)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		waiterErr <- err
	}()
	require.Eventually(t, func() bool { return p.Status().Waiting == 1 }, time.Second, 5*time.Millisecond)

	leaked := p.Shutdown(50 * time.Millisecond)
	assert.Equal(t, 1, leaked)

	err = <-waiterErr
	assert.True(t, apperrors.Is(err, apperrors.KindShuttingDown))

	_, err = p.Acquire(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.KindShuttingDown))

	held.Release()
}

func TestShutdownWaitsForLeasedSessions(t *testing.T) {
	f := &stubFactory{}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 1}, f)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		held.Release()
	}()

	leaked := p.Shutdown(time.Second)
	assert.Equal(t, 0, leaked)
	assert.Equal(t, StateClosed, p.CurrentState())
}

func TestHealthProbeStateTransitions(t *testing.T) {
	f := &stubFactory{queryErr: errors.New("connection reset")}
	p := newTestPool(t, Config{MinSessions: 1, MaxSessions: 2}, f)
	defer p.Shutdown(time.Second)

	for i := 0; i < 2; i++ {
		assert.False(t, p.HealthProbe(context.Background()))
		assert.Equal(t, StateReady, p.CurrentState())
	}
	assert.False(t, p.HealthProbe(context.Background()))
	assert.Equal(t, StateDegraded, p.CurrentState())
	assert.False(t, p.LastProbeOK())

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	f.mu.Lock()
	f.queryErr = nil
	f.db = db
	f.mu.Unlock()

	assert.True(t, p.HealthProbe(context.Background()))
	assert.Equal(t, StateReady, p.CurrentState())
	assert.True(t, p.LastProbeOK())
}
