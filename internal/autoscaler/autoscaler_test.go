package autoscaler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/config"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/metrics"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/notify"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/pool"
)

// fakePool records resize calls and mirrors them into its status, the way
// the real pool clamps and stamps LastResize.
type fakePool struct {
	mu      sync.Mutex
	status  pool.Status
	resizes []int
	refuse  bool
	min     int
	max     int
	now     func() time.Time
}

func (f *fakePool) Resize(newMax int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return f.status.CurrentMax
	}
	if newMax < f.min {
		newMax = f.min
	}
	if newMax > f.max {
		newMax = f.max
	}
	f.resizes = append(f.resizes, newMax)
	f.status.CurrentMax = newMax
	f.status.LastResize = f.now()
	return newMax
}

func (f *fakePool) Status() pool.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// recordingListener captures notifications for assertions.
type recordingListener struct {
	mu     sync.Mutex
	scaled []notify.ScalingEvent
	highs  []float64
}

func (l *recordingListener) OnPoolScaled(event notify.ScalingEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scaled = append(l.scaled, event)
}

func (l *recordingListener) OnSlowRequest(string, string, time.Duration) {}

func (l *recordingListener) OnHighUtilization(u float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.highs = append(l.highs, u)
}

func (l *recordingListener) events() []notify.ScalingEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]notify.ScalingEvent, len(l.scaled))
	copy(out, l.scaled)
	return out
}

type fixture struct {
	scaler   *Autoscaler
	pool     *fakePool
	listener *recordingListener
	clock    *time.Time
}

func newFixture(t *testing.T, mutate func(*config.AutoscalingConfig), status pool.Status) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Autoscaling.MinSessions = 5
	cfg.Autoscaling.MaxSessions = 20
	if mutate != nil {
		mutate(&cfg.Autoscaling)
	}
	require.NoError(t, cfg.Validate())

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	clock := &now

	fp := &fakePool{
		status: status,
		min:    cfg.Autoscaling.MinSessions,
		max:    cfg.Autoscaling.MaxSessions,
		now:    func() time.Time { return *clock },
	}
	listener := &recordingListener{}
	agg := metrics.NewAggregator(nil, nil)

	scaler := New(config.NewStore(cfg), fp, agg, listener, nil)
	scaler.now = func() time.Time { return *clock }

	return &fixture{scaler: scaler, pool: fp, listener: listener, clock: clock}
}

func TestScaleUpOnHighUtilization(t *testing.T) {
	// 11 of 15 sessions in use: 0.733 > 0.7 triggers +3.
	fx := newFixture(t, nil, pool.Status{Total: 11, Idle: 0, Leased: 11, CurrentMax: 15, State: pool.StateReady.String()})

	fx.scaler.Tick()

	require.Equal(t, []int{18}, fx.pool.resizes)
	events := fx.listener.events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.ActionUp, events[0].Action)
	assert.Equal(t, notify.ReasonHighUtilization, events[0].Reason)
	assert.Equal(t, 15, events[0].OldMax)
	assert.Equal(t, 18, events[0].NewMax)
	assert.NotEmpty(t, fx.listener.highs)
}

func TestCooldownSuppressesSecondResize(t *testing.T) {
	fx := newFixture(t, nil, pool.Status{Total: 11, Leased: 11, CurrentMax: 15, State: pool.StateReady.String()})

	fx.scaler.Tick()
	require.Len(t, fx.pool.resizes, 1)

	// Still hot five seconds later, but inside the cooldown window.
	*fx.clock = fx.clock.Add(5 * time.Second)
	fx.pool.mu.Lock()
	fx.pool.status.Total = 16
	fx.pool.status.Leased = 16
	fx.pool.mu.Unlock()

	fx.scaler.Tick()
	assert.Len(t, fx.pool.resizes, 1)

	// Past the cooldown the loop may act again.
	*fx.clock = fx.clock.Add(30 * time.Second)
	fx.scaler.Tick()
	assert.Len(t, fx.pool.resizes, 2)
}

func TestPeakHourOverridesUtilization(t *testing.T) {
	// Low utilization would normally scale down; the peak-hour rule wins.
	fx := newFixture(t, func(c *config.AutoscalingConfig) {
		c.PeakHours = []int{12}
	}, pool.Status{Total: 2, Idle: 2, CurrentMax: 10, State: pool.StateReady.String()})

	fx.scaler.Tick()

	require.Equal(t, []int{13}, fx.pool.resizes)
	events := fx.listener.events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.ReasonPeakHour, events[0].Reason)
}

func TestOffPeakScalesDown(t *testing.T) {
	fx := newFixture(t, func(c *config.AutoscalingConfig) {
		c.OffPeakHours = []int{12}
	}, pool.Status{Total: 6, Idle: 6, CurrentMax: 12, State: pool.StateReady.String()})

	fx.scaler.Tick()

	require.Equal(t, []int{10}, fx.pool.resizes)
	events := fx.listener.events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.ActionDown, events[0].Action)
	assert.Equal(t, notify.ReasonOffPeakHour, events[0].Reason)
}

func TestScaleDownRequiresEmptyQueue(t *testing.T) {
	fx := newFixture(t, nil, pool.Status{Total: 2, Idle: 1, Leased: 1, Waiting: 1, CurrentMax: 10, State: pool.StateReady.String()})

	fx.scaler.Tick()
	assert.Empty(t, fx.pool.resizes)
}

func TestScaleDownOnLowUtilization(t *testing.T) {
	fx := newFixture(t, nil, pool.Status{Total: 2, Idle: 2, CurrentMax: 10, State: pool.StateReady.String()})

	fx.scaler.Tick()
	require.Equal(t, []int{8}, fx.pool.resizes)
	events := fx.listener.events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.ReasonLowUtilization, events[0].Reason)
}

func TestNoActionAtBounds(t *testing.T) {
	// Already at max: high utilization cannot grow further.
	fx := newFixture(t, nil, pool.Status{Total: 20, Leased: 20, CurrentMax: 20, State: pool.StateReady.String()})
	fx.scaler.Tick()
	assert.Empty(t, fx.pool.resizes)

	// Already at min: low utilization cannot shrink further.
	fx = newFixture(t, nil, pool.Status{Total: 1, Idle: 1, CurrentMax: 5, State: pool.StateReady.String()})
	fx.scaler.Tick()
	assert.Empty(t, fx.pool.resizes)
}

func TestDisabledLoopDoesNothing(t *testing.T) {
	fx := newFixture(t, func(c *config.AutoscalingConfig) {
		c.Enabled = false
	}, pool.Status{Total: 11, Leased: 11, CurrentMax: 15, State: pool.StateReady.String()})

	fx.scaler.Tick()
	assert.Empty(t, fx.pool.resizes)
	assert.Empty(t, fx.listener.events())
}

func TestManualResizeRecordsManualReason(t *testing.T) {
	fx := newFixture(t, nil, pool.Status{Total: 5, Idle: 5, CurrentMax: 10, State: pool.StateReady.String()})

	applied := fx.scaler.ManualResize(14)
	assert.Equal(t, 14, applied)

	event, ok := fx.scaler.LastEvent()
	require.True(t, ok)
	assert.Equal(t, notify.ReasonManual, event.Reason)
	assert.Equal(t, 14, event.NewMax)
}

func TestManualResizeClampedToCurrentIsNoOp(t *testing.T) {
	// Already at the configured ceiling: a target above it clamps back to
	// the current max and must not be reported as a failed resize.
	fx := newFixture(t, nil, pool.Status{Total: 20, Leased: 20, CurrentMax: 20, State: pool.StateReady.String()})

	applied := fx.scaler.ManualResize(200)
	assert.Equal(t, 20, applied)

	assert.Empty(t, fx.pool.resizes)
	assert.Empty(t, fx.listener.events())
	_, ok := fx.scaler.LastEvent()
	assert.False(t, ok)
}

func TestRefusedResizeRecordsFailureEvent(t *testing.T) {
	fx := newFixture(t, nil, pool.Status{Total: 11, Leased: 11, CurrentMax: 15, State: pool.StateReady.String()})
	fx.pool.refuse = true

	fx.scaler.Tick()

	assert.Empty(t, fx.listener.events())
	event, ok := fx.scaler.LastEvent()
	require.True(t, ok)
	assert.Equal(t, notify.ReasonResizeFailed, event.Reason)
	assert.Equal(t, StateIdle, fx.scaler.CurrentState())
}

func TestEventsWindowNewestLast(t *testing.T) {
	fx := newFixture(t, nil, pool.Status{Total: 5, Idle: 5, CurrentMax: 10, State: pool.StateReady.String()})

	fx.scaler.ManualResize(12)
	fx.scaler.ManualResize(14)
	fx.scaler.ManualResize(16)

	events := fx.scaler.Events(2)
	require.Len(t, events, 2)
	assert.Equal(t, 14, events[0].NewMax)
	assert.Equal(t, 16, events[1].NewMax)
}
