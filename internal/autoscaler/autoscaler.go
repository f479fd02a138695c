// Package autoscaler runs the periodic control loop that resizes the
// session pool from observed metrics and time-of-day policy.
package autoscaler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/config"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/metrics"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/notify"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/pool"
)

// State is the control loop state, exposed for observability.
type State int32

const (
	StateIdle State = iota
	StateEvaluating
	StateApplying
	StateCoolingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateApplying:
		return "applying"
	case StateCoolingDown:
		return "cooling_down"
	default:
		return "unknown"
	}
}

// historyCapacity bounds the retained scaling events.
const historyCapacity = 64

// PoolController is the slice of the pool the autoscaler drives. All
// resizes, including manual administrative ones, go through this single
// serialized path.
type PoolController interface {
	Resize(newMax int) int
	Status() pool.Status
}

// Autoscaler is single-threaded: only its loop (and the same-path manual
// resize) calls Resize.
type Autoscaler struct {
	cfgs     *config.Store
	pool     PoolController
	agg      *metrics.Aggregator
	listener notify.Listener
	log      logging.Logger

	state atomic.Int32

	mu      sync.Mutex
	history []notify.ScalingEvent

	now func() time.Time
}

// New creates an autoscaler. listener may be nil.
func New(cfgs *config.Store, p PoolController, agg *metrics.Aggregator, listener notify.Listener, log logging.Logger) *Autoscaler {
	if listener == nil {
		listener = notify.NopListener{}
	}
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	return &Autoscaler{
		cfgs:     cfgs,
		pool:     p,
		agg:      agg,
		listener: listener,
		log:      log.WithComponent("autoscaler"),
		now:      time.Now,
	}
}

// Run drives the control loop until ctx is cancelled. An in-flight tick
// completes before exit.
func (a *Autoscaler) Run(ctx context.Context) {
	interval := a.cfgs.Current().Autoscaling.TickInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick()
		}
	}
}

// Tick runs one evaluate/apply cycle. Exported so tests and the manual
// resize path share the exact loop semantics.
func (a *Autoscaler) Tick() {
	cfg := a.cfgs.Current().Autoscaling
	if !cfg.Enabled {
		return
	}

	a.state.Store(int32(StateEvaluating))
	defer a.state.Store(int32(StateIdle))

	status := a.pool.Status()
	snap := a.agg.Take(metrics.PoolView{
		Total:      status.Total,
		Idle:       status.Idle,
		Waiting:    status.Waiting,
		Active:     status.Leased,
		CurrentMax: status.CurrentMax,
	})

	if snap.Utilization > cfg.ScaleUpThreshold {
		a.listener.OnHighUtilization(snap.Utilization)
	}

	target, reason, ok := decide(cfg, snap, status, a.now())
	if !ok {
		return
	}

	// Cooldown gates every policy-driven resize.
	if !status.LastResize.IsZero() && a.now().Sub(status.LastResize) < cfg.Cooldown {
		a.log.Debug("resize suppressed by cooldown", "target", target, "reason", string(reason))
		return
	}

	a.apply(target, reason, snap, status)
	a.state.Store(int32(StateCoolingDown))
}

// ManualResize routes an administrative resize through the same serialized
// apply path the loop uses, with reason manual.
func (a *Autoscaler) ManualResize(target int) int {
	status := a.pool.Status()
	snap := a.agg.Take(metrics.PoolView{
		Total:      status.Total,
		Idle:       status.Idle,
		Waiting:    status.Waiting,
		Active:     status.Leased,
		CurrentMax: status.CurrentMax,
	})
	return a.apply(target, notify.ReasonManual, snap, status)
}

func (a *Autoscaler) apply(target int, reason notify.Reason, snap metrics.Snapshot, status pool.Status) int {
	bounds := a.cfgs.Current().Autoscaling
	if target < bounds.MinSessions {
		target = bounds.MinSessions
	}
	if target > bounds.MaxSessions {
		target = bounds.MaxSessions
	}
	if target == status.CurrentMax {
		// Already at the clamped target; nothing to apply.
		return status.CurrentMax
	}

	a.state.Store(int32(StateApplying))

	applied := a.pool.Resize(target)
	action := notify.ActionUp
	if applied < status.CurrentMax {
		action = notify.ActionDown
	}

	event := notify.ScalingEvent{
		Action:    action,
		Reason:    reason,
		OldMax:    status.CurrentMax,
		NewMax:    applied,
		Snapshot:  snap,
		Timestamp: a.now(),
	}
	if applied == status.CurrentMax && target != status.CurrentMax {
		// The pool refused the resize (e.g. shutting down). No state is
		// corrupted; record the failure and return to idle.
		event.Reason = notify.ReasonResizeFailed
		a.record(event)
		a.log.Warn("resize not applied", "target", target, "current_max", status.CurrentMax)
		return applied
	}

	a.record(event)
	a.listener.OnPoolScaled(event)
	a.log.Info("pool resized",
		"action", string(action),
		"reason", string(reason),
		"old_max", status.CurrentMax,
		"new_max", applied,
		"utilization", snap.Utilization,
	)
	return applied
}

func (a *Autoscaler) record(event notify.ScalingEvent) {
	a.mu.Lock()
	a.history = append(a.history, event)
	if len(a.history) > historyCapacity {
		a.history = a.history[len(a.history)-historyCapacity:]
	}
	a.mu.Unlock()
}

// Events returns the retained scaling events, newest last. k <= 0 returns
// everything retained.
func (a *Autoscaler) Events(k int) []notify.ScalingEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	if k <= 0 || k > len(a.history) {
		k = len(a.history)
	}
	out := make([]notify.ScalingEvent, k)
	copy(out, a.history[len(a.history)-k:])
	return out
}

// LastEvent returns the most recent scaling event, if any.
func (a *Autoscaler) LastEvent() (notify.ScalingEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.history) == 0 {
		return notify.ScalingEvent{}, false
	}
	return a.history[len(a.history)-1], true
}

// CurrentState exposes the loop state.
func (a *Autoscaler) CurrentState() State {
	return State(a.state.Load())
}

// decide picks a resize candidate. Time-of-day rules take precedence over
// utilization rules; scale-down additionally requires an empty wait queue.
func decide(cfg config.AutoscalingConfig, snap metrics.Snapshot, status pool.Status, now time.Time) (int, notify.Reason, bool) {
	hour := now.Hour()

	if containsHour(cfg.PeakHours, hour) && status.CurrentMax < cfg.MaxSessions {
		return clamp(status.CurrentMax+cfg.ScaleUpStep, cfg), notify.ReasonPeakHour, true
	}
	if containsHour(cfg.OffPeakHours, hour) && status.CurrentMax > cfg.MinSessions {
		return clamp(status.CurrentMax-cfg.ScaleDownStep, cfg), notify.ReasonOffPeakHour, true
	}

	if snap.Utilization >= cfg.ScaleUpThreshold {
		target := clamp(status.CurrentMax+cfg.ScaleUpStep, cfg)
		if target == status.CurrentMax {
			return 0, "", false
		}
		return target, notify.ReasonHighUtilization, true
	}
	if snap.Utilization <= cfg.ScaleDownThreshold && status.Waiting == 0 {
		target := clamp(status.CurrentMax-cfg.ScaleDownStep, cfg)
		if target == status.CurrentMax {
			return 0, "", false
		}
		return target, notify.ReasonLowUtilization, true
	}
	return 0, "", false
}

func clamp(target int, cfg config.AutoscalingConfig) int {
	if target < cfg.MinSessions {
		return cfg.MinSessions
	}
	if target > cfg.MaxSessions {
		return cfg.MaxSessions
	}
	return target
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}
