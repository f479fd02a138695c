// Package notify defines the explicit subscription surface for pool and
// request events. Components accept a Listener instead of emitting through
// a shared bus.
package notify

import (
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/metrics"
)

// Action is the direction of a pool resize.
type Action string

const (
	ActionUp   Action = "up"
	ActionDown Action = "down"
)

// Reason is the enumerated cause of a scaling event.
type Reason string

const (
	ReasonHighUtilization Reason = "high_utilization"
	ReasonLowUtilization  Reason = "low_utilization"
	ReasonPeakHour        Reason = "peak_hour"
	ReasonOffPeakHour     Reason = "off_peak_hour"
	ReasonManual          Reason = "manual"
	ReasonResizeFailed    Reason = "resize_failed"
)

// ScalingEvent records one applied (or failed) pool resize.
type ScalingEvent struct {
	Action    Action           `json:"action"`
	Reason    Reason           `json:"reason"`
	OldMax    int              `json:"old_max"`
	NewMax    int              `json:"new_max"`
	Snapshot  metrics.Snapshot `json:"metrics_snapshot"`
	Timestamp time.Time        `json:"timestamp"`
}

// Listener receives component events. Implementations must be fast and
// must not block; they run on the emitting component's goroutine.
type Listener interface {
	OnPoolScaled(event ScalingEvent)
	OnSlowRequest(requestID string, strategy string, elapsed time.Duration)
	OnHighUtilization(utilization float64)
}

// NopListener discards everything. Embed it to implement a subset.
type NopListener struct{}

func (NopListener) OnPoolScaled(ScalingEvent)                        {}
func (NopListener) OnSlowRequest(string, string, time.Duration)      {}
func (NopListener) OnHighUtilization(float64)                        {}

// Multi fans events out to several listeners in order.
type Multi []Listener

func (m Multi) OnPoolScaled(event ScalingEvent) {
	for _, l := range m {
		l.OnPoolScaled(event)
	}
}

func (m Multi) OnSlowRequest(requestID, strategy string, elapsed time.Duration) {
	for _, l := range m {
		l.OnSlowRequest(requestID, strategy, elapsed)
	}
}

func (m Multi) OnHighUtilization(utilization float64) {
	for _, l := range m {
		l.OnHighUtilization(utilization)
	}
}
