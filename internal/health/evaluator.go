// Package health derives the tri-state platform health from metrics
// snapshots, pool status and probe outcomes. The evaluator is a pure
// projection apart from the small consecutive-waiting window it keeps.
package health

import (
	"sync"
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/metrics"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/pool"
)

// Status is the overall platform health.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Thresholds for the decision table.
const (
	criticalErrorRate    = 0.05
	degradedUtilization  = 0.85
	degradedP95          = time.Second
	waitingStreakToFlag  = 2
)

// Recommendation tags appended per triggering condition.
const (
	RecommendIncreasePool    = "increase_pool_size"
	RecommendReviewSlow      = "review_slow_queries"
	RecommendHighUtilization = "high_pool_utilization"
	RecommendHighErrorRate   = "high_error_rate"
)

// Report is the derived health view. It is computed per call, never stored.
type Report struct {
	Status           Status   `json:"status"`
	PoolSubStatus    string   `json:"pool_sub_status"`
	ScalingSubStatus string   `json:"scaling_sub_status,omitempty"`
	LastScalingEvent string   `json:"last_scaling_event,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

// Evaluator applies the decision table. Safe for concurrent use.
type Evaluator struct {
	mu sync.Mutex
	// waitingStreak counts consecutive evaluations that observed waiters.
	waitingStreak int
}

// NewEvaluator creates an evaluator with an empty waiting window.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate maps one consistent (snapshot, pool status, probe) observation
// to a health report.
func (e *Evaluator) Evaluate(snap metrics.Snapshot, status pool.Status, probeOK bool) Report {
	e.mu.Lock()
	if status.Waiting > 0 {
		e.waitingStreak++
	} else {
		e.waitingStreak = 0
	}
	streak := e.waitingStreak
	e.mu.Unlock()

	report := Report{
		Status:        StatusHealthy,
		PoolSubStatus: status.State,
	}

	if !probeOK {
		report.Status = StatusCritical
	}
	if snap.ErrorRate > criticalErrorRate {
		report.Status = StatusCritical
		report.Recommendations = append(report.Recommendations, RecommendHighErrorRate)
	}

	degraded := false
	if snap.Utilization > degradedUtilization {
		degraded = true
		report.Recommendations = append(report.Recommendations, RecommendHighUtilization)
	}
	if snap.P95QueryTime > degradedP95 {
		degraded = true
		report.Recommendations = append(report.Recommendations, RecommendReviewSlow)
	}
	if streak >= waitingStreakToFlag {
		degraded = true
		report.Recommendations = append(report.Recommendations, RecommendIncreasePool)
	}
	if degraded && report.Status == StatusHealthy {
		report.Status = StatusDegraded
	}
	return report
}
