// Package metrics aggregates pool and query observations into rolling
// snapshots consumed by the health evaluator, the autoscaler and the
// observability endpoints.
package metrics

import (
	"sort"
	"sync"
	"time"
)

const (
	// SnapshotCapacity bounds the snapshot ring buffer.
	SnapshotCapacity = 1024
	// queryWindow is the number of recent queries the latency and error
	// figures are computed over.
	queryWindow = 512
)

// PoolView is the caller-supplied pool state a snapshot is computed from.
type PoolView struct {
	Total      int
	Idle       int
	Waiting    int
	Active     int
	CurrentMax int
}

// Snapshot is an immutable view of the serving core at one instant.
type Snapshot struct {
	Timestamp    time.Time     `json:"timestamp"`
	Utilization  float64       `json:"utilization"`
	AvgQueryTime time.Duration `json:"avg_query_time"`
	P95QueryTime time.Duration `json:"p95_query_time"`
	ErrorRate    float64       `json:"error_rate"`
	Active       int           `json:"active"`
	Waiting      int           `json:"waiting"`
	HourOfDay    int           `json:"hour_of_day"`
	IsPeakHour   bool          `json:"is_peak_hour"`
}

type queryObservation struct {
	duration time.Duration
	ok       bool
}

// Aggregator owns the rolling query window, the error counters and the
// snapshot ring buffer. Writers never block readers for long: all state is
// held under one mutex with O(window) critical sections.
type Aggregator struct {
	mu sync.RWMutex

	queries    [queryWindow]queryObservation
	queryCount int
	queryNext  int

	errorCounts map[string]int64

	snapshots [SnapshotCapacity]Snapshot
	snapCount int
	snapNext  int

	// peakHour reports whether a given hour of day is a configured peak
	// hour. Swapped together with the config.
	peakHour func(hour int) bool

	exporter *Exporter

	now func() time.Time
}

// NewAggregator creates an aggregator. peakHour may be nil when no
// time-of-day policy is configured. exporter may be nil in tests.
func NewAggregator(peakHour func(int) bool, exporter *Exporter) *Aggregator {
	if peakHour == nil {
		peakHour = func(int) bool { return false }
	}
	return &Aggregator{
		errorCounts: make(map[string]int64),
		peakHour:    peakHour,
		exporter:    exporter,
		now:         time.Now,
	}
}

// RecordQuery records one completed query.
func (a *Aggregator) RecordQuery(start, end time.Time, ok bool) {
	d := end.Sub(start)
	if d < 0 {
		d = 0
	}
	a.mu.Lock()
	a.queries[a.queryNext] = queryObservation{duration: d, ok: ok}
	a.queryNext = (a.queryNext + 1) % queryWindow
	if a.queryCount < queryWindow {
		a.queryCount++
	}
	a.mu.Unlock()

	if a.exporter != nil {
		a.exporter.ObserveQuery(d, ok)
	}
}

// RecordError counts an error by kind.
func (a *Aggregator) RecordError(kind string) {
	a.mu.Lock()
	a.errorCounts[kind]++
	a.mu.Unlock()

	if a.exporter != nil {
		a.exporter.CountError(kind)
	}
}

// Take computes a snapshot from the current query window and the supplied
// pool view, appends it to the ring buffer and returns it.
func (a *Aggregator) Take(view PoolView) Snapshot {
	now := a.now()

	a.mu.Lock()
	avg, p95, errRate := a.queryStatsLocked()
	snap := Snapshot{
		Timestamp:    now,
		Utilization:  utilization(view.Total, view.CurrentMax),
		AvgQueryTime: avg,
		P95QueryTime: p95,
		ErrorRate:    errRate,
		Active:       view.Active,
		Waiting:      view.Waiting,
		HourOfDay:    now.Hour(),
		IsPeakHour:   a.peakHour(now.Hour()),
	}
	a.snapshots[a.snapNext] = snap
	a.snapNext = (a.snapNext + 1) % SnapshotCapacity
	if a.snapCount < SnapshotCapacity {
		a.snapCount++
	}
	a.mu.Unlock()

	if a.exporter != nil {
		a.exporter.SetPool(view)
	}
	return snap
}

// Latest returns the most recent snapshot, if any.
func (a *Aggregator) Latest() (Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snapCount == 0 {
		return Snapshot{}, false
	}
	idx := (a.snapNext - 1 + SnapshotCapacity) % SnapshotCapacity
	return a.snapshots[idx], true
}

// History returns the last k snapshots, oldest first. k is clamped to the
// available count.
func (a *Aggregator) History(k int) []Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if k > a.snapCount {
		k = a.snapCount
	}
	if k <= 0 {
		return nil
	}
	out := make([]Snapshot, k)
	start := (a.snapNext - k + SnapshotCapacity) % SnapshotCapacity
	for i := 0; i < k; i++ {
		out[i] = a.snapshots[(start+i)%SnapshotCapacity]
	}
	return out
}

// ErrorCounts returns a copy of the per-kind error counters.
func (a *Aggregator) ErrorCounts() map[string]int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]int64, len(a.errorCounts))
	for k, v := range a.errorCounts {
		out[k] = v
	}
	return out
}

// queryStatsLocked computes avg, p95 and error rate over the window.
func (a *Aggregator) queryStatsLocked() (avg, p95 time.Duration, errRate float64) {
	n := a.queryCount
	if n == 0 {
		return 0, 0, 0
	}
	durations := make([]time.Duration, n)
	var sum time.Duration
	failures := 0
	for i := 0; i < n; i++ {
		obs := a.queries[i]
		durations[i] = obs.duration
		sum += obs.duration
		if !obs.ok {
			failures++
		}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	idx := (n * 95) / 100
	if idx >= n {
		idx = n - 1
	}
	return sum / time.Duration(n), durations[idx], float64(failures) / float64(n)
}

// utilization is NaN-safe: a zero cap yields 0.
func utilization(total, currentMax int) float64 {
	if currentMax <= 0 {
		return 0
	}
	return float64(total) / float64(currentMax)
}
