package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter publishes the aggregator's view to Prometheus. The JSON snapshot
// endpoint stays the source of truth for the autoscaler; this is the
// scrape-side mirror.
type Exporter struct {
	poolTotal      prometheus.Gauge
	poolIdle       prometheus.Gauge
	poolWaiting    prometheus.Gauge
	poolCurrentMax prometheus.Gauge

	queryDuration *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
	scalingEvents *prometheus.CounterVec
}

// NewExporter registers the core collectors on reg.
func NewExporter(reg prometheus.Registerer) *Exporter {
	e := &Exporter{
		poolTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "propsearch_pool_sessions_total",
			Help: "Open sessions in the pool.",
		}),
		poolIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "propsearch_pool_sessions_idle",
			Help: "Idle sessions available for lease.",
		}),
		poolWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "propsearch_pool_waiters",
			Help: "Acquire callers blocked on the wait queue.",
		}),
		poolCurrentMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "propsearch_pool_current_max",
			Help: "Effective session cap after autoscaling.",
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "propsearch_query_duration_seconds",
			Help:    "Database query latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propsearch_errors_total",
			Help: "Errors by kind.",
		}, []string{"kind"}),
		scalingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propsearch_scaling_events_total",
			Help: "Pool resize events by action and reason.",
		}, []string{"action", "reason"}),
	}
	reg.MustRegister(
		e.poolTotal, e.poolIdle, e.poolWaiting, e.poolCurrentMax,
		e.queryDuration, e.errorsTotal, e.scalingEvents,
	)
	return e
}

// SetPool updates the pool gauges.
func (e *Exporter) SetPool(view PoolView) {
	e.poolTotal.Set(float64(view.Total))
	e.poolIdle.Set(float64(view.Idle))
	e.poolWaiting.Set(float64(view.Waiting))
	e.poolCurrentMax.Set(float64(view.CurrentMax))
}

// ObserveQuery records one query latency.
func (e *Exporter) ObserveQuery(d time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	e.queryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// CountError increments the error counter for a kind.
func (e *Exporter) CountError(kind string) {
	e.errorsTotal.WithLabelValues(kind).Inc()
}

// CountScalingEvent increments the resize counter.
func (e *Exporter) CountScalingEvent(action, reason string) {
	e.scalingEvents.WithLabelValues(action, reason).Inc()
}
