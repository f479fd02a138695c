package handlers

import (
	"net/http"
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/middleware"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/response"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/cache"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/metrics"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/pool"
)

// MetricsHandler serves GET /api/metrics: the freshest snapshot plus pool
// and cache counters in one JSON body.
type MetricsHandler struct {
	pool  *pool.Pool
	agg   *metrics.Aggregator
	cache *cache.QueryCache
}

// MetricsBody is the metrics endpoint response shape.
type MetricsBody struct {
	Snapshot metrics.Snapshot `json:"snapshot"`
	Pool     pool.Status      `json:"pool"`
	Cache    cache.Stats      `json:"cache"`
	Errors   map[string]int64 `json:"errors,omitempty"`
}

// NewMetricsHandler creates the metrics endpoint handler.
func NewMetricsHandler(p *pool.Pool, agg *metrics.Aggregator, qc *cache.QueryCache) *MetricsHandler {
	return &MetricsHandler{pool: p, agg: agg, cache: qc}
}

// Handle takes a fresh snapshot so the numbers are current, not the last
// autoscaler tick's.
func (h *MetricsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := h.pool.Status()
	snap := h.agg.Take(metrics.PoolView{
		Total:      status.Total,
		Idle:       status.Idle,
		Waiting:    status.Waiting,
		Active:     status.Leased,
		CurrentMax: status.CurrentMax,
	})

	body := MetricsBody{
		Snapshot: snap,
		Pool:     status,
		Cache:    h.cache.Stats(),
		Errors:   h.agg.ErrorCounts(),
	}
	response.WriteSuccess(w, body, middleware.FromRequest(r), time.Since(start))
}
