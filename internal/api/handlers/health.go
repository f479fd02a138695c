package handlers

import (
	"net/http"
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/middleware"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/response"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/health"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/metrics"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/pool"
)

// HealthHandler serves GET /api/health with the pool health decision
// table: healthy and degraded answer 200, critical answers 503.
type HealthHandler struct {
	pool      *pool.Pool
	agg       *metrics.Aggregator
	evaluator *health.Evaluator
	startTime time.Time
}

// HealthBody is the health endpoint response shape.
type HealthBody struct {
	health.Report
	PoolState string `json:"pool_state"`
	Uptime    string `json:"uptime"`
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(p *pool.Pool, agg *metrics.Aggregator, evaluator *health.Evaluator) *HealthHandler {
	return &HealthHandler{pool: p, agg: agg, evaluator: evaluator, startTime: time.Now()}
}

// Handle evaluates a fresh snapshot and maps the verdict to a status code.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := h.pool.Status()
	snap := h.agg.Take(metrics.PoolView{
		Total:      status.Total,
		Idle:       status.Idle,
		Waiting:    status.Waiting,
		Active:     status.Leased,
		CurrentMax: status.CurrentMax,
	})
	report := h.evaluator.Evaluate(snap, status, h.pool.LastProbeOK())

	body := HealthBody{
		Report:    report,
		PoolState: status.State,
		Uptime:    time.Since(h.startTime).Truncate(time.Second).String(),
	}

	code := http.StatusOK
	if report.Status == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	response.WriteStatus(w, code, body, middleware.FromRequest(r), time.Since(start))
}
