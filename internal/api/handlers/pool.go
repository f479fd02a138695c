package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/middleware"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/response"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/apperrors"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/autoscaler"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/pool"
)

// PoolHandler serves GET /api/pool/status and POST /api/pool/resize.
// Manual resizes go through the autoscaler so policy and administrative
// changes share one serialized apply path.
type PoolHandler struct {
	pool   *pool.Pool
	scaler *autoscaler.Autoscaler
	log    logging.Logger
}

// ResizeRequest is the manual resize body.
type ResizeRequest struct {
	MaxSessions int `json:"max_sessions"`
}

// ResizeResponse reports the cap actually applied after clamping.
type ResizeResponse struct {
	Requested int `json:"requested"`
	Applied   int `json:"applied"`
}

// NewPoolHandler creates the pool endpoints handler.
func NewPoolHandler(p *pool.Pool, scaler *autoscaler.Autoscaler, log logging.Logger) *PoolHandler {
	return &PoolHandler{pool: p, scaler: scaler, log: log.WithComponent("api.pool")}
}

// Status reports the live pool counters and state.
func (h *PoolHandler) Status(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	response.WriteSuccess(w, h.pool.Status(), middleware.FromRequest(r), time.Since(start))
}

// Resize applies an administrative cap change through the autoscaler.
func (h *PoolHandler) Resize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := middleware.FromRequest(r)

	var req ResizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, apperrors.Wrap(apperrors.KindInvalidRequest, "malformed resize body", err), requestID)
		return
	}
	if req.MaxSessions < 1 {
		response.WriteError(w, apperrors.Newf(apperrors.KindInvalidRequest, "max_sessions must be >= 1, got %d", req.MaxSessions), requestID)
		return
	}

	applied := h.scaler.ManualResize(req.MaxSessions)
	h.log.InfoContext(r.Context(), "manual pool resize",
		"requested", req.MaxSessions, "applied", applied)
	response.WriteSuccess(w, ResizeResponse{Requested: req.MaxSessions, Applied: applied}, requestID, time.Since(start))
}
