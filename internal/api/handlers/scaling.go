package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/middleware"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/response"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/autoscaler"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/notify"
)

// defaultEventWindow bounds how many scaling events one request returns
// when the caller does not say.
const defaultEventWindow = 20

// ScalingHandler serves GET /api/scaling/events.
type ScalingHandler struct {
	scaler *autoscaler.Autoscaler
}

// ScalingBody is the scaling events response shape.
type ScalingBody struct {
	State  string                `json:"state"`
	Events []notify.ScalingEvent `json:"events"`
}

// NewScalingHandler creates the scaling events handler.
func NewScalingHandler(scaler *autoscaler.Autoscaler) *ScalingHandler {
	return &ScalingHandler{scaler: scaler}
}

// Events returns the most recent scaling decisions, newest last. A
// `limit` query parameter narrows the window.
func (h *ScalingHandler) Events(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit := defaultEventWindow
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	body := ScalingBody{
		State:  h.scaler.CurrentState().String(),
		Events: h.scaler.Events(limit),
	}
	response.WriteSuccess(w, body, middleware.FromRequest(r), time.Since(start))
}
