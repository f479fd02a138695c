// Package handlers provides the HTTP request handlers for the search API.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/middleware"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/response"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/apperrors"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/search"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/pkg/types"
)

// SearchHandler serves POST /api/search.
type SearchHandler struct {
	orchestrator *search.Orchestrator
	log          logging.Logger
}

// NewSearchHandler creates the search endpoint handler.
func NewSearchHandler(orchestrator *search.Orchestrator, log logging.Logger) *SearchHandler {
	return &SearchHandler{orchestrator: orchestrator, log: log.WithComponent("api.search")}
}

// Handle decodes a search request, runs it through the orchestrator and
// writes the enveloped result.
func (h *SearchHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := middleware.FromRequest(r)

	var req types.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteError(w, apperrors.Wrap(apperrors.KindInvalidRequest, "malformed search request body", err), requestID)
		return
	}

	result, err := h.orchestrator.Search(r.Context(), &req)
	if err != nil {
		h.log.WarnContext(r.Context(), "search failed",
			"kind", string(apperrors.KindOf(err)), "error", err.Error())
		response.WriteError(w, err, requestID)
		return
	}

	response.WriteSuccess(w, result, requestID, time.Since(start))
}
