package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/agentstation/neowatch/internal/server/response"
)

// HandleHealth handles GET /api/v1/health.
// @Summary Health check
// @Description Health check endpoint (liveness probe)
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Router /api/v1/health [get].
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "neowatch-api",
		"version": "v1",
	})
}

// HandleReady handles GET /api/v1/ready.
// @Summary Readiness check
// @Description Readiness check including store reachability and the broadcast hub
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /api/v1/ready [get].
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.hub.Closed() {
		response.ServiceUnavailable(w, "Broadcast hub is shut down")
		return
	}
	if h.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ready(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("Readiness check failed")
			response.ServiceUnavailable(w, "Store not available")
			return
		}
	}

	response.OK(w, map[string]any{
		"status":      "ready",
		"sequence":    h.hub.LastSequence(),
		"observers":   h.hub.ConnectionCount(),
		"cache_items": h.cache.ItemCount(),
	})
}
