package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/internal/server/cache"
	"github.com/agentstation/neowatch/internal/server/response"
)

// Stats is the body of the stats endpoint.
type Stats struct {
	Sequence      uint64       `json:"sequence"`
	Hub           events.Stats `json:"hub"`
	Cache         cache.Stats  `json:"cache"`
	UptimeSeconds int64        `json:"uptimeSeconds"`
	Goroutines    int          `json:"goroutines"`
}

// HandleStats handles GET /api/v1/stats.
// @Summary Server statistics
// @Description Broadcast hub counters, emitted sequence and cache size
// @Tags admin
// @Produce json
// @Success 200 {object} response.Response{data=Stats}
// @Router /api/v1/stats [get].
func (h *Handlers) HandleStats(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, Stats{
		Sequence:      h.events.Sequence(),
		Hub:           h.hub.Stats(),
		Cache:         h.cache.GetStats(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	})
}
