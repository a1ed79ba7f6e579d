package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/npc-quest-engine/internal/engine"
)

// StatsSource is satisfied by *engine.Engine.
type StatsSource interface {
	Stats() engine.StatsSnapshot
}

// DepthSource is satisfied by the event queue.
type DepthSource interface {
	Depths(ctx context.Context) ([]int, error)
}

type StatsResponse struct {
	Decisions   engine.StatsSnapshot `json:"engine"`
	QueueDepths []int                `json:"queue_depths,omitempty"`
}

// StatsHandler serves GET /v1/stats
type StatsHandler struct {
	stats  StatsSource
	queue  DepthSource
	logger *slog.Logger
}

// NewStatsHandler creates a stats handler. queue may be nil when events are
// processed inline.
func NewStatsHandler(stats StatsSource, queue DepthSource, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, queue: queue, logger: logger}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Decisions: h.stats.Stats()}
	if h.queue != nil {
		depths, err := h.queue.Depths(r.Context())
		if err != nil {
			h.logger.Warn("Failed to read queue depths", "error", err)
		} else {
			resp.QueueDepths = depths
		}
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
