package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/npc-quest-engine/internal/storage"
)

type HealthResponse struct {
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Service    string         `json:"service"`
	Components map[string]any `json:"components"`
}

type HealthHandler struct {
	store  storage.Storage
	logger *slog.Logger
}

func NewHealthHandler(store storage.Storage, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		logger: logger,
	}
}

// ServeHTTP reports the interaction store's health. Running on the
// in-memory fallback counts as degraded: progress is lost on restart.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	overallStatus := "healthy"
	store := map[string]any{
		"backend": h.store.Backend(),
		"durable": h.store.Durable(),
		"status":  "healthy",
	}

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Store health check failed", "error", err)
		store["status"] = "unhealthy"
		overallStatus = "degraded"
	}
	if storage.IsFallback(h.store) {
		if m, ok := h.store.(*storage.MemoryStorage); ok {
			store["fallback_for"] = m.FallbackFor()
		}
		overallStatus = "degraded"
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "npc-quest-engine",
		Components: map[string]any{"store": store},
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, h.logger, statusCode, response)
}
