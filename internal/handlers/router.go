package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-quest-engine/internal/engine"
	"github.com/jwebster45206/npc-quest-engine/internal/services/queue"
)

// RouterConfig wires the API's collaborators. Queue and Redis are optional:
// without Queue events run inline, without Redis the delivery stream is not
// mounted.
type RouterConfig struct {
	Engine          *engine.Engine
	Queue           *queue.EventQueue
	Redis           *redis.Client
	DeliveryChannel string
	Logger          *slog.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))

	r.Method(http.MethodGet, "/health", NewHealthHandler(cfg.Engine.Store(), cfg.Logger))

	var (
		enqueuer Enqueuer
		depths   DepthSource
	)
	if cfg.Queue != nil {
		enqueuer, depths = cfg.Queue, cfg.Queue
	}
	intake := NewIntakeHandler(enqueuer, cfg.Engine, cfg.Logger)
	interactions := NewInteractionsHandler(cfg.Engine, cfg.Logger)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/interactions", interactions.Routes)

		r.Route("/events", func(r chi.Router) {
			r.Post("/text", intake.HandleText)
			r.Post("/reaction", intake.HandleReaction)
		})

		r.Method(http.MethodGet, "/stats", NewStatsHandler(cfg.Engine, depths, cfg.Logger))

		if cfg.Redis != nil {
			r.Method(http.MethodGet, "/deliveries", NewDeliveriesHandler(cfg.Redis, cfg.DeliveryChannel, cfg.Logger))
		}
	})

	return r
}

// requestLogger logs one line per request with the chi request id
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}
