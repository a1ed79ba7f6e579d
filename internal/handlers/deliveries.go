package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-quest-engine/internal/services/events"
)

const keepaliveInterval = 30 * time.Second

// DeliveriesHandler streams delivery events as Server-Sent Events, for
// transport bridges and debugging.
type DeliveriesHandler struct {
	redisClient *redis.Client
	channel     string
	logger      *slog.Logger
}

// NewDeliveriesHandler creates a handler streaming the given pub/sub channel
func NewDeliveriesHandler(redisClient *redis.Client, channel string, logger *slog.Logger) *DeliveriesHandler {
	return &DeliveriesHandler{
		redisClient: redisClient,
		channel:     channel,
		logger:      logger,
	}
}

// ServeHTTP handles GET /v1/deliveries. The optional channel query
// parameter keeps only events for that chat channel id or name.
func (h *DeliveriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("channel")

	h.logger.Info("SSE connection established",
		"remote_addr", r.RemoteAddr,
		"filter", filter)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Subscribe before announcing the stream so nothing published after
	// "connected" is missed
	pubsub := h.redisClient.Subscribe(r.Context(), h.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			h.logger.Error("Failed to close pubsub", "error", err)
		}
	}()
	if _, err := pubsub.Receive(r.Context()); err != nil {
		h.logger.Error("Failed to subscribe", "error", err, "channel", h.channel)
		writeError(w, h.logger, http.StatusServiceUnavailable, "Delivery stream unavailable")
		return
	}

	msgChan := pubsub.Channel()

	keepaliveTicker := time.NewTicker(keepaliveInterval)
	defer keepaliveTicker.Stop()

	// Send initial connection event
	h.sendSSE(w, "connected", map[string]any{
		"channel": h.channel,
		"message": "Connected to delivery stream",
	})

	for {
		select {
		case <-r.Context().Done():
			// Client disconnected
			h.logger.Info("SSE client disconnected", "remote_addr", r.RemoteAddr)
			return

		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			var event events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.logger.Error("Failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}
			if filter != "" && event.ChannelID != filter && event.Channel != filter {
				continue
			}
			h.sendSSE(w, string(event.Type), event)

		case <-keepaliveTicker.C:
			// Send keepalive comment
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				h.logger.Error("Failed to write keepalive", "error", err)
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

// sendSSE sends a Server-Sent Event to the client
func (h *DeliveriesHandler) sendSSE(w http.ResponseWriter, eventType string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal SSE data", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, dataJSON); err != nil {
		h.logger.Error("Failed to write event", "error", err)
		return
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
