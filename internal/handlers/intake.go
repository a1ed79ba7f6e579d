package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jwebster45206/npc-quest-engine/internal/engine"
	"github.com/jwebster45206/npc-quest-engine/pkg/queue"
)

// Enqueuer hands events to the worker queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev *queue.Event) error
}

// Dispatcher runs events through the engine in-process.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *queue.Event) engine.Decision
}

// IntakeResponse acknowledges an inbound event. Decision is only set when
// the event was processed inline.
type IntakeResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Decision  string `json:"decision,omitempty"`
	Handled   *bool  `json:"handled,omitempty"`
}

// IntakeHandler accepts chat events from the transport bridge. With an
// Enqueuer events go to the queue and the response is 202; otherwise they
// are dispatched inline and the decision is returned.
type IntakeHandler struct {
	enqueuer   Enqueuer
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewIntakeHandler(enqueuer Enqueuer, dispatcher Dispatcher, logger *slog.Logger) *IntakeHandler {
	return &IntakeHandler{
		enqueuer:   enqueuer,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleText serves POST /v1/events/text
func (h *IntakeHandler) HandleText(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, queue.EventTypeText)
}

// HandleReaction serves POST /v1/events/reaction
func (h *IntakeHandler) HandleReaction(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, queue.EventTypeReaction)
}

func (h *IntakeHandler) handle(w http.ResponseWriter, r *http.Request, typ queue.EventType) {
	var ev queue.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.logger.Warn("Invalid event body", "error", err, "type", typ)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	ev.Type = typ
	if ev.RequestID == "" {
		ev.RequestID = uuid.New().String()
	}
	if err := ev.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	if h.enqueuer != nil {
		if err := h.enqueuer.Enqueue(r.Context(), &ev); err != nil {
			if errors.Is(err, queue.ErrInvalidEvent) {
				writeError(w, h.logger, http.StatusBadRequest, err.Error())
				return
			}
			h.logger.Error("Failed to enqueue event", "error", err, "request_id", ev.RequestID)
			writeError(w, h.logger, http.StatusServiceUnavailable, "Event queue unavailable")
			return
		}
		writeJSON(w, h.logger, http.StatusAccepted, IntakeResponse{RequestID: ev.RequestID, Status: "queued"})
		return
	}

	if h.dispatcher == nil {
		writeError(w, h.logger, http.StatusServiceUnavailable, "No event processor configured")
		return
	}
	d := h.dispatcher.Dispatch(r.Context(), &ev)
	handled := d.Handled()
	writeJSON(w, h.logger, http.StatusOK, IntakeResponse{
		RequestID: ev.RequestID,
		Status:    "processed",
		Decision:  d.String(),
		Handled:   &handled,
	})
}
