package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jwebster45206/npc-quest-engine/internal/engine"
	"github.com/jwebster45206/npc-quest-engine/internal/storage"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

// BeginRequest is the body of PUT /v1/interactions/{userID}.
type BeginRequest struct {
	QuestID string `json:"quest_id"`
	NPCName string `json:"npc_name"`
}

// InteractionsHandler exposes a player's interaction record for debugging
// and for the quest acceptance flow.
type InteractionsHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewInteractionsHandler(e *engine.Engine, logger *slog.Logger) *InteractionsHandler {
	return &InteractionsHandler{
		engine: e,
		logger: logger,
	}
}

// Routes:
// GET /v1/interactions/{userID}    - Read the record
// PUT /v1/interactions/{userID}    - Start a quest conversation
// PATCH /v1/interactions/{userID}  - Shallow merge
// DELETE /v1/interactions/{userID} - Reset
func (h *InteractionsHandler) Routes(r chi.Router) {
	r.Get("/{userID}", h.handleGet)
	r.Put("/{userID}", h.handleBegin)
	r.Patch("/{userID}", h.handlePatch)
	r.Delete("/{userID}", h.handleDelete)
}

func (h *InteractionsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	in, err := h.engine.Inspect(r.Context(), userID)
	if err != nil {
		h.fail(w, userID, err)
		return
	}
	if in == nil {
		writeError(w, h.logger, http.StatusNotFound, "No active interaction")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, in)
}

func (h *InteractionsHandler) handleBegin(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req BeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid begin request", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	in, err := h.engine.Begin(r.Context(), userID, req.QuestID, req.NPCName)
	if err != nil {
		h.fail(w, userID, err)
		return
	}

	h.logger.Info("Interaction started", "user_id", in.UserID, "quest_id", in.QuestID, "npc", in.NPCName)
	writeJSON(w, h.logger, http.StatusCreated, in)
}

func (h *InteractionsHandler) handlePatch(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var p state.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.logger.Warn("Invalid patch request", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if p.IsEmpty() {
		writeError(w, h.logger, http.StatusBadRequest, "Patch changes nothing")
		return
	}

	in, err := h.engine.Patch(r.Context(), userID, p)
	if err != nil {
		h.fail(w, userID, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, in)
}

func (h *InteractionsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.engine.Reset(r.Context(), userID); err != nil {
		h.fail(w, userID, err)
		return
	}
	h.logger.Info("Interaction reset", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *InteractionsHandler) fail(w http.ResponseWriter, userID string, err error) {
	switch {
	case errors.Is(err, engine.ErrQuestNotFound), errors.Is(err, engine.ErrNPCNotFound),
		errors.Is(err, quest.ErrNoStepsDefined):
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, state.ErrInvalidInteraction), errors.Is(err, state.ErrAmbiguousState):
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrConflict):
		writeError(w, h.logger, http.StatusConflict, "Interaction changed concurrently, retry")
	default:
		h.logger.Error("Interaction store failure", "user_id", userID, "error", err)
		writeError(w, h.logger, http.StatusServiceUnavailable, "Interaction store unavailable")
	}
}
