package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

// Begin writes a fresh interaction for userID, replacing any previous one.
// It is the entry point of the upstream quest acceptance flow, so both
// catalog entries must exist and the quest must resolve to a step.
func (e *Engine) Begin(ctx context.Context, userID, questID, npcName string) (*state.Interaction, error) {
	in := state.New(userID, questID, npcName)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	q, _, err := e.resolve(in)
	if err != nil {
		return nil, err
	}
	if _, err := quest.ResolveStep(q, in.Step()); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(in.UserID)
	defer unlock()
	return e.store.SaveInteraction(ctx, in)
}

// Inspect returns the user's interaction, or nil when there is none.
func (e *Engine) Inspect(ctx context.Context, userID string) (*state.Interaction, error) {
	return e.store.GetInteraction(ctx, strings.TrimSpace(userID))
}

// Patch merges p into the user's interaction under the user's lock.
func (e *Engine) Patch(ctx context.Context, userID string, p state.Patch) (*state.Interaction, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", state.ErrInvalidInteraction)
	}
	unlock := e.locks.Lock(userID)
	defer unlock()
	return e.store.PatchInteraction(ctx, userID, p)
}

// Reset removes the user's interaction. Resetting a user without one is
// not an error.
func (e *Engine) Reset(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", state.ErrInvalidInteraction)
	}
	unlock := e.locks.Lock(userID)
	defer unlock()
	return e.store.ClearInteraction(ctx, userID)
}
