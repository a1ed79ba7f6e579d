// Package storage persists active interactions. Every backend offers the
// same merge, clear and compare-and-swap semantics; only durability differs.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

var (
	// ErrConflict is returned by SwapInteraction when the stored version no
	// longer matches the one the caller read.
	ErrConflict = errors.New("interaction changed concurrently")

	// ErrUnavailable wraps backend failures (network, disk) as opposed to
	// domain errors such as an ambiguous patch.
	ErrUnavailable = errors.New("store unavailable")

	errEncoding = errors.New("interaction encoding")
)

// Storage defines the active-interaction store used by the engine and the
// ops API. Get returns nil, nil when the user has no interaction.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error
	Backend() string
	Durable() bool

	GetInteraction(ctx context.Context, userID string) (*state.Interaction, error)
	// SaveInteraction replaces whatever the user had with in.
	SaveInteraction(ctx context.Context, in *state.Interaction) (*state.Interaction, error)
	// PatchInteraction shallow-merges p into the stored record, creating it
	// when absent.
	PatchInteraction(ctx context.Context, userID string, p state.Patch) (*state.Interaction, error)
	// ClearInteraction removes the record. Clearing an absent record is not an error.
	ClearInteraction(ctx context.Context, userID string) error
	// SwapInteraction writes next only if the stored version still equals
	// expectedVersion (0 meaning "no record"). A nil next deletes the record.
	// It returns the record as stored, or nil after a delete. Versions keep
	// counting per user across deletes, so a version read before a clear
	// never matches a record created after it.
	SwapInteraction(ctx context.Context, userID string, expectedVersion int64, next *state.Interaction) (*state.Interaction, error)
}

// maxUpdateAttempts bounds optimistic retries for unconditional writes.
const maxUpdateAttempts = 10

// updateFunc computes the next record from the current one. Returning nil
// deletes the record.
type updateFunc func(cur *state.Interaction) (*state.Interaction, error)

func versionOf(in *state.Interaction) int64 {
	if in == nil {
		return 0
	}
	return in.Version
}

// stamp prepares next for writing on top of a record at version prev.
func stamp(userID string, next *state.Interaction, prev int64) *state.Interaction {
	out := next.Clone()
	out.UserID = userID
	out.Version = prev + 1
	out.UpdatedAt = time.Now().UTC()
	return out
}

// lastVersion is the highest version ever issued for a user: the stored
// record's, or the floor a backend keeps once the record is gone.
func lastVersion(cur *state.Interaction, floor int64) int64 {
	return max(versionOf(cur), floor)
}

// prepare validates next (when non-nil) and stamps it for writing on top of
// version last.
func prepare(userID string, last int64, next *state.Interaction) (*state.Interaction, error) {
	if next == nil {
		return nil, nil
	}
	stored := stamp(userID, next, last)
	if err := stored.Validate(); err != nil {
		return nil, err
	}
	return stored, nil
}

func patchFunc(userID string, p state.Patch) updateFunc {
	return func(cur *state.Interaction) (*state.Interaction, error) {
		return state.Apply(userID, cur, p)
	}
}

func saveFunc(in *state.Interaction) updateFunc {
	return func(*state.Interaction) (*state.Interaction, error) {
		return in, nil
	}
}

func clearFunc(*state.Interaction) (*state.Interaction, error) {
	return nil, nil
}

func swapFunc(expectedVersion int64, next *state.Interaction) updateFunc {
	return func(cur *state.Interaction) (*state.Interaction, error) {
		if versionOf(cur) != expectedVersion {
			return nil, ErrConflict
		}
		return next, nil
	}
}
