package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
)

var (
	// ErrAmbiguousState is returned when a change would leave the record
	// awaiting a reaction without knowing which one, or the reverse.
	ErrAmbiguousState = errors.New("ambiguous interaction state")

	// ErrInvalidInteraction is returned when required identity fields are missing.
	ErrInvalidInteraction = errors.New("invalid interaction")
)

// Interaction is a player's cursor through one quest conversation. The
// presence of a record is the only signal that the player is in a quest
// conversation; there is at most one per user.
type Interaction struct {
	UserID           string      `json:"user_id"`
	QuestID          string      `json:"quest_id"`
	NPCName          string      `json:"npc_name"`
	CurrentStep      int         `json:"current_step,omitempty"` // 1-based, 0 when absent
	AwaitingReaction bool        `json:"awaiting_reaction,omitempty"`
	ExpectedEmoji    quest.Emoji `json:"expected_emoji,omitempty"`

	// Version increases on every write and backs compare-and-swap in the stores.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New starts a fresh interaction, as written by the upstream quest
// acceptance flow.
func New(userID, questID, npcName string) *Interaction {
	return &Interaction{
		UserID:      strings.TrimSpace(userID),
		QuestID:     quest.CanonicalID(questID),
		NPCName:     strings.TrimSpace(npcName),
		CurrentStep: 1,
	}
}

// Validate checks identity fields and the awaiting/emoji pairing.
func (i *Interaction) Validate() error {
	if i == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidInteraction)
	}
	if strings.TrimSpace(i.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInteraction)
	}
	if strings.TrimSpace(i.QuestID) == "" {
		return fmt.Errorf("%w: quest_id is required", ErrInvalidInteraction)
	}
	if strings.TrimSpace(i.NPCName) == "" {
		return fmt.Errorf("%w: npc_name is required", ErrInvalidInteraction)
	}
	if i.AwaitingReaction != (i.ExpectedEmoji != "") {
		return fmt.Errorf("%w: awaiting_reaction=%v expected_emoji=%q", ErrAmbiguousState, i.AwaitingReaction, i.ExpectedEmoji)
	}
	return nil
}

// Step returns the 1-based cursor, treating an absent or negative value as 1.
func (i *Interaction) Step() int {
	if i.CurrentStep < 1 {
		return 1
	}
	return i.CurrentStep
}

// Clone returns a copy safe to mutate.
func (i *Interaction) Clone() *Interaction {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// AwaitReaction returns the record moved into the awaiting-reaction
// sub-state for emoji. The step cursor is unchanged.
func (i *Interaction) AwaitReaction(emoji quest.Emoji) (*Interaction, error) {
	if emoji == "" {
		return nil, fmt.Errorf("%w: awaiting a reaction requires an emoji", ErrAmbiguousState)
	}
	next := i.Clone()
	next.AwaitingReaction = true
	next.ExpectedEmoji = emoji
	return next, nil
}

// AdvanceTo returns the record positioned on step, ready for text input.
func (i *Interaction) AdvanceTo(step int) *Interaction {
	next := i.Clone()
	next.CurrentStep = step
	next.AwaitingReaction = false
	next.ExpectedEmoji = ""
	return next
}

// Patch is a shallow merge applied by stores; nil fields are left alone.
type Patch struct {
	QuestID          *string      `json:"quest_id,omitempty"`
	NPCName          *string      `json:"npc_name,omitempty"`
	CurrentStep      *int         `json:"current_step,omitempty"`
	AwaitingReaction *bool        `json:"awaiting_reaction,omitempty"`
	ExpectedEmoji    *quest.Emoji `json:"expected_emoji,omitempty"`
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.QuestID == nil && p.NPCName == nil && p.CurrentStep == nil &&
		p.AwaitingReaction == nil && p.ExpectedEmoji == nil
}

// Apply merges p into cur, upserting when cur is nil. Clearing
// AwaitingReaction also clears ExpectedEmoji; any other combination that
// would break the pairing is rejected with ErrAmbiguousState.
func Apply(userID string, cur *Interaction, p Patch) (*Interaction, error) {
	next := cur.Clone()
	if next == nil {
		next = &Interaction{UserID: userID}
	}

	if p.QuestID != nil {
		next.QuestID = quest.CanonicalID(*p.QuestID)
	}
	if p.NPCName != nil {
		next.NPCName = strings.TrimSpace(*p.NPCName)
	}
	if p.CurrentStep != nil {
		next.CurrentStep = *p.CurrentStep
	}
	if p.ExpectedEmoji != nil {
		next.ExpectedEmoji = *p.ExpectedEmoji
	}
	if p.AwaitingReaction != nil {
		next.AwaitingReaction = *p.AwaitingReaction
		if !next.AwaitingReaction {
			if p.ExpectedEmoji != nil && *p.ExpectedEmoji != "" {
				return nil, fmt.Errorf("%w: expected_emoji set while clearing awaiting_reaction", ErrAmbiguousState)
			}
			next.ExpectedEmoji = ""
		}
	}

	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}
