package engine

import "fmt"

// Decision tells the transport layer what the engine did with an event, so
// it can decide whether to run other handlers on the same message.
type Decision int

const (
	// Ignored means the event did not concern an active interaction, or did
	// not satisfy the current step. State is unchanged.
	Ignored Decision = iota
	// Replied means the NPC answered without any change to the cursor.
	Replied
	// RepliedAwaitingReaction means the NPC answered and the step now waits
	// for the confirming reaction.
	RepliedAwaitingReaction
	// Advanced means the cursor moved to the next step.
	Advanced
	// Completed means the last step was satisfied and the interaction removed.
	Completed
)

var decisionNames = [...]string{
	Ignored:                 "ignored",
	Replied:                 "replied",
	RepliedAwaitingReaction: "replied_awaiting_reaction",
	Advanced:                "advanced",
	Completed:               "completed",
}

func (d Decision) String() string {
	if d < 0 || int(d) >= len(decisionNames) {
		return fmt.Sprintf("decision(%d)", int(d))
	}
	return decisionNames[d]
}

// MarshalText renders the decision by name in JSON payloads.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Handled reports whether the engine consumed the event.
func (d Decision) Handled() bool {
	return d != Ignored
}
