package quest

import (
	"errors"
	"strings"
)

// Kind identifies the shape of a quest definition.
type Kind string

const (
	// KindSimple is a single-shot quest whose constraints live on the quest itself.
	KindSimple Kind = "simple"

	// KindMultiStep is a quest made of an ordered sequence of steps.
	KindMultiStep Kind = "multi_step"
)

// ErrNoStepsDefined is returned when a multi-step quest has an empty step list.
var ErrNoStepsDefined = errors.New("quest has no steps defined")

// ChannelRule restricts where a stage can be satisfied.
// When ID is set it wins and Name is ignored.
type ChannelRule struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// IsZero reports whether the rule accepts any channel.
func (c ChannelRule) IsZero() bool {
	return c.ID == "" && c.Name == ""
}

// Stage holds the completion constraints and reply of one quest stage: the
// whole quest for a simple quest, or one step of a multi-step quest.
type Stage struct {
	Channel  ChannelRule `json:"channel,omitempty"`
	Keywords []string    `json:"keywords,omitempty"`
	Emoji    Emoji       `json:"emoji,omitempty"`
	Reply    string      `json:"reply,omitempty"`
}

func (s Stage) clone() Stage {
	out := s
	if s.Keywords != nil {
		out.Keywords = append([]string(nil), s.Keywords...)
	}
	return out
}

// Quest is an immutable catalog entry. It is either simple (one root stage)
// or multi-step (ordered stages); ResolveStep is the only place that looks
// at which.
type Quest struct {
	id    string
	name  string
	kind  Kind
	root  Stage
	steps []Stage
}

// CanonicalID upper-cases and trims a quest identifier.
func CanonicalID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// NewSimple builds a single-shot quest.
func NewSimple(id, name string, stage Stage) *Quest {
	return &Quest{
		id:   CanonicalID(id),
		name: name,
		kind: KindSimple,
		root: stage.clone(),
	}
}

// NewMultiStep builds a sequenced quest. An empty steps slice is accepted
// here so that a malformed catalog entry surfaces as ErrNoStepsDefined at
// resolution time instead of hiding the quest entirely.
func NewMultiStep(id, name string, steps []Stage) *Quest {
	copied := make([]Stage, len(steps))
	for i, s := range steps {
		copied[i] = s.clone()
	}
	return &Quest{
		id:    CanonicalID(id),
		name:  name,
		kind:  KindMultiStep,
		steps: copied,
	}
}

// ID returns the canonical upper-case identifier.
func (q *Quest) ID() string { return q.id }

// Name returns the human-readable title, possibly empty.
func (q *Quest) Name() string { return q.name }

func (q *Quest) Kind() Kind { return q.kind }

// StepCount returns the number of steps a player goes through.
func (q *Quest) StepCount() int {
	if q.kind == KindMultiStep {
		return len(q.steps)
	}
	return 1
}
