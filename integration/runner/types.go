package runner

import (
	"time"

	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

// Special step values that trigger non-event actions
const (
	ResetInteractionText = "RESET_INTERACTION"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name  string       `json:"name"`
	Seed  *state.Patch `json:"seed,omitempty"`  // Used for regular tests
	Steps []TestStep   `json:"steps,omitempty"` // Used for regular tests
	Cases []string     `json:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep is one chat event sent on behalf of the test player. Exactly one
// of Text and Reaction is set; Text "RESET_INTERACTION" re-applies the seed.
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	Text         string       `json:"text,omitempty"`
	Reaction     string       `json:"reaction,omitempty"`
	Channel      string       `json:"channel,omitempty"`
	ChannelID    string       `json:"channel_id,omitempty"`
	Expectations Expectations `json:"expect"`
}

// IsReaction reports whether the step sends a reaction
func (s TestStep) IsReaction() bool {
	return s.Reaction != ""
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	// Decision is read from the intake response, or from the delivery
	// stream when the event was queued
	Decision *string `json:"decision,omitempty"`

	// Interaction properties - aligned with pkg/state/interaction.go
	Step             *int    `json:"step,omitempty"`
	AwaitingReaction *bool   `json:"awaiting_reaction,omitempty"`
	ExpectedEmoji    *string `json:"expected_emoji,omitempty"`
	Cleared          *bool   `json:"cleared,omitempty"` // interaction no longer exists
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName string
	StepName string
	Success  bool
	Error    error
	Duration time.Duration
	Decision string
	IsReset  bool // True if this was a RESET_INTERACTION step (should not count toward pass/fail metrics)
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	UserID   string
	Duration time.Duration
	Error    error
}
