package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

// ErrorHandlingMode decides whether a suite stops at its first failed step.
type ErrorHandlingMode string

const (
	ErrorHandlingExit     ErrorHandlingMode = "exit"
	ErrorHandlingContinue ErrorHandlingMode = "continue"
)

// Runner drives case files against an npc-quest-engine API.
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration // per step
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner returns a runner with default timeouts that logs nothing.
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimRight(baseURL, "/"),
		Client:            &http.Client{Timeout: time.Minute},
		Timeout:           DecisionTimeout,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite decodes one case file.
func LoadTestSuite(filename string) (TestSuite, error) {
	var suite TestSuite
	f, err := os.Open(filename)
	if err != nil {
		return suite, fmt.Errorf("open case %s: %w", filename, err)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&suite); err != nil {
		return suite, fmt.Errorf("decode case %s: %w", filename, err)
	}
	return suite, nil
}

// LoadTestSuiteWithExpansion returns the jobs a case file stands for: the
// file itself, or, for a sequence, the cases it lists (resolved against
// casesDir, recursively).
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	return expand(filename, casesDir, map[string]bool{})
}

func expand(filename, casesDir string, seen map[string]bool) ([]TestJob, error) {
	clean := filepath.Clean(filename)
	if seen[clean] {
		return nil, fmt.Errorf("sequence cycle through %s", clean)
	}

	suite, err := LoadTestSuite(clean)
	if err != nil {
		return nil, err
	}
	if !suite.IsSequence() {
		return []TestJob{{Name: suite.Name, Suite: suite, CaseFile: clean}}, nil
	}

	seen[clean] = true
	defer delete(seen, clean)

	var jobs []TestJob
	for _, ref := range suite.Cases {
		sub, err := expand(filepath.Join(casesDir, ref), casesDir, seen)
		if err != nil {
			return nil, fmt.Errorf("sequence %q, case %s: %w", suite.Name, ref, err)
		}
		jobs = append(jobs, sub...)
	}
	return jobs, nil
}

// RunSuite plays every step of suite as a fresh user. The returned error is
// the first failing step's, also stored in the result.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (result TestRunResult, err error) {
	start := time.Now()
	result = TestRunResult{
		Job:     TestJob{Name: suite.Name, Suite: suite},
		Results: make([]TestResult, 0, len(suite.Steps)),
		UserID:  "it-" + uuid.NewString(),
	}
	defer func() {
		result.Duration = time.Since(start)
		if err == nil {
			err = result.Error
		}
		result.Error = err
	}()

	if err := r.seedInteraction(ctx, result.UserID, suite.Seed); err != nil {
		return result, fmt.Errorf("seed interaction: %w", err)
	}
	defer func() {
		_ = r.deleteInteraction(context.WithoutCancel(ctx), result.UserID)
	}()

	// Subscribe before the first event so no worker decision slips by
	var stream *DecisionStream
	if !r.inline(ctx) {
		if stream, err = OpenDecisionStream(ctx, r.BaseURL); err != nil {
			return result, err
		}
		defer stream.Close()
	}

	total := len(suite.Steps)
	for i, step := range suite.Steps {
		res := r.runStep(ctx, result.UserID, step, suite.Seed, stream)
		res.TestName = suite.Name
		result.Results = append(result.Results, res)

		if res.Error == nil {
			r.Logger("    (%d/%d) ok   %s -> %s", i+1, total, step.Name, res.Decision)
			continue
		}
		r.Logger("    (%d/%d) FAIL %s: %v", i+1, total, step.Name, res.Error)
		if result.Error == nil {
			result.Error = fmt.Errorf("step %d %q: %w", i+1, step.Name, res.Error)
		}
		if r.ErrorHandlingMode == ErrorHandlingExit {
			break
		}
	}
	return result, nil
}

// seedInteraction starts the quest conversation and applies any remaining
// seed fields (step, awaited reaction) with a patch
func (r *Runner) seedInteraction(ctx context.Context, userID string, seed *state.Patch) error {
	if seed == nil || seed.QuestID == nil || seed.NPCName == nil {
		return fmt.Errorf("seed needs quest_id and npc_name")
	}

	begin, err := json.Marshal(map[string]string{
		"quest_id": *seed.QuestID,
		"npc_name": *seed.NPCName,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal begin request: %w", err)
	}
	if err := r.send(ctx, http.MethodPut, "/v1/interactions/"+userID, begin, http.StatusCreated); err != nil {
		return err
	}

	rest := state.Patch{
		CurrentStep:      seed.CurrentStep,
		AwaitingReaction: seed.AwaitingReaction,
		ExpectedEmoji:    seed.ExpectedEmoji,
	}
	if rest.IsEmpty() {
		return nil
	}
	patch, err := json.Marshal(rest)
	if err != nil {
		return fmt.Errorf("failed to marshal seed patch: %w", err)
	}
	return r.send(ctx, http.MethodPatch, "/v1/interactions/"+userID, patch, http.StatusOK)
}

func (r *Runner) deleteInteraction(ctx context.Context, userID string) error {
	return r.send(ctx, http.MethodDelete, "/v1/interactions/"+userID, nil, http.StatusNoContent)
}

func (r *Runner) send(ctx context.Context, method, path string, body []byte, want int) error {
	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(b))
	}
	return nil
}

// runStep sends one step's event and checks what it left behind. A
// RESET_INTERACTION step re-applies the suite seed instead.
func (r *Runner) runStep(ctx context.Context, userID string, step TestStep, seed *state.Patch, stream *DecisionStream) (res TestResult) {
	res.StepName = step.Name
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		res.Success = res.Error == nil
	}()

	if step.Text == ResetInteractionText {
		res.IsReset = true
		res.Decision = "reset"
		if err := r.seedInteraction(ctx, userID, seed); err != nil {
			res.Error = fmt.Errorf("reset interaction: %w", err)
		}
		return res
	}
	if step.Text == "" && !step.IsReaction() {
		res.Error = errors.New("step has neither text nor reaction")
		return res
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	intake, err := PostEvent(ctx, r.Client, r.BaseURL, userID, step)
	if err != nil {
		res.Error = err
		return res
	}
	res.Decision = intake.Decision

	if intake.Status == "queued" {
		if stream == nil {
			res.Error = errors.New("event was queued but no delivery stream is open")
			return res
		}
		if res.Decision, err = stream.WaitForDecision(ctx, intake.RequestID); err != nil {
			res.Error = err
			return res
		}
	}

	post, err := GetInteraction(ctx, r.Client, r.BaseURL, userID)
	if err != nil && !errors.Is(err, errNoInteraction) {
		res.Error = fmt.Errorf("read interaction: %w", err)
		return res
	}
	res.Error = checkExpectations(step.Expectations, res.Decision, post)
	return res
}

// inline reports whether the API processes events itself. The stats
// endpoint only lists queue depths when a queue is configured.
func (r *Runner) inline(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/v1/stats", nil)
	if err != nil {
		return true
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return true
	}
	defer func() { _ = resp.Body.Close() }()

	var stats struct {
		QueueDepths []int `json:"queue_depths"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return true
	}
	return stats.QueueDepths == nil
}

// checkExpectations validates the step expectations against the decision
// and the interaction left behind (nil when cleared)
func checkExpectations(exp Expectations, decision string, post *state.Interaction) error {
	if exp.Decision != nil && decision != *exp.Decision {
		return fmt.Errorf("expected decision %s, got %s", *exp.Decision, decision)
	}

	if exp.Cleared != nil {
		if *exp.Cleared && post != nil {
			return fmt.Errorf("expected interaction to be cleared, still at step %d", post.Step())
		}
		if !*exp.Cleared && post == nil {
			return fmt.Errorf("expected interaction to exist, but it was cleared")
		}
	}

	if exp.Step == nil && exp.AwaitingReaction == nil && exp.ExpectedEmoji == nil {
		return nil
	}
	if post == nil {
		return fmt.Errorf("expected an interaction, but none exists")
	}

	if exp.Step != nil && post.Step() != *exp.Step {
		return fmt.Errorf("expected step %d, got %d", *exp.Step, post.Step())
	}
	if exp.AwaitingReaction != nil && post.AwaitingReaction != *exp.AwaitingReaction {
		return fmt.Errorf("expected awaiting_reaction to be %t, got %t", *exp.AwaitingReaction, post.AwaitingReaction)
	}
	if exp.ExpectedEmoji != nil && string(post.ExpectedEmoji) != *exp.ExpectedEmoji {
		return fmt.Errorf("expected expected_emoji %q, got %q", *exp.ExpectedEmoji, post.ExpectedEmoji)
	}

	return nil
}
