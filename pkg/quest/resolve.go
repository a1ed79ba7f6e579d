package quest

import "fmt"

// StepView is the effective stage a player is currently working on.
type StepView struct {
	QuestID  string
	Position int // 1-based
	Total    int
	Stage
}

// HasNext reports whether another step follows this one.
func (v StepView) HasNext() bool {
	return v.Position < v.Total
}

// ResolveStep returns the stage the player must satisfy. currentStep is the
// 1-based cursor stored on the interaction; zero means absent. Any value
// outside the quest's range falls back to the first step.
func ResolveStep(q *Quest, currentStep int) (StepView, error) {
	if q == nil {
		return StepView{}, fmt.Errorf("resolve step: nil quest")
	}

	if q.kind != KindMultiStep {
		return StepView{
			QuestID:  q.id,
			Position: 1,
			Total:    1,
			Stage:    q.root.clone(),
		}, nil
	}

	if len(q.steps) == 0 {
		return StepView{}, fmt.Errorf("resolve step for quest %s: %w", q.id, ErrNoStepsDefined)
	}

	idx := currentStep - 1
	if idx < 0 || idx >= len(q.steps) {
		idx = 0
	}

	return StepView{
		QuestID:  q.id,
		Position: idx + 1,
		Total:    len(q.steps),
		Stage:    q.steps[idx].clone(),
	}, nil
}
