package domain

import "fmt"

// ProgressEvent drives QuizProgress state changes.
type ProgressEvent string

const (
	EventStart  ProgressEvent = "start"
	EventResume ProgressEvent = "resume"
	EventAnswer ProgressEvent = "answer"
	EventFinish ProgressEvent = "finish"
	EventSave   ProgressEvent = "save"
)

var progressTransitions = map[ProgressState]map[ProgressEvent]ProgressState{
	StateNotStarted: {
		EventStart: StateInProgress,
	},
	StateInProgress: {
		EventAnswer: StateInProgress,
		EventFinish: StateCommitting,
		EventSave:   StateSavedForLater,
	},
	StateCommitting: {
		EventFinish: StateCompleted,
	},
	StateSavedForLater: {
		EventResume: StateInProgress,
	},
}

// Next returns the state reached from s on event e.
// Completed is terminal; every undeclared pair is an ErrIllegalTransition.
func (s ProgressState) Next(e ProgressEvent) (ProgressState, error) {
	if s == "" {
		s = StateNotStarted
	}
	if next, ok := progressTransitions[s][e]; ok {
		return next, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, e, s)
}

// Transition moves p to the state reached on e.
func (p *QuizProgress) Transition(e ProgressEvent) error {
	next, err := p.State.Next(e)
	if err != nil {
		return err
	}
	p.State = next
	return nil
}
