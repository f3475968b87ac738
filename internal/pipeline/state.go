// internal/pipeline/state.go
package pipeline

import (
	"fmt"

	apperrors "pages-deployer/internal/common/errors"
)

// State is the position of one task round in the pipeline.
type State string

const (
	StateReceived   State = "received"
	StateGenerating State = "generating"
	StateWriting    State = "writing"
	StatePublishing State = "publishing"
	StateNotifying  State = "notifying"
	StateRecorded   State = "recorded"
	StateFailed     State = "failed"
)

var transitions = map[State][]State{
	StateReceived:   {StateGenerating, StateRecorded, StateFailed},
	StateGenerating: {StateWriting, StateFailed},
	StateWriting:    {StatePublishing, StateFailed},
	StatePublishing: {StateNotifying, StateFailed},
	StateNotifying:  {StateRecorded, StateFailed},
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateRecorded || s == StateFailed
}

func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// machine tracks the current state of a single run.
type machine struct {
	current State
	history []State
}

func newMachine() *machine {
	return &machine{current: StateReceived, history: []State{StateReceived}}
}

func (m *machine) advance(to State) error {
	if !m.current.CanTransition(to) {
		return apperrors.NewInternalError(fmt.Errorf("illegal transition %s -> %s", m.current, to))
	}
	m.current = to
	m.history = append(m.history, to)
	return nil
}
