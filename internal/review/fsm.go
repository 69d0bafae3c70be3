package review

import "fmt"

// ReviewFSM manages review state transitions using the ProcessEvent
// pattern. The engine creates one per mutation from the persisted
// status, drives it with a single event, and applies the resulting
// transition to the aggregate.
type ReviewFSM struct {
	state ReviewState
	env   *Environment
}

// NewReviewFSM creates a review FSM positioned at the review's persisted
// status.
func NewReviewFSM(r *Review) *ReviewFSM {
	return &ReviewFSM{
		state: StateFromStatus(r.Status),
		env:   &Environment{Review: r},
	}
}

// ProcessEvent processes an event, advances the state, and returns the
// outbox events to dispatch once the mutation is durable.
func (f *ReviewFSM) ProcessEvent(event ReviewEvent) ([]ReviewOutboxEvent, error) {
	transition, err := f.state.ProcessEvent(event, f.env)
	if err != nil {
		return nil, fmt.Errorf("process event %T: %w", event, err)
	}

	f.state = transition.NextState

	return transition.OutboxEvents, nil
}

// Status returns the wire status of the current state.
func (f *ReviewFSM) Status() Status {
	return f.state.Status()
}

// IsTerminal returns true if the review has reached a terminal state.
func (f *ReviewFSM) IsTerminal() bool {
	return f.state.IsTerminal()
}
