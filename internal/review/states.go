package review

import "fmt"

// ReviewState is the sealed interface for all review states. Each state
// handles incoming events and returns state transitions with outbox
// events for side effects.
type ReviewState interface {
	// ProcessEvent handles an incoming event and returns the next state
	// along with any outbox events to emit.
	ProcessEvent(event ReviewEvent, env *Environment) (*Transition, error)

	// Status returns the wire status this state corresponds to.
	Status() Status

	// IsTerminal returns true if this is a terminal state.
	IsTerminal() bool

	// isReviewState seals the interface.
	isReviewState()
}

// Transition represents the result of processing an event.
type Transition struct {
	NextState    ReviewState
	OutboxEvents []ReviewOutboxEvent
}

// Environment provides the aggregate context for state transitions. The
// review is read during legality checks; mutation happens in the engine
// after the transition is accepted.
type Environment struct {
	Review *Review
}

// Compile-time verification that all concrete states implement
// ReviewState.
var (
	_ ReviewState = (*StateOpen)(nil)
	_ ReviewState = (*StateChangesRequested)(nil)
	_ ReviewState = (*StateDiscussing)(nil)
	_ ReviewState = (*StateUpdated)(nil)
	_ ReviewState = (*StateApproved)(nil)
)

// approveTransition builds the shared approval transition. Approval is
// unconditional from every non-terminal state and carries the current
// plan content so the interceptor can relay the final text.
func approveTransition(from Status, env *Environment) *Transition {
	return &Transition{
		NextState: &StateApproved{},
		OutboxEvents: []ReviewOutboxEvent{
			PublishStatusChanged{
				Previous:    from,
				Next:        StatusApproved,
				PlanContent: env.Review.PlanContent,
			},
			RecordActivity{
				ActivityType: "review_approved",
				Description: fmt.Sprintf(
					"Plan approved from state %s", from,
				),
			},
		},
	}
}

// feedbackTransition builds the shared request-changes transition.
// Submitting feedback requires at least one unresolved comment.
func feedbackTransition(from Status, env *Environment) (*Transition, error) {
	unresolved := env.Review.UnresolvedComments()
	if len(unresolved) == 0 {
		return nil, NewValidationError(
			"cannot request changes without unresolved comments",
		)
	}

	return &Transition{
		NextState: &StateChangesRequested{},
		OutboxEvents: []ReviewOutboxEvent{
			PublishStatusChanged{
				Previous: from,
				Next:     StatusChangesRequested,
			},
			RecordActivity{
				ActivityType: "changes_requested",
				Description: fmt.Sprintf(
					"Reviewer requested changes (%d open comments)",
					len(unresolved),
				),
			},
		},
	}, nil
}

// revisionTransition builds the shared agent-revision transition.
func revisionTransition(from Status, e SubmitRevisionEvent) *Transition {
	return &Transition{
		NextState: &StateUpdated{},
		OutboxEvents: []ReviewOutboxEvent{
			PublishVersionUpdated{
				Version:          e.Version,
				ResolvedComments: e.ResolvedComments,
			},
			PublishStatusChanged{
				Previous: from,
				Next:     StatusUpdated,
			},
			RecordActivity{
				ActivityType: "version_submitted",
				Description: fmt.Sprintf(
					"Agent submitted revision %s (%d comments resolved)",
					ShortHash(e.Version.Hash),
					len(e.ResolvedComments),
				),
			},
		},
	}
}

// =============================================================================
// StateOpen: newly created, awaiting human review.
// =============================================================================

// StateOpen is the initial state of every review.
type StateOpen struct{}

// ProcessEvent handles events in the Open state.
func (s *StateOpen) ProcessEvent(event ReviewEvent,
	env *Environment,
) (*Transition, error) {

	switch e := event.(type) {
	case ApproveEvent:
		return approveTransition(StatusOpen, env), nil

	case SubmitFeedbackEvent:
		return feedbackTransition(StatusOpen, env)

	case AppendVersionEvent:
		// Human rollback keeps the review open.
		return &Transition{
			NextState: s,
			OutboxEvents: []ReviewOutboxEvent{
				PublishVersionUpdated{Version: e.Version},
				RecordActivity{
					ActivityType: "version_appended",
					Description: fmt.Sprintf(
						"Reviewer appended version %s",
						ShortHash(e.Version.Hash),
					),
				},
			},
		}, nil

	default:
		return nil, &InvalidTransitionError{
			From:   StatusOpen,
			Action: eventAction(event),
		}
	}
}

func (s *StateOpen) Status() Status   { return StatusOpen }
func (s *StateOpen) IsTerminal() bool { return false }
func (s *StateOpen) isReviewState() {}

// =============================================================================
// StateChangesRequested: feedback submitted, awaiting agent action.
// =============================================================================

// StateChangesRequested indicates the human submitted comments and the
// agent must either revise the plan or ask questions.
type StateChangesRequested struct{}

// ProcessEvent handles events in the ChangesRequested state.
func (s *StateChangesRequested) ProcessEvent(event ReviewEvent,
	env *Environment,
) (*Transition, error) {

	switch e := event.(type) {
	case AskQuestionsEvent:
		outbox := []ReviewOutboxEvent{
			PublishQuestionsUpdated{Questions: e.Questions},
			RecordActivity{
				ActivityType: "questions_posted",
				Description: fmt.Sprintf(
					"Agent posted %d questions", len(e.Questions),
				),
			},
		}

		// When every question is a terminal acknowledgement the
		// comments all resolve and there is nothing to discuss.
		if e.AllAccepted {
			return &Transition{
				NextState:    s,
				OutboxEvents: outbox,
			}, nil
		}

		outbox = append(outbox, PublishStatusChanged{
			Previous: StatusChangesRequested,
			Next:     StatusDiscussing,
		})

		return &Transition{
			NextState:    &StateDiscussing{},
			OutboxEvents: outbox,
		}, nil

	case SubmitRevisionEvent:
		return revisionTransition(StatusChangesRequested, e), nil

	case ApproveEvent:
		return approveTransition(StatusChangesRequested, env), nil

	default:
		return nil, &InvalidTransitionError{
			From:   StatusChangesRequested,
			Action: eventAction(event),
		}
	}
}

func (s *StateChangesRequested) Status() Status   { return StatusChangesRequested }
func (s *StateChangesRequested) IsTerminal() bool { return false }
func (s *StateChangesRequested) isReviewState() {}

// =============================================================================
// StateDiscussing: agent questions posted, awaiting human answers.
// =============================================================================

// StateDiscussing indicates the agent is waiting for answers. The human
// may still approve outright despite pending questions.
type StateDiscussing struct{}

// ProcessEvent handles events in the Discussing state.
func (s *StateDiscussing) ProcessEvent(event ReviewEvent,
	env *Environment,
) (*Transition, error) {

	switch e := event.(type) {
	case SubmitRevisionEvent:
		return revisionTransition(StatusDiscussing, e), nil

	case ApproveEvent:
		return approveTransition(StatusDiscussing, env), nil

	default:
		return nil, &InvalidTransitionError{
			From:   StatusDiscussing,
			Action: eventAction(event),
		}
	}
}

func (s *StateDiscussing) Status() Status   { return StatusDiscussing }
func (s *StateDiscussing) IsTerminal() bool { return false }
func (s *StateDiscussing) isReviewState() {}

// =============================================================================
// StateUpdated: revised version landed, awaiting human re-review.
// =============================================================================

// StateUpdated indicates the agent submitted a revision and the human is
// reviewing it.
type StateUpdated struct{}

// ProcessEvent handles events in the Updated state.
func (s *StateUpdated) ProcessEvent(event ReviewEvent,
	env *Environment,
) (*Transition, error) {

	switch e := event.(type) {
	case ApproveEvent:
		return approveTransition(StatusUpdated, env), nil

	case SubmitFeedbackEvent:
		return feedbackTransition(StatusUpdated, env)

	case AppendVersionEvent:
		return &Transition{
			NextState: s,
			OutboxEvents: []ReviewOutboxEvent{
				PublishVersionUpdated{Version: e.Version},
				RecordActivity{
					ActivityType: "version_appended",
					Description: fmt.Sprintf(
						"Reviewer appended version %s",
						ShortHash(e.Version.Hash),
					),
				},
			},
		}, nil

	default:
		return nil, &InvalidTransitionError{
			From:   StatusUpdated,
			Action: eventAction(event),
		}
	}
}

func (s *StateUpdated) Status() Status   { return StatusUpdated }
func (s *StateUpdated) IsTerminal() bool { return false }
func (s *StateUpdated) isReviewState() {}

// =============================================================================
// StateApproved: terminal.
// =============================================================================

// StateApproved indicates the review has been approved. No event is
// accepted in this state.
type StateApproved struct{}

// ProcessEvent rejects every event since Approved is terminal.
func (s *StateApproved) ProcessEvent(event ReviewEvent,
	_ *Environment,
) (*Transition, error) {

	return nil, &InvalidTransitionError{
		From:   StatusApproved,
		Action: eventAction(event),
	}
}

func (s *StateApproved) Status() Status   { return StatusApproved }
func (s *StateApproved) IsTerminal() bool { return true }
func (s *StateApproved) isReviewState() {}

// StateFromStatus reconstructs a ReviewState from the persisted status.
// Used when loading a review from the content store.
func StateFromStatus(status Status) ReviewState {
	switch status {
	case StatusOpen:
		return &StateOpen{}
	case StatusChangesRequested:
		return &StateChangesRequested{}
	case StatusDiscussing:
		return &StateDiscussing{}
	case StatusUpdated:
		return &StateUpdated{}
	case StatusApproved:
		return &StateApproved{}
	default:
		return &StateOpen{}
	}
}

// eventAction names an FSM event for error messages.
func eventAction(event ReviewEvent) string {
	switch event.(type) {
	case ApproveEvent:
		return "approve"
	case SubmitFeedbackEvent:
		return "request changes"
	case AskQuestionsEvent:
		return "ask questions"
	case SubmitRevisionEvent:
		return "submit revision"
	case AppendVersionEvent:
		return "append version"
	default:
		return fmt.Sprintf("%T", event)
	}
}
