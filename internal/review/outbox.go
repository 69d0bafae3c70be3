package review

// ReviewOutboxEvent is the sealed interface for side effects requested by
// the review FSM. Transitions stay pure: they describe what should happen
// (persistence, event bus publications, activity records) and the engine
// dispatches the effects after the mutation is durable.
type ReviewOutboxEvent interface {
	// isReviewOutboxEvent seals the interface to prevent external
	// implementations.
	isReviewOutboxEvent()
}

// Ensure all outbox event types implement ReviewOutboxEvent.
func (PublishStatusChanged) isReviewOutboxEvent()    {}
func (PublishVersionUpdated) isReviewOutboxEvent()   {}
func (PublishQuestionsUpdated) isReviewOutboxEvent() {}
func (RecordActivity) isReviewOutboxEvent()          {}

// PublishStatusChanged requests a status_changed publication on the
// event bus.
type PublishStatusChanged struct {
	Previous Status
	Next     Status

	// PlanContent carries the final plan text, populated only when the
	// new status is approved so the interceptor can relay it.
	PlanContent string
}

// PublishVersionUpdated requests a version_updated publication carrying
// the new version and the comments it resolved.
type PublishVersionUpdated struct {
	Version          *DocumentVersion
	ResolvedComments []ResolvedComment
}

// ResolvedComment identifies a comment that flipped from unresolved to
// resolved in a transition, with its resolution message.
type ResolvedComment struct {
	CommentID  string `json:"commentId"`
	Resolution string `json:"resolution"`
}

// PublishQuestionsUpdated requests a questions_updated publication.
type PublishQuestionsUpdated struct {
	Questions []QuestionInput
}

// RecordActivity requests an audit log entry for the transition.
type RecordActivity struct {
	ActivityType string
	Description  string
}
