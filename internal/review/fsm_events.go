package review

// ReviewEvent is the sealed interface for events that drive the review
// FSM. All event types must implement the unexported isReviewEvent()
// method.
type ReviewEvent interface {
	// isReviewEvent seals the interface to prevent external
	// implementations.
	isReviewEvent()
}

// Ensure all event types implement ReviewEvent.
func (ApproveEvent) isReviewEvent()         {}
func (SubmitFeedbackEvent) isReviewEvent()  {}
func (AskQuestionsEvent) isReviewEvent()    {}
func (SubmitRevisionEvent) isReviewEvent()  {}
func (AppendVersionEvent) isReviewEvent()   {}

// ApproveEvent is sent when the human approves the plan. Approval is
// unconditional from any non-terminal state.
type ApproveEvent struct {
	// Note is an optional reviewer note carried into the approval.
	Note string
}

// SubmitFeedbackEvent is sent when the human submits their comments and
// requests changes.
type SubmitFeedbackEvent struct{}

// AskQuestionsEvent is sent when the agent posts questions covering the
// unresolved comments.
type AskQuestionsEvent struct {
	// Questions maps each unresolved comment to its question.
	Questions []QuestionInput

	// AllAccepted is true when every question has the accepted type, in
	// which case the review does not enter the discussing state.
	AllAccepted bool
}

// QuestionInput pairs a comment ID with the question to attach to it.
type QuestionInput struct {
	CommentID string
	Question  CommentQuestion
}

// SubmitRevisionEvent is sent when the agent submits a new plan version
// in response to feedback or after a discussion.
type SubmitRevisionEvent struct {
	// Version is the freshly appended document version.
	Version *DocumentVersion

	// ResolvedComments lists the comments auto-resolved by this
	// revision.
	ResolvedComments []ResolvedComment
}

// AppendVersionEvent is sent when the human appends a version without a
// status change, i.e. a rollback to an earlier version.
type AppendVersionEvent struct {
	// Version is the freshly appended document version.
	Version *DocumentVersion
}
