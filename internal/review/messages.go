package review

// ReviewRequest is the sealed union of requests accepted by the review
// service. Transport adapters (HTTP handlers, MCP tools) build one of
// these and hand it to Service.Receive.
type ReviewRequest interface {
	// RequestType returns a stable name for logging.
	RequestType() string

	// isReviewRequest seals the interface.
	isReviewRequest()
}

// ReviewResponse is the sealed union of review service responses.
type ReviewResponse interface {
	// isReviewResponse seals the interface.
	isReviewResponse()
}

func (CreateReviewRequest) isReviewRequest()   {}
func (GetReviewRequest) isReviewRequest()      {}
func (ListPendingRequest) isReviewRequest()    {}
func (LatestReviewRequest) isReviewRequest()   {}
func (AddCommentRequest) isReviewRequest()     {}
func (UpdateCommentRequest) isReviewRequest()  {}
func (DeleteCommentRequest) isReviewRequest()  {}
func (UpdatePlanRequest) isReviewRequest()     {}
func (RollbackRequest) isReviewRequest()       {}
func (ApproveRequest) isReviewRequest()        {}
func (RequestChangesRequest) isReviewRequest() {}
func (AskQuestionsRequest) isReviewRequest()   {}
func (AnswerQuestionRequest) isReviewRequest() {}
func (DiffVersionsRequest) isReviewRequest()   {}

func (ReviewSnapshotResponse) isReviewResponse() {}
func (CommentResponse) isReviewResponse()        {}
func (SummariesResponse) isReviewResponse()      {}
func (DiffResponse) isReviewResponse()           {}

// CreateReviewRequest asks for a new review over a plan document.
type CreateReviewRequest struct {
	// PlanContent is the full markdown text of the plan.
	PlanContent string

	// ProjectPath partitions the review by originating project. Empty
	// means the global namespace.
	ProjectPath string
}

// RequestType implements ReviewRequest.
func (CreateReviewRequest) RequestType() string { return "CreateReview" }

// GetReviewRequest fetches a single review.
type GetReviewRequest struct {
	ReviewID string

	// ProjectPath narrows the lookup when known.
	ProjectPath string
}

// RequestType implements ReviewRequest.
func (GetReviewRequest) RequestType() string { return "GetReview" }

// ListPendingRequest lists non-terminal reviews for a project.
type ListPendingRequest struct {
	ProjectPath string
}

// RequestType implements ReviewRequest.
func (ListPendingRequest) RequestType() string { return "ListPending" }

// LatestReviewRequest fetches the most recently modified review for a
// project regardless of status.
type LatestReviewRequest struct {
	ProjectPath string
}

// RequestType implements ReviewRequest.
func (LatestReviewRequest) RequestType() string { return "LatestReview" }

// AddCommentRequest attaches a comment to the current version.
type AddCommentRequest struct {
	ReviewID string

	// Quote is the verbatim text the comment refers to.
	Quote string

	// Text is the reviewer's remark.
	Text string

	// Position anchors the comment in the current document version.
	Position TextPosition
}

// RequestType implements ReviewRequest.
func (AddCommentRequest) RequestType() string { return "AddComment" }

// UpdateCommentRequest edits a comment's text.
type UpdateCommentRequest struct {
	ReviewID  string
	CommentID string
	Text      string
}

// RequestType implements ReviewRequest.
func (UpdateCommentRequest) RequestType() string { return "UpdateComment" }

// DeleteCommentRequest removes a comment.
type DeleteCommentRequest struct {
	ReviewID  string
	CommentID string
}

// RequestType implements ReviewRequest.
func (DeleteCommentRequest) RequestType() string { return "DeleteComment" }

// UpdatePlanRequest appends a new document version.
type UpdatePlanRequest struct {
	ReviewID string

	// Content is the full text of the new version.
	Content string

	// Author distinguishes agent revisions from human rollbacks.
	Author Author

	// Description is an optional change summary.
	Description string

	// Resolutions maps comment IDs to custom resolution messages for
	// agent revisions. Uncovered comments get the default message.
	Resolutions map[string]string
}

// RequestType implements ReviewRequest.
func (UpdatePlanRequest) RequestType() string { return "UpdatePlan" }

// RollbackRequest appends a new version with the content of an earlier
// one.
type RollbackRequest struct {
	ReviewID    string
	VersionHash string
}

// RequestType implements ReviewRequest.
func (RollbackRequest) RequestType() string { return "Rollback" }

// ApproveRequest finalizes the review.
type ApproveRequest struct {
	ReviewID string

	// Note is an optional approval note.
	Note string
}

// RequestType implements ReviewRequest.
func (ApproveRequest) RequestType() string { return "Approve" }

// RequestChangesRequest submits the accumulated comments as feedback.
type RequestChangesRequest struct {
	ReviewID string
}

// RequestType implements ReviewRequest.
func (RequestChangesRequest) RequestType() string { return "RequestChanges" }

// AskQuestionsRequest posts agent questions on unresolved comments.
type AskQuestionsRequest struct {
	ReviewID  string
	Questions []QuestionInput
}

// RequestType implements ReviewRequest.
func (AskQuestionsRequest) RequestType() string { return "AskQuestions" }

// AnswerQuestionRequest records the human's answer to a question.
type AnswerQuestionRequest struct {
	ReviewID  string
	CommentID string
	Answer    string
}

// RequestType implements ReviewRequest.
func (AnswerQuestionRequest) RequestType() string { return "AnswerQuestion" }

// DiffVersionsRequest computes the line diff between two versions.
type DiffVersionsRequest struct {
	ReviewID string
	FromHash string
	ToHash   string
}

// RequestType implements ReviewRequest.
func (DiffVersionsRequest) RequestType() string { return "DiffVersions" }

// ReviewSnapshotResponse carries the full state of a review after a read
// or mutation.
type ReviewSnapshotResponse struct {
	Review *Review
}

// CommentResponse carries the review snapshot plus the comment the
// operation touched.
type CommentResponse struct {
	Review  *Review
	Comment *Comment
}

// SummariesResponse carries review listing entries.
type SummariesResponse struct {
	Summaries []Summary
}

// DiffResponse carries a computed version diff.
type DiffResponse struct {
	Diff Diff
}
