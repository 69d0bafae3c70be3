package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/planloop/internal/review"
)

// askQuestionsTimeout is the hard cap on one blocking ask_questions
// call. On expiry the tool returns a timeout verdict; review state is
// untouched.
const askQuestionsTimeout = 10 * time.Minute

// QuestionArg is one question posted on a comment.
type QuestionArg struct {
	CommentID string `json:"commentId" jsonschema:"ID of the comment the question is attached to"`

	// Type is one of clarification, choice, multiChoice, accepted.
	Type string `json:"type" jsonschema:"Question type: clarification, choice, multiChoice, or accepted"`

	Message string `json:"message" jsonschema:"The question text shown to the reviewer"`

	// Options is required for choice and multiChoice questions.
	Options []string `json:"options,omitempty" jsonschema:"Answer options, required for choice and multiChoice"`
}

// AskQuestionsArgs are the arguments for the ask_questions tool.
type AskQuestionsArgs struct {
	ReviewID  string        `json:"reviewId" jsonschema:"ID of the review under discussion"`
	Questions []QuestionArg `json:"questions" jsonschema:"Questions covering every unresolved comment"`
}

// AnswerResult is one collected answer.
type AnswerResult struct {
	CommentID string `json:"commentId"`
	Answer    string `json:"answer,omitempty"`
}

// AskQuestionsResult is the result of the ask_questions tool. Failures,
// including the deadline, are reported through the success flag rather
// than an RPC error frame.
type AskQuestionsResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Status  string         `json:"status,omitempty"`
	Answers []AnswerResult `json:"answers,omitempty"`
}

func (s *Server) handleAskQuestions(ctx context.Context,
	req *mcp.CallToolRequest, args AskQuestionsArgs,
) (*mcp.CallToolResult, AskQuestionsResult, error) {

	questions := make([]review.QuestionInput, 0, len(args.Questions))
	for _, q := range args.Questions {
		questions = append(questions, review.QuestionInput{
			CommentID: q.CommentID,
			Question: review.CommentQuestion{
				Type:    review.QuestionType(q.Type),
				Message: q.Message,
				Options: q.Options,
			},
		})
	}

	// Subscribe before applying the mutation so an answer posted
	// immediately after cannot slip past the wait loop.
	sub := s.bus.Subscribe(args.ReviewID)
	defer sub.Cancel()

	resp, err := s.svc.Receive(ctx, review.AskQuestionsRequest{
		ReviewID:  args.ReviewID,
		Questions: questions,
	}).Unpack()
	if err != nil {
		return nil, AskQuestionsResult{
			Success: false,
			Error:   err.Error(),
		}, nil
	}

	r := resp.(review.ReviewSnapshotResponse).Review

	s.log.Info("questions posted, awaiting answers",
		"review_id", args.ReviewID,
		"questions", len(questions),
		"status", r.Status)

	// All-accepted question sets resolve immediately; nothing to wait
	// for.
	if done, result := s.verdict(r); done {
		return nil, result, nil
	}

	deadline := time.NewTimer(askQuestionsTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, AskQuestionsResult{
				Success: false,
				Error:   "cancelled",
			}, nil

		case <-deadline.C:
			return nil, AskQuestionsResult{
				Success: false,
				Error:   "timeout",
			}, nil

		case _, ok := <-sub.C:
			if !ok {
				return nil, AskQuestionsResult{
					Success: false,
					Error:   "subscription closed",
				}, nil
			}

			r, err := s.svc.Engine().Get(ctx, args.ReviewID, "")
			if err != nil {
				return nil, AskQuestionsResult{
					Success: false,
					Error:   err.Error(),
				}, nil
			}

			if done, result := s.verdict(r); done {
				return nil, result, nil
			}
		}
	}
}

// verdict checks the resume predicate: the call returns once the review
// has left the discussion state or every question is answered.
func (s *Server) verdict(r *review.Review) (bool, AskQuestionsResult) {
	done := r.Status != review.StatusDiscussing ||
		review.AllQuestionsAnswered(r)
	if !done {
		return false, AskQuestionsResult{}
	}

	answers := make([]AnswerResult, 0)
	for _, qa := range review.CollectAnswers(r) {
		answers = append(answers, AnswerResult{
			CommentID: qa.CommentID,
			Answer:    qa.Answer,
		})
	}

	return true, AskQuestionsResult{
		Success: true,
		Status:  string(r.Status),
		Answers: answers,
	}
}
