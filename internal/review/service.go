package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Service fronts the engine with a single request/response entry point.
// Transports stay thin: they translate their wire format into a
// ReviewRequest, call Receive, and translate the response back.
type Service struct {
	engine *Engine
	log    *slog.Logger
}

// NewService creates a review service around an engine.
func NewService(engine *Engine, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		engine: engine,
		log:    log.With("subsys", "review"),
	}
}

// Engine exposes the underlying engine for components that need direct
// access, such as the stream gateway's snapshot loads.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Receive dispatches a request to the matching engine operation. Domain
// failures (not found, validation, illegal transition) travel inside the
// error of the Result; callers classify them with the errors package
// helpers.
func (s *Service) Receive(ctx context.Context,
	req ReviewRequest) fn.Result[ReviewResponse] {

	s.log.Debug("dispatching request", "request", req.RequestType())

	switch m := req.(type) {
	case CreateReviewRequest:
		r, err := s.engine.Create(ctx, m.PlanContent, m.ProjectPath)
		return snapshotResult(r, err)

	case GetReviewRequest:
		r, err := s.engine.Get(ctx, m.ReviewID, m.ProjectPath)
		return snapshotResult(r, err)

	case ListPendingRequest:
		summaries, err := s.engine.ListPending(ctx, m.ProjectPath)
		if err != nil {
			return fn.Err[ReviewResponse](err)
		}
		return fn.Ok[ReviewResponse](SummariesResponse{
			Summaries: summaries,
		})

	case LatestReviewRequest:
		r, err := s.engine.Latest(ctx, m.ProjectPath)
		return snapshotResult(r, err)

	case AddCommentRequest:
		r, c, err := s.engine.AddComment(
			ctx, m.ReviewID, m.Quote, m.Text, m.Position,
		)
		if err != nil {
			return fn.Err[ReviewResponse](err)
		}
		return fn.Ok[ReviewResponse](CommentResponse{
			Review:  r,
			Comment: c,
		})

	case UpdateCommentRequest:
		r, err := s.engine.UpdateComment(
			ctx, m.ReviewID, m.CommentID, m.Text,
		)
		return snapshotResult(r, err)

	case DeleteCommentRequest:
		r, err := s.engine.DeleteComment(ctx, m.ReviewID, m.CommentID)
		return snapshotResult(r, err)

	case UpdatePlanRequest:
		r, err := s.engine.UpdatePlan(
			ctx, m.ReviewID, m.Content, m.Author, m.Description,
			m.Resolutions,
		)
		return snapshotResult(r, err)

	case RollbackRequest:
		r, err := s.engine.Rollback(ctx, m.ReviewID, m.VersionHash)
		return snapshotResult(r, err)

	case ApproveRequest:
		r, err := s.engine.Approve(ctx, m.ReviewID, m.Note)
		return snapshotResult(r, err)

	case RequestChangesRequest:
		r, err := s.engine.RequestChanges(ctx, m.ReviewID)
		return snapshotResult(r, err)

	case AskQuestionsRequest:
		r, err := s.engine.AskQuestions(ctx, m.ReviewID, m.Questions)
		return snapshotResult(r, err)

	case AnswerQuestionRequest:
		r, err := s.engine.Answer(ctx, m.ReviewID, m.CommentID, m.Answer)
		return snapshotResult(r, err)

	case DiffVersionsRequest:
		diff, err := s.engine.DiffVersions(
			ctx, m.ReviewID, m.FromHash, m.ToHash,
		)
		if err != nil {
			return fn.Err[ReviewResponse](err)
		}
		return fn.Ok[ReviewResponse](DiffResponse{Diff: diff})

	default:
		return fn.Err[ReviewResponse](fmt.Errorf(
			"unknown request type: %T", req,
		))
	}
}

// snapshotResult wraps the common (review, error) pair.
func snapshotResult(r *Review, err error) fn.Result[ReviewResponse] {
	if err != nil {
		return fn.Err[ReviewResponse](err)
	}
	return fn.Ok[ReviewResponse](ReviewSnapshotResponse{Review: r})
}
