package review

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roasbeef/planloop/internal/plandoc"
)

// Store is the persistence contract the engine depends on. The content
// store package provides the file-backed implementation; tests may
// substitute their own.
type Store interface {
	// Save atomically persists the review record.
	Save(ctx context.Context, r *Review) error

	// Load fetches a review by ID. The project path narrows the search
	// when known; the store falls back to the global namespace and a
	// scan of all project partitions. Returns ErrReviewNotFound on miss.
	Load(ctx context.Context, id, projectPath string) (*Review, error)

	// ListPending enumerates non-terminal reviews in one project
	// partition, most recently modified first.
	ListPending(ctx context.Context, projectPath string) ([]*Review, error)

	// Latest returns the most recently modified review regardless of
	// status. Returns ErrReviewNotFound when the partition is empty.
	Latest(ctx context.Context, projectPath string) (*Review, error)
}

// EventSink receives the engine's event publications. The event bus
// implements it; the engine publishes only after the mutation is
// durable.
type EventSink interface {
	Publish(reviewID string, ev Event)
}

// ActivityRecorder receives audit log entries for engine mutations.
type ActivityRecorder interface {
	Record(ctx context.Context, reviewID, activityType, description string) error
}

// Summary is a lightweight review listing entry.
type Summary struct {
	ID              string    `json:"id"`
	Status          Status    `json:"status"`
	Title           string    `json:"title,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	CommentCount    int       `json:"commentCount"`
	UnresolvedCount int       `json:"unresolvedCount"`
	VersionCount    int       `json:"versionCount"`
	ProjectPath     string    `json:"projectPath,omitempty"`
}

// QuestionAnswer is one collected answer tuple returned to the agent
// when its blocking ask_questions call resumes.
type QuestionAnswer struct {
	CommentID string          `json:"commentId"`
	Question  CommentQuestion `json:"question"`
	Answer    string          `json:"answer"`
}

// Engine is the authoritative review state machine and the only
// component allowed to mutate a review. Every operation loads from the
// store, validates transition legality, mutates in memory, writes back,
// then emits events. Mutations are serialized per review ID.
type Engine struct {
	store    Store
	sink     EventSink
	recorder ActivityRecorder
	log      *slog.Logger

	// locks holds one mutex per review ID, created on demand.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a review engine. The sink and recorder may be nil,
// in which case publications and audit records are skipped.
func NewEngine(store Store, sink EventSink, recorder ActivityRecorder,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		store:    store,
		sink:     sink,
		recorder: recorder,
		log:      log.With("subsys", "engine"),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing mutations of one review.
func (e *Engine) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// mutate runs fn inside the review's critical section: load, apply,
// persist, then dispatch the outbox. Events are published only after the
// save succeeds, so subscribers never observe an effect that is not yet
// durable. When fn reports no change the save and dispatch are skipped.
func (e *Engine) mutate(ctx context.Context, id string,
	fn func(r *Review, fsm *ReviewFSM) ([]ReviewOutboxEvent, bool, error),
) (*Review, error) {

	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.store.Load(ctx, id, "")
	if err != nil {
		return nil, err
	}

	fsm := NewReviewFSM(r)

	outbox, changed, err := fn(r, fsm)
	if err != nil {
		return nil, err
	}

	if !changed {
		return r, nil
	}

	r.Status = fsm.Status()

	if err := e.store.Save(ctx, r); err != nil {
		return nil, err
	}

	e.dispatch(ctx, r, outbox)

	return r, nil
}

// dispatch fans the outbox out to the event sink and activity recorder.
func (e *Engine) dispatch(ctx context.Context, r *Review,
	outbox []ReviewOutboxEvent,
) {
	for _, ev := range outbox {
		switch o := ev.(type) {
		case PublishStatusChanged:
			e.publish(r.ID, StatusChangedEvent{
				Status:         o.Next,
				PreviousStatus: o.Previous,
				PlanContent:    o.PlanContent,
			})

		case PublishVersionUpdated:
			resolved := o.ResolvedComments
			if resolved == nil {
				resolved = []ResolvedComment{}
			}
			e.publish(r.ID, VersionUpdatedEvent{
				Version: VersionInfo{
					Digest:      o.Version.Hash,
					CreatedAt:   o.Version.CreatedAt,
					Description: o.Version.Description,
					Author:      o.Version.Author,
				},
				Content:          o.Version.Content,
				ResolvedComments: resolved,
			})

		case PublishQuestionsUpdated:
			updates := make([]QuestionUpdate, 0, len(o.Questions))
			for _, q := range o.Questions {
				updates = append(updates, QuestionUpdate{
					CommentID: q.CommentID,
					Question:  q.Question,
				})
			}
			e.publish(r.ID, QuestionsUpdatedEvent{Questions: updates})

		case RecordActivity:
			if e.recorder == nil {
				continue
			}
			err := e.recorder.Record(ctx, r.ID, o.ActivityType, o.Description)
			if err != nil {
				// Audit failures must not fail the mutation.
				e.log.Warn("failed to record activity",
					"review_id", r.ID,
					"activity_type", o.ActivityType,
					"err", err)
			}
		}
	}
}

func (e *Engine) publish(reviewID string, ev Event) {
	if e.sink != nil {
		e.sink.Publish(reviewID, ev)
	}
}

// Create creates a new review in the open state and persists it.
func (e *Engine) Create(ctx context.Context, plan, projectPath string) (*Review, error) {
	if plan == "" {
		return nil, NewValidationError("plan content is required")
	}

	r := NewReview(plan, projectPath)

	if err := e.store.Save(ctx, r); err != nil {
		return nil, err
	}

	if e.recorder != nil {
		desc := fmt.Sprintf("Review created: %s", plandoc.Title(plan))
		if err := e.recorder.Record(ctx, r.ID, "review_created", desc); err != nil {
			e.log.Warn("failed to record activity",
				"review_id", r.ID, "err", err)
		}
	}

	e.log.Info("review created",
		"review_id", r.ID,
		"project_path", projectPath,
		"version", ShortHash(r.CurrentVersion))

	return r, nil
}

// Get fetches one review by ID.
func (e *Engine) Get(ctx context.Context, id, projectPath string) (*Review, error) {
	return e.store.Load(ctx, id, projectPath)
}

// Latest returns the most recently modified review for a project.
func (e *Engine) Latest(ctx context.Context, projectPath string) (*Review, error) {
	return e.store.Latest(ctx, projectPath)
}

// ListPending returns summaries of non-terminal reviews in one project
// partition, most recently modified first.
func (e *Engine) ListPending(ctx context.Context, projectPath string) ([]Summary, error) {
	reviews, err := e.store.ListPending(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(reviews))
	for _, r := range reviews {
		summaries = append(summaries, Summarize(r))
	}
	return summaries, nil
}

// Summarize builds the listing entry for a review.
func Summarize(r *Review) Summary {
	return Summary{
		ID:              r.ID,
		Status:          r.Status,
		Title:           plandoc.Title(r.PlanContent),
		CreatedAt:       r.CreatedAt,
		CommentCount:    len(r.Comments),
		UnresolvedCount: len(r.UnresolvedComments()),
		VersionCount:    len(r.DocumentVersions),
		ProjectPath:     r.ProjectPath,
	}
}

// AddComment attaches a new comment to the current document version.
// Comments may only be created while the review is human-mutable.
func (e *Engine) AddComment(ctx context.Context, id, quote, text string,
	pos TextPosition,
) (*Review, *Comment, error) {

	var created *Comment

	r, err := e.mutate(ctx, id, func(r *Review, _ *ReviewFSM) ([]ReviewOutboxEvent, bool, error) {
		if !r.Status.HumanMutable() {
			return nil, false, &InvalidTransitionError{
				From:   r.Status,
				Action: "add comment",
			}
		}
		if text == "" {
			return nil, false, NewValidationError("comment text is required")
		}
		if err := validatePosition(pos, r.PlanContent); err != nil {
			return nil, false, err
		}

		created = &Comment{
			ID:              uuid.New().String(),
			CreatedAt:       time.Now().UTC(),
			Quote:           quote,
			Text:            text,
			Position:        pos,
			DocumentVersion: r.CurrentVersion,
			PositionStatus:  PositionValid,
		}
		r.Comments = append(r.Comments, created)

		outbox := []ReviewOutboxEvent{RecordActivity{
			ActivityType: "comment_added",
			Description:  fmt.Sprintf("Comment added at [%d,%d)", pos.StartOffset, pos.EndOffset),
		}}
		return outbox, true, nil
	})
	if err != nil {
		return nil, nil, err
	}

	return r, created, nil
}

// UpdateComment edits the free-form text of an existing comment.
func (e *Engine) UpdateComment(ctx context.Context, id, commentID, text string) (*Review, error) {
	return e.mutate(ctx, id, func(r *Review, _ *ReviewFSM) ([]ReviewOutboxEvent, bool, error) {
		if !r.Status.HumanMutable() {
			return nil, false, &InvalidTransitionError{
				From:   r.Status,
				Action: "edit comment",
			}
		}
		if text == "" {
			return nil, false, NewValidationError("comment text is required")
		}

		c := r.CommentByID(commentID)
		if c == nil {
			return nil, false, ErrCommentNotFound
		}
		c.Text = text

		return nil, true, nil
	})
}

// DeleteComment removes a comment from the review.
func (e *Engine) DeleteComment(ctx context.Context, id, commentID string) (*Review, error) {
	return e.mutate(ctx, id, func(r *Review, _ *ReviewFSM) ([]ReviewOutboxEvent, bool, error) {
		if !r.Status.HumanMutable() {
			return nil, false, &InvalidTransitionError{
				From:   r.Status,
				Action: "delete comment",
			}
		}

		for i, c := range r.Comments {
			if c.ID == commentID {
				r.Comments = append(r.Comments[:i], r.Comments[i+1:]...)
				return nil, true, nil
			}
		}
		return nil, false, ErrCommentNotFound
	})
}

// UpdatePlan appends a new document version. Agent-authored revisions
// transition the review to updated and auto-resolve every still
// unresolved comment; human-authored versions (rollback) keep the
// status. Re-submitting the current content is a no-op that emits no
// event.
func (e *Engine) UpdatePlan(ctx context.Context, id, content string,
	author Author, description string, resolutions map[string]string,
) (*Review, error) {

	if content == "" {
		return nil, NewValidationError("plan content is required")
	}
	if author != AuthorHuman && author != AuthorAgent {
		return nil, NewValidationError("unknown author %q", author)
	}

	return e.mutate(ctx, id, func(r *Review, fsm *ReviewFSM) ([]ReviewOutboxEvent, bool, error) {
		digest := HashContent(content)
		if digest == r.CurrentVersion {
			// Duplicate of the current version: no new version, no
			// event.
			return nil, false, nil
		}

		version := &DocumentVersion{
			Hash:        digest,
			Content:     content,
			CreatedAt:   time.Now().UTC(),
			Description: description,
			Author:      author,
			ParentHash:  r.CurrentVersion,
		}

		var event ReviewEvent
		var resolved []ResolvedComment
		if author == AuthorAgent {
			for _, c := range r.UnresolvedComments() {
				resolution := DefaultResolutionMessage
				if msg, ok := resolutions[c.ID]; ok && msg != "" {
					resolution = msg
				}
				resolved = append(resolved, ResolvedComment{
					CommentID:  c.ID,
					Resolution: resolution,
				})
			}
			event = SubmitRevisionEvent{
				Version:          version,
				ResolvedComments: resolved,
			}
		} else {
			event = AppendVersionEvent{Version: version}
		}

		outbox, err := fsm.ProcessEvent(event)
		if err != nil {
			return nil, false, err
		}

		// The transition was accepted: apply the aggregate mutation.
		r.DocumentVersions = append(r.DocumentVersions, version)
		r.PlanContent = content
		r.CurrentVersion = digest

		if author == AuthorAgent {
			now := time.Now().UTC()
			for _, rc := range resolved {
				c := r.CommentByID(rc.CommentID)
				c.Resolved = true
				c.ResolvedAt = &now
				c.ResolvedInVersion = digest
				c.Resolution = rc.Resolution
			}
		}

		return outbox, true, nil
	})
}

// Rollback appends a new version whose content equals the target
// version's. History is never truncated; rolling back to the current
// version is a no-op.
func (e *Engine) Rollback(ctx context.Context, id, versionHash string) (*Review, error) {
	// Resolve the target content under the review lock via UpdatePlan's
	// load; a pre-read suffices here because rollback content is
	// re-validated against the loaded aggregate.
	r, err := e.store.Load(ctx, id, "")
	if err != nil {
		return nil, err
	}

	target := r.VersionByHash(versionHash)
	if target == nil {
		return nil, ErrVersionNotFound
	}

	description := fmt.Sprintf("Rollback to %s", ShortHash(versionHash))

	return e.UpdatePlan(ctx, id, target.Content, AuthorHuman, description, nil)
}

// Approve sets the terminal approved status from any non-terminal state.
func (e *Engine) Approve(ctx context.Context, id, note string) (*Review, error) {
	return e.mutate(ctx, id, func(r *Review, fsm *ReviewFSM) ([]ReviewOutboxEvent, bool, error) {
		previous := r.Status

		outbox, err := fsm.ProcessEvent(ApproveEvent{Note: note})
		if err != nil {
			return nil, false, err
		}

		r.ApprovalNote = note
		if previous == StatusOpen {
			r.ApprovedDirectly = true
		}

		return outbox, true, nil
	})
}

// RequestChanges transitions the review to changes_requested. At least
// one unresolved comment is required.
func (e *Engine) RequestChanges(ctx context.Context, id string) (*Review, error) {
	return e.mutate(ctx, id, func(r *Review, fsm *ReviewFSM) ([]ReviewOutboxEvent, bool, error) {
		outbox, err := fsm.ProcessEvent(SubmitFeedbackEvent{})
		if err != nil {
			return nil, false, err
		}
		return outbox, true, nil
	})
}

// AskQuestions attaches agent questions to the unresolved comments.
// Every unresolved comment must be covered; choice questions must carry
// options. Accepted-type questions resolve their comment immediately.
// Unless every question is accepted, the review enters discussing.
func (e *Engine) AskQuestions(ctx context.Context, id string,
	questions []QuestionInput,
) (*Review, error) {

	return e.mutate(ctx, id, func(r *Review, fsm *ReviewFSM) ([]ReviewOutboxEvent, bool, error) {
		if len(questions) == 0 {
			return nil, false, NewValidationError("at least one question is required")
		}

		byComment := make(map[string]CommentQuestion, len(questions))
		allAccepted := true
		for _, q := range questions {
			if !q.Question.Type.IsValid() {
				return nil, false, NewValidationError(
					"unknown question type %q", q.Question.Type,
				)
			}
			if q.Question.Type.RequiresOptions() && len(q.Question.Options) == 0 {
				return nil, false, NewValidationError(
					"question type %q requires options", q.Question.Type,
				)
			}
			if r.CommentByID(q.CommentID) == nil {
				return nil, false, ErrCommentNotFound
			}
			if q.Question.Type != QuestionAccepted {
				allAccepted = false
			}
			byComment[q.CommentID] = q.Question
		}

		// Full coverage: every unresolved comment needs a question.
		for _, c := range r.UnresolvedComments() {
			if _, ok := byComment[c.ID]; !ok {
				return nil, false, NewValidationError(
					"unresolved comment %s is not covered by questions", c.ID,
				)
			}
		}

		outbox, err := fsm.ProcessEvent(AskQuestionsEvent{
			Questions:   questions,
			AllAccepted: allAccepted,
		})
		if err != nil {
			return nil, false, err
		}

		now := time.Now().UTC()
		for _, q := range questions {
			c := r.CommentByID(q.CommentID)
			question := q.Question
			c.Question = &question

			if question.Type == QuestionAccepted && !c.Resolved {
				c.Resolved = true
				c.ResolvedAt = &now
				c.Resolution = AcceptedResolutionMessage
			}
		}

		return outbox, true, nil
	})
}

// Answer records the human's answer to a comment's question and
// publishes a questions_updated event so the blocked agent call and any
// browser tabs observe it. Answers are only accepted while the review is
// discussing; the status stays put and the agent decides the next
// transition.
func (e *Engine) Answer(ctx context.Context, id, commentID, answer string) (*Review, error) {
	return e.mutate(ctx, id, func(r *Review, _ *ReviewFSM) ([]ReviewOutboxEvent, bool, error) {
		if r.Status != StatusDiscussing {
			return nil, false, &InvalidTransitionError{
				From:   r.Status,
				Action: "answer question",
			}
		}
		if answer == "" {
			return nil, false, NewValidationError("answer is required")
		}

		c := r.CommentByID(commentID)
		if c == nil {
			return nil, false, ErrCommentNotFound
		}
		if c.Question == nil {
			return nil, false, NewValidationError(
				"comment %s has no question to answer", commentID,
			)
		}
		c.Answer = answer

		outbox := []ReviewOutboxEvent{
			PublishQuestionsUpdated{Questions: []QuestionInput{{
				CommentID: c.ID,
				Question:  *c.Question,
			}}},
			RecordActivity{
				ActivityType: "question_answered",
				Description:  fmt.Sprintf("Question on comment %s answered", ShortHash(c.ID)),
			},
		}
		return outbox, true, nil
	})
}

// DiffVersions computes the line diff between two versions of a review.
func (e *Engine) DiffVersions(ctx context.Context, id, from, to string) (Diff, error) {
	r, err := e.store.Load(ctx, id, "")
	if err != nil {
		return Diff{}, err
	}

	fromVersion := r.VersionByHash(from)
	if fromVersion == nil {
		return Diff{}, ErrVersionNotFound
	}
	toVersion := r.VersionByHash(to)
	if toVersion == nil {
		return Diff{}, ErrVersionNotFound
	}

	return DiffContents(fromVersion.Content, toVersion.Content), nil
}

// AllQuestionsAnswered reports whether every non-accepted question on
// the review has received an answer. Used as the resume predicate for
// the blocking ask_questions call.
func AllQuestionsAnswered(r *Review) bool {
	sawQuestion := false
	for _, c := range r.Comments {
		if c.Question == nil || c.Question.Type == QuestionAccepted {
			continue
		}
		sawQuestion = true
		if c.Answer == "" {
			return false
		}
	}
	return sawQuestion
}

// CollectAnswers gathers the answer tuples for every non-accepted
// question on the review, in comment insertion order. Accepted-type
// questions never solicit an answer, so an all-accepted set yields no
// tuples.
func CollectAnswers(r *Review) []QuestionAnswer {
	var out []QuestionAnswer
	for _, c := range r.Comments {
		if c.Question == nil || c.Question.Type == QuestionAccepted {
			continue
		}
		out = append(out, QuestionAnswer{
			CommentID: c.ID,
			Question:  *c.Question,
			Answer:    c.Answer,
		})
	}
	return out
}

// validatePosition checks that the anchor span lies within the document,
// measured in UTF-8 character offsets.
func validatePosition(pos TextPosition, content string) error {
	if pos.StartOffset < 0 {
		return NewValidationError("startOffset must not be negative")
	}
	if pos.EndOffset < pos.StartOffset {
		return NewValidationError("endOffset must not precede startOffset")
	}

	length := len([]rune(content))
	if pos.EndOffset > length {
		return NewValidationError(
			"endOffset %d exceeds document length %d",
			pos.EndOffset, length,
		)
	}
	return nil
}
