// Package review implements the plan review domain: the versioned plan
// document, inline comments with question threads, and the state machine
// that coordinates the human reviewer and the submitting agent.
package review

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a review.
type Status string

const (
	// StatusOpen indicates a newly created review awaiting human review.
	StatusOpen Status = "open"

	// StatusChangesRequested indicates the human submitted feedback and
	// the agent must act on it.
	StatusChangesRequested Status = "changes_requested"

	// StatusDiscussing indicates the agent posted questions and is
	// waiting for human answers.
	StatusDiscussing Status = "discussing"

	// StatusUpdated indicates the agent submitted a revised plan version
	// awaiting human review.
	StatusUpdated Status = "updated"

	// StatusApproved is the terminal state.
	StatusApproved Status = "approved"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusChangesRequested, StatusDiscussing,
		StatusUpdated, StatusApproved:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved
}

// HumanMutable returns true if the human may create, edit, or delete
// comments while the review is in this status.
func (s Status) HumanMutable() bool {
	return s == StatusOpen || s == StatusUpdated
}

// Author identifies who produced a document version.
type Author string

const (
	// AuthorHuman marks versions created by the reviewer (e.g. rollback).
	AuthorHuman Author = "human"

	// AuthorAgent marks versions submitted by the coding agent.
	AuthorAgent Author = "agent"
)

// PositionStatus tracks whether a comment's anchor still matches the
// current document version. Position migration across versions is not
// implemented; all positions remain valid. The field is serialized for
// forward compatibility.
type PositionStatus string

const (
	// PositionValid indicates the anchor refers to the version the
	// comment was created against.
	PositionValid PositionStatus = "valid"

	// PositionAdjusted indicates the anchor was re-mapped onto a newer
	// version.
	PositionAdjusted PositionStatus = "adjusted"

	// PositionStale indicates the anchored text no longer exists.
	PositionStale PositionStatus = "stale"
)

// QuestionType classifies an agent question attached to a comment.
type QuestionType string

const (
	// QuestionClarification asks for a free-form explanation.
	QuestionClarification QuestionType = "clarification"

	// QuestionChoice asks the human to pick one of the given options.
	QuestionChoice QuestionType = "choice"

	// QuestionMultiChoice asks the human to pick any of the options.
	QuestionMultiChoice QuestionType = "multiChoice"

	// QuestionAccepted is a terminal acknowledgement that immediately
	// resolves the comment without waiting for an answer.
	QuestionAccepted QuestionType = "accepted"
)

// IsValid returns true if the question type is a recognized value.
func (q QuestionType) IsValid() bool {
	switch q {
	case QuestionClarification, QuestionChoice, QuestionMultiChoice,
		QuestionAccepted:
		return true
	default:
		return false
	}
}

// RequiresOptions returns true if the question type needs an options list.
func (q QuestionType) RequiresOptions() bool {
	return q == QuestionChoice || q == QuestionMultiChoice
}

// DefaultResolutionMessage is attached to comments auto-resolved by an
// agent plan revision when the agent supplies no per-comment resolution.
const DefaultResolutionMessage = "已在修订版本中处理"

// AcceptedResolutionMessage is attached to comments resolved by an
// accepted-type question.
const AcceptedResolutionMessage = "已接受"

// TextPosition anchors a comment to a span of the plan document,
// expressed as UTF-8 character offsets into the version it was attached
// to.
type TextPosition struct {
	StartOffset int `json:"startOffset"`
	EndOffset   int `json:"endOffset"`
}

// CommentQuestion is an agent-originated follow-up attached to a comment.
type CommentQuestion struct {
	// Type classifies the question.
	Type QuestionType `json:"type"`

	// Message is the question text shown to the human.
	Message string `json:"message"`

	// Options holds the selectable answers for choice and multiChoice
	// questions.
	Options []string `json:"options,omitempty"`
}

// Comment is human feedback anchored to a text span of a specific
// document version.
type Comment struct {
	// ID is the unique comment identifier.
	ID string `json:"id"`

	// CreatedAt is when the comment was created.
	CreatedAt time.Time `json:"createdAt"`

	// Quote is the anchored text at creation time, for display only.
	Quote string `json:"quote"`

	// Text is the commenter's free-form feedback.
	Text string `json:"comment"`

	// Position is the anchor span in the attached document version.
	Position TextPosition `json:"position"`

	// OriginalPosition preserves the anchor as created, should position
	// migration ever adjust Position. Currently never set.
	OriginalPosition *TextPosition `json:"originalPosition,omitempty"`

	// DocumentVersion is the digest of the version the comment was
	// attached to.
	DocumentVersion string `json:"documentVersion"`

	// PositionStatus tracks anchor validity across versions.
	PositionStatus PositionStatus `json:"positionStatus"`

	// Question is the pending agent question, if any.
	Question *CommentQuestion `json:"question,omitempty"`

	// Answer is the human's answer to the question, if given.
	Answer string `json:"answer,omitempty"`

	// Resolved indicates the comment has been addressed.
	Resolved bool `json:"resolved"`

	// ResolvedAt is when the comment was resolved.
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`

	// ResolvedInVersion is the digest of the version that addressed the
	// comment.
	ResolvedInVersion string `json:"resolvedInVersion,omitempty"`

	// Resolution explains how the comment was addressed.
	Resolution string `json:"resolution,omitempty"`
}

// DocumentVersion is an immutable snapshot of the plan content identified
// by its SHA-256 digest. Versions are append-only.
type DocumentVersion struct {
	// Hash is the SHA-256 hex digest of the UTF-8 content bytes.
	Hash string `json:"versionHash"`

	// Content is the full plan text of this version.
	Content string `json:"content"`

	// CreatedAt is when the version was appended.
	CreatedAt time.Time `json:"createdAt"`

	// Description optionally explains what changed.
	Description string `json:"changeDescription,omitempty"`

	// Author identifies who produced the version.
	Author Author `json:"author"`

	// ParentHash is the digest of the preceding version, if any.
	ParentHash string `json:"parentVersion,omitempty"`
}

// Review is the aggregate root: a single human-review session over an
// evolving plan document.
type Review struct {
	// ID is the unique review identifier.
	ID string `json:"id"`

	// CreatedAt is when the review was created.
	CreatedAt time.Time `json:"createdAt"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// PlanContent is the materialized current version's content.
	PlanContent string `json:"planContent"`

	// Comments is the ordered list of comments, insertion order.
	Comments []*Comment `json:"comments"`

	// DocumentVersions is the ordered, append-only version history.
	DocumentVersions []*DocumentVersion `json:"documentVersions"`

	// CurrentVersion is the digest of the current document version.
	CurrentVersion string `json:"currentVersion"`

	// ProjectPath partitions persistence and listing by the agent host's
	// working directory. Optional.
	ProjectPath string `json:"projectPath,omitempty"`

	// ApprovedDirectly marks reviews approved straight from open without
	// a revision cycle.
	ApprovedDirectly bool `json:"approvedDirectly,omitempty"`

	// ApprovalNote is the optional reviewer note given on approval.
	ApprovalNote string `json:"approvalNote,omitempty"`
}

// HashContent returns the SHA-256 hex digest of the UTF-8 bytes of
// content. This is the content address of a document version.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns an abbreviated digest suitable for descriptions.
func ShortHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8]
}

// NewReview creates a review in the open state with the given plan as
// its first document version.
func NewReview(plan, projectPath string) *Review {
	now := time.Now().UTC()
	digest := HashContent(plan)

	return &Review{
		ID:          uuid.New().String(),
		CreatedAt:   now,
		Status:      StatusOpen,
		PlanContent: plan,
		DocumentVersions: []*DocumentVersion{{
			Hash:      digest,
			Content:   plan,
			CreatedAt: now,
			Author:    AuthorAgent,
		}},
		CurrentVersion: digest,
		ProjectPath:    projectPath,
	}
}

// VersionByHash returns the first version with the given digest, or nil.
func (r *Review) VersionByHash(hash string) *DocumentVersion {
	for _, v := range r.DocumentVersions {
		if v.Hash == hash {
			return v
		}
	}
	return nil
}

// CommentByID returns the comment with the given ID, or nil.
func (r *Review) CommentByID(id string) *Comment {
	for _, c := range r.Comments {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// UnresolvedComments returns all comments not yet resolved, in insertion
// order.
func (r *Review) UnresolvedComments() []*Comment {
	var out []*Comment
	for _, c := range r.Comments {
		if !c.Resolved {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy of the review. Reads outside the engine's
// critical section operate on snapshots so callers never observe a
// half-applied mutation.
func (r *Review) Clone() *Review {
	if r == nil {
		return nil
	}

	cp := *r

	cp.Comments = make([]*Comment, len(r.Comments))
	for i, c := range r.Comments {
		cc := *c
		if c.OriginalPosition != nil {
			pos := *c.OriginalPosition
			cc.OriginalPosition = &pos
		}
		if c.Question != nil {
			q := *c.Question
			q.Options = append([]string(nil), c.Question.Options...)
			cc.Question = &q
		}
		if c.ResolvedAt != nil {
			t := *c.ResolvedAt
			cc.ResolvedAt = &t
		}
		cp.Comments[i] = &cc
	}

	cp.DocumentVersions = make([]*DocumentVersion, len(r.DocumentVersions))
	for i, v := range r.DocumentVersions {
		vc := *v
		cp.DocumentVersions[i] = &vc
	}

	return &cp
}
