package review

import "time"

// Event is the sealed interface for notifications published on the event
// bus and delivered to stream subscribers. Each event knows its wire
// type tag.
type Event interface {
	// EventType returns the wire type tag of the event frame.
	EventType() string

	// isEvent seals the interface.
	isEvent()
}

// Ensure all event types implement Event.
func (StatusChangedEvent) isEvent()    {}
func (VersionUpdatedEvent) isEvent()   {}
func (QuestionsUpdatedEvent) isEvent() {}
func (HeartbeatEvent) isEvent()        {}
func (ConnectedEvent) isEvent()        {}

// StatusChangedEvent announces a review status transition.
type StatusChangedEvent struct {
	Status         Status `json:"status"`
	PreviousStatus Status `json:"previousStatus"`

	// PlanContent is populated only when the new status is approved.
	PlanContent string `json:"planContent,omitempty"`
}

// EventType implements Event.
func (StatusChangedEvent) EventType() string { return "status_changed" }

// VersionInfo is the metadata of a document version carried in events,
// without the full content duplicated.
type VersionInfo struct {
	Digest      string    `json:"digest"`
	CreatedAt   time.Time `json:"createdAt"`
	Description string    `json:"description,omitempty"`
	Author      Author    `json:"author"`
}

// VersionUpdatedEvent announces a new document version. ResolvedComments
// contains exactly the comments whose resolved flag flipped from false
// to true in this transition.
type VersionUpdatedEvent struct {
	Version          VersionInfo       `json:"version"`
	Content          string            `json:"content"`
	ResolvedComments []ResolvedComment `json:"resolvedComments"`
}

// EventType implements Event.
func (VersionUpdatedEvent) EventType() string { return "version_updated" }

// QuestionUpdate pairs a comment ID with its current question state.
type QuestionUpdate struct {
	CommentID string          `json:"commentId"`
	Question  CommentQuestion `json:"question"`
}

// QuestionsUpdatedEvent announces posted or answered questions.
type QuestionsUpdatedEvent struct {
	Questions []QuestionUpdate `json:"questions"`
}

// EventType implements Event.
func (QuestionsUpdatedEvent) EventType() string { return "questions_updated" }

// HeartbeatEvent keeps stream connections alive. It is emitted by the
// subscriber gateway on a fixed cadence, not by state changes.
type HeartbeatEvent struct {
	Timestamp int64 `json:"timestamp"`
}

// EventType implements Event.
func (HeartbeatEvent) EventType() string { return "heartbeat" }

// ConnectedEvent is the first frame of every stream connection, carrying
// the full review snapshot as the subscriber's bootstrap.
type ConnectedEvent struct {
	Review *Review `json:"review"`
}

// EventType implements Event.
func (ConnectedEvent) EventType() string { return "connected" }
