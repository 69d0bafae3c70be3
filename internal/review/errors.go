package review

import (
	"errors"
	"fmt"
)

var (
	// ErrReviewNotFound is returned when no review exists for the given
	// ID.
	ErrReviewNotFound = errors.New("review not found")

	// ErrCommentNotFound is returned when a comment ID does not exist on
	// the review.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrVersionNotFound is returned when a version digest is unknown to
	// the review.
	ErrVersionNotFound = errors.New("version not found")
)

// ValidationError indicates malformed or incomplete input: missing
// required fields, out-of-range offsets, or missing question coverage.
type ValidationError struct {
	Reason string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// NewValidationError creates a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError indicates a state-machine rejection: the
// attempted action has no edge from the review's current status.
type InvalidTransitionError struct {
	From   Status
	Action string
}

// Error returns the error message.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s from state %s",
		e.Action, e.From)
}

// StoreError wraps a persistence failure surfaced by the content store.
type StoreError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

// Unwrap returns the wrapped error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing review,
// comment, or version.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrReviewNotFound) ||
		errors.Is(err, ErrCommentNotFound) ||
		errors.Is(err, ErrVersionNotFound)
}

// IsValidation returns true if the error is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvalidTransition returns true if the error is an
// InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

// IsStoreError returns true if the error is a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
