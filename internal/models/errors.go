package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for merge preconditions. Each precondition is a
// distinct rejection so callers can report the exact cause.
var (
	ErrSubChatResolved  = errors.New("sub-chat already resolved")
	ErrSubChatCancelled = errors.New("sub-chat is cancelled")
	ErrEmptyTranscript  = errors.New("EMPTY_TRANSCRIPT: sub-chat has no messages")
)

// ValidationError indicates malformed input, rejected before any side
// effect takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError indicates a missing conversation, sub-chat or message.
// It is surfaced to the caller with no state change.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
