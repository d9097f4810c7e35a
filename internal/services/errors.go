package services

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/classflow/live-session-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrValidationFailed = errors.New("validation failed")

	// Session specific errors
	ErrSessionNotFound          = errors.New("session not found")
	ErrSessionNotOwned          = errors.New("actor is not the owning teacher of this session")
	ErrSessionNotWritable       = errors.New("session is no longer accepting student writes")
	ErrSessionInvalidTransition = errors.New("invalid session status transition")

	// Presentation / navigation errors
	ErrPresentationNotFound = errors.New("no live presentation for this session")
	ErrSlideOutOfRange      = errors.New("navigation target outside slide bounds")
	ErrCheckpointBlocked    = errors.New("held at checkpoint until the teacher reaches it")

	// Activity / completion errors
	ErrActivityNotFound   = errors.New("activity not found")
	ErrSlideNotFound      = errors.New("slide not found")
	ErrCompletionNotFound = errors.New("completion record not found")
	ErrActivityNotLocked  = errors.New("activity is not locked for this student")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// ActivityLockedError rejects a write against a locked completion. It carries the
// lock timestamp so the client can show the specific "completed and locked" notice.
type ActivityLockedError struct {
	ActivityID       uint      `json:"activity_id"`
	StudentAccountID string    `json:"student_account_id"`
	LockedAt         time.Time `json:"locked_at"`
}

func (e *ActivityLockedError) Error() string {
	return fmt.Sprintf("activity %d is completed and locked for student %s since %s",
		e.ActivityID, e.StudentAccountID, e.LockedAt.Format(time.RFC3339))
}

type PermissionError struct {
	UserID   string `json:"user_id"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s - %s",
		pe.UserID, pe.Action, pe.Resource, pe.Reason)
}

func NewPermissionError(userID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:   userID,
		Resource: resource,
		Action:   action,
		Reason:   reason,
	}
}

// ===== ERROR HELPERS =====

// IsNotFound checks if error represents a "not found" condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrPresentationNotFound) ||
		errors.Is(err, ErrActivityNotFound) ||
		errors.Is(err, ErrSlideNotFound) ||
		errors.Is(err, ErrCompletionNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrSessionNotOwned) {
		return true
	}
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsOutOfRange checks if error represents a navigation bounds failure.
func IsOutOfRange(err error) bool {
	return errors.Is(err, ErrSlideOutOfRange)
}

// IsActivityLocked checks if error represents a write against a locked completion.
func IsActivityLocked(err error) (*ActivityLockedError, bool) {
	var le *ActivityLockedError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// IsValidation checks if error represents a validation failure.
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}
