package errors

import (
	"fmt"
)

// FlintError is the structured error type for the sync engine.
// It provides rich context for error handling, logging, and user presentation.
type FlintError struct {
	// Code is the unique error code (e.g., "ERR_301_CONFLICT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Sync, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *FlintError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *FlintError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with FlintError.
func (e *FlintError) Is(target error) bool {
	if t, ok := target.(*FlintError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *FlintError) WithDetail(key, value string) *FlintError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new FlintError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *FlintError {
	return &FlintError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a FlintError from an existing error.
// The error's message becomes the FlintError message.
func Wrap(code string, err error) *FlintError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Conflict creates an optimistic-concurrency conflict error for a note.
// The caller must re-read the record and retry, or prompt the user.
func Conflict(noteID string) *FlintError {
	return New(ErrCodeConflict, "note content changed since last read", nil).
		WithDetail("note_id", noteID)
}

// WriteFailure creates an error for a disk write that exhausted its retries.
// Non-fatal: the record store remains authoritative for reads.
func WriteFailure(path string, cause error) *FlintError {
	return New(ErrCodeWriteFailed, "disk write failed after retries", cause).
		WithDetail("path", path)
}

// WatchDegraded creates an error reporting that OS file watching is
// unavailable and external edits will go undetected.
func WatchDegraded(cause error) *FlintError {
	return New(ErrCodeWatchDegraded, "file watch unavailable, running degraded", cause)
}

// PathResolution creates an error for a path that cannot be normalized.
// Events for such paths are dropped, never silently misattributed.
func PathResolution(path string, cause error) *FlintError {
	return New(ErrCodeInvalidPath, "cannot resolve path", cause).
		WithDetail("path", path)
}

// NoteNotFound creates an error for a lookup of an unknown note id.
func NoteNotFound(noteID string) *FlintError {
	return New(ErrCodeNoteNotFound, "no record for note", nil).
		WithDetail("note_id", noteID)
}

// IsConflict checks if an error is an optimistic-concurrency conflict.
func IsConflict(err error) bool {
	return GetCode(err) == ErrCodeConflict
}

// IsNotFound checks if an error is a missing-note lookup failure.
func IsNotFound(err error) bool {
	return GetCode(err) == ErrCodeNoteNotFound
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a FlintError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if fe, ok := err.(*FlintError); ok {
		return fe.Retryable
	}
	return false
}

// GetCode extracts the error code from a FlintError.
// Returns empty string if not a FlintError.
func GetCode(err error) string {
	if fe, ok := err.(*FlintError); ok {
		return fe.Code
	}
	return ""
}

// GetCategory extracts the category from a FlintError.
// Returns empty string if not a FlintError.
func GetCategory(err error) Category {
	if fe, ok := err.(*FlintError); ok {
		return fe.Category
	}
	return ""
}
