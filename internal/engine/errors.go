package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error that ended a run.
//
// Per-record failures never produce a RuntimeError; they are logged and
// counted in the Summary. A RuntimeError is returned only when:
//   - the run parameters are invalid (nothing was read or written)
//   - the matching records could not be counted or paged
//   - the run was interrupted through its context
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidConfig indicates the run parameters were rejected before
	// any I/O.
	ErrCodeInvalidConfig RuntimeErrorCode = "INVALID_CONFIG"

	// ErrCodeStoreUnavailable indicates the record set could not be counted or
	// paged.
	ErrCodeStoreUnavailable RuntimeErrorCode = "STORE_UNAVAILABLE"

	// ErrCodeInterrupted indicates the run stopped on context cancellation.
	ErrCodeInterrupted RuntimeErrorCode = "INTERRUPTED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RunID != "" {
		msg += fmt.Sprintf(" (run=%s)", e.RunID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsConfigError returns true if the error is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	return hasCode(err, ErrCodeInvalidConfig)
}

// IsInterrupted returns true if the run was interrupted.
func IsInterrupted(err error) bool {
	return hasCode(err, ErrCodeInterrupted)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewConfigError creates a RuntimeError for rejected run parameters.
func NewConfigError(runID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidConfig,
		Message: "invalid run parameters",
		RunID:   runID,
		Err:     err,
	}
}

// NewStoreError creates a RuntimeError for a failed count or page query.
func NewStoreError(runID, op string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeStoreUnavailable,
		Message: op + " failed",
		RunID:   runID,
		Err:     err,
	}
}

// NewInterruptedError creates a RuntimeError for a cancelled run.
func NewInterruptedError(runID string, processed, total int, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInterrupted,
		Message: fmt.Sprintf("run interrupted after %d of %d records", processed, total),
		RunID:   runID,
		Err:     cause,
	}
}
