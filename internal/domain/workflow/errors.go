package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrWorkflowNotFound         = errors.New("workflow: workflow not found")
	ErrWorkflowDisabled         = errors.New("workflow: workflow is disabled")
	ErrWorkflowInvalidTenant    = errors.New("workflow: invalid tenant ID")
	ErrWorkflowNoEnabledSources = errors.New("workflow: no enabled sources")

	ErrExecutionNotFound       = errors.New("workflow: execution not found")
	ErrExecutionNotCancellable = errors.New("workflow: execution is not in a cancellable state")
	ErrExecutionAlreadyClaimed = errors.New("workflow: execution is not pending or tenant already has a running execution")
	ErrExecutionDuplicate      = errors.New("workflow: execution already exists for this schedule")
)

// ValidationError is a bad input, such as a malformed or future date.
// It is recorded and the affected unit is skipped without retry.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a validation error for field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// PersistenceError wraps a failure to store fetched records
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ReconciliationError wraps a failure to reconcile a day
type ReconciliationError struct {
	Date string
	Err  error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.Date, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// AggregationError wraps a failure to aggregate a day into campaign rows
type AggregationError struct {
	Date string
	Err  error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s: %v", e.Date, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// SystemError is an unclassified failure; it aborts the whole execution
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("system error: %v", e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
