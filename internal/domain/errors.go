package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for control-surface failures.
var (
	ErrNotFound          = errors.New("requested battle not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("operation not allowed in current state")
	ErrAlreadyExists     = errors.New("battle already exists")
)

// ValidationError reports bad join or lobby input. It is raised before any
// request reaches a battle actor.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is lets callers match any validation failure with errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// StateTransitionError reports an operation that is not valid for the
// battle's current status. Retrying without a state change will fail again.
type StateTransitionError struct {
	Op     string
	Status Status
	Reason string
}

func (e *StateTransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s while %s", e.Op, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StateTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// NewStateTransitionError builds a StateTransitionError.
func NewStateTransitionError(op string, status Status, reason string) *StateTransitionError {
	return &StateTransitionError{Op: op, Status: status, Reason: reason}
}
