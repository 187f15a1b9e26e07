package models

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/geocapsule/internal/common"
)

// ValidationError reports bad input to NewGeoNote or ApplyUpdate. It is never
// retried. It matches common.ErrorValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return common.ErrorValidation }

// ImmutableFieldError reports an attempt to change a field that is fixed
// once a note exists.
type ImmutableFieldError struct {
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("field %s is immutable", e.Field)
}

// ErrInvalidTransition is returned when a sync state change is not allowed
// by the state machine.
var ErrInvalidTransition = errors.New("invalid sync state transition")

// TransitionError carries the rejected from/to pair.
type TransitionError struct {
	From, To SyncState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
