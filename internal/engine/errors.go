package engine

import (
	"errors"
	"fmt"
)

// ReferenceError reports a malformed or unresolved data source
// reference: a ref that is neither the original dataset nor a known
// step, a step that is gone or inactive, or a target without a
// materialized result. Dangling references left behind by a deleted
// step surface here at next use and are never auto-repaired.
type ReferenceError struct {
	Ref    string
	Reason string
}

func (e *ReferenceError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("reference error: %s", e.Reason)
	}
	return fmt.Sprintf("reference error: %s: %s", e.Ref, e.Reason)
}

func referencef(ref, format string, args ...interface{}) *ReferenceError {
	return &ReferenceError{Ref: ref, Reason: fmt.Sprintf(format, args...)}
}

// ValidationError reports a type-specific config rejection: unknown
// column, unknown subject, duplicate name, out-of-range parameter, or
// malformed operand shape. Validation runs before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func validationf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ComputationError reports a failure while applying a step, wrapped
// with step context.
type ComputationError struct {
	StepOrder int
	StepName  string
	Err       error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation error: step %d (%s): %v", e.StepOrder, e.StepName, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

func computation(step *Step, err error) *ComputationError {
	return &ComputationError{StepOrder: step.Order, StepName: step.Name, Err: err}
}

func IsReference(err error) bool {
	var re *ReferenceError
	return errors.As(err, &re)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsComputation(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}
