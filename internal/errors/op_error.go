// Package errors provides standardized error types for compilation passes and
// the vectorized runtime. OpError carries the failing operation, the operator
// kind and, where available, the column it refers to.
package errors

import (
	"errors"
	"fmt"
)

// OpError represents standardized errors across passes, kernels and the runtime
type OpError struct {
	Op      string // Operation or pass name (e.g., "SelectionPushdown", "Execute")
	Kind    string // Operator kind if applicable (e.g., "FilterRow")
	Column  string // Column name if applicable
	Message string // Human-readable error description
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *OpError) Error() string {
	subject := e.Op
	if e.Kind != "" {
		subject = fmt.Sprintf("%s on %s", e.Op, e.Kind)
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Column != "" {
		return fmt.Sprintf("%s failed on column '%s': %s", subject, e.Column, msg)
	}
	return fmt.Sprintf("%s failed: %s", subject, msg)
}

// Unwrap returns the underlying cause for error wrapping support
func (e *OpError) Unwrap() error {
	return e.Cause
}

// Is implements error equality checking for errors.Is()
func (e *OpError) Is(target error) bool {
	var oe *OpError
	if errors.As(target, &oe) {
		return e.Op == oe.Op && e.Kind == oe.Kind && e.Column == oe.Column && e.Message == oe.Message
	}
	return false
}

// NewColumnNotFoundError creates an error for predicates referencing a column
// that no input frame provides.
func NewColumnNotFoundError(op, kind, column string) *OpError {
	return &OpError{
		Op:      op,
		Kind:    kind,
		Column:  column,
		Message: "column not found in any input frame",
	}
}

// NewMalformedPredicateError creates an error for predicate chains with an
// unexpected shape.
func NewMalformedPredicateError(op, kind, message string) *OpError {
	return &OpError{
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// NewInvalidInputError creates an error for invalid operation inputs
func NewInvalidInputError(op, message string) *OpError {
	return &OpError{
		Op:      op,
		Message: message,
	}
}

// NewUnsupportedTypeError creates an error for unsupported operand representations
func NewUnsupportedTypeError(op, typeName string) *OpError {
	return &OpError{
		Op:      op,
		Message: fmt.Sprintf("unsupported type: %s", typeName),
	}
}

// NewInternalError creates an error for internal operation failures
func NewInternalError(op string, cause error) *OpError {
	return &OpError{
		Op:      op,
		Message: "internal error occurred",
		Cause:   cause,
	}
}

// NewResourceError creates an error for failed resource acquisition
// (worker start-up, remote calls).
func NewResourceError(op, message string, cause error) *OpError {
	return &OpError{
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// Predefined error variables for common cases
var (
	// ErrQueueClosed indicates an enqueue after the queue input was closed
	ErrQueueClosed = &OpError{
		Op:      "enqueue",
		Message: "task queue input is closed",
	}

	// ErrNotConverged indicates a rewrite engine that exceeded its iteration budget
	ErrNotConverged = &OpError{
		Op:      "rewrite",
		Message: "rewrite did not reach a fixed point",
	}

	// ErrShapeMismatch indicates operands whose shapes do not line up
	ErrShapeMismatch = &OpError{
		Op:      "validation",
		Message: "operand shapes do not match",
	}
)
