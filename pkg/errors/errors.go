// Package errors provides structured error types for flowgraph.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the library and the CLI
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// The taxonomy follows the four failure families of the graph engine:
//   - STRUCTURAL_ERROR: self loops, port direction violations, non-decision nodes
//   - CYCLE_ERROR: a cycle exists where an acyclic graph is required
//   - LAYOUT_PRECONDITION: layering was invoked on a graph that fails the bound check
//   - CASCADE_ERROR: a single cascade cleanup step failed
//
// plus generic INVALID_*, NOT_FOUND and INTERNAL_ERROR codes used at the
// import and CLI boundary.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeStructural, "edge %s connects %s to itself", id, node)
//	if errors.Is(err, errors.ErrCodeStructural) {
//	    // Handle structural error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeCascade, origErr, "remove edge %s", edgeID)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Graph engine errors
	ErrCodeStructural         Code = "STRUCTURAL_ERROR"
	ErrCodeCycle              Code = "CYCLE_ERROR"
	ErrCodeLayoutPrecondition Code = "LAYOUT_PRECONDITION"
	ErrCodeCascade            Code = "CASCADE_ERROR"

	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeInvalidNodeID Code = "INVALID_NODE_ID"
	ErrCodeInvalidPath   Code = "INVALID_PATH"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It walks the error chain and stops at the first *Error or the first error
// with a Code() method, such as [StepError].
func Is(err error, code Code) bool {
	c, ok := codeOf(err)
	return ok && c == code
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if nothing in the chain carries a code.
func GetCode(err error) Code {
	c, _ := codeOf(err)
	return c
}

type coder interface {
	Code() Code
}

func codeOf(err error) (Code, bool) {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Code, true
		case coder:
			return e.Code(), true
		}
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				if c, ok := codeOf(inner); ok {
					return c, true
				}
			}
			return "", false
		default:
			return "", false
		}
	}
	return "", false
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// StepError records the failure of one named step of a multi-step operation
// such as a cascade deletion. It always carries [ErrCodeCascade] semantics
// when produced by the cascade resolver.
type StepError struct {
	Step   string // Step name, e.g. "remove-edges"
	NodeID string // Node the step was processing (may be empty)
	Err    error  // Underlying failure
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("step %s (node %s): %v", e.Step, e.NodeID, e.Err)
	}
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error { return e.Err }

// Code returns the error code for this error type.
func (e *StepError) Code() Code {
	return ErrCodeCascade
}
