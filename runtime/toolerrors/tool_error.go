// Package toolerrors provides the structured error type tools and engine
// nodes use instead of panicking or returning bare errors. A ToolError
// preserves a message and an optional cause chain and records whether the
// failure is worth retrying.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError represents a structured tool or node failure. Errors are never
// allowed to propagate out of Tool.Execute as a panic or bare error; they are
// wrapped here so the reasoning node can turn them into an observation
// string for the LLM.
type ToolError struct {
	// Message is the human-readable summary shown to the LLM as an
	// observation.
	Message string
	// Cause links to the underlying error, preserving errors.Is/As support.
	Cause *ToolError
	// Retryable marks transient failures (LLM/tool I/O) as distinct from
	// non-retryable ones (input validation, FSM precondition). It records
	// the classification only: no engine component retries a ToolError or
	// applies backoff based on it.
	Retryable bool
}

// New constructs a non-retryable ToolError with the given message.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewRetryable constructs a ToolError with Retryable set.
func NewRetryable(message string) *ToolError {
	e := New(message)
	e.Retryable = true
	return e
}

// NewWithCause constructs a ToolError wrapping an underlying error.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into a ToolError chain, unwrapping
// one level at a time so errors.Is/As keep working across the boundary.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats a message and returns it as a ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap supports errors.Is/As against the cause chain.
func (e *ToolError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Observation renders the error as the plain-text observation string the
// reasoning node shows the LLM on the next turn (§7 propagation policy).
func (e *ToolError) Observation() string {
	if e == nil {
		return ""
	}
	return e.Message
}
