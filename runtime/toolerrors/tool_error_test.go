package toolerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsMessageWhenEmpty(t *testing.T) {
	e := New("")
	assert.Equal(t, "tool error", e.Message)
	assert.False(t, e.Retryable)
}

func TestNewRetryableMarksRetryable(t *testing.T) {
	e := NewRetryable("llm timeout")
	assert.True(t, e.Retryable)
	assert.Equal(t, "llm timeout", e.Error())
}

func TestNewWithCauseWrapsUnderlyingError(t *testing.T) {
	cause := errors.New("connection reset")
	e := NewWithCause("tool call failed", cause)
	assert.Equal(t, "tool call failed", e.Message)
	assert.Equal(t, "connection reset", e.Cause.Message)
}

func TestNewWithCauseFallsBackToCauseMessage(t *testing.T) {
	cause := errors.New("boom")
	e := NewWithCause("", cause)
	assert.Equal(t, "boom", e.Message)
}

func TestFromErrorReturnsNilForNil(t *testing.T) {
	assert.Nil(t, FromError(nil))
}

func TestFromErrorPreservesExistingToolError(t *testing.T) {
	original := New("already structured")
	assert.Same(t, original, FromError(original))
}

func TestFromErrorUnwrapsPlainErrorChain(t *testing.T) {
	inner := errors.New("root cause")
	wrapped := errors.Join(errors.New("wrapper"), inner)
	te := FromError(wrapped)
	assert.Equal(t, wrapped.Error(), te.Message)
}

func TestErrorsIsTraversesCauseChain(t *testing.T) {
	sentinel := New("rate limited")
	e := NewWithCause("model call failed", sentinel)
	assert.True(t, errors.Is(e, sentinel))
}

func TestObservationMatchesErrorString(t *testing.T) {
	e := Errorf("field %q missing", "flight_no")
	assert.Equal(t, e.Error(), e.Observation())
	assert.Equal(t, `field "flight_no" missing`, e.Observation())
}

func TestNilToolErrorMethodsAreSafe(t *testing.T) {
	var e *ToolError
	assert.Equal(t, "", e.Error())
	assert.Equal(t, "", e.Observation())
	assert.Nil(t, e.Unwrap())
}
