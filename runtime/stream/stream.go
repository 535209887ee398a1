// Package stream defines the SSE event contract (§6): node_update,
// complete, and error frame shapes delivered to clients as the agent graph
// executes a turn. Grounded on runtime/agent/stream.{Event,Sink,Base}
// (teacher), trimmed from that package's full multi-agent
// tool-call-hierarchy event set (planner thoughts, tool deltas, child-run
// links, await_* events) down to the three frame kinds spec.md §6 names,
// since this spec has no nested agent runs or operator-authorization
// workflow.
package stream

import (
	"context"

	"goa.design/apron-incident/runtime/state"
)

// EventType enumerates the SSE frame kinds (§6).
type EventType string

const (
	// EventNodeUpdate is emitted after every agent-graph node execution.
	EventNodeUpdate EventType = "node_update"
	// EventComplete is emitted once, when a turn reaches a final answer.
	EventComplete EventType = "complete"
	// EventError is emitted when a turn cannot proceed (parse failure the
	// reasoning node could not recover from, recursion-limit abort, a
	// session-store error).
	EventError EventType = "error"
)

// Event is one SSE frame. Implementations are immutable after construction
// and safe to send concurrently (§6 "SSE streaming").
type Event interface {
	// Type returns the frame kind.
	Type() EventType
	// SessionID returns the session this event belongs to.
	SessionID() string
	// Payload returns the event-specific, JSON-serializable data.
	Payload() any
}

// Sink delivers events to a transport (SSE response writer, Pulse stream).
// Implementations must be safe for concurrent Send calls, since a single
// turn's node_update events and another session's events may interleave
// on a shared sink (§5 "multiple sessions run concurrently").
type Sink interface {
	// Send publishes event. Returns an error if delivery fails.
	Send(ctx context.Context, event Event) error
	// Close releases resources owned by the sink. Idempotent.
	Close(ctx context.Context) error
}

// Base provides the common Event implementation embedded in every concrete
// event type, mirroring the teacher's Base but narrowed to SessionID (no
// RunID: a turn has no separate run identity here).
type Base struct {
	t EventType
	s string
	p any
}

// NewBase constructs a Base event envelope.
func NewBase(t EventType, sessionID string, payload any) Base {
	return Base{t: t, s: sessionID, p: payload}
}

// Type implements Event.
func (b Base) Type() EventType { return b.t }

// SessionID implements Event.
func (b Base) SessionID() string { return b.s }

// Payload implements Event.
func (b Base) Payload() any { return b.p }

// NodeUpdatePayload is the wire payload for a node_update frame.
type NodeUpdatePayload struct {
	Node         string `json:"node"`
	FSMState     string `json:"fsm_state"`
	IsComplete   bool   `json:"is_complete"`
	AwaitingUser bool   `json:"awaiting_user"`
}

// NodeUpdate streams one agent-graph node execution.
type NodeUpdate struct {
	Base
	Data NodeUpdatePayload
}

// NewNodeUpdate constructs a node_update event from the node name and the
// session state it produced.
func NewNodeUpdate(node string, sess *state.Session) NodeUpdate {
	data := NodeUpdatePayload{
		Node:         node,
		FSMState:     sess.FSMState,
		IsComplete:   sess.IsComplete,
		AwaitingUser: sess.AwaitingUser,
	}
	return NodeUpdate{Base: NewBase(EventNodeUpdate, sess.SessionID, data), Data: data}
}

// CompletePayload is the wire payload for a complete frame.
type CompletePayload struct {
	FinalAnswer string        `json:"final_answer"`
	Report      *state.Report `json:"report,omitempty"`
}

// Complete streams the terminal answer and structured report for a turn.
type Complete struct {
	Base
	Data CompletePayload
}

// NewComplete constructs a complete event from the session's final state.
func NewComplete(sess *state.Session) Complete {
	data := CompletePayload{FinalAnswer: sess.FinalAnswer, Report: sess.FinalReport}
	return Complete{Base: NewBase(EventComplete, sess.SessionID, data), Data: data}
}

// ErrorPayload is the wire payload for an error frame.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ErrorEvent streams a turn-level failure.
type ErrorEvent struct {
	Base
	Data ErrorPayload
}

// NewError constructs an error event.
func NewError(sessionID, message string) ErrorEvent {
	data := ErrorPayload{Message: message}
	return ErrorEvent{Base: NewBase(EventError, sessionID, data), Data: data}
}
