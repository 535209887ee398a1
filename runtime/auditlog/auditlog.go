// Package auditlog defines an append-only compliance trail of everything a
// session does: reasoning steps, tool actions, and department
// notifications. It is a durable complement to state.Session's in-memory
// ReasoningSteps/ActionsTaken/NotificationsSent slices, which live and die
// with the session and are replaced wholesale on each Put. Grounded
// on runtime/agent/runlog.{Event,Page,Store}.
package auditlog

import (
	"context"
	"encoding/json"
	"time"
)

// EntryKind distinguishes what a log entry records.
type EntryKind string

const (
	// KindReasoningStep mirrors one state.ReasoningStep.
	KindReasoningStep EntryKind = "reasoning_step"
	// KindActionTaken mirrors one state.ActionTaken.
	KindActionTaken EntryKind = "action_taken"
	// KindNotificationSent mirrors one state.NotificationSent.
	KindNotificationSent EntryKind = "notification_sent"
)

type (
	// Entry is a single immutable audit record appended to the log.
	//
	// Store implementations assign ID when persisting. IDs are opaque,
	// monotonically ordered within a session, and suitable for
	// cursor-based pagination.
	Entry struct {
		// ID is the store-assigned opaque identifier for this entry.
		ID string
		// SessionID is the session this entry belongs to.
		SessionID string
		// Kind identifies which part of the session state this entry
		// mirrors.
		Kind EntryKind
		// Payload is the canonical JSON-encoded record (a
		// state.ReasoningStep, state.ActionTaken, or
		// state.NotificationSent).
		Payload json.RawMessage
		// Timestamp is the entry time.
		Timestamp time.Time
	}

	// Page is a forward page of audit entries.
	Page struct {
		// Entries are ordered oldest-first.
		Entries []*Entry
		// NextCursor is the cursor to use to fetch the next page. Empty
		// when there are no further entries.
		NextCursor string
	}

	// Store is an append-only audit log, durable beyond a session's
	// lifetime in a session.Store (§3 "append-only" invariant).
	//
	// Implementations must provide stable ordering within a session.
	// Cursor values are store-owned and opaque to callers.
	Store interface {
		// Append stores the entry in the log. Implementations assign
		// the entry ID and persist the payload verbatim.
		Append(ctx context.Context, e *Entry) error

		// List returns the next forward page of entries for the given
		// session ID. Cursor is an opaque value returned by a previous
		// call to List, or empty to start from the beginning. Limit
		// must be greater than zero.
		List(ctx context.Context, sessionID string, cursor string, limit int) (Page, error)
	}
)
