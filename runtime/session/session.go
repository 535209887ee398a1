// Package session defines the session store contract (§5): per-session
// exclusive ownership between a turn's open and close, with get/put/delete
// for the session value and lock/unlock for serializing concurrent turns
// against the same session. Grounded on
// runtime/agent/session.Store's interface shape (explicit lifecycle,
// durable errors, idempotent terminal operations), adapted from that
// package's session-lifecycle/run-metadata split to this spec's single
// mutable incident-session value, since there is no separate run-metadata
// concept here.
package session

import (
	"context"
	"errors"
	"time"

	"goa.design/apron-incident/runtime/state"
)

// Errors returned by every Store implementation.
var (
	// ErrNotFound indicates the session does not exist in the store.
	ErrNotFound = errors.New("session: not found")
	// ErrAlreadyLocked indicates another turn currently holds the lock.
	ErrAlreadyLocked = errors.New("session: already locked")
	// ErrLockExpired indicates the caller's lock token is stale (the lease
	// expired and was taken by another turn) when Put is called.
	ErrLockExpired = errors.New("session: lock expired")
)

// DefaultLockTTL bounds how long a lock may be held before its lease
// expires, guarding against a crashed turn holding a session forever (§5
// "cancellation must discard in-flight mutations on turn cancellation").
const DefaultLockTTL = 30 * time.Second

// Store persists session state and serializes concurrent turns against the
// same session (§5: "per-session ordering fully serialized; multiple
// sessions run concurrently").
//
// Put must be all-or-nothing: a caller that observes an error from Put must
// be able to assume the stored session is unchanged from before the call
// (§5 "put all-or-nothing atomicity").
type Store interface {
	// Get loads a private copy of the session. Returns ErrNotFound when
	// absent.
	Get(ctx context.Context, sessionID string) (*state.Session, error)
	// Put durably stores sess, replacing any prior value in full. token
	// must be the value returned by the Lock call currently held for
	// sessionID; Put returns ErrLockExpired if the lease has expired.
	Put(ctx context.Context, sess *state.Session, token string) error
	// Delete removes the session and releases any lock on it.
	Delete(ctx context.Context, sessionID string) error
	// Lock acquires exclusive ownership of sessionID for up to ttl,
	// returning an opaque token that must be presented to Put and Unlock.
	// Returns ErrAlreadyLocked if another turn currently holds the lock.
	Lock(ctx context.Context, sessionID string, ttl time.Duration) (token string, err error)
	// Unlock releases a lock acquired by Lock. It is a no-op, not an
	// error, if the lease already expired (§5 cancellation semantics: a
	// turn that discards its in-flight mutations still releases the lock
	// cleanly).
	Unlock(ctx context.Context, sessionID, token string) error
}
