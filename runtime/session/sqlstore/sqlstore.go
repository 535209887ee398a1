// Package sqlstore is a Postgres-backed session.Store, for deployments that
// already run Postgres and prefer not to add Redis. Grounded on
// features/session/mongo.Store's thin-delegating-adapter shape (a Store
// that holds exactly one client handle and forwards each method to it),
// backed here by github.com/jackc/pgx/v5 since spec.md §6 calls for
// SESSION_STORE_BACKEND in {memory, redis, sql}, not Mongo, and pgx is the
// pack's own Postgres driver (carried in from jordigilh-kubernaut and
// codeready-toolchain-tarsy, both Postgres-backed services in the pack).
// Locking uses a lease row rather than a held transaction: Lock and
// Put/Unlock are typically invoked from separate HTTP requests, so there is
// no connection to hold a transaction open across.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"goa.design/apron-incident/runtime/session"
	"goa.design/apron-incident/runtime/state"
)

// pool is the subset of *pgxpool.Pool this store needs, narrowed so tests
// can substitute a fake.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgconnCommandTag mirrors pgconn.CommandTag's RowsAffected method, the
// only part of it this store reads.
type pgconnCommandTag interface {
	RowsAffected() int64
}

// Schema is the DDL this store expects to already exist; migrations are
// applied out-of-band (the pack's migration tooling is out of scope here).
const Schema = `
CREATE TABLE IF NOT EXISTS apron_sessions (
	session_id TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS apron_session_locks (
	session_id TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
`

// Store is a Postgres-backed session.Store.
type Store struct {
	db  pool
	now func() time.Time
}

// New constructs a Store backed by db.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: poolAdapter{db}, now: time.Now}
}

// poolAdapter narrows *pgxpool.Pool to the pool interface.
type poolAdapter struct{ *pgxpool.Pool }

func (p poolAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error) {
	tag, err := p.Pool.Exec(ctx, sql, args...)
	return tag, err
}

// Get implements session.Store.
func (s *Store) Get(ctx context.Context, sessionID string) (*state.Session, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM apron_sessions WHERE session_id = $1`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess state.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Put implements session.Store, rejecting the write unless token still
// holds an unexpired lease.
func (s *Store) Put(ctx context.Context, sess *state.Session, token string) error {
	var held string
	err := s.db.QueryRow(ctx,
		`SELECT token FROM apron_session_locks WHERE session_id = $1 AND expires_at > $2`,
		sess.SessionID, s.now(),
	).Scan(&held)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && held != token) {
		return session.ErrLockExpired
	}
	if err != nil {
		return err
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO apron_sessions (session_id, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, sess.SessionID, raw, s.now())
	return err
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM apron_sessions WHERE session_id = $1`, sessionID); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `DELETE FROM apron_session_locks WHERE session_id = $1`, sessionID)
	return err
}

// Lock implements session.Store: an upsert that only succeeds if no
// unexpired lease is held, matching SET NX PX's semantics over a row
// instead of a Redis key.
func (s *Store) Lock(ctx context.Context, sessionID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = session.DefaultLockTTL
	}
	token := uuid.NewString()
	now := s.now()
	tag, err := s.db.Exec(ctx, `
		INSERT INTO apron_session_locks (session_id, token, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE
			SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
			WHERE apron_session_locks.expires_at <= $4
	`, sessionID, token, now.Add(ttl), now)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", session.ErrAlreadyLocked
	}
	return token, nil
}

// Unlock implements session.Store, releasing the lease only if token still
// matches.
func (s *Store) Unlock(ctx context.Context, sessionID, token string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM apron_session_locks WHERE session_id = $1 AND token = $2`, sessionID, token)
	return err
}
