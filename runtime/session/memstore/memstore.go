// Package memstore is an in-memory session.Store for tests and local
// development. Grounded on runtime/agent/session/inmem.Store's
// mutex + clone-on-read/write discipline.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/apron-incident/runtime/session"
	"goa.design/apron-incident/runtime/state"
)

type lease struct {
	token     string
	expiresAt time.Time
}

// Store is a process-local, concurrency-safe session.Store.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*state.Session
	locks    map[string]lease
	now      func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*state.Session),
		locks:    make(map[string]lease),
		now:      time.Now,
	}
}

// Get implements session.Store.
func (s *Store) Get(_ context.Context, sessionID string) (*state.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess.Clone(), nil
}

// Put implements session.Store.
func (s *Store) Put(_ context.Context, sess *state.Session, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(sess.SessionID, token) {
		return session.ErrLockExpired
	}
	s.sessions[sess.SessionID] = sess.Clone()
	return nil
}

// Delete implements session.Store.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.locks, sessionID)
	return nil
}

// Lock implements session.Store.
func (s *Store) Lock(_ context.Context, sessionID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = session.DefaultLockTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if l, ok := s.locks[sessionID]; ok && l.expiresAt.After(now) {
		return "", session.ErrAlreadyLocked
	}
	token := uuid.NewString()
	s.locks[sessionID] = lease{token: token, expiresAt: now.Add(ttl)}
	return token, nil
}

// Unlock implements session.Store.
func (s *Store) Unlock(_ context.Context, sessionID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[sessionID]; ok && l.token == token {
		delete(s.locks, sessionID)
	}
	return nil
}

// validLocked reports whether token currently holds sessionID's lease. Must
// be called with s.mu held.
func (s *Store) validLocked(sessionID, token string) bool {
	l, ok := s.locks[sessionID]
	if !ok {
		return false
	}
	if l.expiresAt.Before(s.now()) {
		return false
	}
	return l.token == token
}
