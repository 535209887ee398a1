// Package memlog is an in-memory auditlog.Store, for tests and local
// development. Not durable; do not use in production. Grounded on
// runtime/agent/runlog/inmem.Store.
package memlog

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"goa.design/apron-incident/runtime/auditlog"
)

// Store implements auditlog.Store in memory.
type Store struct {
	mu      sync.Mutex
	nextSeq map[string]int64
	entries map[string][]*auditlog.Entry
}

// New returns a new in-memory audit log store.
func New() *Store {
	return &Store{
		nextSeq: make(map[string]int64),
		entries: make(map[string][]*auditlog.Entry),
	}
}

// Append implements auditlog.Store.
func (s *Store) Append(_ context.Context, e *auditlog.Entry) error {
	if e == nil {
		return fmt.Errorf("memlog: entry is required")
	}
	if e.SessionID == "" {
		return fmt.Errorf("memlog: session_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq[e.SessionID] + 1
	s.nextSeq[e.SessionID] = seq

	e.ID = strconv.FormatInt(seq, 10)
	entry := *e
	s.entries[e.SessionID] = append(s.entries[e.SessionID], &entry)
	return nil
}

// List implements auditlog.Store.
func (s *Store) List(_ context.Context, sessionID string, cursor string, limit int) (auditlog.Page, error) {
	if sessionID == "" {
		return auditlog.Page{}, fmt.Errorf("memlog: session_id is required")
	}
	if limit <= 0 {
		return auditlog.Page{}, fmt.Errorf("memlog: limit must be > 0")
	}

	var after int64
	if cursor != "" {
		id, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return auditlog.Page{}, fmt.Errorf("memlog: invalid cursor %q: %w", cursor, err)
		}
		after = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.entries[sessionID]
	if len(all) == 0 {
		return auditlog.Page{}, nil
	}

	start := 0
	if after > 0 {
		start = int(after)
		if start >= len(all) {
			return auditlog.Page{}, nil
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	entries := append([]*auditlog.Entry(nil), all[start:end]...)
	var next string
	if end < len(all) {
		next = entries[len(entries)-1].ID
	}

	return auditlog.Page{Entries: entries, NextCursor: next}, nil
}
