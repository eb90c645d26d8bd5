// Package memstore provides in-memory implementations of the state and
// event store ports. It backs unit tests and single-node development mode;
// the postgres adapter is the durable production implementation.
package memstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/harmonium-ai/harmonium/internal/domain"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

// Store is an in-memory versioned session state store. Keys fan out by
// scope prefix: app-scoped rows are shared across the namespace, user-scoped
// rows across the user's sessions, session- and temp-scoped rows stay with
// the session. Optimistic concurrency is enforced per session, the same way
// the postgres adapter does it: ApplyDelta compares the caller's expected
// version under the lock.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	scoped   map[string]map[string]json.RawMessage // bucket key -> state keys
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*session.Session),
		scoped:   make(map[string]map[string]json.RawMessage),
	}
}

// bucketKey returns the storage bucket a state key belongs to, widening
// from session-private to user-shared to namespace-shared.
func bucketKey(id session.ID, scope session.Scope) string {
	switch scope {
	case session.ScopeApp:
		return id.Namespace
	case session.ScopeUser:
		return id.Namespace + "/" + id.UserID
	default: // session and temp scopes stay session-private
		return id.String()
	}
}

// Ensure returns the session for id, creating it at version 0 if absent.
func (s *Store) Ensure(_ context.Context, id session.ID) (*session.Session, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id.String()]
	if !ok {
		now := time.Now().UTC()
		sess = &session.Session{
			ID:        id,
			Version:   0,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.sessions[id.String()] = sess
	}

	out := *sess
	return &out, nil
}

// Get returns the session's merged snapshot: app-scoped rows, then
// user-scoped, then session-private. Unknown sessions return
// domain.ErrNotFound.
func (s *Store) Get(_ context.Context, id session.ID) (session.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id.String()]
	if !ok {
		return session.Snapshot{}, domain.ErrNotFound
	}

	merged := session.State{}
	for _, bucket := range []string{
		bucketKey(id, session.ScopeApp),
		bucketKey(id, session.ScopeUser),
		id.String(),
	} {
		for k, v := range s.scoped[bucket] {
			merged[k] = append(json.RawMessage(nil), v...)
		}
	}

	return session.Snapshot{Version: sess.Version, Data: merged}, nil
}

// ApplyDelta atomically applies delta when the stored version matches
// expectedVersion, returning the new version. A version mismatch returns
// domain.ErrConflict; a missing session returns domain.ErrNotFound.
func (s *Store) ApplyDelta(_ context.Context, id session.ID, delta session.Delta, expectedVersion int64) (int64, error) {
	if err := delta.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id.String()]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if sess.Version != expectedVersion {
		return 0, domain.ErrConflict
	}

	for k, v := range delta.Set {
		scope, _ := session.ParseScope(k)
		bucket := bucketKey(id, scope)
		if s.scoped[bucket] == nil {
			s.scoped[bucket] = make(map[string]json.RawMessage)
		}
		s.scoped[bucket][k] = append(json.RawMessage(nil), v...)
	}
	for _, k := range delta.Delete {
		scope, _ := session.ParseScope(k)
		delete(s.scoped[bucketKey(id, scope)], k)
	}

	sess.Version++
	sess.UpdatedAt = time.Now().UTC()
	return sess.Version, nil
}
