package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harmonium-ai/harmonium/internal/domain"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

// StateStore implements statestore.Store using PostgreSQL. Each session
// carries an optimistic version counter on its sessions row; state rows fan
// out by scope so user- and app-scoped keys are shared beyond the session.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a StateStore backed by the given connection pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// scopeRow maps a state key's scope onto the (user_id, session_id) columns
// of its storage row. App-scoped rows blank both; user-scoped rows blank
// the session.
func scopeRow(id session.ID, key string) (userID, sessionID string) {
	scope, _ := session.ParseScope(key)
	switch scope {
	case session.ScopeApp:
		return "", ""
	case session.ScopeUser:
		return id.UserID, ""
	default:
		return id.UserID, id.SessionID
	}
}

// Ensure creates the session row at version 0 if absent and returns it.
func (s *StateStore) Ensure(ctx context.Context, id session.ID) (*session.Session, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (namespace, user_id, session_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (namespace, user_id, session_id) DO NOTHING`,
		id.Namespace, id.UserID, id.SessionID)
	if err != nil {
		return nil, fmt.Errorf("ensure session %s: %w", id, err)
	}

	sess := session.Session{ID: id}
	err = s.pool.QueryRow(ctx,
		`SELECT version, created_at, updated_at FROM sessions
		 WHERE namespace = $1 AND user_id = $2 AND session_id = $3`,
		id.Namespace, id.UserID, id.SessionID).
		Scan(&sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &sess, nil
}

// Get returns the session's merged snapshot. Rows are merged app -> user ->
// session, so narrower scopes win on key collision.
func (s *StateStore) Get(ctx context.Context, id session.ID) (session.Snapshot, error) {
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT version FROM sessions
		 WHERE namespace = $1 AND user_id = $2 AND session_id = $3`,
		id.Namespace, id.UserID, id.SessionID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Snapshot{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return session.Snapshot{}, fmt.Errorf("load session %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM session_state
		 WHERE namespace = $1
		   AND ((user_id = '' AND session_id = '')
		     OR (user_id = $2 AND session_id = '')
		     OR (user_id = $2 AND session_id = $3))
		 ORDER BY user_id ASC, session_id ASC`,
		id.Namespace, id.UserID, id.SessionID)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("load state %s: %w", id, err)
	}
	defer rows.Close()

	data := session.State{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return session.Snapshot{}, fmt.Errorf("scan state row: %w", err)
		}
		data[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return session.Snapshot{}, fmt.Errorf("iterate state rows: %w", err)
	}

	return session.Snapshot{Version: version, Data: data}, nil
}

// ApplyDelta atomically applies delta when the session's stored version
// matches expectedVersion, returning the new version. The version bump and
// every state row change commit in one transaction; a lost race returns
// domain.ErrConflict.
func (s *StateStore) ApplyDelta(ctx context.Context, id session.ID, delta session.Delta, expectedVersion int64) (int64, error) {
	if err := delta.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE sessions SET version = version + 1, updated_at = now()
		 WHERE namespace = $1 AND user_id = $2 AND session_id = $3 AND version = $4`,
		id.Namespace, id.UserID, id.SessionID, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("bump version %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM sessions
			 WHERE namespace = $1 AND user_id = $2 AND session_id = $3)`,
			id.Namespace, id.UserID, id.SessionID).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("check session %s: %w", id, err)
		}
		if !exists {
			return 0, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("session %s at version %d: %w", id, expectedVersion, domain.ErrConflict)
	}

	for key, value := range delta.Set {
		userID, sessionID := scopeRow(id, key)
		// Stored as TEXT so Get returns the exact bytes written here;
		// a JSONB column would normalize them and break replay equality.
		_, err := tx.Exec(ctx,
			`INSERT INTO session_state (namespace, user_id, session_id, key, value)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (namespace, user_id, session_id, key)
			 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			id.Namespace, userID, sessionID, key, string(value))
		if err != nil {
			return 0, fmt.Errorf("set %s: %w", key, err)
		}
	}
	for _, key := range delta.Delete {
		userID, sessionID := scopeRow(id, key)
		_, err := tx.Exec(ctx,
			`DELETE FROM session_state
			 WHERE namespace = $1 AND user_id = $2 AND session_id = $3 AND key = $4`,
			id.Namespace, userID, sessionID, key)
		if err != nil {
			return 0, fmt.Errorf("delete %s: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return expectedVersion + 1, nil
}
