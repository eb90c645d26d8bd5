// Package statestore defines the port for the versioned session state store,
// the single source of truth all other components read and write.
package statestore

import (
	"context"

	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

// Store holds scoped, versioned key/value state per session. All mutation
// goes through ApplyDelta; no caller holds a mutable reference to state.
type Store interface {
	// Ensure creates the session if it does not exist and returns it.
	Ensure(ctx context.Context, id session.ID) (*session.Session, error)

	// Get returns a consistent snapshot of the session's state.
	// Returns domain.ErrNotFound for unknown sessions.
	Get(ctx context.Context, id session.ID) (session.Snapshot, error)

	// ApplyDelta applies the delta if expectedVersion matches the current
	// version, returning the new version. A mismatch returns
	// domain.ErrConflict and the caller must re-read and retry.
	ApplyDelta(ctx context.Context, id session.ID, delta session.Delta, expectedVersion int64) (int64, error)
}
