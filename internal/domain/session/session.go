// Package session defines the Session domain entity and its scoped,
// versioned key/value state.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Scope determines the lifecycle of a state key.
type Scope string

const (
	ScopeSession Scope = "session" // persists across runs within the session
	ScopeUser    Scope = "user"    // persists across sessions of one user
	ScopeApp     Scope = "app"     // persists across all users
	ScopeTemp    Scope = "temp"    // discarded at run end
)

// ErrInvalidKey is returned for state keys without a recognized scope prefix.
var ErrInvalidKey = errors.New("state key must carry a scope prefix (session:, user:, app:, temp:)")

// ParseScope extracts the scope from a state key such as "session:count".
func ParseScope(key string) (Scope, error) {
	prefix, _, ok := strings.Cut(key, ":")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	switch s := Scope(prefix); s {
	case ScopeSession, ScopeUser, ScopeApp, ScopeTemp:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
}

// ID identifies a session within a namespace.
type ID struct {
	Namespace string `json:"namespace"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Validate checks that all three components are present.
func (id ID) Validate() error {
	if id.Namespace == "" {
		return errors.New("namespace is required")
	}
	if id.UserID == "" {
		return errors.New("user_id is required")
	}
	if id.SessionID == "" {
		return errors.New("session_id is required")
	}
	return nil
}

// String renders the ID as "namespace/user/session".
func (id ID) String() string {
	return id.Namespace + "/" + id.UserID + "/" + id.SessionID
}

// Session is a durable conversation context owning scoped State.
type Session struct {
	ID        ID        `json:"id"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
