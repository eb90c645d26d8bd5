package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// State is the scoped key/value map owned by a session. Values stay raw JSON
// so that a replayed delta matches the stored value byte-for-byte.
type State map[string]json.RawMessage

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// WithoutTemp returns a copy with all temp:-scoped keys removed.
func (s State) WithoutTemp() State {
	out := make(State, len(s))
	for k, v := range s {
		if strings.HasPrefix(k, string(ScopeTemp)+":") {
			continue
		}
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Subset reports whether every key of s exists in full.
func (s State) Subset(full State) bool {
	for k := range s {
		if _, ok := full[k]; !ok {
			return false
		}
	}
	return true
}

// Delta is the only way state changes. Set writes keys, Delete removes them.
// The split keeps "set to JSON null" distinguishable from "delete".
type Delta struct {
	Set    map[string]json.RawMessage `json:"set,omitempty"`
	Delete []string                   `json:"delete,omitempty"`
}

// Validate checks every touched key for a recognized scope prefix.
func (d Delta) Validate() error {
	for k := range d.Set {
		if _, err := ParseScope(k); err != nil {
			return fmt.Errorf("set %q: %w", k, err)
		}
	}
	for _, k := range d.Delete {
		if _, err := ParseScope(k); err != nil {
			return fmt.Errorf("delete %q: %w", k, err)
		}
	}
	return nil
}

// Empty reports whether the delta touches no keys.
func (d Delta) Empty() bool {
	return len(d.Set) == 0 && len(d.Delete) == 0
}

// Apply returns a new State with the delta applied. The receiver is not mutated.
func (s State) Apply(d Delta) State {
	out := s.Clone()
	for k, v := range d.Set {
		out[k] = append(json.RawMessage(nil), v...)
	}
	for _, k := range d.Delete {
		delete(out, k)
	}
	return out
}

// Diff returns the delta that transforms s into next: keys whose value
// bytes changed or appeared go to Set, keys absent from next go to Delete.
// Delete is sorted so the delta is deterministic.
func (s State) Diff(next State) Delta {
	d := Delta{}
	for k, v := range next {
		if old, ok := s[k]; ok && bytes.Equal(old, v) {
			continue
		}
		if d.Set == nil {
			d.Set = make(map[string]json.RawMessage)
		}
		d.Set[k] = append(json.RawMessage(nil), v...)
	}
	for k := range s {
		if _, ok := next[k]; !ok {
			d.Delete = append(d.Delete, k)
		}
	}
	sort.Strings(d.Delete)
	return d
}

// Snapshot is a consistent view of a session's state at a version.
type Snapshot struct {
	Version int64 `json:"version"`
	Data    State `json:"data"`
}
