// Package fault defines the typed error kinds exchanged between the
// orchestrator and its collaborators. Every kind except KindRunFatal is
// recoverable: component boundaries convert failures into structured results
// the agent can reason about instead of tearing the run down.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindToolTimeout means a ui_client or tool-server call exceeded its deadline.
	KindToolTimeout Kind = "TOOL_TIMEOUT"
	// KindRemoteUnavailable means a remote agent stayed unreachable after retries.
	KindRemoteUnavailable Kind = "REMOTE_UNAVAILABLE"
	// KindNoRoute means no capable target exists for a task.
	KindNoRoute Kind = "NO_ROUTE"
	// KindStateConflict means an optimistic version check failed. Always
	// retried internally, never surfaced to the UI stream.
	KindStateConflict Kind = "STATE_CONFLICT"
	// KindNegotiationFailed means producer and consumer share no content type.
	// Degrades to text, never terminal.
	KindNegotiationFailed Kind = "CONTENT_NEGOTIATION_FAILED"
	// KindRunFatal is the only kind that ends a run as errored.
	KindRunFatal Kind = "RUN_FATAL"
)

// Fault is an error with a kind and an optional wrapped cause.
type Fault struct {
	Kind Kind
	Msg  string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Msg, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func (f *Fault) Unwrap() error { return f.Err }

// New creates a Fault of the given kind.
func New(kind Kind, msg string) *Fault {
	return &Fault{Kind: kind, Msg: msg}
}

// Wrap creates a Fault of the given kind wrapping err.
func Wrap(kind Kind, msg string, err error) *Fault {
	return &Fault{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind carried by err, or KindRunFatal if err carries none.
// A nil err has no kind; callers must check for nil first.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindRunFatal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}

// Recoverable reports whether err may be surfaced to the agent as a
// structured result instead of ending the run.
func Recoverable(err error) bool {
	return KindOf(err) != KindRunFatal
}
