// Package run defines the Run domain entity: one orchestration execution
// within a session.
package run

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

// Status represents the current state of a run.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended" // awaiting a ui_client tool result
	StatusFinished  Status = "finished"
	StatusErrored   Status = "errored"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusErrored, StatusCancelled:
		return true
	}
	return false
}

// transitions lists the legal status moves of the run state machine.
var transitions = map[Status][]Status{
	StatusCreated:   {StatusRunning},
	StatusRunning:   {StatusSuspended, StatusFinished, StatusErrored, StatusCancelled},
	StatusSuspended: {StatusRunning, StatusErrored, StatusCancelled},
}

// ErrBadTransition is returned for an illegal status move.
var ErrBadTransition = errors.New("illegal run status transition")

// Transition validates a status move.
func Transition(from, to Status) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return ErrBadTransition
}

// Run represents a single orchestration execution belonging to one session.
type Run struct {
	ID          string     `json:"id"`
	Session     session.ID `json:"session"`
	Status      Status     `json:"status"`
	Input       string     `json:"input"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	seq atomic.Uint64
}

// NextSeq returns the next event sequence number for this run. Sequence
// numbers start at 1 and are strictly increasing with no gaps.
func (r *Run) NextSeq() uint64 {
	return r.seq.Add(1)
}

// LastSeq returns the most recently issued sequence number.
func (r *Run) LastSeq() uint64 {
	return r.seq.Load()
}

// Request holds the fields needed to start or resume a run.
type Request struct {
	SessionID     string        `json:"session_id"`
	UserID        string        `json:"user_id"`
	Input         string        `json:"input"`
	StateOverride session.State `json:"state_override,omitempty"`
	ToolResult    *ToolResult   `json:"tool_result,omitempty"`
}

// Validate checks the request for required fields. A request carrying only a
// tool result (resume) needs no input text.
func (req *Request) Validate() error {
	if req.SessionID == "" {
		return errors.New("session_id is required")
	}
	if req.UserID == "" {
		return errors.New("user_id is required")
	}
	if req.Input == "" && req.ToolResult == nil {
		return errors.New("input or tool_result is required")
	}
	return nil
}
