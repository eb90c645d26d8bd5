// Package task defines delegation tasks sent to remote specialist agents and
// the streamed results they produce.
package task

import (
	"errors"

	"github.com/harmonium-ai/harmonium/internal/domain/part"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

// Status of a delegated task.
type Status string

const (
	StatusWorking   Status = "working"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// DelegationTask is a sub-task forwarded to a remote agent. FilteredContext
// is always a strict subset of the session state, chosen by policy — the raw
// full state never leaves the process.
type DelegationTask struct {
	ID              string        `json:"task_id"`
	RunID           string        `json:"run_id"`
	Skill           string        `json:"skill,omitempty"`
	Input           string        `json:"input"`
	FilteredContext session.State `json:"filtered_context,omitempty"`
}

// Validate checks the task for required fields.
func (t *DelegationTask) Validate() error {
	if t.ID == "" {
		return errors.New("task_id is required")
	}
	if t.Input == "" {
		return errors.New("input is required")
	}
	return nil
}

// DelegationResult is the terminal outcome of a delegated task.
type DelegationResult struct {
	TaskID    string          `json:"task_id"`
	Status    Status          `json:"status"`
	Artifacts []part.Artifact `json:"artifacts,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Update is one element of the stream a remote agent produces: either a
// partial artifact update or a status change. Exactly one field is set.
type Update struct {
	Artifact *ArtifactUpdate `json:"artifact,omitempty"`
	Status   *StatusUpdate   `json:"status,omitempty"`
}

// ArtifactUpdate delivers parts for one artifact. Append extends the artifact
// identified by ArtifactID; LastChunk seals it.
type ArtifactUpdate struct {
	ArtifactID string      `json:"artifact_id"`
	Name       string      `json:"name,omitempty"`
	Parts      []part.Part `json:"parts"`
	Append     bool        `json:"append"`
	LastChunk  bool        `json:"last_chunk"`
}

// StatusUpdate reports task progress, with optional message text.
type StatusUpdate struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}
