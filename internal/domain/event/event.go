// Package event defines the canonical UI-facing stream events emitted during
// a run. Events are immutable and strictly ordered per run by sequence number.
package event

import (
	"encoding/json"
	"time"

	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

// Type identifies the kind of stream event.
type Type string

const (
	TypeRunStarted  Type = "run.started"
	TypeRunFinished Type = "run.finished"
	TypeRunError    Type = "run.error"

	TypeMessageStart   Type = "message.start"
	TypeMessageContent Type = "message.content"
	TypeMessageEnd     Type = "message.end"

	TypeToolCallStart  Type = "tool.call.start"
	TypeToolCallArgs   Type = "tool.call.args"
	TypeToolCallEnd    Type = "tool.call.end"
	TypeToolCallResult Type = "tool.call.result"

	TypeStateSnapshot Type = "state.snapshot"
	TypeStateDelta    Type = "state.delta"

	TypeStepStarted  Type = "step.started"
	TypeStepFinished Type = "step.finished"
)

// Event is a single immutable record on a run's stream.
type Event struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Seq       uint64          `json:"seq"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// --- Payloads ---

// RunStartedPayload opens a run's stream.
type RunStartedPayload struct {
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id"`
}

// RunFinishedPayload closes a run's stream normally.
type RunFinishedPayload struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"` // "finished" or "cancelled"
	Output string `json:"output,omitempty"`
}

// RunErrorPayload closes a run's stream on fatal failure. No further events
// follow on the run.
type RunErrorPayload struct {
	RunID   string `json:"run_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessageStartPayload opens a logical assistant message.
type MessageStartPayload struct {
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
}

// MessageContentPayload carries one streamed content chunk.
type MessageContentPayload struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// MessageEndPayload closes a logical assistant message.
type MessageEndPayload struct {
	MessageID string `json:"message_id"`
}

// ToolCallStartPayload announces a tool invocation.
type ToolCallStartPayload struct {
	CallID string `json:"tool_call_id"`
	Name   string `json:"name"`
	Target string `json:"target"`
}

// ToolCallArgsPayload carries a streamed fragment of the call arguments.
type ToolCallArgsPayload struct {
	CallID string          `json:"tool_call_id"`
	Args   json.RawMessage `json:"args"`
}

// ToolCallEndPayload closes the argument stream of a call.
type ToolCallEndPayload struct {
	CallID string `json:"tool_call_id"`
}

// ToolCallResultPayload reports the resolution of a call.
type ToolCallResultPayload struct {
	CallID  string          `json:"tool_call_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StateSnapshotPayload carries the full state at run start.
type StateSnapshotPayload struct {
	Version int64         `json:"version"`
	Data    session.State `json:"data"`
}

// StateDeltaPayload carries exactly the delta accepted by the session store,
// never re-derived, so replayed state matches the store byte-for-byte.
type StateDeltaPayload struct {
	Version int64         `json:"version"`
	Delta   session.Delta `json:"delta"`
}

// StepStartedPayload opens a named step within a run.
type StepStartedPayload struct {
	StepID string `json:"step_id"`
	Name   string `json:"name"`
}

// StepFinishedPayload closes a named step.
type StepFinishedPayload struct {
	StepID string `json:"step_id"`
	Status string `json:"status"` // "finished" or "failed"
}
