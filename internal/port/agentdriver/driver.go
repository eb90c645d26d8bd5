// Package agentdriver defines the port for the agent runtime collaborator.
// Prompt construction, model invocation, and token accounting live behind
// this interface; the orchestrator only drives turns and serves callbacks.
package agentdriver

import (
	"context"

	"github.com/harmonium-ai/harmonium/internal/domain/run"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
	"github.com/harmonium-ai/harmonium/internal/domain/task"
)

// Turn is one unit of work handed to the agent runtime.
type Turn struct {
	RunID    string
	Input    string
	Snapshot session.Snapshot
}

// Outcome is what a completed turn produced.
type Outcome struct {
	Output string
}

// Host is the orchestrator-side surface a driver calls back into. Every
// method is a suspension point: implementations block, and cancellation of
// ctx must abort the call.
type Host interface {
	// Say streams text to the UI as one logical assistant message.
	Say(ctx context.Context, text string) error

	// CallTool invokes a capability on whatever target the call names.
	// Failures of recoverable kinds come back inside the ToolResult.
	CallTool(ctx context.Context, call run.ToolCall) (*run.ToolResult, error)

	// Delegate forwards a sub-task; the router decides the target.
	Delegate(ctx context.Context, t task.DelegationTask) (*task.DelegationResult, error)

	// PatchState applies a delta through the session store and emits the
	// matching state.delta event.
	PatchState(ctx context.Context, delta session.Delta) error

	// State returns the run's current merged view of session state.
	State(ctx context.Context) (session.State, error)
}

// Driver executes agent turns.
type Driver interface {
	RunTurn(ctx context.Context, turn Turn, host Host) (*Outcome, error)
}
