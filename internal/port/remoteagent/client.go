// Package remoteagent defines the port for speaking the delegation protocol
// to remote specialist agents.
package remoteagent

import (
	"context"

	"github.com/harmonium-ai/harmonium/internal/domain/agent"
	"github.com/harmonium-ai/harmonium/internal/domain/task"
)

// UpdateFunc receives each streamed update of a delegated task, in arrival
// order. Returning an error aborts the stream.
type UpdateFunc func(u task.Update) error

// Client discovers remote agents and delegates tasks to them.
type Client interface {
	// Discover fetches the capability descriptor published at endpoint.
	Discover(ctx context.Context, endpoint string) (*agent.Descriptor, error)

	// Send delegates the task to the agent at endpoint, streaming partial
	// updates through onUpdate until the task reaches a terminal status.
	// Transport failures are retried with bounded backoff; exhaustion
	// returns a REMOTE_UNAVAILABLE fault.
	Send(ctx context.Context, endpoint string, t *task.DelegationTask, onUpdate UpdateFunc) (*task.DelegationResult, error)
}
