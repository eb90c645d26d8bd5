// Package eventstore defines the port for the append-only run event store.
package eventstore

import (
	"context"

	"github.com/harmonium-ai/harmonium/internal/domain/event"
)

// Store persists the ordered event stream of each run so a reconnecting
// consumer can replay it.
type Store interface {
	// Append stores one event. Events arrive in sequence order per run.
	Append(ctx context.Context, ev event.Event) error

	// LoadRun returns all events of a run in sequence order.
	LoadRun(ctx context.Context, runID string) ([]event.Event, error)
}
