package memstore

import (
	"context"
	"sync"

	"github.com/harmonium-ai/harmonium/internal/domain/event"
)

// EventStore is an in-memory append-only event log keyed by run ID.
type EventStore struct {
	mu   sync.Mutex
	runs map[string][]event.Event
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{runs: make(map[string][]event.Event)}
}

// Append records ev at the end of its run's log.
func (s *EventStore) Append(_ context.Context, ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[ev.RunID] = append(s.runs[ev.RunID], ev)
	return nil
}

// LoadRun returns the full event log for runID in append order.
// An unknown run returns an empty slice, not an error.
func (s *EventStore) LoadRun(_ context.Context, runID string) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := s.runs[runID]
	out := make([]event.Event, len(evs))
	copy(out, evs)
	return out, nil
}
