package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harmonium-ai/harmonium/internal/domain/event"
)

// EventStore implements eventstore.Store using PostgreSQL (append-only).
// The (run_id, seq) primary key makes duplicate appends fail loudly instead
// of corrupting replay order.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts ev into the run_events table.
func (s *EventStore) Append(ctx context.Context, ev event.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_events (id, run_id, seq, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.RunID, int64(ev.Seq), string(ev.Type), string(ev.Payload), ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event %s seq %d: %w", ev.RunID, ev.Seq, err)
	}
	return nil
}

// LoadRun returns all events for runID ordered by sequence ascending.
func (s *EventStore) LoadRun(ctx context.Context, runID string) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, seq, event_type, payload, created_at
		 FROM run_events WHERE run_id = $1 ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("load events for run %s: %w", runID, err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var ev event.Event
		var seq int64
		var typ, payload string
		if err := rows.Scan(&ev.ID, &ev.RunID, &seq, &typ, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Seq = uint64(seq)
		ev.Type = event.Type(typ)
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	return events, rows.Err()
}
