package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harmonium-ai/harmonium/internal/adapter/postgres"
	"github.com/harmonium-ai/harmonium/internal/domain"
	"github.com/harmonium-ai/harmonium/internal/domain/event"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

// setupPool connects to the database named by DATABASE_URL and runs all
// migrations. Tests are skipped when no database is available.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func freshID(t *testing.T) session.ID {
	t.Helper()
	return session.ID{
		Namespace: "test-" + uuid.NewString(),
		UserID:    "u1",
		SessionID: "s1",
	}
}

func TestStateStore_EnsureGetApply(t *testing.T) {
	pool := setupPool(t)
	store := postgres.NewStateStore(pool)
	ctx := context.Background()
	id := freshID(t)

	sess, err := store.Ensure(ctx, id)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if sess.Version != 0 {
		t.Errorf("new session version = %d, want 0", sess.Version)
	}

	v, err := store.ApplyDelta(ctx, id, session.Delta{Set: map[string]json.RawMessage{
		"session:topic": json.RawMessage(`"billing"`),
		"user:lang":     json.RawMessage(`"fr"`),
	}}, 0)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}

	snap, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("snapshot version = %d, want 1", snap.Version)
	}
	if string(snap.Data["session:topic"]) != `"billing"` {
		t.Errorf("session:topic = %s", snap.Data["session:topic"])
	}

	// user-scoped key is visible from a sibling session.
	sibling := session.ID{Namespace: id.Namespace, UserID: id.UserID, SessionID: "s2"}
	if _, err := store.Ensure(ctx, sibling); err != nil {
		t.Fatalf("Ensure sibling: %v", err)
	}
	sibSnap, err := store.Get(ctx, sibling)
	if err != nil {
		t.Fatalf("Get sibling: %v", err)
	}
	if string(sibSnap.Data["user:lang"]) != `"fr"` {
		t.Error("user-scoped key not shared with sibling session")
	}
	if _, ok := sibSnap.Data["session:topic"]; ok {
		t.Error("session-scoped key leaked across sessions")
	}
}

// Values must come back with the exact bytes that were written: stream
// replay compares delta payloads against the store byte-for-byte, so the
// store may not normalize key order or whitespace.
func TestStateStore_PreservesValueBytes(t *testing.T) {
	pool := setupPool(t)
	store := postgres.NewStateStore(pool)
	ctx := context.Background()
	id := freshID(t)

	if _, err := store.Ensure(ctx, id); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	raw := json.RawMessage(`{"b": 1,  "a": 2}`)
	if _, err := store.ApplyDelta(ctx, id, session.Delta{
		Set: map[string]json.RawMessage{"session:doc": raw},
	}, 0); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	snap, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(snap.Data["session:doc"]) != string(raw) {
		t.Errorf("value bytes changed: wrote %s, read %s", raw, snap.Data["session:doc"])
	}
}

func TestStateStore_StaleVersionConflicts(t *testing.T) {
	pool := setupPool(t)
	store := postgres.NewStateStore(pool)
	ctx := context.Background()
	id := freshID(t)

	if _, err := store.Ensure(ctx, id); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	delta := session.Delta{Set: map[string]json.RawMessage{"session:k": json.RawMessage(`1`)}}
	if _, err := store.ApplyDelta(ctx, id, delta, 0); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := store.ApplyDelta(ctx, id, delta, 0); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("stale apply: expected ErrConflict, got %v", err)
	}
	if _, err := store.ApplyDelta(ctx, session.ID{Namespace: "none", UserID: "u", SessionID: "s"}, delta, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown session: expected ErrNotFound, got %v", err)
	}
}

func TestEventStore_AppendLoadRoundTrip(t *testing.T) {
	pool := setupPool(t)
	store := postgres.NewEventStore(pool)
	ctx := context.Background()
	runID := uuid.NewString()

	// Non-canonical JSON: key order and spacing must survive the round trip
	// unchanged, since replay compares payload bytes against the stream.
	payload := json.RawMessage(`{"text": "chunk",  "b": 1, "a": 2}`)
	for i := uint64(1); i <= 3; i++ {
		ev := event.Event{
			ID:        uuid.NewString(),
			RunID:     runID,
			Seq:       i,
			Type:      event.TypeMessageContent,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("Append seq %d: %v", i, err)
		}
	}

	events, err := store.LoadRun(ctx, runID)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
		if string(ev.Payload) != string(payload) {
			t.Errorf("events[%d].Payload = %s, want %s", i, ev.Payload, payload)
		}
	}

	// Duplicate (run_id, seq) must be rejected.
	dup := event.Event{ID: uuid.NewString(), RunID: runID, Seq: 2, Type: event.TypeMessageContent, Payload: json.RawMessage(`{}`), CreatedAt: time.Now().UTC()}
	if err := store.Append(ctx, dup); err == nil {
		t.Error("expected duplicate seq append to fail")
	}
}
