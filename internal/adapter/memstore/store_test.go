package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/harmonium-ai/harmonium/internal/domain"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

func testID() session.ID {
	return session.ID{Namespace: "app", UserID: "u1", SessionID: "s1"}
}

func TestStore_EnsureIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first, err := s.Ensure(ctx, testID())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if first.Version != 0 {
		t.Errorf("new session version = %d, want 0", first.Version)
	}

	again, err := s.Ensure(ctx, testID())
	if err != nil {
		t.Fatalf("Ensure again: %v", err)
	}
	if again.Version != first.Version || !again.CreatedAt.Equal(first.CreatedAt) {
		t.Error("Ensure on existing session must not reset it")
	}
}

func TestStore_GetUnknownSession(t *testing.T) {
	s := NewStore()
	if _, err := s.Get(context.Background(), testID()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ApplyDeltaBumpsVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if _, err := s.Ensure(ctx, testID()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	delta := session.Delta{Set: map[string]json.RawMessage{
		"session:topic": json.RawMessage(`"billing"`),
	}}
	v, err := s.ApplyDelta(ctx, testID(), delta, 0)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}

	snap, err := s.Get(ctx, testID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("snapshot version = %d, want 1", snap.Version)
	}
	if string(snap.Data["session:topic"]) != `"billing"` {
		t.Errorf("state = %s", snap.Data["session:topic"])
	}
}

func TestStore_StaleVersionConflicts(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if _, err := s.Ensure(ctx, testID()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	delta := session.Delta{Set: map[string]json.RawMessage{
		"session:k": json.RawMessage(`1`),
	}}
	if _, err := s.ApplyDelta(ctx, testID(), delta, 0); err != nil {
		t.Fatalf("first ApplyDelta: %v", err)
	}
	if _, err := s.ApplyDelta(ctx, testID(), delta, 0); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("stale apply: expected ErrConflict, got %v", err)
	}
}

// Two writers racing from the same base version: exactly one wins, the
// other observes a conflict, and the final version reflects one apply.
func TestStore_ConcurrentWritersOneWins(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if _, err := s.Ensure(ctx, testID()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			delta := session.Delta{Set: map[string]json.RawMessage{
				"session:writer": json.RawMessage(`"racer"`),
			}}
			_, errs[i] = s.ApplyDelta(ctx, testID(), delta, 0)
		}()
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if errors.Is(err, domain.ErrConflict) {
			conflicts++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if conflicts != 1 {
		t.Fatalf("conflicts = %d, want exactly 1", conflicts)
	}

	snap, err := s.Get(ctx, testID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("final version = %d, want 1", snap.Version)
	}
}

func TestStore_UserScopeSharedAcrossSessions(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := session.ID{Namespace: "app", UserID: "u1", SessionID: "s1"}
	b := session.ID{Namespace: "app", UserID: "u1", SessionID: "s2"}
	other := session.ID{Namespace: "app", UserID: "u2", SessionID: "s3"}
	for _, id := range []session.ID{a, b, other} {
		if _, err := s.Ensure(ctx, id); err != nil {
			t.Fatalf("Ensure %v: %v", id, err)
		}
	}

	if _, err := s.ApplyDelta(ctx, a, session.Delta{Set: map[string]json.RawMessage{
		"user:lang":    json.RawMessage(`"fr"`),
		"app:theme":    json.RawMessage(`"dark"`),
		"session:priv": json.RawMessage(`1`),
	}}, 0); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	snapB, _ := s.Get(ctx, b)
	if string(snapB.Data["user:lang"]) != `"fr"` {
		t.Error("user-scoped key not visible in sibling session")
	}
	if string(snapB.Data["app:theme"]) != `"dark"` {
		t.Error("app-scoped key not visible in sibling session")
	}
	if _, ok := snapB.Data["session:priv"]; ok {
		t.Error("session-scoped key leaked across sessions")
	}

	snapOther, _ := s.Get(ctx, other)
	if _, ok := snapOther.Data["user:lang"]; ok {
		t.Error("user-scoped key leaked across users")
	}
	if string(snapOther.Data["app:theme"]) != `"dark"` {
		t.Error("app-scoped key not visible across users")
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if _, err := s.Ensure(ctx, testID()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := s.ApplyDelta(ctx, testID(), session.Delta{Set: map[string]json.RawMessage{
		"session:k": json.RawMessage(`"v"`),
	}}, 0); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	snap, _ := s.Get(ctx, testID())
	snap.Data["session:k"] = json.RawMessage(`"mutated"`)

	again, _ := s.Get(ctx, testID())
	if string(again.Data["session:k"]) != `"v"` {
		t.Error("mutating a returned snapshot leaked into the store")
	}
}
