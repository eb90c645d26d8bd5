package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/harmonium-ai/harmonium/internal/domain/event"
	"github.com/harmonium-ai/harmonium/internal/domain/run"
)

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeResolver struct {
	got []run.ToolResult
	err error
}

func (f *fakeResolver) Resolve(_ context.Context, r run.ToolResult) error {
	f.got = append(f.got, r)
	return f.err
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLog(), nil)
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub(testLog(), nil)

	// Broadcast with no connections should not panic.
	hub.Broadcast(context.Background(), Message{
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	})
}

func TestHubBroadcastEventNoConnections(t *testing.T) {
	hub := NewHub(testLog(), nil)

	hub.BroadcastEvent(context.Background(), event.Event{
		ID:    "e1",
		RunID: "r1",
		Seq:   1,
		Type:  event.TypeRunStarted,
	})
}

func TestHubDispatchToolResult(t *testing.T) {
	resolver := &fakeResolver{}
	hub := NewHub(testLog(), resolver)

	payload, _ := json.Marshal(run.ToolResult{CallID: "c1", Payload: json.RawMessage(`{"ok":true}`)})
	msg, _ := json.Marshal(Message{Type: MessageToolResult, Payload: payload})
	hub.dispatch(context.Background(), msg)

	if len(resolver.got) != 1 {
		t.Fatalf("resolver calls = %d, want 1", len(resolver.got))
	}
	if resolver.got[0].CallID != "c1" {
		t.Errorf("CallID = %q, want c1", resolver.got[0].CallID)
	}
}

func TestHubDispatchIgnoresOtherTypes(t *testing.T) {
	resolver := &fakeResolver{}
	hub := NewHub(testLog(), resolver)

	msg, _ := json.Marshal(Message{Type: "ping", Payload: json.RawMessage(`{}`)})
	hub.dispatch(context.Background(), msg)

	if len(resolver.got) != 0 {
		t.Errorf("resolver calls = %d, want 0", len(resolver.got))
	}
}

func TestHubDispatchNoResolver(t *testing.T) {
	hub := NewHub(testLog(), nil)

	payload, _ := json.Marshal(run.ToolResult{CallID: "c1"})
	msg, _ := json.Marshal(Message{Type: MessageToolResult, Payload: payload})
	// Must log and drop, not panic.
	hub.dispatch(context.Background(), msg)
}

func TestHubDispatchMalformed(t *testing.T) {
	hub := NewHub(testLog(), &fakeResolver{})
	hub.dispatch(context.Background(), []byte("not json"))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub(testLog(), nil)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &conn{ws: nil, cancel: cancel}
	hub.remove(c)
}
