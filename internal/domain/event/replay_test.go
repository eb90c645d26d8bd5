package event_test

import (
	"encoding/json"
	"testing"

	"github.com/harmonium-ai/harmonium/internal/domain/event"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestReplayState(t *testing.T) {
	events := []event.Event{
		{Seq: 1, Type: event.TypeStateSnapshot, Payload: mustJSON(t, event.StateSnapshotPayload{
			Version: 3,
			Data:    session.State{"session:count": json.RawMessage(`0`)},
		})},
		{Seq: 2, Type: event.TypeStateDelta, Payload: mustJSON(t, event.StateDeltaPayload{
			Version: 4,
			Delta:   session.Delta{Set: map[string]json.RawMessage{"session:count": json.RawMessage(`1`)}},
		})},
		{Seq: 3, Type: event.TypeStateDelta, Payload: mustJSON(t, event.StateDeltaPayload{
			Version: 5,
			Delta: session.Delta{
				Set:    map[string]json.RawMessage{"temp:scratch": json.RawMessage(`"x"`)},
				Delete: []string{"session:count"},
			},
		})},
	}

	state, err := event.ReplayState(events)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if _, ok := state["session:count"]; ok {
		t.Fatal("deleted key survived replay")
	}
	if string(state["temp:scratch"]) != `"x"` {
		t.Fatalf("expected \"x\", got %s", state["temp:scratch"])
	}
}

func TestReplayState_DeltaBeforeSnapshot(t *testing.T) {
	events := []event.Event{
		{Seq: 1, Type: event.TypeStateDelta, Payload: mustJSON(t, event.StateDeltaPayload{})},
	}
	if _, err := event.ReplayState(events); err == nil {
		t.Fatal("expected error for delta before snapshot")
	}
}

func TestCheckOrdering(t *testing.T) {
	good := []event.Event{{Seq: 1}, {Seq: 2}, {Seq: 3}}
	if err := event.CheckOrdering(good); err != nil {
		t.Fatalf("expected ordered: %v", err)
	}
	gap := []event.Event{{Seq: 1}, {Seq: 3}}
	if err := event.CheckOrdering(gap); err == nil {
		t.Fatal("expected gap error")
	}
}

func TestCheckPairing_Messages(t *testing.T) {
	good := []event.Event{
		{Type: event.TypeMessageStart, Payload: mustJSON(t, event.MessageStartPayload{MessageID: "m1"})},
		{Type: event.TypeMessageEnd, Payload: mustJSON(t, event.MessageEndPayload{MessageID: "m1"})},
		{Type: event.TypeMessageStart, Payload: mustJSON(t, event.MessageStartPayload{MessageID: "m2"})},
		{Type: event.TypeMessageEnd, Payload: mustJSON(t, event.MessageEndPayload{MessageID: "m2"})},
	}
	if err := event.CheckPairing(good); err != nil {
		t.Fatalf("expected paired: %v", err)
	}

	overlap := []event.Event{
		{Type: event.TypeMessageStart, Payload: mustJSON(t, event.MessageStartPayload{MessageID: "m1"})},
		{Type: event.TypeMessageStart, Payload: mustJSON(t, event.MessageStartPayload{MessageID: "m2"})},
	}
	if err := event.CheckPairing(overlap); err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestCheckPairing_ToolCalls(t *testing.T) {
	dangling := []event.Event{
		{Type: event.TypeToolCallStart, Payload: mustJSON(t, event.ToolCallStartPayload{CallID: "c1"})},
	}
	if err := event.CheckPairing(dangling); err == nil {
		t.Fatal("expected dangling tool call error")
	}

	unmatched := []event.Event{
		{Type: event.TypeToolCallEnd, Payload: mustJSON(t, event.ToolCallEndPayload{CallID: "c9"})},
	}
	if err := event.CheckPairing(unmatched); err == nil {
		t.Fatal("expected unmatched end error")
	}
}
