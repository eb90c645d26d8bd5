package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

// ErrNoSnapshot is returned when a stream carries deltas without a snapshot.
var ErrNoSnapshot = errors.New("stream has no state.snapshot event")

// ReplayState reconstructs session state from a run's ordered event stream:
// the state.snapshot applied first, then every state.delta in sequence order.
// The result must equal a direct read of the session store at run end.
func ReplayState(events []Event) (session.State, error) {
	var state session.State
	seen := false

	for i := range events {
		switch events[i].Type {
		case TypeStateSnapshot:
			var p StateSnapshotPayload
			if err := json.Unmarshal(events[i].Payload, &p); err != nil {
				return nil, fmt.Errorf("decode snapshot seq %d: %w", events[i].Seq, err)
			}
			state = p.Data.Clone()
			seen = true
		case TypeStateDelta:
			if !seen {
				return nil, ErrNoSnapshot
			}
			var p StateDeltaPayload
			if err := json.Unmarshal(events[i].Payload, &p); err != nil {
				return nil, fmt.Errorf("decode delta seq %d: %w", events[i].Seq, err)
			}
			state = state.Apply(p.Delta)
		}
	}

	if !seen {
		return nil, ErrNoSnapshot
	}
	return state, nil
}

// CheckOrdering verifies that sequence numbers are strictly increasing with
// no gaps, starting at 1.
func CheckOrdering(events []Event) error {
	for i := range events {
		want := uint64(i + 1)
		if events[i].Seq != want {
			return fmt.Errorf("seq gap at index %d: got %d, want %d", i, events[i].Seq, want)
		}
	}
	return nil
}

// CheckPairing verifies the message and tool-call pairing invariants: every
// message.start is closed by a matching message.end before the next message
// starts, and every tool.call.start has exactly one matching tool.call.end.
func CheckPairing(events []Event) error {
	openMessage := ""
	openCalls := map[string]bool{}

	for i := range events {
		switch events[i].Type {
		case TypeMessageStart:
			var p MessageStartPayload
			if err := json.Unmarshal(events[i].Payload, &p); err != nil {
				return err
			}
			if openMessage != "" {
				return fmt.Errorf("message %s started while %s is open", p.MessageID, openMessage)
			}
			openMessage = p.MessageID
		case TypeMessageEnd:
			var p MessageEndPayload
			if err := json.Unmarshal(events[i].Payload, &p); err != nil {
				return err
			}
			if openMessage != p.MessageID {
				return fmt.Errorf("message.end %s does not match open message %q", p.MessageID, openMessage)
			}
			openMessage = ""
		case TypeToolCallStart:
			var p ToolCallStartPayload
			if err := json.Unmarshal(events[i].Payload, &p); err != nil {
				return err
			}
			if openCalls[p.CallID] {
				return fmt.Errorf("tool call %s started twice", p.CallID)
			}
			openCalls[p.CallID] = true
		case TypeToolCallEnd:
			var p ToolCallEndPayload
			if err := json.Unmarshal(events[i].Payload, &p); err != nil {
				return err
			}
			if !openCalls[p.CallID] {
				return fmt.Errorf("tool.call.end %s without open start", p.CallID)
			}
			delete(openCalls, p.CallID)
		}
	}

	if openMessage != "" {
		return fmt.Errorf("message %s never ended", openMessage)
	}
	for id := range openCalls {
		return fmt.Errorf("tool call %s never ended", id)
	}
	return nil
}
