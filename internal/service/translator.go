// Package service wires the domain together: event translation, tool
// bridging, delegation routing, content packaging, and the orchestrator
// state machine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harmonium-ai/harmonium/internal/config"
	"github.com/harmonium-ai/harmonium/internal/domain/event"
	"github.com/harmonium-ai/harmonium/internal/domain/run"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
	"github.com/harmonium-ai/harmonium/internal/fault"
	"github.com/harmonium-ai/harmonium/internal/port/broadcast"
	"github.com/harmonium-ai/harmonium/internal/port/eventstore"
)

// ErrStreamClosed is returned for any emit after the terminal event.
var ErrStreamClosed = errors.New("event stream is closed")

// Translator turns runtime signals into the canonical per-run event stream.
// Each run gets its own Stream; the translator only carries the shared
// dependencies.
type Translator struct {
	store  eventstore.Store
	hub    broadcast.Broadcaster
	buffer int
	log    *slog.Logger
}

// NewTranslator creates the event translator service.
func NewTranslator(store eventstore.Store, hub broadcast.Broadcaster, cfg config.Stream, log *slog.Logger) *Translator {
	return &Translator{
		store:  store,
		hub:    hub,
		buffer: cfg.BufferSize,
		log:    log,
	}
}

// Stream opens the event stream for r and starts the consumer pump. The
// stream stays alive past ctx cancellation so terminal events still flush.
func (t *Translator) Stream(ctx context.Context, r *run.Run) *Stream {
	s := &Stream{
		translator: t,
		run:        r,
		ch:         make(chan event.Event, t.buffer),
		done:       make(chan struct{}),
		openCalls:  make(map[string]bool),
	}
	go s.pump(context.WithoutCancel(ctx))
	return s
}

// Stream emits the ordered event sequence of one run. Emitters block once
// the buffer watermark is reached; events are never dropped. All methods are
// safe for concurrent use; the internal lock also serializes sequence
// assignment, so emitted order equals sequence order.
type Stream struct {
	translator *Translator
	run        *run.Run
	ch         chan event.Event
	done       chan struct{}

	mu          sync.Mutex
	closed      bool
	openMessage string
	openCalls   map[string]bool
}

// pump persists and broadcasts events in order until the stream closes.
func (s *Stream) pump(ctx context.Context) {
	defer close(s.done)
	for ev := range s.ch {
		if err := s.translator.store.Append(ctx, ev); err != nil {
			s.translator.log.Error("event append failed",
				"run_id", ev.RunID, "seq", ev.Seq, "type", ev.Type, "error", err)
		}
		s.translator.hub.BroadcastEvent(ctx, ev)
	}
}

// Wait blocks until every emitted event has been persisted and broadcast.
func (s *Stream) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) emitLocked(typ event.Type, payload any) error {
	if s.closed {
		return ErrStreamClosed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", typ, err)
	}
	s.ch <- event.Event{
		ID:        uuid.NewString(),
		RunID:     s.run.ID,
		Seq:       s.run.NextSeq(),
		Type:      typ,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *Stream) emit(typ event.Type, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitLocked(typ, payload)
}

// RunStarted opens the stream.
func (s *Stream) RunStarted(sessionID string) error {
	return s.emit(event.TypeRunStarted, event.RunStartedPayload{
		RunID:     s.run.ID,
		SessionID: sessionID,
	})
}

// StateSnapshot emits the full state the run starts from.
func (s *Stream) StateSnapshot(snap session.Snapshot) error {
	return s.emit(event.TypeStateSnapshot, event.StateSnapshotPayload{
		Version: snap.Version,
		Data:    snap.Data,
	})
}

// StateDelta emits exactly the delta the session store accepted. The payload
// is never re-derived, so replay matches the store byte-for-byte.
func (s *Stream) StateDelta(version int64, delta session.Delta) error {
	return s.emit(event.TypeStateDelta, event.StateDeltaPayload{
		Version: version,
		Delta:   delta,
	})
}

// MessageStart opens a logical assistant message. Only one message may be
// open at a time.
func (s *Stream) MessageStart(messageID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openMessage != "" {
		return fmt.Errorf("message %s started while %s is open", messageID, s.openMessage)
	}
	if err := s.emitLocked(event.TypeMessageStart, event.MessageStartPayload{
		MessageID: messageID,
		Role:      role,
	}); err != nil {
		return err
	}
	s.openMessage = messageID
	return nil
}

// MessageContent streams one chunk of the open message.
func (s *Stream) MessageContent(messageID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openMessage != messageID {
		return fmt.Errorf("message %s is not open", messageID)
	}
	return s.emitLocked(event.TypeMessageContent, event.MessageContentPayload{
		MessageID: messageID,
		Text:      text,
	})
}

// MessageEnd closes the open message.
func (s *Stream) MessageEnd(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openMessage != messageID {
		return fmt.Errorf("message %s is not open", messageID)
	}
	if err := s.emitLocked(event.TypeMessageEnd, event.MessageEndPayload{
		MessageID: messageID,
	}); err != nil {
		return err
	}
	s.openMessage = ""
	return nil
}

// ToolCallStart announces a tool invocation.
func (s *Stream) ToolCallStart(call run.ToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openCalls[call.ID] {
		return fmt.Errorf("tool call %s started twice", call.ID)
	}
	if err := s.emitLocked(event.TypeToolCallStart, event.ToolCallStartPayload{
		CallID: call.ID,
		Name:   call.Name,
		Target: string(call.Target),
	}); err != nil {
		return err
	}
	s.openCalls[call.ID] = true
	return nil
}

// ToolCallArgs streams one fragment of the call arguments.
func (s *Stream) ToolCallArgs(callID string, args json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.openCalls[callID] {
		return fmt.Errorf("tool call %s is not open", callID)
	}
	return s.emitLocked(event.TypeToolCallArgs, event.ToolCallArgsPayload{
		CallID: callID,
		Args:   args,
	})
}

// ToolCallEnd closes the argument stream of a call.
func (s *Stream) ToolCallEnd(callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.openCalls[callID] {
		return fmt.Errorf("tool call %s is not open", callID)
	}
	if err := s.emitLocked(event.TypeToolCallEnd, event.ToolCallEndPayload{
		CallID: callID,
	}); err != nil {
		return err
	}
	delete(s.openCalls, callID)
	return nil
}

// ToolCallResult reports the resolution of a call.
func (s *Stream) ToolCallResult(result run.ToolResult) error {
	return s.emit(event.TypeToolCallResult, event.ToolCallResultPayload{
		CallID:  result.CallID,
		Payload: result.Payload,
		Error:   result.Error,
	})
}

// StepStarted opens a named step within the run.
func (s *Stream) StepStarted(stepID, name string) error {
	return s.emit(event.TypeStepStarted, event.StepStartedPayload{
		StepID: stepID,
		Name:   name,
	})
}

// StepFinished closes a named step.
func (s *Stream) StepFinished(stepID, status string) error {
	return s.emit(event.TypeStepFinished, event.StepFinishedPayload{
		StepID: stepID,
		Status: status,
	})
}

// RunFinished emits the terminal event for a finished or cancelled run and
// closes the stream. Open messages and tool calls are closed first so the
// pairing invariant holds on every exit path.
func (s *Stream) RunFinished(status run.Status, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closeOpenLocked(); err != nil {
		return err
	}
	if err := s.emitLocked(event.TypeRunFinished, event.RunFinishedPayload{
		RunID:  s.run.ID,
		Status: string(status),
		Output: output,
	}); err != nil {
		return err
	}
	s.closeLocked()
	return nil
}

// RunError emits the terminal error event and closes the stream. No further
// events follow on the run.
func (s *Stream) RunError(kind fault.Kind, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closeOpenLocked(); err != nil {
		return err
	}
	if err := s.emitLocked(event.TypeRunError, event.RunErrorPayload{
		RunID:   s.run.ID,
		Code:    string(kind),
		Message: message,
	}); err != nil {
		return err
	}
	s.closeLocked()
	return nil
}

// closeOpenLocked closes any message or tool call left open by an aborted
// producer, in deterministic order.
func (s *Stream) closeOpenLocked() error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.openMessage != "" {
		if err := s.emitLocked(event.TypeMessageEnd, event.MessageEndPayload{
			MessageID: s.openMessage,
		}); err != nil {
			return err
		}
		s.openMessage = ""
	}
	ids := make([]string, 0, len(s.openCalls))
	for id := range s.openCalls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := s.emitLocked(event.TypeToolCallEnd, event.ToolCallEndPayload{
			CallID: id,
		}); err != nil {
			return err
		}
		delete(s.openCalls, id)
	}
	return nil
}

func (s *Stream) closeLocked() {
	s.closed = true
	close(s.ch)
}
