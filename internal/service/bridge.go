package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harmonium-ai/harmonium/internal/config"
	"github.com/harmonium-ai/harmonium/internal/domain/run"
	"github.com/harmonium-ai/harmonium/internal/fault"
	"github.com/harmonium-ai/harmonium/internal/port/toolserver"
	"github.com/harmonium-ai/harmonium/internal/resilience"
)

// LocalTool executes a capability inside the process.
type LocalTool func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolEmitter is the slice of a run's event stream the bridge emits on.
type ToolEmitter interface {
	ToolCallStart(call run.ToolCall) error
	ToolCallArgs(callID string, args json.RawMessage) error
	ToolCallEnd(callID string) error
	ToolCallResult(result run.ToolResult) error
}

// Bridge invokes tool calls uniformly across all three targets. Recoverable
// failures (timeouts, missing routes, unreachable servers) come back inside
// the ToolResult so the agent can react; only emit failures and malformed
// calls surface as errors.
//
// A ui_client call suspends on a channel keyed by tool_call_id until a
// matching result arrives from the UI, the deadline elapses, or the run is
// cancelled. The first result delivered wins; later duplicates are ignored.
type Bridge struct {
	cfg    config.Bridge
	server toolserver.Invoker
	log    *slog.Logger

	mu    sync.RWMutex
	local map[string]LocalTool

	pending sync.Map // tool_call_id -> *pendingCall
}

type pendingCall struct {
	call run.ToolCall
	ch   chan *run.ToolResult
}

// NewBridge creates the tool invocation bridge.
func NewBridge(cfg config.Bridge, log *slog.Logger) *Bridge {
	return &Bridge{
		cfg:   cfg,
		log:   log,
		local: make(map[string]LocalTool),
	}
}

// SetToolServer wires the external tool server invoker. Calls targeting
// remote_tool_server fail as NO_ROUTE until one is set.
func (b *Bridge) SetToolServer(inv toolserver.Invoker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.server = inv
}

// RegisterLocal registers an in-process tool handler.
func (b *Bridge) RegisterLocal(name string, fn LocalTool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.local[name] = fn
}

// HasLocal reports whether an in-process handler exists for name.
func (b *Bridge) HasLocal(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.local[name]
	return ok
}

// Invoke executes call and emits the tool.call.* events on stream. The
// returned result always carries the call's ID.
func (b *Bridge) Invoke(ctx context.Context, stream ToolEmitter, call run.ToolCall) (*run.ToolResult, error) {
	if err := call.Validate(); err != nil {
		return nil, fmt.Errorf("invoke tool: %w", err)
	}

	if err := stream.ToolCallStart(call); err != nil {
		return nil, err
	}
	if len(call.Arguments) > 0 {
		if err := stream.ToolCallArgs(call.ID, call.Arguments); err != nil {
			return nil, err
		}
	}
	if err := stream.ToolCallEnd(call.ID); err != nil {
		return nil, err
	}

	var result *run.ToolResult
	switch call.Target {
	case run.TargetLocal:
		result = b.invokeLocal(ctx, call)
	case run.TargetToolServer:
		result = b.invokeServer(ctx, call)
	case run.TargetUIClient:
		result = b.awaitUIResult(ctx, call)
	}

	if err := stream.ToolCallResult(*result); err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Bridge) invokeLocal(ctx context.Context, call run.ToolCall) *run.ToolResult {
	b.mu.RLock()
	fn, ok := b.local[call.Name]
	b.mu.RUnlock()
	if !ok {
		return failure(call.ID, fault.New(fault.KindNoRoute,
			fmt.Sprintf("no local tool named %s", call.Name)))
	}

	payload, err := fn(ctx, call.Arguments)
	if err != nil {
		return failure(call.ID, err)
	}
	return &run.ToolResult{CallID: call.ID, Payload: payload}
}

func (b *Bridge) invokeServer(ctx context.Context, call run.ToolCall) *run.ToolResult {
	b.mu.RLock()
	server := b.server
	b.mu.RUnlock()
	if server == nil {
		return failure(call.ID, fault.New(fault.KindNoRoute, "no tool server configured"))
	}

	result, err := server.Invoke(ctx, &call)
	if err != nil {
		return failure(call.ID, classifyServerError(call, err))
	}
	return result
}

// awaitUIResult suspends until the UI delivers a result for call or the
// deadline elapses. The pending entry is removed on every exit path, so an
// abandoned call cannot leak.
func (b *Bridge) awaitUIResult(ctx context.Context, call run.ToolCall) *run.ToolResult {
	pc := &pendingCall{call: call, ch: make(chan *run.ToolResult, 1)}
	b.pending.Store(call.ID, pc)
	defer b.pending.Delete(call.ID)

	b.log.Info("tool call suspended on ui client",
		"run_id", call.RunID, "tool_call_id", call.ID, "name", call.Name)

	select {
	case result := <-pc.ch:
		return result
	case <-time.After(b.cfg.UIResultTimeout):
		return failure(call.ID, fault.New(fault.KindToolTimeout,
			fmt.Sprintf("ui client did not resolve call %s within %s", call.ID, b.cfg.UIResultTimeout)))
	case <-ctx.Done():
		return failure(call.ID, fmt.Errorf("call %s cancelled: %w", call.ID, ctx.Err()))
	}
}

// Resolve delivers a UI-provided result to the suspended call. The first
// result wins; an unknown or already-resolved call is an error the caller
// can report back to the UI.
func (b *Bridge) Resolve(_ context.Context, result run.ToolResult) error {
	v, ok := b.pending.LoadAndDelete(result.CallID)
	if !ok {
		return fmt.Errorf("no pending tool call %s", result.CallID)
	}
	pc := v.(*pendingCall)
	select {
	case pc.ch <- &result:
	default:
	}
	return nil
}

// PendingCalls lists the calls currently suspended on a UI client.
func (b *Bridge) PendingCalls() []run.ToolCall {
	var calls []run.ToolCall
	b.pending.Range(func(_, v any) bool {
		calls = append(calls, v.(*pendingCall).call)
		return true
	})
	return calls
}

// PendingCall returns the suspended call with the given ID.
func (b *Bridge) PendingCall(callID string) (run.ToolCall, bool) {
	v, ok := b.pending.Load(callID)
	if !ok {
		return run.ToolCall{}, false
	}
	return v.(*pendingCall).call, true
}

// failure wraps err as a structured tool result.
func failure(callID string, err error) *run.ToolResult {
	return &run.ToolResult{CallID: callID, Error: err.Error()}
}

// classifyServerError maps transport failures onto the fault kinds the agent
// reasons about.
func classifyServerError(call run.ToolCall, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fault.Wrap(fault.KindToolTimeout,
			fmt.Sprintf("tool server call %s exceeded its deadline", call.Name), err)
	case errors.Is(err, resilience.ErrCircuitOpen):
		return fault.Wrap(fault.KindRemoteUnavailable,
			fmt.Sprintf("tool server circuit open for %s", call.Name), err)
	default:
		return err
	}
}
