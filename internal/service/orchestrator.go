package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/harmonium-ai/harmonium/internal/adapter/otel"
	"github.com/harmonium-ai/harmonium/internal/config"
	"github.com/harmonium-ai/harmonium/internal/domain"
	"github.com/harmonium-ai/harmonium/internal/domain/event"
	"github.com/harmonium-ai/harmonium/internal/domain/part"
	"github.com/harmonium-ai/harmonium/internal/domain/run"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
	"github.com/harmonium-ai/harmonium/internal/domain/task"
	"github.com/harmonium-ai/harmonium/internal/fault"
	"github.com/harmonium-ai/harmonium/internal/port/agentdriver"
	"github.com/harmonium-ai/harmonium/internal/port/eventstore"
	"github.com/harmonium-ai/harmonium/internal/port/remoteagent"
	"github.com/harmonium-ai/harmonium/internal/port/statestore"
)

// uiAcceptedTypes is what the UI layer can render; richer delegation output
// is repacked against it before leaving the orchestrator.
var uiAcceptedTypes = []string{part.MIMETextPlain, part.MIMEJSON}

// Orchestrator is the top-level control loop: it receives run requests,
// drives the agent runtime, serves its callbacks, and guarantees every run
// ends in a terminal state with a terminal stream event.
type Orchestrator struct {
	cfg      config.Runs
	state    statestore.Store
	events   eventstore.Store
	trans    *Translator
	bridge   *Bridge
	router   *Router
	packager *Packager
	metrics  *otel.Metrics
	log      *slog.Logger

	driver agentdriver.Driver
	remote remoteagent.Client

	mu   sync.RWMutex
	runs map[string]*runState
}

// runState is the orchestrator-side bookkeeping of one run. Everything here
// is run-local; the session store is the only shared mutable resource.
type runState struct {
	id     session.ID
	stream *Stream
	cancel context.CancelFunc
	done   chan struct{}

	cancelRequested atomic.Bool

	mu      sync.Mutex
	run     *run.Run
	version int64
	state   session.State
}

// NewOrchestrator creates the orchestrator service. The agent driver and
// remote client are late-bound via the Set methods.
func NewOrchestrator(cfg config.Runs, state statestore.Store, events eventstore.Store, trans *Translator, bridge *Bridge, router *Router, packager *Packager, metrics *otel.Metrics, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		state:    state,
		events:   events,
		trans:    trans,
		bridge:   bridge,
		router:   router,
		packager: packager,
		metrics:  metrics,
		log:      log,
		runs:     make(map[string]*runState),
	}
}

// SetDriver wires the agent runtime.
func (o *Orchestrator) SetDriver(d agentdriver.Driver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.driver = d
}

// SetRemoteClient wires the remote agent client.
func (o *Orchestrator) SetRemoteClient(c remoteagent.Client) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.remote = c
}

// StartRun starts a run for the request, or resumes a suspended ui_client
// tool call when the request carries a matching result. The run executes
// asynchronously; the returned Run reflects its state at creation.
func (o *Orchestrator) StartRun(ctx context.Context, req run.Request) (*run.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.ToolResult != nil {
		if call, ok := o.bridge.PendingCall(req.ToolResult.CallID); ok {
			if err := o.bridge.Resolve(ctx, *req.ToolResult); err != nil {
				return nil, err
			}
			return o.GetRun(call.RunID)
		}
		if req.Input == "" {
			return nil, fmt.Errorf("tool result %s: %w", req.ToolResult.CallID, domain.ErrNotFound)
		}
		// No matching suspension: fall through to fresh input processing.
	}

	sid := session.ID{
		Namespace: o.cfg.Namespace,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	}
	if _, err := o.state.Ensure(ctx, sid); err != nil {
		return nil, fmt.Errorf("ensure session %s: %w", sid, err)
	}

	snap, err := o.state.Get(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", sid, err)
	}

	r := &run.Run{
		ID:        uuid.NewString(),
		Session:   sid,
		Status:    run.StatusCreated,
		Input:     req.Input,
		StartedAt: time.Now().UTC(),
	}

	runCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if o.cfg.TurnTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, o.cfg.TurnTimeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}

	rs := &runState{
		id:      sid,
		run:     r,
		cancel:  cancel,
		done:    make(chan struct{}),
		version: snap.Version,
		state:   snap.Data,
	}
	rs.stream = o.trans.Stream(runCtx, r)

	o.mu.Lock()
	o.runs[r.ID] = rs
	o.mu.Unlock()

	if len(req.StateOverride) > 0 {
		delta := session.Delta{Set: req.StateOverride}
		if _, err := o.applyDelta(ctx, rs, delta, false); err != nil {
			cancel()
			return nil, fmt.Errorf("apply state override: %w", err)
		}
	}

	if o.metrics != nil {
		o.metrics.RunsStarted.Add(ctx, 1)
	}
	go o.execute(runCtx, rs)

	return o.GetRun(r.ID)
}

// Cancel requests cooperative cancellation of a run. In-flight tool calls
// and delegations observe the context abort; sealed artifacts already merged
// into session state stay there.
func (o *Orchestrator) Cancel(_ context.Context, runID string) error {
	o.mu.RLock()
	rs, ok := o.runs[runID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}

	rs.mu.Lock()
	terminal := rs.run.Status.Terminal()
	rs.mu.Unlock()
	if terminal {
		return nil
	}

	rs.cancelRequested.Store(true)
	rs.cancel()
	return nil
}

// GetRun returns a snapshot of the run.
func (o *Orchestrator) GetRun(runID string) (*run.Run, error) {
	o.mu.RLock()
	rs, ok := o.runs[runID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	return rs.snapshotRun(), nil
}

// RunsForSession lists this instance's runs for one session, newest first.
func (o *Orchestrator) RunsForSession(sid session.ID) []*run.Run {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var runs []*run.Run
	for _, rs := range o.runs {
		if rs.id == sid {
			runs = append(runs, rs.snapshotRun())
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs
}

// Events replays the persisted event stream of a run in sequence order.
func (o *Orchestrator) Events(ctx context.Context, runID string) ([]event.Event, error) {
	if _, err := o.GetRun(runID); err != nil {
		return nil, err
	}
	return o.events.LoadRun(ctx, runID)
}

// Wait blocks until the run reaches a terminal state.
func (o *Orchestrator) Wait(ctx context.Context, runID string) (*run.Run, error) {
	o.mu.RLock()
	rs, ok := o.runs[runID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	select {
	case <-rs.done:
		return rs.snapshotRun(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// execute drives one run to a terminal state. Whatever happens inside the
// turn, the stream always ends with run.finished or run.error.
func (o *Orchestrator) execute(ctx context.Context, rs *runState) {
	defer close(rs.done)

	ctx, span := otel.StartRunSpan(ctx, rs.run.ID, rs.id.String())
	defer span.End()

	o.setStatus(rs, run.StatusRunning)
	if err := rs.stream.RunStarted(rs.id.String()); err != nil {
		o.log.Error("emit run.started failed", "run_id", rs.run.ID, "error", err)
	}
	rs.mu.Lock()
	snap := session.Snapshot{Version: rs.version, Data: rs.state.Clone()}
	input := rs.run.Input
	rs.mu.Unlock()
	if err := rs.stream.StateSnapshot(snap); err != nil {
		o.log.Error("emit state.snapshot failed", "run_id", rs.run.ID, "error", err)
	}

	outcome, err := o.runTurn(ctx, rs, agentdriver.Turn{
		RunID:    rs.run.ID,
		Input:    input,
		Snapshot: snap,
	})

	// Terminal work must survive run cancellation.
	endCtx := context.WithoutCancel(ctx)
	o.cleanupTemp(endCtx, rs)
	o.finish(endCtx, rs, outcome, err)
}

// runTurn invokes the driver with panic containment: a panicking driver
// errors the run instead of killing the process.
func (o *Orchestrator) runTurn(ctx context.Context, rs *runState, turn agentdriver.Turn) (outcome *agentdriver.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fault.New(fault.KindRunFatal, fmt.Sprintf("agent driver panic: %v", p))
		}
	}()

	o.mu.RLock()
	driver := o.driver
	o.mu.RUnlock()
	if driver == nil {
		return nil, fault.New(fault.KindRunFatal, "no agent driver configured")
	}
	return driver.RunTurn(ctx, turn, &runHost{o: o, rs: rs})
}

// finish settles the run's terminal status and emits the terminal event.
func (o *Orchestrator) finish(ctx context.Context, rs *runState, outcome *agentdriver.Outcome, err error) {
	var emitErr error
	switch {
	case err == nil:
		output := ""
		if outcome != nil {
			output = outcome.Output
		}
		rs.mu.Lock()
		rs.run.Output = output
		rs.mu.Unlock()
		o.setStatus(rs, run.StatusFinished)
		emitErr = rs.stream.RunFinished(run.StatusFinished, output)
		if o.metrics != nil {
			o.metrics.RunsFinished.Add(ctx, 1)
		}
	case rs.cancelRequested.Load() || errors.Is(err, context.Canceled):
		o.setStatus(rs, run.StatusCancelled)
		emitErr = rs.stream.RunFinished(run.StatusCancelled, "")
		if o.metrics != nil {
			o.metrics.RunsFinished.Add(ctx, 1)
		}
	default:
		kind := fault.KindOf(err)
		if errors.Is(err, context.DeadlineExceeded) {
			kind = fault.KindRunFatal
		}
		rs.mu.Lock()
		rs.run.Error = err.Error()
		rs.mu.Unlock()
		o.setStatus(rs, run.StatusErrored)
		emitErr = rs.stream.RunError(kind, err.Error())
		if o.metrics != nil {
			o.metrics.RunsErrored.Add(ctx, 1)
		}
		o.log.Error("run errored", "run_id", rs.run.ID, "kind", kind, "error", err)
	}
	if emitErr != nil {
		o.log.Error("terminal event emit failed", "run_id", rs.run.ID, "error", emitErr)
	}

	if err := rs.stream.Wait(ctx); err != nil {
		o.log.Error("stream flush interrupted", "run_id", rs.run.ID, "error", err)
	}

	rs.mu.Lock()
	now := time.Now().UTC()
	rs.run.CompletedAt = &now
	duration := now.Sub(rs.run.StartedAt)
	rs.mu.Unlock()
	if o.metrics != nil {
		o.metrics.RunDuration.Record(ctx, duration.Seconds())
	}
	rs.cancel()
}

// cleanupTemp deletes every temp:-scoped key at run end.
func (o *Orchestrator) cleanupTemp(ctx context.Context, rs *runState) {
	rs.mu.Lock()
	var keys []string
	for key := range rs.state {
		if scope, err := session.ParseScope(key); err == nil && scope == session.ScopeTemp {
			keys = append(keys, key)
		}
	}
	rs.mu.Unlock()
	if len(keys) == 0 {
		return
	}

	if _, err := o.applyDelta(ctx, rs, session.Delta{Delete: keys}, true); err != nil {
		o.log.Error("temp key cleanup failed", "run_id", rs.run.ID, "error", err)
	}
}

// applyDelta pushes a delta through the session store with optimistic
// retries: on CONFLICT the state is re-read and the delta re-applied against
// the fresh version, up to the configured budget. Conflicts never surface;
// exhaustion is fatal.
func (o *Orchestrator) applyDelta(ctx context.Context, rs *runState, delta session.Delta, emit bool) (int64, error) {
	if err := delta.Validate(); err != nil {
		return 0, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	attempts := o.cfg.ConflictRetries + 1
	for i := 0; i < attempts; i++ {
		version, err := o.state.ApplyDelta(ctx, rs.id, delta, rs.version)
		if err == nil {
			rs.version = version
			rs.state = rs.state.Apply(delta)
			if emit {
				if err := rs.stream.StateDelta(version, delta); err != nil {
					return 0, err
				}
			}
			return version, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return 0, err
		}
		if o.metrics != nil {
			o.metrics.StateConflicts.Add(ctx, 1)
		}
		snap, readErr := o.state.Get(ctx, rs.id)
		if readErr != nil {
			return 0, fmt.Errorf("re-read after conflict: %w", readErr)
		}
		// The re-read absorbs a concurrent writer's keys into this run's
		// view. Those keys must reach the stream too, or replaying the
		// snapshot plus deltas would miss them.
		if emit {
			if absorbed := rs.state.Diff(snap.Data); !absorbed.Empty() {
				if err := rs.stream.StateDelta(snap.Version, absorbed); err != nil {
					return 0, err
				}
			}
		}
		rs.version = snap.Version
		rs.state = snap.Data
	}
	return 0, fault.Wrap(fault.KindRunFatal,
		fmt.Sprintf("delta on %s still conflicting after %d attempts", rs.id, attempts), domain.ErrConflict)
}

func (o *Orchestrator) setStatus(rs *runState, to run.Status) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := run.Transition(rs.run.Status, to); err != nil {
		o.log.Error("illegal run transition",
			"run_id", rs.run.ID, "from", rs.run.Status, "to", to)
		return
	}
	rs.run.Status = to
}

func (rs *runState) snapshotRun() *run.Run {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r := &run.Run{
		ID:        rs.run.ID,
		Session:   rs.run.Session,
		Status:    rs.run.Status,
		Input:     rs.run.Input,
		Output:    rs.run.Output,
		Error:     rs.run.Error,
		StartedAt: rs.run.StartedAt,
	}
	if rs.run.CompletedAt != nil {
		t := *rs.run.CompletedAt
		r.CompletedAt = &t
	}
	return r
}

// runHost serves the driver's callbacks for one run. Every method is a
// suspension point honoring ctx cancellation.
type runHost struct {
	o  *Orchestrator
	rs *runState
}

// Say streams text as one logical assistant message.
func (h *runHost) Say(_ context.Context, text string) error {
	messageID := uuid.NewString()
	if err := h.rs.stream.MessageStart(messageID, "assistant"); err != nil {
		return err
	}
	if err := h.rs.stream.MessageContent(messageID, text); err != nil {
		return err
	}
	return h.rs.stream.MessageEnd(messageID)
}

// CallTool invokes a capability through the bridge. A ui_client call
// suspends the run until the result arrives or its deadline expires.
func (h *runHost) CallTool(ctx context.Context, call run.ToolCall) (*run.ToolResult, error) {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	call.RunID = h.rs.run.ID

	ctx, span := otel.StartToolCallSpan(ctx, call.ID, call.Name, string(call.Target))
	defer span.End()
	if h.o.metrics != nil {
		h.o.metrics.ToolCalls.Add(ctx, 1)
	}

	suspended := call.Target == run.TargetUIClient
	if suspended {
		h.o.setStatus(h.rs, run.StatusSuspended)
	}
	result, err := h.o.bridge.Invoke(ctx, h.rs.stream, call)
	if suspended {
		h.o.setStatus(h.rs, run.StatusRunning)
	}
	return result, err
}

// Delegate routes a sub-task and executes the chosen plan. Recoverable
// faults (NO_ROUTE, REMOTE_UNAVAILABLE) come back as failed results the
// agent can reason about; sealed artifacts are merged into session state.
func (h *runHost) Delegate(ctx context.Context, t task.DelegationTask) (*task.DelegationResult, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.RunID = h.rs.run.ID

	ctx, span := otel.StartDelegationSpan(ctx, t.ID, t.Skill)
	defer span.End()

	plan, err := h.o.router.Route(&t)
	if err != nil {
		if fault.Recoverable(err) {
			return &task.DelegationResult{TaskID: t.ID, Status: task.StatusFailed, Error: err.Error()}, nil
		}
		return nil, err
	}

	stepName := "delegate"
	if t.Skill != "" {
		stepName = "delegate:" + t.Skill
	}
	if err := h.rs.stream.StepStarted(t.ID, stepName); err != nil {
		return nil, err
	}

	var result *task.DelegationResult
	switch plan.Kind {
	case PlanLocal:
		result, err = h.delegateLocal(ctx, t)
	case PlanTool:
		result, err = h.delegateTool(ctx, t, plan.Tool)
	case PlanRemote:
		result, err = h.delegateRemote(ctx, t, plan)
	}
	if err != nil {
		if fault.Recoverable(err) {
			result = &task.DelegationResult{TaskID: t.ID, Status: task.StatusFailed, Error: err.Error()}
		} else {
			_ = h.rs.stream.StepFinished(t.ID, "failed")
			return nil, err
		}
	}

	if err := h.mergeArtifacts(ctx, result); err != nil {
		return nil, err
	}

	stepStatus := "finished"
	if result.Status != task.StatusCompleted {
		stepStatus = "failed"
	}
	if err := h.rs.stream.StepFinished(t.ID, stepStatus); err != nil {
		return nil, err
	}
	return result, nil
}

// delegateLocal runs the sub-task as a nested driver turn against the
// current state.
func (h *runHost) delegateLocal(ctx context.Context, t task.DelegationTask) (*task.DelegationResult, error) {
	h.rs.mu.Lock()
	snap := session.Snapshot{Version: h.rs.version, Data: h.rs.state.Clone()}
	h.rs.mu.Unlock()

	h.o.mu.RLock()
	driver := h.o.driver
	h.o.mu.RUnlock()
	if driver == nil {
		return nil, fault.New(fault.KindRunFatal, "no agent driver configured")
	}

	outcome, err := driver.RunTurn(ctx, agentdriver.Turn{
		RunID:    h.rs.run.ID,
		Input:    t.Input,
		Snapshot: snap,
	}, h)
	if err != nil {
		return nil, err
	}

	artifact := h.o.packager.Pack("", "local:"+t.ID,
		[]part.Part{part.NewText(outcome.Output)}, uiAcceptedTypes)
	return &task.DelegationResult{
		TaskID:    t.ID,
		Status:    task.StatusCompleted,
		Artifacts: []part.Artifact{artifact},
	}, nil
}

// delegateTool satisfies the task through a single tool call.
func (h *runHost) delegateTool(ctx context.Context, t task.DelegationTask, tool string) (*task.DelegationResult, error) {
	args, err := json.Marshal(map[string]string{"input": t.Input})
	if err != nil {
		return nil, err
	}

	target := run.TargetToolServer
	if h.o.bridge.HasLocal(tool) {
		target = run.TargetLocal
	}
	result, err := h.CallTool(ctx, run.ToolCall{
		ID:        uuid.NewString(),
		Name:      tool,
		Arguments: args,
		Target:    target,
	})
	if err != nil {
		return nil, err
	}
	if result.Failed() {
		return &task.DelegationResult{TaskID: t.ID, Status: task.StatusFailed, Error: result.Error}, nil
	}

	artifact := h.o.packager.Pack("", "tool:"+tool,
		[]part.Part{part.NewData(result.Payload)}, uiAcceptedTypes)
	return &task.DelegationResult{
		TaskID:    t.ID,
		Status:    task.StatusCompleted,
		Artifacts: []part.Artifact{artifact},
	}, nil
}

// delegateRemote forwards the task to the chosen agent with filtered
// context. An unreachable agent degrades to a failed result; the run
// continues without it.
func (h *runHost) delegateRemote(ctx context.Context, t task.DelegationTask, plan *ExecutionPlan) (*task.DelegationResult, error) {
	h.o.mu.RLock()
	remote := h.o.remote
	h.o.mu.RUnlock()
	if remote == nil {
		return nil, fault.New(fault.KindNoRoute, "no remote agent client configured")
	}

	h.rs.mu.Lock()
	full := h.rs.state.Clone()
	h.rs.mu.Unlock()
	t.FilteredContext = h.o.router.FilterContext(full, plan.Agent)

	if h.o.metrics != nil {
		h.o.metrics.Delegations.Add(ctx, 1)
	}

	onUpdate := func(u task.Update) error {
		if u.Status != nil && u.Status.Message != "" {
			h.o.log.Debug("delegation update",
				"task_id", t.ID, "status", u.Status.Status, "message", u.Status.Message)
		}
		return nil
	}
	result, err := remote.Send(ctx, plan.Agent.Endpoint, &t, onUpdate)
	if err != nil {
		return nil, err
	}

	for i := range result.Artifacts {
		result.Artifacts[i] = h.o.packager.Repack(result.Artifacts[i], uiAcceptedTypes)
	}
	return result, nil
}

// mergeArtifacts persists sealed artifacts into session state so they
// survive the run, including a later cancellation.
func (h *runHost) mergeArtifacts(ctx context.Context, result *task.DelegationResult) error {
	if len(result.Artifacts) == 0 {
		return nil
	}
	set := make(map[string]json.RawMessage, len(result.Artifacts))
	for _, artifact := range result.Artifacts {
		data, err := json.Marshal(artifact)
		if err != nil {
			return fmt.Errorf("encode artifact %s: %w", artifact.ID, err)
		}
		set["session:artifact."+artifact.ID] = data
	}
	_, err := h.o.applyDelta(ctx, h.rs, session.Delta{Set: set}, true)
	return err
}

// PatchState applies a driver-provided delta and emits the matching
// state.delta event.
func (h *runHost) PatchState(ctx context.Context, delta session.Delta) error {
	if delta.Empty() {
		return nil
	}
	_, err := h.o.applyDelta(ctx, h.rs, delta, true)
	return err
}

// State returns the run's current merged view of session state.
func (h *runHost) State(_ context.Context) (session.State, error) {
	h.rs.mu.Lock()
	defer h.rs.mu.Unlock()
	return h.rs.state.Clone(), nil
}
