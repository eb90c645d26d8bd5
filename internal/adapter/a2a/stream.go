package a2a

import (
	"fmt"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/harmonium-ai/harmonium/internal/domain/part"
	"github.com/harmonium-ai/harmonium/internal/domain/task"
)

// mapEvent converts one protocol event into a task update, or nil when the
// event carries nothing the orchestrator needs.
func mapEvent(event a2a.Event, acc *accumulator) *task.Update {
	switch e := event.(type) {
	case *a2a.TaskStatusUpdateEvent:
		return &task.Update{Status: &task.StatusUpdate{
			Status:  mapState(e.Status.State),
			Message: messagePartsText(e.Status.Message),
		}}
	case *a2a.TaskArtifactUpdateEvent:
		if e.Artifact == nil {
			return nil
		}
		return &task.Update{Artifact: &task.ArtifactUpdate{
			ArtifactID: acc.attemptID(string(e.Artifact.ID)),
			Parts:      mapParts(e.Artifact.Parts),
			Append:     e.Append,
		}}
	case *a2a.Message:
		text := partsText(e.Parts)
		if text == "" {
			return nil
		}
		return &task.Update{Status: &task.StatusUpdate{
			Status:  task.StatusWorking,
			Message: text,
		}}
	case *a2a.Task:
		return &task.Update{Status: &task.StatusUpdate{
			Status:  mapState(e.Status.State),
			Message: messagePartsText(e.Status.Message),
		}}
	default:
		return nil
	}
}

func mapState(state a2a.TaskState) task.Status {
	switch state {
	case a2a.TaskStateCompleted:
		return task.StatusCompleted
	case a2a.TaskStateFailed:
		return task.StatusFailed
	case a2a.TaskStateCanceled:
		return task.StatusCancelled
	default:
		return task.StatusWorking
	}
}

func messagePartsText(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	return partsText(msg.Parts)
}

func partsText(parts a2a.ContentParts) string {
	var sb strings.Builder
	for _, p := range parts {
		switch tp := p.(type) {
		case *a2a.TextPart:
			sb.WriteString(tp.Text)
		case a2a.TextPart:
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// mapParts converts protocol parts to domain parts. Unknown part types
// degrade to a descriptive text part rather than being dropped silently.
func mapParts(parts []a2a.Part) []part.Part {
	out := make([]part.Part, 0, len(parts))
	for _, p := range parts {
		switch tp := p.(type) {
		case *a2a.TextPart:
			out = append(out, part.NewText(tp.Text))
		case a2a.TextPart:
			out = append(out, part.NewText(tp.Text))
		default:
			out = append(out, part.NewText(fmt.Sprintf("[unsupported part type %T]", p)))
		}
	}
	return out
}

// accumulatorError marks a protocol violation in the stream (for example an
// append to a sealed artifact). Never retried.
type accumulatorError struct {
	err error
}

func (e *accumulatorError) Error() string { return e.err.Error() }
func (e *accumulatorError) Unwrap() error { return e.err }

// accumulator assembles streamed artifact updates into whole artifacts and
// tracks the task's terminal status. Sealed artifacts are immutable: a retry
// after partial delivery opens fresh artifacts under an attempt-suffixed ID
// instead of rewriting delivered content.
type accumulator struct {
	taskID    string
	attempt   int
	order     []string
	artifacts map[string]*part.Artifact
	status    task.Status
	errMsg    string
}

func newAccumulator(taskID string) *accumulator {
	return &accumulator{
		taskID:    taskID,
		attempt:   1,
		artifacts: make(map[string]*part.Artifact),
		status:    task.StatusWorking,
	}
}

// nextAttempt seals everything delivered so far and shifts subsequent
// artifact IDs onto a retry suffix.
func (a *accumulator) nextAttempt() {
	a.attempt++
	for _, art := range a.artifacts {
		art.Seal()
	}
}

// attemptID namespaces an artifact ID by retry attempt.
func (a *accumulator) attemptID(id string) string {
	if a.attempt == 1 {
		return id
	}
	return fmt.Sprintf("%s.retry-%d", id, a.attempt-1)
}

func (a *accumulator) apply(u *task.Update) error {
	switch {
	case u.Artifact != nil:
		return a.applyArtifact(u.Artifact)
	case u.Status != nil:
		a.status = u.Status.Status
		if a.status == task.StatusFailed && u.Status.Message != "" {
			a.errMsg = u.Status.Message
		}
	}
	return nil
}

func (a *accumulator) applyArtifact(u *task.ArtifactUpdate) error {
	art, ok := a.artifacts[u.ArtifactID]
	if !ok || !u.Append {
		art = part.NewArtifact(u.ArtifactID, u.Name)
		if !ok {
			a.order = append(a.order, u.ArtifactID)
		}
		a.artifacts[u.ArtifactID] = art
	}
	if err := art.Append(u.Parts...); err != nil {
		return &accumulatorError{err: fmt.Errorf("artifact %s: %w", u.ArtifactID, err)}
	}
	if u.LastChunk {
		art.Seal()
	}
	return nil
}

// result seals all artifacts and returns the terminal outcome. A stream
// that ended without an explicit terminal status counts as completed.
func (a *accumulator) result() *task.DelegationResult {
	res := &task.DelegationResult{
		TaskID: a.taskID,
		Status: a.status,
		Error:  a.errMsg,
	}
	if !res.Status.Terminal() {
		res.Status = task.StatusCompleted
	}
	for _, id := range a.order {
		art := a.artifacts[id]
		art.Seal()
		res.Artifacts = append(res.Artifacts, art.Snapshot())
	}
	return res
}
