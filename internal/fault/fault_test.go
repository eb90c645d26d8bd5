package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/harmonium-ai/harmonium/internal/fault"
)

func TestKindOf_Fault(t *testing.T) {
	err := fault.New(fault.KindToolTimeout, "increment never answered")
	if got := fault.KindOf(err); got != fault.KindToolTimeout {
		t.Fatalf("expected TOOL_TIMEOUT, got %s", got)
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := fault.New(fault.KindNoRoute, "no capable target")
	err := fmt.Errorf("route task: %w", inner)
	if got := fault.KindOf(err); got != fault.KindNoRoute {
		t.Fatalf("expected NO_ROUTE through wrapping, got %s", got)
	}
}

func TestKindOf_Plain(t *testing.T) {
	if got := fault.KindOf(errors.New("boom")); got != fault.KindRunFatal {
		t.Fatalf("plain errors must classify as RUN_FATAL, got %s", got)
	}
}

func TestIs(t *testing.T) {
	err := fault.Wrap(fault.KindRemoteUnavailable, "dial", errors.New("refused"))
	if !fault.Is(err, fault.KindRemoteUnavailable) {
		t.Fatal("expected Is to match REMOTE_UNAVAILABLE")
	}
	if fault.Is(err, fault.KindToolTimeout) {
		t.Fatal("Is matched the wrong kind")
	}
}

func TestRecoverable(t *testing.T) {
	if !fault.Recoverable(fault.New(fault.KindStateConflict, "version 5 stale")) {
		t.Fatal("STATE_CONFLICT must be recoverable")
	}
	if fault.Recoverable(errors.New("panic: nil deref")) {
		t.Fatal("unclassified errors must not be recoverable")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := fault.Wrap(fault.KindRemoteUnavailable, "send task", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
}
