package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "harmonium"

// StartRunSpan starts a span covering one orchestration run.
func StartRunSpan(ctx context.Context, runID, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("session.id", sessionID),
		),
	)
}

// StartToolCallSpan starts a span for a tool invocation within a run.
func StartToolCallSpan(ctx context.Context, callID, tool, target string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.id", callID),
			attribute.String("toolcall.tool", tool),
			attribute.String("toolcall.target", target),
		),
	)
}

// StartDelegationSpan starts a span for a task delegated to a remote agent.
func StartDelegationSpan(ctx context.Context, taskID, skill string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "delegation",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.skill", skill),
		),
	)
}
