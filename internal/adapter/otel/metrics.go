package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "harmonium"

// Metrics holds all Harmonium metric instruments.
type Metrics struct {
	RunsStarted    metric.Int64Counter
	RunsFinished   metric.Int64Counter
	RunsErrored    metric.Int64Counter
	ToolCalls      metric.Int64Counter
	Delegations    metric.Int64Counter
	StateConflicts metric.Int64Counter
	RunDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("harmonium.runs.started",
		metric.WithDescription("Number of runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsFinished, err = meter.Int64Counter("harmonium.runs.finished",
		metric.WithDescription("Number of runs finished successfully"))
	if err != nil {
		return nil, err
	}

	m.RunsErrored, err = meter.Int64Counter("harmonium.runs.errored",
		metric.WithDescription("Number of runs ending in error"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("harmonium.toolcalls",
		metric.WithDescription("Number of tool invocations by target"))
	if err != nil {
		return nil, err
	}

	m.Delegations, err = meter.Int64Counter("harmonium.delegations",
		metric.WithDescription("Number of tasks delegated to remote agents"))
	if err != nil {
		return nil, err
	}

	m.StateConflicts, err = meter.Int64Counter("harmonium.state.conflicts",
		metric.WithDescription("Number of optimistic concurrency conflicts"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("harmonium.run.duration_seconds",
		metric.WithDescription("Run duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
