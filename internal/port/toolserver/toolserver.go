// Package toolserver defines the port for invoking externally hosted tools.
package toolserver

import (
	"context"

	"github.com/harmonium-ai/harmonium/internal/domain/run"
)

// Invoker executes a tool call against an external tool server and maps the
// response into a ToolResult. Implementations must honor ctx cancellation
// and deadlines.
type Invoker interface {
	Invoke(ctx context.Context, call *run.ToolCall) (*run.ToolResult, error)

	// Tools lists the tool names the server currently exposes.
	Tools(ctx context.Context) ([]string, error)
}
