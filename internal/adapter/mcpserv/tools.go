package mcpserv

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.getRunStatusTool(),
		s.getSessionStateTool(),
		s.listPendingToolCallsTool(),
	)
}

func (s *Server) getRunStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_run_status",
		mcplib.WithDescription("Get the status of an orchestration run by run ID"),
		mcplib.WithString("run_id",
			mcplib.Required(),
			mcplib.Description("The run ID to check"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetRunStatus,
	}
}

func (s *Server) getSessionStateTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_session_state",
		mcplib.WithDescription("Get the merged state snapshot of a session"),
		mcplib.WithString("namespace",
			mcplib.Required(),
			mcplib.Description("Application namespace of the session"),
		),
		mcplib.WithString("user_id",
			mcplib.Required(),
			mcplib.Description("User the session belongs to"),
		),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session ID"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetSessionState,
	}
}

func (s *Server) listPendingToolCallsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_pending_tool_calls",
		mcplib.WithDescription("List tool calls currently suspended waiting on a UI client"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListPendingToolCalls,
	}
}

func (s *Server) handleGetRunStatus(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runs == nil {
		return mcplib.NewToolResultError("run reader not configured"), nil
	}
	args := req.GetArguments()
	runID, ok := args["run_id"].(string)
	if !ok || runID == "" {
		return mcplib.NewToolResultError("run_id is required"), nil
	}
	r, err := s.deps.Runs.GetRun(runID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get run %s", runID), err,
		), nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal run", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetSessionState(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.State == nil {
		return mcplib.NewToolResultError("state reader not configured"), nil
	}
	args := req.GetArguments()
	id := session.ID{}
	id.Namespace, _ = args["namespace"].(string)
	id.UserID, _ = args["user_id"].(string)
	id.SessionID, _ = args["session_id"].(string)
	if err := id.Validate(); err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid session id", err), nil
	}

	snap, err := s.deps.State.Get(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get session %s", id), err,
		), nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal snapshot", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListPendingToolCalls(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Pending == nil {
		return mcplib.NewToolResultError("pending call lister not configured"), nil
	}
	calls := s.deps.Pending.PendingCalls()
	data, err := json.Marshal(calls)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal pending calls", err), nil
	}
	return toolResultJSON(string(data)), nil
}
