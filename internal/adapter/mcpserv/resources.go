package mcpserv

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"harmonium://toolcalls/pending",
			"Pending Tool Calls",
			mcplib.WithResourceDescription("Tool calls suspended waiting on a UI client"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePendingCallsResource,
	)
}

func (s *Server) handlePendingCallsResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Pending == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"pending call lister not configured"}`,
			},
		}, nil
	}
	data, err := json.Marshal(s.deps.Pending.PendingCalls())
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
