// Package mcpserv exposes Harmonium's run and session introspection over
// the Model Context Protocol, so operator-side assistants can inspect live
// orchestration state.
package mcpserv

import (
	"context"
	"fmt"
	"net"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harmonium-ai/harmonium/internal/domain/run"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
)

// RunReader looks up runs by ID.
type RunReader interface {
	GetRun(id string) (*run.Run, error)
}

// StateReader returns the merged state snapshot for a session.
type StateReader interface {
	Get(ctx context.Context, id session.ID) (session.Snapshot, error)
}

// PendingCallLister reports tool calls currently suspended on a UI client.
type PendingCallLister interface {
	PendingCalls() []run.ToolCall
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string
}

// ServerDeps are the read-side collaborators the tools expose.
type ServerDeps struct {
	Runs    RunReader
	State   StateReader
	Pending PendingCallLister
}

// Server hosts the MCP tool surface over streamable HTTP.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(cfg.Name, cfg.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server (used by tests).
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start binds the listener and begins serving MCP over streamable HTTP in
// the background.
func (s *Server) Start() error {
	handler := AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
	s.httpServer = &http.Server{Addr: s.cfg.Addr, Handler: handler}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}

	go func() {
		_ = s.httpServer.Serve(ln)
	}()
	return nil
}

// Stop gracefully shuts down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// toolResultJSON wraps a JSON string in a text content result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
