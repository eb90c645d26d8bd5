// Package mcptool implements the tool server port over the Model Context
// Protocol. One client speaks to one configured MCP server; calls are
// guarded by a circuit breaker and a per-call timeout.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/harmonium-ai/harmonium/internal/domain/run"
	"github.com/harmonium-ai/harmonium/internal/resilience"
)

// Transport selects how the MCP server is reached.
type Transport string

const (
	TransportStdio      Transport = "stdio"
	TransportSSE        Transport = "sse"
	TransportStreamable Transport = "streamable"
)

// Config describes one MCP tool server connection.
type Config struct {
	Transport Transport

	// stdio
	Command string
	Args    []string
	Env     []string

	// sse / streamable
	URL     string
	Headers map[string]string

	CallTimeout time.Duration
}

// Client implements toolserver.Invoker against a single MCP server.
type Client struct {
	mcp     mcpclient.MCPClient
	breaker *resilience.Breaker
	timeout time.Duration
	log     *slog.Logger
}

// Connect creates the transport-appropriate MCP client and runs the
// initialize handshake.
func Connect(ctx context.Context, cfg Config, breaker *resilience.Breaker, log *slog.Logger) (*Client, error) {
	var (
		mc  mcpclient.MCPClient
		err error
	)
	switch cfg.Transport {
	case TransportStdio:
		mc, err = mcpclient.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	case TransportSSE:
		mc, err = mcpclient.NewSSEMCPClient(cfg.URL, transport.WithHeaders(cfg.Headers))
	case TransportStreamable:
		mc, err = mcpclient.NewStreamableHttpClient(cfg.URL, transport.WithHTTPHeaders(cfg.Headers))
	default:
		return nil, fmt.Errorf("unknown mcp transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "harmonium",
		Version: "0.1.0",
	}
	if _, err := mc.Initialize(ctx, initReq); err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	return &Client{
		mcp:     mc,
		breaker: breaker,
		timeout: cfg.CallTimeout,
		log:     log,
	}, nil
}

// Invoke executes call on the MCP server. A tool-level failure comes back
// inside the ToolResult; transport and breaker failures are returned as
// errors for the bridge to classify.
func (c *Client) Invoke(ctx context.Context, call *run.ToolCall) (*run.ToolResult, error) {
	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, fmt.Errorf("decode arguments for %s: %w", call.Name, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request := mcp.CallToolRequest{}
	request.Params.Name = call.Name
	request.Params.Arguments = args

	var result *mcp.CallToolResult
	err := c.breaker.Execute(func() error {
		var callErr error
		result, callErr = c.mcp.CallTool(ctx, request)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", call.Name, err)
	}

	text := flattenContent(result)
	if result.IsError {
		return &run.ToolResult{CallID: call.ID, Error: text}, nil
	}
	return &run.ToolResult{CallID: call.ID, Payload: asJSON(text)}, nil
}

// Tools lists the tool names the server currently exposes.
func (c *Client) Tools(ctx context.Context) ([]string, error) {
	resp, err := c.mcp.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	names := make([]string, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// Close shuts down the underlying MCP connection.
func (c *Client) Close() error {
	return c.mcp.Close()
}

// flattenContent joins the text content blocks of a tool result.
func flattenContent(result *mcp.CallToolResult) string {
	var out string
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}

// asJSON returns text unchanged when it already is valid JSON, otherwise
// wraps it as a JSON string so ToolResult payloads stay machine-readable.
func asJSON(text string) json.RawMessage {
	if json.Valid([]byte(text)) && text != "" {
		return json.RawMessage(text)
	}
	encoded, _ := json.Marshal(text)
	return encoded
}
