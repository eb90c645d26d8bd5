package run

import (
	"encoding/json"
	"errors"
)

// Target identifies where a tool call executes.
type Target string

const (
	TargetLocal      Target = "local"              // in-process handler
	TargetToolServer Target = "remote_tool_server" // externally hosted tool server
	TargetUIClient   Target = "ui_client"          // human-in-the-loop via the event stream
)

// ToolCall is a request to execute a capability outside the agent.
// Arguments stream in as a raw JSON fragment and are not interpreted here.
type ToolCall struct {
	ID        string          `json:"tool_call_id"`
	RunID     string          `json:"run_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Target    Target          `json:"target"`
}

// Validate checks the call for required fields and a known target.
func (c *ToolCall) Validate() error {
	if c.ID == "" {
		return errors.New("tool_call_id is required")
	}
	if c.Name == "" {
		return errors.New("name is required")
	}
	switch c.Target {
	case TargetLocal, TargetToolServer, TargetUIClient:
		return nil
	default:
		return errors.New("unknown tool call target")
	}
}

// ToolResult resolves exactly one ToolCall.
type ToolResult struct {
	CallID  string          `json:"tool_call_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Failed reports whether the result carries an error instead of a payload.
func (r *ToolResult) Failed() bool { return r.Error != "" }
