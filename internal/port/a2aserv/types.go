// Package a2aserv makes the orchestrator itself addressable as a remote
// agent: it serves the capability card at the well-known path and accepts
// delegated tasks, executing each as a run.
package a2aserv

// AgentCard describes this service's capabilities per the A2A protocol.
type AgentCard struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	URL          string  `json:"url"`
	Version      string  `json:"version"`
	Skills       []Skill `json:"skills"`
	Capabilities struct {
		Streaming bool `json:"streaming"`
	} `json:"capabilities"`
}

// Skill describes a single capability of the agent.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	InputModes  []string `json:"inputModes"`
	OutputModes []string `json:"outputModes"`
}

// TaskRequest is an incoming delegated task.
type TaskRequest struct {
	ID      string         `json:"id"`
	Skill   string         `json:"skill,omitempty"`
	Input   map[string]any `json:"input"`
	Context map[string]any `json:"context,omitempty"`
}

// TaskResponse reports the state of an accepted task.
type TaskResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "running", "completed", "failed", "canceled"
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}
