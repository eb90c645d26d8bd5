// Package agent defines the capability descriptor a remote agent publishes:
// the skills it offers, the content types it accepts and produces, and the
// state-key prefixes it is allowed to observe.
package agent

import "strings"

// Skill is one capability a remote agent advertises.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Descriptor declares what a remote agent can do and how to talk to it.
// Discovered descriptors are cached; ContextKeys is local routing policy and
// never comes from the wire.
type Descriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Endpoint    string   `json:"endpoint"`
	Version     string   `json:"version,omitempty"`
	Skills      []Skill  `json:"skills,omitempty"`
	InputModes  []string `json:"input_modes,omitempty"`
	OutputModes []string `json:"output_modes,omitempty"`
	Streaming   bool     `json:"streaming"`

	// ContextKeys lists the session state key prefixes this agent may
	// receive during context filtering. Empty means no context at all.
	ContextKeys []string `json:"context_keys,omitempty"`
}

// HasSkill reports whether the agent advertises the skill.
func (d *Descriptor) HasSkill(id string) bool {
	for _, s := range d.Skills {
		if s.ID == id {
			return true
		}
	}
	return false
}

// AllowsKey reports whether a state key falls under one of the descriptor's
// context-key prefixes.
func (d *Descriptor) AllowsKey(key string) bool {
	for _, prefix := range d.ContextKeys {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
