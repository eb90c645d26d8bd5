package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/harmonium-ai/harmonium/internal/domain/agent"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
	"github.com/harmonium-ai/harmonium/internal/domain/task"
	"github.com/harmonium-ai/harmonium/internal/fault"
)

// PlanKind discriminates the ExecutionPlan union.
type PlanKind string

const (
	PlanLocal  PlanKind = "local"
	PlanTool   PlanKind = "tool"
	PlanRemote PlanKind = "remote"
)

// ExecutionPlan is the router's decision for one task: execute locally, call
// a named tool, or forward to a remote agent.
type ExecutionPlan struct {
	Kind  PlanKind
	Tool  string
	Agent *agent.Descriptor
}

// Router decides where each delegated task executes. Routing is a pure
// lookup over the registered capability tables; registration mutates, Route
// and FilterContext never do.
type Router struct {
	mu          sync.RWMutex
	localSkills map[string]bool
	toolSkills  map[string]string // skill id -> tool name
	agents      []*agent.Descriptor
}

// NewRouter creates an empty delegation router.
func NewRouter() *Router {
	return &Router{
		localSkills: make(map[string]bool),
		toolSkills:  make(map[string]string),
	}
}

// RegisterLocalSkill declares a skill handled by the local agent runtime.
func (r *Router) RegisterLocalSkill(skill string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localSkills[skill] = true
}

// LocalSkills lists the skills the local agent runtime handles, sorted.
func (r *Router) LocalSkills() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skills := make([]string, 0, len(r.localSkills))
	for skill := range r.localSkills {
		skills = append(skills, skill)
	}
	sort.Strings(skills)
	return skills
}

// RegisterToolSkill declares a skill satisfied by a named tool.
func (r *Router) RegisterToolSkill(skill, tool string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolSkills[skill] = tool
}

// RegisterAgent adds a remote agent's capability descriptor. A descriptor
// with the same endpoint replaces the previous registration.
func (r *Router) RegisterAgent(desc *agent.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.agents {
		if existing.Endpoint == desc.Endpoint {
			r.agents[i] = desc
			return
		}
	}
	r.agents = append(r.agents, desc)
}

// Agents returns the registered remote descriptors.
func (r *Router) Agents() []*agent.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*agent.Descriptor(nil), r.agents...)
}

// Route picks the execution target for t. Local skills win over tools, tools
// over remote agents; among agents, registration order breaks ties. A task
// no target can serve fails with NO_ROUTE.
func (r *Router) Route(t *task.DelegationTask) (*ExecutionPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.localSkills[t.Skill] {
		return &ExecutionPlan{Kind: PlanLocal}, nil
	}
	if tool, ok := r.toolSkills[t.Skill]; ok {
		return &ExecutionPlan{Kind: PlanTool, Tool: tool}, nil
	}
	for _, desc := range r.agents {
		if desc.HasSkill(t.Skill) {
			return &ExecutionPlan{Kind: PlanRemote, Agent: desc}, nil
		}
	}
	return nil, fault.New(fault.KindNoRoute,
		fmt.Sprintf("no target can serve skill %q for task %s", t.Skill, t.ID))
}

// FilterContext reduces full session state to the subset the target agent
// may observe: keys under the descriptor's context-key prefixes, never
// temp:-scoped keys. The result is always a strict subset of full; the raw
// state never leaves the process.
func (r *Router) FilterContext(full session.State, desc *agent.Descriptor) session.State {
	filtered := make(session.State)
	for key, value := range full {
		if strings.HasPrefix(key, string(session.ScopeTemp)+":") {
			continue
		}
		if !desc.AllowsKey(key) {
			continue
		}
		filtered[key] = append([]byte(nil), value...)
	}
	return filtered
}
