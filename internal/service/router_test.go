package service

import (
	"encoding/json"
	"testing"

	"github.com/harmonium-ai/harmonium/internal/domain/agent"
	"github.com/harmonium-ai/harmonium/internal/domain/session"
	"github.com/harmonium-ai/harmonium/internal/domain/task"
	"github.com/harmonium-ai/harmonium/internal/fault"
)

func TestRouter_RoutePrecedence(t *testing.T) {
	r := NewRouter()
	r.RegisterLocalSkill("summarize")
	r.RegisterToolSkill("lookup", "kb_search")
	r.RegisterAgent(&agent.Descriptor{
		Endpoint: "http://billing.internal",
		Skills:   []agent.Skill{{ID: "refund"}, {ID: "lookup"}},
	})

	cases := []struct {
		skill string
		kind  PlanKind
	}{
		{"summarize", PlanLocal},
		{"lookup", PlanTool}, // tool wins over the agent that also has it
		{"refund", PlanRemote},
	}
	for _, c := range cases {
		plan, err := r.Route(&task.DelegationTask{ID: "t1", Skill: c.skill, Input: "x"})
		if err != nil {
			t.Fatalf("Route(%s): %v", c.skill, err)
		}
		if plan.Kind != c.kind {
			t.Errorf("Route(%s).Kind = %s, want %s", c.skill, plan.Kind, c.kind)
		}
	}
}

func TestRouter_NoRoute(t *testing.T) {
	r := NewRouter()
	_, err := r.Route(&task.DelegationTask{ID: "t1", Skill: "astrology", Input: "x"})
	if err == nil {
		t.Fatal("expected NO_ROUTE")
	}
	if !fault.Is(err, fault.KindNoRoute) {
		t.Errorf("err = %v, want NO_ROUTE fault", err)
	}
	if fault.Recoverable(err) != true {
		t.Error("NO_ROUTE must be recoverable")
	}
}

func TestRouter_RegisterAgentReplacesByEndpoint(t *testing.T) {
	r := NewRouter()
	r.RegisterAgent(&agent.Descriptor{Endpoint: "http://a", Skills: []agent.Skill{{ID: "old"}}})
	r.RegisterAgent(&agent.Descriptor{Endpoint: "http://a", Skills: []agent.Skill{{ID: "new"}}})

	if agents := r.Agents(); len(agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(agents))
	}
	if _, err := r.Route(&task.DelegationTask{ID: "t1", Skill: "old", Input: "x"}); err == nil {
		t.Error("stale skill still routable after replacement")
	}
	if _, err := r.Route(&task.DelegationTask{ID: "t1", Skill: "new", Input: "x"}); err != nil {
		t.Errorf("new skill not routable: %v", err)
	}
}

func TestRouter_FilterContextStrictSubset(t *testing.T) {
	r := NewRouter()
	full := session.State{
		"user:lang":          json.RawMessage(`"fr"`),
		"user:secret":        json.RawMessage(`"hunter2"`),
		"session:order.id":   json.RawMessage(`42`),
		"session:cart":       json.RawMessage(`[]`),
		"temp:order.scratch": json.RawMessage(`{}`),
		"app:motd":           json.RawMessage(`"hi"`),
	}
	desc := &agent.Descriptor{
		ContextKeys: []string{"user:lang", "session:order.", "temp:order."},
	}

	filtered := r.FilterContext(full, desc)

	for _, want := range []string{"user:lang", "session:order.id"} {
		if _, ok := filtered[want]; !ok {
			t.Errorf("missing %q", want)
		}
	}
	for _, banned := range []string{"user:secret", "session:cart", "app:motd", "temp:order.scratch"} {
		if _, ok := filtered[banned]; ok {
			t.Errorf("%q must not be forwarded", banned)
		}
	}
	if !filtered.Subset(full) {
		t.Error("filtered context is not a subset of full state")
	}
	if len(filtered) == len(full) {
		t.Error("filter forwarded the whole state")
	}
}

func TestRouter_FilterContextCopiesValues(t *testing.T) {
	r := NewRouter()
	full := session.State{"user:lang": json.RawMessage(`"fr"`)}
	desc := &agent.Descriptor{ContextKeys: []string{"user:"}}

	filtered := r.FilterContext(full, desc)
	filtered["user:lang"][1] = 'X'
	if string(full["user:lang"]) != `"fr"` {
		t.Error("filtered context aliases the source state")
	}
}
