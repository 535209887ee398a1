package tools

import (
	"context"
	"fmt"

	"goa.design/apron-incident/runtime/state"
)

// perScenarioTool fans one tool name out to several concrete
// implementations, one per scenario, so a tool whose behaviour is
// parameterised by non-interchangeable per-scenario state (a scenario's own
// rules.Evaluator, *scenario.Descriptor, or field order) can still be
// registered once under its shared name in a single Registry (§5: "built
// once at start and shared read-only"). Without this, NewRegistry would
// reject the second scenario's instance as a duplicate name.
type perScenarioTool struct {
	name        string
	description string
	class       Class
	schema      []byte
	byScenario  map[string]Tool
}

// NewPerScenario builds a dispatcher Tool named name that routes Execute to
// byScenario[session.ScenarioType]. description, class, and schema describe
// the dispatcher as a whole; every entry of byScenario is expected to agree
// on them. Scenarios() is the set of byScenario's keys.
func NewPerScenario(name, description string, class Class, schema []byte, byScenario map[string]Tool) Tool {
	return perScenarioTool{name: name, description: description, class: class, schema: schema, byScenario: byScenario}
}

func (t perScenarioTool) Name() string        { return t.name }
func (t perScenarioTool) Description() string { return t.description }
func (t perScenarioTool) Class() Class        { return t.class }
func (t perScenarioTool) InputSchema() []byte { return t.schema }

func (t perScenarioTool) Scenarios() []string {
	out := make([]string, 0, len(t.byScenario))
	for id := range t.byScenario {
		out = append(out, id)
	}
	return out
}

func (t perScenarioTool) Execute(ctx context.Context, session *state.Session, input map[string]any) (Result, error) {
	inner, ok := t.byScenario[session.ScenarioType]
	if !ok {
		return Result{}, fmt.Errorf("tools: %s has no configuration for scenario %q", t.name, session.ScenarioType)
	}
	return inner.Execute(ctx, session, input)
}
