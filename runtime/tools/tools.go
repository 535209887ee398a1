// Package tools implements the tool contract and registry (§3 "Tool
// descriptor", §9 "dynamic dispatch over tools": a registry indexed by
// name, each tool implementing a common {schema, execute} contract) plus
// the concrete information/spatial/assessment/action tools named by §2 and
// the Design Notes. Input validation is centralised in runtime/executor,
// not duplicated per tool (§9).
package tools

import (
	"context"

	"goa.design/apron-incident/runtime/state"
)

type (
	// Class classifies a tool for FSM-validation routing (§4.4, §4.10):
	// critical tools trigger an FSM validation pass immediately after
	// execution.
	Class string

	// Result is what a tool returns to the executor. Observation is shown
	// to the LLM on the next turn; Success gates whether actions_taken
	// records a successful call (§4.3).
	Result struct {
		Success     bool
		Observation string
	}

	// Tool is the uniform contract every concrete tool implements (§3 "Tool
	// descriptor": {name, description, input_schema, scenarios[],
	// execute}).
	Tool interface {
		// Name is unique within a registry.
		Name() string
		Description() string
		// InputSchema is a JSON Schema document (draft 2020-12, validated
		// via santhosh-tekuri/jsonschema/v6 by the executor) describing
		// action_input.
		InputSchema() []byte
		// Scenarios lists the scenario ids this tool is visible to, or
		// contains "common" to be visible to every scenario.
		Scenarios() []string
		Class() Class
		// Execute runs the tool against session, which it may mutate only
		// within the substructures it declares ownership of (documented on
		// each concrete tool). ctx carries the turn's cancellation signal
		// and timeout (§5).
		Execute(ctx context.Context, session *state.Session, input map[string]any) (Result, error)
	}

	// Registry indexes tools by name and answers scenario-visibility
	// queries (§3: "a tool is visible to a scenario iff the scenario id is
	// in its scenarios list or 'common' is"). Built once at start and
	// shared read-only (§5).
	Registry struct {
		byName map[string]Tool
	}
)

// Tool classes.
const (
	ClassCritical   Class = "critical"
	ClassNonCritical Class = "noncritical"
)

// CriticalToolNames lists the tools whose execution is followed by an FSM
// validation pass (§4.4): any variant of assess_risk, calculate_impact_zone,
// notify_department.
var CriticalToolNames = map[string]bool{
	"assess_risk":                 true,
	"assess_risk_cross_validate":  true,
	"calculate_impact_zone":       true,
	"notify_department":           true,
}

// NewRegistry builds a registry from tools, rejecting duplicate names (§3
// invariant: "name unique within a registry"), a configuration error fatal
// at startup (§7).
func NewRegistry(tools []Tool) (*Registry, error) {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		if _, dup := byName[t.Name()]; dup {
			return nil, duplicateNameError(t.Name())
		}
		byName[t.Name()] = t
	}
	return &Registry{byName: byName}, nil
}

func duplicateNameError(name string) error {
	return &duplicateToolError{name: name}
}

type duplicateToolError struct{ name string }

func (e *duplicateToolError) Error() string {
	return "tools: duplicate tool name " + e.name
}

// Lookup resolves a tool by name, scoped to scenarioID visibility.
func (r *Registry) Lookup(name, scenarioID string) (Tool, bool) {
	t, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	if !visibleTo(t, scenarioID) {
		return nil, false
	}
	return t, true
}

// ForScenario returns every tool visible to scenarioID, in registration
// order-independent but deterministic (name-sorted) form for prompt
// construction (§4.2: "enumerated tool descriptions").
func (r *Registry) ForScenario(scenarioID string) []Tool {
	var out []Tool
	for _, t := range r.byName {
		if visibleTo(t, scenarioID) {
			out = append(out, t)
		}
	}
	sortTools(out)
	return out
}

func visibleTo(t Tool, scenarioID string) bool {
	for _, s := range t.Scenarios() {
		if s == scenarioID || s == "common" {
			return true
		}
	}
	return false
}

func sortTools(ts []Tool) {
	for i := 1; i < len(ts); i++ {
		j := i
		for j > 0 && ts[j-1].Name() > ts[j].Name() {
			ts[j-1], ts[j] = ts[j], ts[j-1]
			j--
		}
	}
}
