package rules

import (
	"fmt"
	"sort"
)

type (
	// PriorityRule is the oil-spill risk-rule form (§3): rules are scanned
	// in ascending priority and the first whose conditions all equal-match
	// the incident wins.
	PriorityRule struct {
		ID               string            `yaml:"id" json:"id"`
		Priority         int               `yaml:"priority" json:"priority"`
		Conditions       map[string]any    `yaml:"conditions" json:"conditions"`
		Level            string            `yaml:"level" json:"level"`
		Score            int               `yaml:"score" json:"score"`
		ImmediateActions []string          `yaml:"immediate_actions" json:"immediate_actions"`
	}

	// PriorityTable holds a scenario's ordered priority rules.
	PriorityTable struct {
		rules []PriorityRule
	}

	// Assessment is the evaluator-agnostic risk result, matching the
	// session-state RiskAssessment shape minus the Guardrails (attached by
	// the caller for the weighted evaluator only, per §4.5 step 5).
	Assessment struct {
		Level            string
		Score            int
		Factors          []string
		Rationale        string
		RulesTriggered   []string
		ImmediateActions []string
	}
)

// NewPriorityTable builds a table from the given rules, sorted ascending by
// priority. Priorities must be unique (§3: "Tie-breaks impossible by
// construction: priorities are unique"); NewPriorityTable returns an error
// otherwise, a configuration error fatal at startup (§7).
func NewPriorityTable(rules []PriorityRule) (*PriorityTable, error) {
	seen := map[int]bool{}
	for _, r := range rules {
		if seen[r.Priority] {
			return nil, fmt.Errorf("rules: duplicate priority %d (rule %q)", r.Priority, r.ID)
		}
		seen[r.Priority] = true
	}
	sorted := append([]PriorityRule(nil), rules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &PriorityTable{rules: sorted}, nil
}

// Evaluate scans rules top to bottom (ascending priority) and returns the
// first whose conditions all equal-match incident. When nothing matches,
// returns the LOW/10/"no high-risk rule matched" default (§4.5).
func (t *PriorityTable) Evaluate(incident map[string]any) Assessment {
	for _, r := range t.rules {
		matched, factors := matchAll(incident, r.Conditions)
		if !matched {
			continue
		}
		return Assessment{
			Level:            r.Level,
			Score:            r.Score,
			Factors:          factors,
			RulesTriggered:   []string{r.ID},
			ImmediateActions: r.ImmediateActions,
		}
	}
	return Assessment{
		Level:     "LOW",
		Score:     10,
		Rationale: "no high-risk rule matched",
	}
}

// matchAll reports whether every declared condition field equal-matches the
// incident, and returns the matching subset as human-readable factors
// (§4.5: "factors (the subset of matching conditions)").
func matchAll(incident map[string]any, conditions map[string]any) (bool, []string) {
	var factors []string
	for field, want := range conditions {
		got, ok := incident[field]
		if !ok || !compareEqual(got, want) {
			return false, nil
		}
		factors = append(factors, fmt.Sprintf("%s=%v", field, want))
	}
	sort.Strings(factors)
	return true, factors
}
