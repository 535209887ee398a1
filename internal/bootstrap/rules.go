package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"

	"goa.design/apron-incident/runtime/rules"
	"goa.design/apron-incident/runtime/scenario"
)

// loadEvaluator builds a fresh rules.Evaluator for d, reading its risk-rule
// document from disk (RiskRuleSetPath) or the already-parsed inline document
// (RiskRulesInline), and selecting the priority or weighted form per
// d.Evaluator (§4.5: "scenario chooses one"). Each call produces an
// independent evaluator instance over the same document, which
// BuildToolRegistry relies on to give assess_risk_cross_validate a genuinely
// separate second pass.
func loadEvaluator(d *scenario.Descriptor) (rules.Evaluator, error) {
	raw, err := riskRuleBytes(d)
	if err != nil {
		return nil, err
	}
	switch d.Evaluator {
	case "weighted":
		var rs rules.WeightedRuleSet
		if err := json.Unmarshal(raw, &rs); err != nil {
			return nil, fmt.Errorf("bootstrap: %s: parse weighted rule set: %w", d.ID, err)
		}
		return rules.NewWeightedEvaluator(&rs), nil
	default:
		var prs []rules.PriorityRule
		if err := json.Unmarshal(raw, &prs); err != nil {
			return nil, fmt.Errorf("bootstrap: %s: parse priority rules: %w", d.ID, err)
		}
		table, err := rules.NewPriorityTable(prs)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %s: %w", d.ID, err)
		}
		return rules.NewPriorityEvaluator(table), nil
	}
}

func riskRuleBytes(d *scenario.Descriptor) ([]byte, error) {
	if d.RiskRuleSetPath != "" {
		data, err := os.ReadFile(d.RiskRuleSetPath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %s: read risk rule set: %w", d.ID, err)
		}
		return data, nil
	}
	if d.RiskRulesInline != nil {
		data, err := json.Marshal(d.RiskRulesInline)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %s: marshal inline risk rules: %w", d.ID, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("bootstrap: %s: no risk rule document configured", d.ID)
}
