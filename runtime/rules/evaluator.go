package rules

// Evaluator is the common interface the risk-assessment tool calls against,
// regardless of which concrete rule form a scenario declares (§4.5:
// "Two evaluators; scenario chooses one").
type Evaluator interface {
	// EvaluateRisk scores an incident and returns the evaluator-agnostic
	// parts of the result; guardrails (weighted-only) and floor bookkeeping
	// are exposed via the optional Guardrailed interface below.
	EvaluateRisk(incident map[string]any) Assessment
}

// Guardrailed is implemented by evaluators (currently only the weighted
// evaluator) that attach level-specific guardrails and floor-override
// bookkeeping to their result (§4.5 step 5).
type Guardrailed interface {
	EvaluateRiskWithGuardrails(incident map[string]any) WeightedResult
}

type priorityEvaluator struct{ table *PriorityTable }

// NewPriorityEvaluator adapts a PriorityTable to the Evaluator interface.
func NewPriorityEvaluator(t *PriorityTable) Evaluator { return priorityEvaluator{table: t} }

func (p priorityEvaluator) EvaluateRisk(incident map[string]any) Assessment {
	return p.table.Evaluate(incident)
}

type weightedEvaluator struct{ set *WeightedRuleSet }

// NewWeightedEvaluator adapts a WeightedRuleSet to the Evaluator interface.
func NewWeightedEvaluator(rs *WeightedRuleSet) Evaluator { return weightedEvaluator{set: rs} }

func (w weightedEvaluator) EvaluateRisk(incident map[string]any) Assessment {
	return w.set.Evaluate(incident).Assessment
}

func (w weightedEvaluator) EvaluateRiskWithGuardrails(incident map[string]any) WeightedResult {
	return w.set.Evaluate(incident)
}
