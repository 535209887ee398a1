package rules

import (
	"fmt"
	"sort"
)

type (
	// Dimension is one scored axis of the weighted-JSON evaluator, e.g.
	// "phase" or "impact_area" for bird strikes (§4.5 step 1).
	Dimension struct {
		Name        string             `yaml:"name" json:"name"`
		Weight      float64            `yaml:"weight" json:"weight"`
		PointsTable map[string]float64 `yaml:"points_table" json:"points_table"`
	}

	// RuleThen is the consequence of a matched weighted rule: it may
	// promote the floor level, add to the score, and/or name an action.
	RuleThen struct {
		RiskFloor string  `yaml:"risk_floor,omitempty" json:"risk_floor,omitempty"`
		RiskBoost float64 `yaml:"risk_boost,omitempty" json:"risk_boost,omitempty"`
		Action    string  `yaml:"action,omitempty" json:"action,omitempty"`
	}

	// WeightedRule is one entry of the weighted evaluator's rules list.
	WeightedRule struct {
		ID       string   `yaml:"id" json:"id"`
		Priority int      `yaml:"priority" json:"priority"`
		When     Clause   `yaml:"when" json:"when"`
		Then     RuleThen `yaml:"then" json:"then"`
	}

	// ScoreRange is one entry of risk_mapping.by_score.
	ScoreRange struct {
		Min   int    `yaml:"min" json:"min"`
		Max   int    `yaml:"max" json:"max"`
		Level string `yaml:"level" json:"level"`
	}

	// LevelGuardrail is the guardrails table entry for one risk level.
	LevelGuardrail struct {
		Level                 string   `yaml:"level" json:"level"`
		RequiresHumanApproval bool     `yaml:"requires_human_approval" json:"requires_human_approval"`
		AllowedActions        []string `yaml:"allowed_actions" json:"allowed_actions"`
		ForbiddenActions      []string `yaml:"forbidden_actions" json:"forbidden_actions"`
	}

	// WeightedRuleSet is the full bird-strike/FOD rule document (§6
	// rule-set JSON format).
	WeightedRuleSet struct {
		RuleSetID  string           `yaml:"rule_set_id" json:"rule_set_id"`
		Version    string           `yaml:"version" json:"version"`
		MaxScore   int              `yaml:"max_score" json:"max_score"`
		Dimensions []Dimension      `yaml:"dimensions" json:"dimensions"`
		Rules      []WeightedRule   `yaml:"rules" json:"rules"`
		RiskMapping struct {
			ByScore []ScoreRange `yaml:"by_score" json:"by_score"`
		} `yaml:"risk_mapping" json:"risk_mapping"`
		Guardrails []LevelGuardrail `yaml:"guardrails" json:"guardrails"`
	}

	// WeightedResult extends Assessment with the guardrails and floor
	// bookkeeping the weighted evaluator produces.
	WeightedResult struct {
		Assessment
		Guardrails       LevelGuardrail
		RiskFloorApplied string
	}
)

var levelRank = map[string]int{
	"R1": 0, "R2": 1, "R3": 2, "R4": 3, "R5": 4,
	"LOW": 0, "MEDIUM": 1, "MEDIUM_HIGH": 2, "HIGH": 3, "CRITICAL": 4,
}

// Evaluate scores `incident` against the rule set following §4.5's weighted
// procedure: per-dimension points (missing dimensions use an explicit
// UNKNOWN row), weighted sum capped to MaxScore, priority-ordered rule
// floors/boosts, score-to-level mapping, and floor override.
func (rs *WeightedRuleSet) Evaluate(incident map[string]any) WeightedResult {
	maxScore := rs.MaxScore
	if maxScore <= 0 {
		maxScore = 100
	}

	var factors []string
	rawScore := 0.0
	for _, dim := range rs.Dimensions {
		key := fmt.Sprintf("%v", incident[dim.Name])
		points, ok := dim.PointsTable[key]
		if !ok {
			points = dim.PointsTable["UNKNOWN"]
		}
		rawScore += points * dim.Weight
		factors = append(factors, fmt.Sprintf("%s=%v(%.1fpt)", dim.Name, incident[dim.Name], points*dim.Weight))
	}

	sorted := append([]WeightedRule(nil), rs.Rules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	var triggered []string
	floor := ""
	boost := 0.0
	for _, r := range sorted {
		if !EvalClause(incident, r.When) {
			continue
		}
		triggered = append(triggered, r.ID)
		if r.Then.RiskFloor != "" {
			if floor == "" || levelRank[r.Then.RiskFloor] > levelRank[floor] {
				floor = r.Then.RiskFloor
			}
		}
		boost += r.Then.RiskBoost
	}

	score := rawScore + boost
	if score > float64(maxScore) {
		score = float64(maxScore)
	}
	if score < 0 {
		score = 0
	}
	intScore := int(score + 0.5)

	level := mapScore(rs.RiskMapping.ByScore, intScore)
	floorApplied := ""
	if floor != "" && levelRank[floor] > levelRank[level] {
		level = floor
		floorApplied = floor
	}

	return WeightedResult{
		Assessment: Assessment{
			Level:          level,
			Score:          intScore,
			Factors:        factors,
			RulesTriggered: triggered,
		},
		Guardrails:       guardrailFor(rs.Guardrails, level),
		RiskFloorApplied: floorApplied,
	}
}

func mapScore(ranges []ScoreRange, score int) string {
	for _, r := range ranges {
		if score >= r.Min && score <= r.Max {
			return r.Level
		}
	}
	return "R1"
}

func guardrailFor(table []LevelGuardrail, level string) LevelGuardrail {
	for _, g := range table {
		if g.Level == level {
			return g
		}
	}
	return LevelGuardrail{Level: level}
}
