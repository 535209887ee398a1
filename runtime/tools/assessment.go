package tools

import (
	"context"
	"fmt"

	"goa.design/apron-incident/runtime/rules"
	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/state"
)

// assessRiskTool evaluates the incident against the scenario's configured
// rule set (§4.5). It is a critical tool (§4.4).
type assessRiskTool struct {
	scenarios []string
	evaluator rules.Evaluator
}

// NewAssessRiskTool constructs the risk-assessment tool.
func NewAssessRiskTool(scenarios []string, e rules.Evaluator) Tool {
	return assessRiskTool{scenarios: scenarios, evaluator: e}
}

func (assessRiskTool) Name() string        { return "assess_risk" }
func (assessRiskTool) Description() string { return "Evaluate the incident against the scenario's risk rule set." }
func (assessRiskTool) Class() Class        { return ClassCritical }
func (t assessRiskTool) Scenarios() []string { return t.scenarios }
func (assessRiskTool) InputSchema() []byte {
	return []byte(`{"type":"object","properties":{}}`)
}

func (t assessRiskTool) Execute(_ context.Context, session *state.Session, _ map[string]any) (Result, error) {
	applyAssessment(session, t.evaluator.EvaluateRisk(session.Incident))
	if g, ok := t.evaluator.(rules.Guardrailed); ok {
		w := g.EvaluateRiskWithGuardrails(session.Incident)
		session.RiskAssessment.Guardrails = state.Guardrails{
			Allowed:               w.Guardrails.AllowedActions,
			Forbidden:             w.Guardrails.ForbiddenActions,
			RequiresHumanApproval: w.Guardrails.RequiresHumanApproval,
		}
		session.RiskAssessment.RiskFloorApplied = w.RiskFloorApplied
	}
	return Result{Success: true, Observation: fmt.Sprintf("risk level %s (score %d)", session.RiskAssessment.Level, session.RiskAssessment.Score)}, nil
}

func applyAssessment(session *state.Session, a rules.Assessment) {
	session.RiskAssessment = &state.RiskAssessment{
		Level:            a.Level,
		Score:            a.Score,
		Factors:          a.Factors,
		Rationale:        a.Rationale,
		RulesTriggered:   a.RulesTriggered,
		ImmediateActions: a.ImmediateActions,
	}
}

// assessRiskCrossValidateTool re-evaluates risk using a second, independent
// evaluator and adopts whichever level is stricter (§9 Open Question,
// resolved: always adopt the stricter of the two levels, never average or
// prefer the first).
type assessRiskCrossValidateTool struct {
	scenarios []string
	primary   rules.Evaluator
	secondary rules.Evaluator
}

// NewAssessRiskCrossValidateTool constructs the cross-validation tool.
func NewAssessRiskCrossValidateTool(scenarios []string, primary, secondary rules.Evaluator) Tool {
	return assessRiskCrossValidateTool{scenarios: scenarios, primary: primary, secondary: secondary}
}

func (assessRiskCrossValidateTool) Name() string { return "assess_risk_cross_validate" }
func (assessRiskCrossValidateTool) Description() string {
	return "Re-evaluate risk with a second rule set and adopt the stricter level."
}
func (assessRiskCrossValidateTool) Class() Class          { return ClassCritical }
func (t assessRiskCrossValidateTool) Scenarios() []string { return t.scenarios }
func (assessRiskCrossValidateTool) InputSchema() []byte {
	return []byte(`{"type":"object","properties":{}}`)
}

func (t assessRiskCrossValidateTool) Execute(_ context.Context, session *state.Session, _ map[string]any) (Result, error) {
	a := t.primary.EvaluateRisk(session.Incident)
	b := t.secondary.EvaluateRisk(session.Incident)
	winner := a
	if state.Stricter(a.Level, b.Level) == b.Level && b.Level != a.Level {
		winner = b
	}
	applyAssessment(session, winner)
	session.RiskAssessment.RulesTriggered = append(append([]string(nil), a.RulesTriggered...), b.RulesTriggered...)
	return Result{Success: true, Observation: fmt.Sprintf(
		"cross-validated risk: primary=%s secondary=%s adopted=%s", a.Level, b.Level, session.RiskAssessment.Level,
	)}, nil
}

// estimateCleanupTimeTool implements §4.8: a base-minutes lookup adjusted by
// the weather-impact multiplicative factor already computed by
// weather_lookup.
type estimateCleanupTimeTool struct {
	scenarios  []string
	descriptor *scenario.Descriptor
}

// NewEstimateCleanupTimeTool constructs the cleanup-time estimator tool.
func NewEstimateCleanupTimeTool(scenarios []string, d *scenario.Descriptor) Tool {
	return estimateCleanupTimeTool{scenarios: scenarios, descriptor: d}
}

func (estimateCleanupTimeTool) Name() string        { return "estimate_cleanup_time" }
func (estimateCleanupTimeTool) Description() string { return "Estimate cleanup time in minutes, weather-adjusted." }
func (estimateCleanupTimeTool) Class() Class        { return ClassNonCritical }
func (t estimateCleanupTimeTool) Scenarios() []string { return t.scenarios }
func (estimateCleanupTimeTool) InputSchema() []byte {
	return []byte(`{"type":"object","properties":{}}`)
}

func (t estimateCleanupTimeTool) Execute(_ context.Context, session *state.Session, _ map[string]any) (Result, error) {
	fluid, _ := session.Incident["fluid_type"].(string)
	leakSize, _ := session.Incident["leak_size"].(string)
	facility, _ := session.Incident["facility_class"].(string)

	base := t.descriptor.CleanupBaseMinutes(fluid, leakSize, facility)
	factor := 1.0
	if session.WeatherImpact != nil {
		factor = session.WeatherImpact.TotalFactor
	}
	minutes := int(float64(base)*factor + 0.5)
	// Bounded to a sane operational range: never instantaneous, never
	// beyond a full shift (§8 "weather-adjusted cleanup time bounds").
	if minutes < 5 {
		minutes = 5
	}
	if minutes > 480 {
		minutes = 480
	}

	if session.Incident == nil {
		session.Incident = map[string]any{}
	}
	session.Incident["estimated_cleanup_minutes"] = minutes
	return Result{Success: true, Observation: fmt.Sprintf("estimated cleanup time: %d minutes (base %d x%.2f)", minutes, base, factor)}, nil
}

// analyzeWeatherImpactTool summarizes the weather-impact factors already
// computed by weather_lookup into human-readable form for the reasoning
// node, without recomputing them.
type analyzeWeatherImpactTool struct{ scenarios []string }

// NewAnalyzeWeatherImpactTool constructs the weather-impact-analysis tool.
func NewAnalyzeWeatherImpactTool(scenarios []string) Tool { return analyzeWeatherImpactTool{scenarios: scenarios} }

func (analyzeWeatherImpactTool) Name() string        { return "analyze_weather_impact" }
func (analyzeWeatherImpactTool) Description() string { return "Summarize the weather impact on cleanup time and spread." }
func (analyzeWeatherImpactTool) Class() Class        { return ClassNonCritical }
func (t analyzeWeatherImpactTool) Scenarios() []string { return t.scenarios }
func (analyzeWeatherImpactTool) InputSchema() []byte {
	return []byte(`{"type":"object","properties":{}}`)
}

func (t analyzeWeatherImpactTool) Execute(_ context.Context, session *state.Session, _ map[string]any) (Result, error) {
	if session.WeatherImpact == nil {
		return Result{Success: false, Observation: "invalid input: run weather_lookup first"}, nil
	}
	w := session.WeatherImpact
	return Result{Success: true, Observation: fmt.Sprintf(
		"wind %.1fm/s from %.0f°, temperature factor %.2f, visibility factor %.2f, total factor %.2f",
		w.WindImpact.SpeedMS, w.WindImpact.Direction, w.TemperatureImpact.Factor, w.VisibilityImpact.Factor, w.TotalFactor,
	)}, nil
}

// comprehensiveAnalysisTool folds risk, spatial, and weather state into one
// narrative observation the reasoning node can cite directly in its final
// answer, without mutating session state itself.
type comprehensiveAnalysisTool struct{ scenarios []string }

// NewComprehensiveAnalysisTool constructs the comprehensive-analysis tool.
func NewComprehensiveAnalysisTool(scenarios []string) Tool {
	return comprehensiveAnalysisTool{scenarios: scenarios}
}

func (comprehensiveAnalysisTool) Name() string { return "comprehensive_analysis" }
func (comprehensiveAnalysisTool) Description() string {
	return "Summarize the current risk, spatial, and flight-impact state."
}
func (comprehensiveAnalysisTool) Class() Class          { return ClassNonCritical }
func (t comprehensiveAnalysisTool) Scenarios() []string { return t.scenarios }
func (comprehensiveAnalysisTool) InputSchema() []byte {
	return []byte(`{"type":"object","properties":{}}`)
}

func (t comprehensiveAnalysisTool) Execute(_ context.Context, session *state.Session, _ map[string]any) (Result, error) {
	parts := []string{}
	if session.RiskAssessment != nil {
		parts = append(parts, fmt.Sprintf("risk=%s(%d)", session.RiskAssessment.Level, session.RiskAssessment.Score))
	}
	if session.SpatialAnalysis != nil {
		parts = append(parts, fmt.Sprintf("stands=%d taxiways=%d runways=%d",
			len(session.SpatialAnalysis.AffectedStands), len(session.SpatialAnalysis.AffectedTaxiways), len(session.SpatialAnalysis.AffectedRunways)))
	}
	if session.FlightImpact != nil {
		parts = append(parts, fmt.Sprintf("flights_impacted=%d delay=%dmin", session.FlightImpact.Statistics.Total, session.FlightImpact.Statistics.TotalDelayMinutes))
	}
	if len(parts) == 0 {
		return Result{Success: false, Observation: "invalid input: no analysis available yet"}, nil
	}
	return Result{Success: true, Observation: joinParts(parts)}, nil
}

func joinParts(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "; "
		}
		out += p
	}
	return out
}
