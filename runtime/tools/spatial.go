package tools

import (
	"context"
	"fmt"
	"time"

	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/topology"
)

// standLocationTool resolves the incident's position field to a graph node,
// confirming it exists in the topology before downstream spatial tools run.
type standLocationTool struct {
	scenarios []string
	graph     *topology.Graph
}

// NewStandLocationTool constructs the stand-location tool.
func NewStandLocationTool(scenarios []string, g *topology.Graph) Tool {
	return standLocationTool{scenarios: scenarios, graph: g}
}

func (standLocationTool) Name() string        { return "stand_location" }
func (standLocationTool) Description() string { return "Resolve the incident position to a topology node." }
func (standLocationTool) Class() Class        { return ClassNonCritical }
func (t standLocationTool) Scenarios() []string { return t.scenarios }
func (standLocationTool) InputSchema() []byte {
	return []byte(`{"type":"object","properties":{"position":{"type":"string","maxLength":16}}}`)
}

func (t standLocationTool) Execute(_ context.Context, session *state.Session, input map[string]any) (Result, error) {
	position, _ := input["position"].(string)
	if position == "" {
		if p, ok := session.Incident["position"].(string); ok {
			position = p
		}
	}
	node, ok := t.graph.NearestNode(position)
	if !ok {
		return Result{Success: false, Observation: fmt.Sprintf("invalid input: position %q not found in topology", position)}, nil
	}
	n, _ := t.graph.Node(node)
	return Result{Success: true, Observation: fmt.Sprintf("resolved %s to node %s (%s)", position, node, n.Type)}, nil
}

// calculateImpactZoneTool performs the §4.6 BFS diffusion; it is a
// critical tool (§4.4).
type calculateImpactZoneTool struct {
	scenarios []string
	graph     *topology.Graph
	descriptor *scenario.Descriptor
}

// NewCalculateImpactZoneTool constructs the impact-zone tool.
func NewCalculateImpactZoneTool(scenarios []string, g *topology.Graph, d *scenario.Descriptor) Tool {
	return calculateImpactZoneTool{scenarios: scenarios, graph: g, descriptor: d}
}

func (calculateImpactZoneTool) Name() string        { return "calculate_impact_zone" }
func (calculateImpactZoneTool) Description() string { return "Compute the BFS spatial impact zone from the incident position." }
func (calculateImpactZoneTool) Class() Class        { return ClassCritical }
func (t calculateImpactZoneTool) Scenarios() []string { return t.scenarios }
func (calculateImpactZoneTool) InputSchema() []byte {
	return []byte(`{"type":"object","properties":{}}`)
}

func (t calculateImpactZoneTool) Execute(_ context.Context, session *state.Session, _ map[string]any) (Result, error) {
	position, _ := session.Incident["position"].(string)
	if position == "" {
		return Result{Success: false, Observation: "invalid input: incident.position is required"}, nil
	}
	start, ok := t.graph.NearestNode(position)
	if !ok {
		return Result{Success: false, Observation: fmt.Sprintf("invalid input: position %q not found in topology", position)}, nil
	}
	fluid, _ := session.Incident["fluid_type"].(string)
	level := "LOW"
	if session.RiskAssessment != nil {
		level = session.RiskAssessment.Level
	}

	radius, affectsRunway := t.descriptor.Propagation(fluid, level)
	var downwind *float64
	if session.WeatherImpact != nil {
		if session.WeatherImpact.WindImpact.SpeedMS > 5 {
			radius += session.WeatherImpact.WindImpact.RadiusAdjustment
			if radius > 4 {
				radius = 4
			}
		}
		d := session.WeatherImpact.WindImpact.Direction
		downwind = &d
	}

	res := t.graph.BFS(start, radius, downwind)
	stands := t.graph.NodesOfType(res.ReachedByHops, topology.NodeStand)
	taxiways := t.graph.NodesOfType(res.ReachedByHops, topology.NodeTaxiway)
	runways := t.graph.NodesOfType(res.ReachedByHops, topology.NodeRunway)
	if affectsRunway {
		runways = ensureIncludesAll(runways, t.graph.NodesOfType(res.ReachedByHops, topology.NodeRunway))
	}

	session.SpatialAnalysis = &state.SpatialAnalysis{
		IsolatedNodes:    res.IsolatedNodes,
		AffectedStands:   stands,
		AffectedTaxiways: taxiways,
		AffectedRunways:  runways,
		RadiusHopsUsed:   radius,
	}
	return Result{Success: true, Observation: fmt.Sprintf(
		"impact zone: %d stands, %d taxiways, %d runways within %d hops",
		len(stands), len(taxiways), len(runways), radius,
	)}, nil
}

func ensureIncludesAll(a, b []string) []string {
	if len(b) > len(a) {
		return b
	}
	return a
}

// positionImpactTool reports whether a given position intersects the
// computed spatial impact set, used by the reasoning node to answer
// controller questions about a specific stand/taxiway/runway.
type positionImpactTool struct{ scenarios []string }

// NewPositionImpactTool constructs the position-impact tool.
func NewPositionImpactTool(scenarios []string) Tool { return positionImpactTool{scenarios: scenarios} }

func (positionImpactTool) Name() string        { return "position_impact" }
func (positionImpactTool) Description() string { return "Report whether a position intersects the computed impact zone." }
func (positionImpactTool) Class() Class        { return ClassNonCritical }
func (t positionImpactTool) Scenarios() []string { return t.scenarios }
func (positionImpactTool) InputSchema() []byte {
	return []byte(`{"type":"object","required":["position"],"properties":{"position":{"type":"string","minLength":1,"maxLength":16}}}`)
}

func (t positionImpactTool) Execute(_ context.Context, session *state.Session, input map[string]any) (Result, error) {
	position, _ := input["position"].(string)
	if session.SpatialAnalysis == nil {
		return Result{Success: false, Observation: "invalid input: run calculate_impact_zone first"}, nil
	}
	hit := contains(session.SpatialAnalysis.AffectedStands, position) ||
		contains(session.SpatialAnalysis.AffectedTaxiways, position) ||
		contains(session.SpatialAnalysis.AffectedRunways, position)
	if hit {
		return Result{Success: true, Observation: position + " is within the impact zone"}, nil
	}
	return Result{Success: true, Observation: position + " is outside the impact zone"}, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// predictFlightImpactTool implements §4.7.
type predictFlightImpactTool struct {
	scenarios []string
	now       func() string
}

// NewPredictFlightImpactTool constructs the flight-impact-prediction tool.
// nowFn supplies the system-wide "current time" fallback (§4.7 step 1);
// callers pass a closure rather than time.Now directly to keep the tool
// deterministic under test.
func NewPredictFlightImpactTool(scenarios []string, nowFn func() string) Tool {
	return predictFlightImpactTool{scenarios: scenarios, now: nowFn}
}

func (predictFlightImpactTool) Name() string        { return "predict_flight_impact" }
func (predictFlightImpactTool) Description() string { return "Predict which scheduled flights are impacted within the dynamic time window." }
func (predictFlightImpactTool) Class() Class        { return ClassNonCritical }
func (t predictFlightImpactTool) Scenarios() []string { return t.scenarios }
func (predictFlightImpactTool) InputSchema() []byte {
	return []byte(`{"type":"object","required":["cleanup_time_minutes"],"properties":{"cleanup_time_minutes":{"type":"integer","minimum":0,"maximum":600}}}`)
}

func (t predictFlightImpactTool) Execute(_ context.Context, session *state.Session, input map[string]any) (Result, error) {
	if session.SpatialAnalysis == nil {
		return Result{Success: false, Observation: "invalid input: run calculate_impact_zone first"}, nil
	}
	cleanupMinutes, _ := toInt(input["cleanup_time_minutes"])

	refTime, ok := referenceTime(session, t.now())
	if !ok {
		return Result{Success: false, Observation: "invalid input: no reference time available"}, nil
	}
	window := state.TimeWindow{
		Start: refTime,
		End:   refTime.Add(time.Duration(cleanupMinutes+30) * time.Minute),
	}

	level := "LOW"
	if session.RiskAssessment != nil {
		level = session.RiskAssessment.Level
	}
	var affected []state.AffectedFlight
	var totalDelay int
	var dist state.SeverityDistribution
	for _, f := range session.FlightPlanTable {
		if f.ScheduledTime.Before(window.Start) || f.ScheduledTime.After(window.End) {
			continue
		}
		facility, hit := intersectFacility(session.SpatialAnalysis, f)
		if !hit {
			continue
		}
		delay := delayMinutesFor(facility, level)
		sev := severityBucket(delay)
		affected = append(affected, state.AffectedFlight{FlightNo: f.FlightNo, DelayMinutes: delay, Severity: sev, Facility: facility})
		totalDelay += delay
		switch sev {
		case "high":
			dist.High++
		case "medium":
			dist.Medium++
		default:
			dist.Low++
		}
	}

	session.ReferenceFlight = &state.ReferenceFlight{ReferenceTime: refTime}
	session.FlightImpact = &state.FlightImpactPrediction{
		TimeWindow:      window,
		AffectedFlights: affected,
		Statistics: state.FlightImpactStatistics{
			Total:                len(affected),
			TotalDelayMinutes:    totalDelay,
			SeverityDistribution: dist,
		},
	}
	return Result{Success: true, Observation: fmt.Sprintf("%d flights impacted, %d total delay minutes", len(affected), totalDelay)}, nil
}

func referenceTime(session *state.Session, fallback string) (time.Time, bool) {
	if session.ReferenceFlight != nil && !session.ReferenceFlight.ReferenceTime.IsZero() {
		return session.ReferenceFlight.ReferenceTime, true
	}
	if v, ok := session.Incident["incident_time"].(string); ok {
		if t, ok := parseRFC3339(v); ok {
			return t, true
		}
	}
	if t, ok := parseRFC3339(fallback); ok {
		return t, true
	}
	return time.Time{}, false
}

func intersectFacility(sp *state.SpatialAnalysis, f state.FlightPlanEntry) (string, bool) {
	if f.Stand != "" && contains(sp.AffectedStands, f.Stand) {
		return "stand", true
	}
	if f.Taxiway != "" && contains(sp.AffectedTaxiways, f.Taxiway) {
		return "taxiway", true
	}
	if f.Runway != "" && contains(sp.AffectedRunways, f.Runway) {
		return "runway", true
	}
	return "", false
}

// delayMinutesFor looks up the deterministic delay table keyed by
// (facility, risk level), §4.7 step 4.
func delayMinutesFor(facility, level string) int {
	table := map[string]map[string]int{
		"runway":  {"HIGH": 75, "MEDIUM_HIGH": 45, "MEDIUM": 25, "LOW": 10, "R4": 75, "R3": 45, "R2": 25, "R1": 10},
		"taxiway": {"HIGH": 45, "MEDIUM_HIGH": 30, "MEDIUM": 15, "LOW": 5, "R4": 45, "R3": 30, "R2": 15, "R1": 5},
		"stand":   {"HIGH": 30, "MEDIUM_HIGH": 20, "MEDIUM": 10, "LOW": 5, "R4": 30, "R3": 20, "R2": 10, "R1": 5},
	}
	if m, ok := table[facility]; ok {
		if v, ok := m[level]; ok {
			return v
		}
	}
	return 10
}

func severityBucket(delay int) string {
	switch {
	case delay >= 60:
		return "high"
	case delay >= 20:
		return "medium"
	default:
		return "low"
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}
