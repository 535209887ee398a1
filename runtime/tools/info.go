package tools

import (
	"context"
	"fmt"

	"goa.design/apron-incident/runtime/providers"
	"goa.design/apron-incident/runtime/state"
)

// askTool asks the controller a free-form question, used when the
// reasoning node picks a specific missing field to chase (§4.2, §9
// GLOSSARY "P1/P2 fields").
type askTool struct{ scenarios []string }

// NewAskTool constructs the "ask" information tool.
func NewAskTool(scenarios []string) Tool { return askTool{scenarios: scenarios} }

func (askTool) Name() string        { return "ask" }
func (askTool) Description() string { return "Ask the controller a direct question about a specific field." }
func (askTool) Class() Class        { return ClassNonCritical }
func (t askTool) Scenarios() []string { return t.scenarios }
func (askTool) InputSchema() []byte {
	return []byte(`{"type":"object","required":["question"],"properties":{"question":{"type":"string","minLength":1,"maxLength":500}}}`)
}

func (askTool) Execute(_ context.Context, session *state.Session, input map[string]any) (Result, error) {
	q, _ := input["question"].(string)
	session.NextQuestion = q
	return Result{Success: true, Observation: "asked controller: " + q}, nil
}

// smartAskTool picks the highest-priority pending P1 field and asks for it
// using the scenario's configured ask_prompts (§4.2 fallback policy: "the
// highest-priority pending P1 field -> smart_ask").
type smartAskTool struct {
	scenarios  []string
	fieldOrder []string
	askPrompts map[string]string
}

// NewSmartAskTool constructs the "smart_ask" information tool.
func NewSmartAskTool(scenarios, fieldOrder []string, askPrompts map[string]string) Tool {
	return smartAskTool{scenarios: scenarios, fieldOrder: fieldOrder, askPrompts: askPrompts}
}

func (smartAskTool) Name() string        { return "smart_ask" }
func (smartAskTool) Description() string { return "Ask for the highest-priority still-missing field." }
func (smartAskTool) Class() Class        { return ClassNonCritical }
func (t smartAskTool) Scenarios() []string { return t.scenarios }
func (smartAskTool) InputSchema() []byte {
	return []byte(`{"type":"object","properties":{}}`)
}

func (t smartAskTool) Execute(_ context.Context, session *state.Session, _ map[string]any) (Result, error) {
	for _, field := range t.fieldOrder {
		if session.Checklist[field] {
			continue
		}
		prompt := t.askPrompts[field]
		if prompt == "" {
			prompt = fmt.Sprintf("请提供%s信息", field)
		}
		session.NextQuestion = prompt
		return Result{Success: true, Observation: "asked for missing field " + field}, nil
	}
	session.NextQuestion = ""
	return Result{Success: true, Observation: "no pending P1 fields"}, nil
}

// flightPlanLookupTool resolves scheduled movements for the incident's
// flight number (§4.1 enrichment, §4.7 flight-plan table).
type flightPlanLookupTool struct {
	scenarios []string
	provider  providers.FlightPlanProvider
}

// NewFlightPlanLookupTool constructs the flight-plan-lookup tool.
func NewFlightPlanLookupTool(scenarios []string, p providers.FlightPlanProvider) Tool {
	return flightPlanLookupTool{scenarios: scenarios, provider: p}
}

func (flightPlanLookupTool) Name() string        { return "flight_plan_lookup" }
func (flightPlanLookupTool) Description() string { return "Look up scheduled movements for a flight number." }
func (flightPlanLookupTool) Class() Class        { return ClassNonCritical }
func (t flightPlanLookupTool) Scenarios() []string { return t.scenarios }
func (flightPlanLookupTool) InputSchema() []byte {
	return []byte(`{"type":"object","required":["flight_no"],"properties":{"flight_no":{"type":"string","minLength":1,"maxLength":16}}}`)
}

func (t flightPlanLookupTool) Execute(ctx context.Context, session *state.Session, input map[string]any) (Result, error) {
	flightNo, _ := input["flight_no"].(string)
	rows, err := t.provider.Lookup(ctx, flightNo)
	if err != nil {
		return Result{Success: false, Observation: "flight plan lookup failed: " + err.Error()}, nil
	}
	entries := make([]state.FlightPlanEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, rowToEntry(r))
	}
	session.FlightPlanTable = entries
	return Result{Success: true, Observation: fmt.Sprintf("found %d scheduled movements for %s", len(entries), flightNo)}, nil
}

func rowToEntry(r providers.FlightPlanRow) state.FlightPlanEntry {
	t, _ := parseRFC3339(r.ScheduledTime)
	return state.FlightPlanEntry{
		FlightNo:      r.FlightNo,
		ScheduledTime: t,
		Stand:         r.Stand,
		Taxiway:       r.Taxiway,
		Runway:        r.Runway,
	}
}

// weatherLookupTool records current conditions near the incident's
// position, feeding both BFS radius expansion (§4.6) and the cleanup-time
// estimator (§4.8).
type weatherLookupTool struct {
	scenarios []string
	provider  providers.WeatherProvider
}

// NewWeatherLookupTool constructs the weather-lookup tool.
func NewWeatherLookupTool(scenarios []string, p providers.WeatherProvider) Tool {
	return weatherLookupTool{scenarios: scenarios, provider: p}
}

func (weatherLookupTool) Name() string        { return "weather_lookup" }
func (weatherLookupTool) Description() string { return "Fetch current weather conditions near the incident position." }
func (weatherLookupTool) Class() Class        { return ClassNonCritical }
func (t weatherLookupTool) Scenarios() []string { return t.scenarios }
func (weatherLookupTool) InputSchema() []byte {
	return []byte(`{"type":"object","properties":{"position":{"type":"string","maxLength":16}}}`)
}

func (t weatherLookupTool) Execute(ctx context.Context, session *state.Session, input map[string]any) (Result, error) {
	position, _ := input["position"].(string)
	if position == "" {
		if p, ok := session.Incident["position"].(string); ok {
			position = p
		}
	}
	reading, err := t.provider.Current(ctx, position)
	if err != nil {
		return Result{Success: false, Observation: "weather lookup failed: " + err.Error()}, nil
	}
	session.WeatherImpact = computeWeatherImpact(reading)
	return Result{Success: true, Observation: fmt.Sprintf("wind %.1fm/s, vis %.1fkm", reading.WindSpeedMS, reading.VisibilityKM)}, nil
}

// computeWeatherImpact maps a raw reading into the multiplicative factors
// consumed by §4.8 (cleanup time) and §4.6 (BFS radius expansion), each
// clamped to [0.8, 2.0].
func computeWeatherImpact(r providers.WeatherReading) *state.WeatherImpact {
	windFactor := clamp(0.8+r.WindSpeedMS/20.0, 0.8, 2.0)
	tempFactor := clamp(1.0+absf(r.TemperatureC-20)/100.0, 0.8, 2.0)
	visFactor := clamp(2.0-r.VisibilityKM/10.0, 0.8, 2.0)
	total := clamp(windFactor*tempFactor*visFactor, 0.64, 3.0)

	radiusAdj := 0
	if r.WindSpeedMS > 5 {
		radiusAdj = 1
	}
	return &state.WeatherImpact{
		WindImpact: state.WindImpact{
			SpeedMS:          r.WindSpeedMS,
			Direction:        r.WindDirectionDeg,
			RadiusAdjustment: radiusAdj,
		},
		TemperatureImpact: state.FactorImpact{Factor: tempFactor},
		VisibilityImpact:  state.FactorImpact{Factor: visFactor},
		TotalFactor:       total,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// aircraftInfoTool enriches the incident with aircraft-type metadata.
type aircraftInfoTool struct {
	scenarios []string
	provider  providers.AircraftInfoProvider
	fieldOrder []string
}

// NewAircraftInfoTool constructs the aircraft-info enrichment tool.
func NewAircraftInfoTool(scenarios, fieldOrder []string, p providers.AircraftInfoProvider) Tool {
	return aircraftInfoTool{scenarios: scenarios, provider: p, fieldOrder: fieldOrder}
}

func (aircraftInfoTool) Name() string        { return "aircraft_info" }
func (aircraftInfoTool) Description() string { return "Fetch aircraft-type metadata for a flight number." }
func (aircraftInfoTool) Class() Class        { return ClassNonCritical }
func (t aircraftInfoTool) Scenarios() []string { return t.scenarios }
func (aircraftInfoTool) InputSchema() []byte {
	return []byte(`{"type":"object","required":["flight_no"],"properties":{"flight_no":{"type":"string","minLength":1,"maxLength":16}}}`)
}

func (t aircraftInfoTool) Execute(ctx context.Context, session *state.Session, input map[string]any) (Result, error) {
	flightNo, _ := input["flight_no"].(string)
	info, err := t.provider.Info(ctx, flightNo)
	if err != nil {
		return Result{Success: false, Observation: "aircraft info lookup failed: " + err.Error()}, nil
	}
	rejected := 0
	for k, v := range info {
		if !session.SetIncident("aircraft_"+k, v, t.fieldOrder) {
			rejected++
		}
	}
	obs := fmt.Sprintf("fetched aircraft info for %s", flightNo)
	if rejected > 0 {
		obs += fmt.Sprintf(" (%d fields rejected by field filter)", rejected)
	}
	return Result{Success: true, Observation: obs}, nil
}
