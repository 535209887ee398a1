// Package parser implements the input-parser stage (§4.1): scenario
// identification, two-stage radiotelephony normalisation, entity
// extraction, scenario-scoped field filtering, checklist update, and
// parallel auto-enrichment. It is the first node the agent graph invokes
// on every user turn.
package parser

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"goa.design/apron-incident/runtime/modelclient"
	"goa.design/apron-incident/runtime/providers"
	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/telemetry"
	"goa.design/apron-incident/runtime/tools"
	"goa.design/apron-incident/runtime/topology"
)

// Config tunes the enrichment stage (§5 "Parallel auto-enrichment").
type Config struct {
	// MaxEnrichmentWorkers bounds the fan-out pool (§5 default 3).
	MaxEnrichmentWorkers int
	// EnrichmentTimeout bounds each enrichment future (§5 default 10s).
	EnrichmentTimeout time.Duration
	// DeepNormalizeTimeout bounds the stage-2 LLM call (§4.1 step 3, 5s).
	DeepNormalizeTimeout time.Duration
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxEnrichmentWorkers: 3,
		EnrichmentTimeout:    10 * time.Second,
		DeepNormalizeTimeout: 5 * time.Second,
	}
}

// Parser is the stateless input-parser: it holds only process-scoped,
// read-only collaborators (§5 "shared resources").
type Parser struct {
	scenarios *scenario.Registry
	model     modelclient.Client // nil disables stage-2 deep normalisation and LLM extraction
	flights   providers.FlightPlanProvider
	weather   providers.WeatherProvider
	aircraft  providers.AircraftInfoProvider
	graph     *topology.Graph
	tel       telemetry.Provider
	cfg       Config
	now       func() time.Time
}

// New constructs a Parser. model, flights, weather, and aircraft may be nil;
// missing collaborators degrade gracefully (stage-2 and the corresponding
// enrichment lookups are skipped).
func New(
	scenarios *scenario.Registry,
	model modelclient.Client,
	flights providers.FlightPlanProvider,
	weather providers.WeatherProvider,
	aircraft providers.AircraftInfoProvider,
	graph *topology.Graph,
	tel telemetry.Provider,
	cfg Config,
) *Parser {
	return &Parser{
		scenarios: scenarios, model: model,
		flights: flights, weather: weather, aircraft: aircraft,
		graph: graph, tel: tel, cfg: cfg, now: time.Now,
	}
}

// Parse runs the full §4.1 algorithm against message, mutating session.
// It never returns an error for the caller to propagate: every sub-step
// failure is caught, recorded as a system-message warning, and skipped
// (§4.1 "the parser never fails the turn").
func (p *Parser) Parse(ctx context.Context, session *state.Session, message string) {
	if session.ScenarioType == "" {
		session.ScenarioType = p.scenarios.Identify(message)
	}
	desc, ok := p.scenarios.Get(session.ScenarioType)
	if !ok {
		p.warn(ctx, session, "scenario_identification", fmt.Sprintf("unknown scenario %q", session.ScenarioType))
		return
	}

	normalized := tools.Normalize(message)
	normalized = p.deepNormalize(ctx, session, normalized)

	entities := p.extractEntities(normalized, desc)
	before := map[string]bool{}
	for k := range session.Incident {
		before[k] = true
	}

	rejected := 0
	changed := false
	for k, v := range entities {
		if !state.IsAllowedField(k, desc.FieldOrder) {
			rejected++
			continue
		}
		if existing, ok := session.Incident[k]; !ok || existing != v {
			changed = true
		}
		session.SetIncident(k, v, desc.FieldOrder)
	}
	if rejected > 0 {
		p.warn(ctx, session, "field_filtering", fmt.Sprintf("%d extracted field(s) rejected by field filter", rejected))
	}

	updateChecklist(session, desc)

	session.Messages = append(session.Messages, state.Message{
		Role:      state.RoleSystem,
		Content:   fmt.Sprintf("extracted %d field(s) from input", len(entities)-rejected),
		Timestamp: p.now(),
	})

	if changed {
		p.enrich(ctx, session, desc)
	}
}

func (p *Parser) warn(ctx context.Context, session *state.Session, stage, reason string) {
	session.Messages = append(session.Messages, state.Message{
		Role:      state.RoleSystem,
		Content:   fmt.Sprintf("[warning] %s: %s", stage, reason),
		Timestamp: p.now(),
	})
	p.tel.Logger.Warn(ctx, stage, "reason", reason, "session_id", session.SessionID)
}

// updateChecklist implements §4.1 step 6, including the flight_no special
// rule ("collected iff either flight_no or flight_no_display is present").
func updateChecklist(session *state.Session, desc *scenario.Descriptor) {
	fields := append(append([]scenario.ChecklistField(nil), desc.P1Fields...), desc.P2Fields...)
	for _, f := range fields {
		if f.Key == "flight_no" {
			_, a := session.Incident["flight_no"]
			_, b := session.Incident["flight_no_display"]
			session.SetChecklist(f.Key, a || b)
			continue
		}
		_, present := session.Incident[f.Key]
		if !present {
			_, present = session.Incident[f.Key+"_display"]
		}
		session.SetChecklist(f.Key, present)
	}
}
