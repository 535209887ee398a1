package parser

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/topology"
)

// enrichmentResult accumulates the outcome of every enrichment future. Each
// future writes only to its own field, so no synchronisation is needed
// until the results are merged into session (single-writer, §5).
type enrichmentResult struct {
	aircraftInfo   map[string]any
	flightPlan     []state.FlightPlanEntry
	resolvedNode   string
	resolvedNodeOK bool

	spatial *state.SpatialAnalysis
}

// enrich implements §5 "Parallel auto-enrichment": phase 1 fans out
// independent lookups (aircraft info, flight-plan, stand location); phase 2
// runs the impact-zone computation, which consumes phase 1's resolved
// position. No position-impact check runs during enrichment. Every future is individually timeout-bounded and its failure
// degrades to "no data" plus a warning, never aborting the turn.
func (p *Parser) enrich(ctx context.Context, session *state.Session, desc *scenario.Descriptor) {
	var result enrichmentResult

	p.runPhase(ctx, session, []enrichmentTask{
		{name: "aircraft_info", fn: func(fctx context.Context) error {
			return p.fetchAircraftInfo(fctx, session, &result)
		}},
		{name: "flight_plan_lookup", fn: func(fctx context.Context) error {
			return p.fetchFlightPlan(fctx, session, &result)
		}},
		{name: "stand_location", fn: func(fctx context.Context) error {
			return p.resolveStandLocation(session, &result)
		}},
	})

	for k, v := range result.aircraftInfo {
		session.SetIncident("aircraft_"+k, v, desc.FieldOrder)
	}
	if result.flightPlan != nil {
		session.FlightPlanTable = result.flightPlan
	}

	if !result.resolvedNodeOK {
		return
	}

	p.runPhase(ctx, session, []enrichmentTask{
		{name: "calculate_impact_zone", fn: func(fctx context.Context) error {
			return p.computeImpactZone(session, desc, result.resolvedNode, &result)
		}},
	})

	if result.spatial != nil {
		session.SpatialAnalysis = result.spatial
	}
}

type enrichmentTask struct {
	name string
	fn   func(context.Context) error
}

// runPhase fans tasks out over a bounded worker pool, each under its own
// timeout; a failing or timed-out task is recorded as a warning and does
// not block its siblings (§5 "a future that times out or fails is treated
// as 'no data'").
func (p *Parser) runPhase(ctx context.Context, session *state.Session, tasks []enrichmentTask) {
	workers := p.cfg.MaxEnrichmentWorkers
	if workers <= 0 {
		workers = 3
	}
	timeout := p.cfg.EnrichmentTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	warnings := make(chan string, len(tasks))

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := task.fn(fctx); err != nil {
				warnings <- fmt.Sprintf("%s: %s", task.name, err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()
	close(warnings)
	for w := range warnings {
		p.warn(ctx, session, "enrichment", w)
	}
}

func (p *Parser) fetchAircraftInfo(ctx context.Context, session *state.Session, result *enrichmentResult) error {
	if p.aircraft == nil {
		return nil
	}
	flightNo, _ := session.Incident["flight_no"].(string)
	if flightNo == "" {
		return nil
	}
	info, err := p.aircraft.Info(ctx, flightNo)
	if err != nil {
		return err
	}
	result.aircraftInfo = info
	return nil
}

func (p *Parser) fetchFlightPlan(ctx context.Context, session *state.Session, result *enrichmentResult) error {
	if p.flights == nil {
		return nil
	}
	flightNo, _ := session.Incident["flight_no"].(string)
	if flightNo == "" {
		return nil
	}
	rows, err := p.flights.Lookup(ctx, flightNo)
	if err != nil {
		return err
	}
	entries := make([]state.FlightPlanEntry, 0, len(rows))
	for _, r := range rows {
		t, _ := parseEnrichmentTime(r.ScheduledTime)
		entries = append(entries, state.FlightPlanEntry{
			FlightNo: r.FlightNo, ScheduledTime: t, Stand: r.Stand, Taxiway: r.Taxiway, Runway: r.Runway,
		})
	}
	result.flightPlan = entries
	return nil
}

func (p *Parser) resolveStandLocation(session *state.Session, result *enrichmentResult) error {
	if p.graph == nil {
		return nil
	}
	position, _ := session.Incident["position"].(string)
	if position == "" {
		return nil
	}
	node, ok := p.graph.NearestNode(position)
	if !ok {
		return fmt.Errorf("position %q not found in topology", position)
	}
	result.resolvedNode = node
	result.resolvedNodeOK = true
	return nil
}

func (p *Parser) computeImpactZone(session *state.Session, desc *scenario.Descriptor, startNode string, result *enrichmentResult) error {
	fluid, _ := session.Incident["fluid_type"].(string)
	level := "LOW"
	if session.RiskAssessment != nil {
		level = session.RiskAssessment.Level
	}
	radius, _ := desc.Propagation(fluid, level)

	bfs := p.graph.BFS(startNode, radius, nil)
	result.spatial = &state.SpatialAnalysis{
		IsolatedNodes:    bfs.IsolatedNodes,
		AffectedStands:   p.graph.NodesOfType(bfs.ReachedByHops, topology.NodeStand),
		AffectedTaxiways: p.graph.NodesOfType(bfs.ReachedByHops, topology.NodeTaxiway),
		AffectedRunways:  p.graph.NodesOfType(bfs.ReachedByHops, topology.NodeRunway),
		RadiusHopsUsed:   radius,
	}
	return nil
}

func parseEnrichmentTime(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
