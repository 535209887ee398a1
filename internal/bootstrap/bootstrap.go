// Package bootstrap wires the shared, process-scoped collaborators (§5:
// "built once at start and shared read-only") into the single tools.Registry
// and modelclient.Client the engine runs against. It is the one place that
// resolves the tension between tools.Registry's name-unique-within-registry
// invariant (§3) and the handful of tools that hold non-interchangeable,
// per-scenario state (a scenario's own rules.Evaluator, *scenario.Descriptor,
// or field order): those tools are built once per scenario and fanned out
// under one shared name via tools.NewPerScenario.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"goa.design/apron-incident/internal/config"
	"goa.design/apron-incident/runtime/agentgraph"
	"goa.design/apron-incident/runtime/executor"
	"goa.design/apron-incident/runtime/fsmvalidator"
	"goa.design/apron-incident/runtime/modelclient"
	"goa.design/apron-incident/runtime/modelclient/anthropic"
	"goa.design/apron-incident/runtime/modelclient/bedrock"
	"goa.design/apron-incident/runtime/modelclient/openai"
	"goa.design/apron-incident/runtime/output"
	"goa.design/apron-incident/runtime/parser"
	"goa.design/apron-incident/runtime/providers"
	"goa.design/apron-incident/runtime/reasoning"
	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/telemetry"
	"goa.design/apron-incident/runtime/tools"
	"goa.design/apron-incident/runtime/topology"
)

// scenarioScoped names the tools whose behaviour depends on per-scenario
// configuration that cannot be shared across scenarios.
var scenarioScoped = []string{
	"assess_risk", "assess_risk_cross_validate", "estimate_cleanup_time",
	"calculate_impact_zone", "smart_ask", "aircraft_info",
}

// Collaborators holds the shared, scenario-independent dependencies every
// tool instance is built from.
type Collaborators struct {
	Graph    *topology.Graph
	Flights  providers.FlightPlanProvider
	Weather  providers.WeatherProvider
	Aircraft providers.AircraftInfoProvider
	// NowFn supplies the current time; defaults to time.Now.
	NowFn func() time.Time
}

// BuildToolRegistry constructs the single shared tools.Registry (§5) every
// session's reasoning and execution nodes consult, regardless of which
// scenario the session resolves to.
func BuildToolRegistry(scenarios *scenario.Registry, collab Collaborators) (*tools.Registry, error) {
	if scenarios == nil {
		return nil, errors.New("bootstrap: scenario registry is required")
	}
	nowFn := collab.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}

	assessRisk := map[string]tools.Tool{}
	crossValidate := map[string]tools.Tool{}
	cleanupTime := map[string]tools.Tool{}
	impactZone := map[string]tools.Tool{}
	smartAsk := map[string]tools.Tool{}
	aircraftInfo := map[string]tools.Tool{}

	for _, id := range scenarios.IDs() {
		desc, ok := scenarios.Get(id)
		if !ok {
			continue
		}

		primary, err := loadEvaluator(desc)
		if err != nil {
			return nil, err
		}
		assessRisk[id] = tools.NewAssessRiskTool([]string{id}, primary)

		crossPrimary, err := loadEvaluator(desc)
		if err != nil {
			return nil, err
		}
		crossSecondary, err := loadEvaluator(desc)
		if err != nil {
			return nil, err
		}
		crossValidate[id] = tools.NewAssessRiskCrossValidateTool([]string{id}, crossPrimary, crossSecondary)

		cleanupTime[id] = tools.NewEstimateCleanupTimeTool([]string{id}, desc)
		impactZone[id] = tools.NewCalculateImpactZoneTool([]string{id}, collab.Graph, desc)
		smartAsk[id] = tools.NewSmartAskTool([]string{id}, desc.FieldOrder, desc.AskPrompts)
		aircraftInfo[id] = tools.NewAircraftInfoTool([]string{id}, desc.FieldOrder, collab.Aircraft)
	}

	dispatched, err := dispatchers(map[string]map[string]tools.Tool{
		"assess_risk":                assessRisk,
		"assess_risk_cross_validate": crossValidate,
		"estimate_cleanup_time":      cleanupTime,
		"calculate_impact_zone":      impactZone,
		"smart_ask":                  smartAsk,
		"aircraft_info":              aircraftInfo,
	})
	if err != nil {
		return nil, err
	}

	all := append([]tools.Tool{}, dispatched...)
	all = append(all,
		tools.NewAskTool([]string{"common"}),
		tools.NewFlightPlanLookupTool([]string{"common"}, collab.Flights),
		tools.NewWeatherLookupTool([]string{"common"}, collab.Weather),
		tools.NewRadiotelephonyNormalizeTool([]string{"common"}),
		tools.NewStandLocationTool([]string{"common"}, collab.Graph),
		tools.NewPositionImpactTool([]string{"common"}),
		tools.NewPredictFlightImpactTool([]string{"common"}, func() string { return nowFn().Format(time.RFC3339) }),
		tools.NewNotifyDepartmentTool([]string{"common"}, nowFn),
		tools.NewGenerateReportTool([]string{"common"}),
		tools.NewAnalyzeWeatherImpactTool([]string{"common"}),
		tools.NewComprehensiveAnalysisTool([]string{"common"}),
	)

	return tools.NewRegistry(all)
}

// dispatchers wraps each named byScenario map in a tools.NewPerScenario
// decorator, deriving the decorator's description/class/schema from an
// arbitrary member (every member of a group is expected to agree on them).
// A name with zero scenarios configured is skipped: no scenario needs it.
func dispatchers(byName map[string]map[string]tools.Tool) ([]tools.Tool, error) {
	out := make([]tools.Tool, 0, len(byName))
	for name, byScenario := range byName {
		if len(byScenario) == 0 {
			continue
		}
		var sample tools.Tool
		for _, t := range byScenario {
			sample = t
			break
		}
		if sample.Name() != name {
			return nil, fmt.Errorf("bootstrap: %s: underlying tool reports name %q", name, sample.Name())
		}
		out = append(out, tools.NewPerScenario(name, sample.Description(), sample.Class(), sample.InputSchema(), byScenario))
	}
	return out, nil
}

// BuildModelClient builds the modelclient.Client named by cfg.LLMProvider.
// An empty LLMAPIKey for a non-bedrock provider returns a nil Client and no
// error: the reasoning node degrades gracefully (§7 "missing LLM client"),
// skipping stage-2 deep normalisation and the reasoning loop's model calls.
func BuildModelClient(cfg config.Config) (modelclient.Client, error) {
	if cfg.LLMAPIKey == "" && cfg.LLMProvider != "bedrock" {
		return nil, nil
	}
	switch cfg.LLMProvider {
	case "anthropic":
		return anthropic.NewFromAPIKey(cfg.LLMAPIKey, cfg.LLMModel)
	case "openai":
		return openai.NewFromAPIKey(cfg.LLMAPIKey, cfg.LLMModel)
	case "bedrock":
		if cfg.AWSAccessKeyID == "" {
			return nil, nil
		}
		return bedrock.New(bedrock.Options{
			Runtime:      bedrockRuntime(cfg),
			DefaultModel: cfg.LLMModel,
		})
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// Engine groups every process-scoped collaborator cmd/server and
// cmd/run-agent need to drive a turn, so both entry points wire the same
// five-node graph (§4.10) from one place rather than duplicating
// construction order.
type Engine struct {
	Scenarios *scenario.Registry
	Graph     *agentgraph.Graph
	Parser    *parser.Parser
}

// BuildEngine loads the scenario registry and topology graph named by cfg,
// builds the shared tool registry and model client, and wires the parser,
// reasoning, executor, FSM-validator, and output-generator nodes into one
// agentgraph.Graph.
func BuildEngine(cfg config.Config, tel telemetry.Provider) (*Engine, error) {
	scenarios, err := scenario.Load(cfg.ScenariosDir)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load scenarios: %w", err)
	}

	topo, warnings, err := loadTopology(cfg.TopologyFile)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load topology: %w", err)
	}
	for _, w := range warnings {
		tel.Logger.Warn(context.Background(), "topology_load_warning", "detail", w)
	}

	flights := providers.NewInMemoryFlightPlanProvider(nil)
	weather := providers.StaticWeatherProvider{}
	aircraft := providers.StaticAircraftInfoProvider{}

	toolRegistry, err := BuildToolRegistry(scenarios, Collaborators{
		Graph: topo, Flights: flights, Weather: weather, Aircraft: aircraft,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build tool registry: %w", err)
	}

	model, err := BuildModelClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build model client: %w", err)
	}

	parserCfg := parser.DefaultConfig()
	parserCfg.MaxEnrichmentWorkers = cfg.MaxEnrichmentWorkers
	parserCfg.EnrichmentTimeout = cfg.EnrichmentTimeout

	p := parser.New(scenarios, model, flights, weather, aircraft, topo, tel, parserCfg)
	r := reasoning.New(scenarios, toolRegistry, model, tel, reasoning.DefaultConfig())
	e := executor.New(toolRegistry, tel)
	v := fsmvalidator.New()
	g := output.New()
	ag := agentgraph.New(scenarios, p, r, e, v, g, tel, agentgraph.DefaultConfig())

	return &Engine{Scenarios: scenarios, Graph: ag, Parser: p}, nil
}

// loadTopology reads path as a topology JSON document, or returns an empty
// graph when path is unset (deployments without a spatial-impact feed).
func loadTopology(path string) (*topology.Graph, []string, error) {
	if path == "" {
		return topology.Load(strings.NewReader(`{"nodes":[],"edges":[]}`))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return topology.Load(f)
}

func bedrockRuntime(cfg config.Config) *bedrockruntime.Client {
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: cfg.AWSAccessKeyID, SecretAccessKey: cfg.AWSSecretAccessKey}, nil
	})
	return bedrockruntime.New(bedrockruntime.Options{Region: cfg.AWSRegion, Credentials: creds})
}
