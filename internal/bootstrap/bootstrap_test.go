package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/apron-incident/internal/config"
	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/telemetry"
	"goa.design/apron-incident/runtime/topology"
)

func writeScenario(t *testing.T, root, id, level string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("manifest.yaml", "id: "+id+"\nkeywords: [\""+id+"\"]\nversion: \"1\"\n")
	write("prompt.yaml", `system_prompt: test
field_order: [flight_no, position]
field_names: {}
ask_prompts: {position: "请提供位置"}
`)
	write("checklist.yaml", `p1_fields:
  - key: flight_no
    type: string
    required: true
p2_fields: []
`)
	write("fsm_states.yaml", `
- id: INIT
  order: 0
  name: Init
  preconditions: []
  next_states: [COMPLETED]
- id: COMPLETED
  order: 1
  name: Done
  preconditions: []
  next_states: []
`)
	write("config.yaml", `mandatory_triggers: []
risk_rules:
  inline:
    - id: r1
      priority: 1
      conditions: {x: 1}
      level: `+level+`
      score: 50
      immediate_actions: []
`)
}

func testScenarios(t *testing.T) *scenario.Registry {
	t.Helper()
	root := t.TempDir()
	writeScenario(t, root, "oil_spill", "HIGH")
	writeScenario(t, root, "bird_strike", "LOW")
	reg, err := scenario.Load(root)
	require.NoError(t, err)
	return reg
}

func testGraph(t *testing.T) *topology.Graph {
	t.Helper()
	g, _, err := topology.Load(strings.NewReader(`{
		"nodes": [{"id": "217", "type": "stand", "lat": 0, "lon": 0}],
		"edges": []
	}`))
	require.NoError(t, err)
	return g
}

func TestBuildToolRegistryDispatchesAssessRiskPerScenario(t *testing.T) {
	reg, err := BuildToolRegistry(testScenarios(t), Collaborators{Graph: testGraph(t)})
	require.NoError(t, err)

	tool, ok := reg.Lookup("assess_risk", "oil_spill")
	require.True(t, ok)
	oilSession := state.New("s1", "oil_spill", time.Now())
	oilSession.Incident["x"] = 1
	res, err := tool.Execute(context.Background(), oilSession, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "HIGH", oilSession.RiskAssessment.Level)

	tool, ok = reg.Lookup("assess_risk", "bird_strike")
	require.True(t, ok)
	birdSession := state.New("s2", "bird_strike", time.Now())
	birdSession.Incident["x"] = 1
	res, err = tool.Execute(context.Background(), birdSession, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "LOW", birdSession.RiskAssessment.Level)
}

func TestBuildToolRegistryIncludesCommonTools(t *testing.T) {
	reg, err := BuildToolRegistry(testScenarios(t), Collaborators{Graph: testGraph(t)})
	require.NoError(t, err)

	for _, name := range []string{"ask", "flight_plan_lookup", "weather_lookup", "notify_department", "generate_report"} {
		_, ok := reg.Lookup(name, "oil_spill")
		assert.Truef(t, ok, "expected %s visible to oil_spill", name)
		_, ok = reg.Lookup(name, "bird_strike")
		assert.Truef(t, ok, "expected %s visible to bird_strike", name)
	}
}

func TestBuildToolRegistryScopesSmartAskPerScenario(t *testing.T) {
	reg, err := BuildToolRegistry(testScenarios(t), Collaborators{Graph: testGraph(t)})
	require.NoError(t, err)

	_, ok := reg.Lookup("smart_ask", "oil_spill")
	assert.True(t, ok)
	_, ok = reg.Lookup("smart_ask", "fod")
	assert.False(t, ok, "fod was never configured, so smart_ask must not resolve for it")
}

func TestBuildModelClientDegradesGracefullyWithoutAPIKey(t *testing.T) {
	client, err := BuildModelClient(config.Config{LLMProvider: "anthropic"})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestBuildModelClientRejectsUnknownProvider(t *testing.T) {
	_, err := BuildModelClient(config.Config{LLMProvider: "unknown", LLMAPIKey: "k"})
	assert.Error(t, err)
}

func TestBuildEngineWiresGraphAgainstScenarios(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, root, "oil_spill", "HIGH")

	cfg := config.Config{
		LLMProvider:          "anthropic",
		ScenariosDir:         root,
		MaxEnrichmentWorkers: 3,
		EnrichmentTimeout:    time.Second,
	}
	eng, err := BuildEngine(cfg, telemetry.NoOp())
	require.NoError(t, err)
	require.NotNil(t, eng.Graph)
	require.NotNil(t, eng.Parser)

	_, ok := eng.Scenarios.Get("oil_spill")
	assert.True(t, ok)
}

func TestBuildEngineDefaultsToEmptyTopologyWithoutTopologyFile(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, root, "oil_spill", "HIGH")

	cfg := config.Config{
		LLMProvider:          "anthropic",
		ScenariosDir:         root,
		MaxEnrichmentWorkers: 3,
		EnrichmentTimeout:    time.Second,
	}
	_, err := BuildEngine(cfg, telemetry.NoOp())
	require.NoError(t, err)
}
