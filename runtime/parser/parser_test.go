package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/apron-incident/runtime/modelclient"
	"goa.design/apron-incident/runtime/providers"
	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/telemetry"
	"goa.design/apron-incident/runtime/topology"
)

func writeOilSpillScenario(t *testing.T, root string) {
	t.Helper()
	dir := filepath.Join(root, "oil_spill")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("manifest.yaml", "id: oil_spill\nkeywords: [\"燃油\", \"泄漏\"]\nversion: \"1\"\n")
	write("prompt.yaml", `system_prompt: test
field_order: [flight_no, position, fluid_type, engine_status, continuous, leak_size]
field_names: {}
ask_prompts: {}
`)
	write("checklist.yaml", `p1_fields:
  - key: flight_no
    type: string
    required: true
  - key: position
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
	write("config.yaml", "mandatory_triggers: []\nrisk_rules:\n  inline: {}\n")
}

func testRegistry(t *testing.T) *scenario.Registry {
	t.Helper()
	root := t.TempDir()
	writeOilSpillScenario(t, root)
	reg, err := scenario.Load(root)
	require.NoError(t, err)
	return reg
}

func testGraph(t *testing.T) *topology.Graph {
	t.Helper()
	g, _, err := topology.Load(strings.NewReader(`{
		"nodes": [
			{"id": "217", "type": "stand", "lat": 0, "lon": 0},
			{"id": "TWY-A", "type": "taxiway", "lat": 0, "lon": 0.001}
		],
		"edges": [{"from": "217", "to": "TWY-A"}]
	}`))
	require.NoError(t, err)
	return g
}

func TestParseExtractsAndFiltersFields(t *testing.T) {
	reg := testRegistry(t)
	p := New(reg, nil, nil, nil, nil, testGraph(t), telemetry.NoOp(), DefaultConfig())
	session := state.New("s1", "", time.Now())

	p.Parse(context.Background(), session, "CCA1234在机位217发生燃油泄漏，持续漏油")

	assert.Equal(t, "oil_spill", session.ScenarioType)
	assert.Equal(t, "CCA1234", session.Incident["flight_no"])
	assert.Equal(t, "217", session.Incident["position"])
	assert.Equal(t, "FUEL", session.Incident["fluid_type"])
	assert.Equal(t, true, session.Incident["continuous"])
	assert.True(t, session.Checklist["flight_no"])
	assert.True(t, session.Checklist["position"])
}

func TestParseRejectsDisallowedExtractedField(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "oil_spill")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("manifest.yaml", "id: oil_spill\nkeywords: [\"燃油\"]\nversion: \"1\"\n")
	write("prompt.yaml", "system_prompt: test\nfield_order: []\nfield_names: {}\nask_prompts: {}\n")
	write("checklist.yaml", "p1_fields: []\np2_fields: []\n")
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
	write("config.yaml", "mandatory_triggers: []\nrisk_rules:\n  inline: {}\n")
	reg, err := scenario.Load(root)
	require.NoError(t, err)

	p := New(reg, nil, nil, nil, nil, nil, telemetry.NoOp(), DefaultConfig())
	session := state.New("s1", "oil_spill", time.Now())
	p.Parse(context.Background(), session, "燃油泄漏事件")

	_, rejected := session.Incident["fluid_type"]
	assert.False(t, rejected)
	assert.True(t, hasWarning(session, "field_filtering"))
}

func TestNormalizeRunsStage1Unconditionally(t *testing.T) {
	reg := testRegistry(t)
	p := New(reg, nil, nil, nil, nil, nil, telemetry.NoOp(), DefaultConfig())
	session := state.New("s1", "oil_spill", time.Now())
	p.Parse(context.Background(), session, "跑道27左 洞幺")

	assert.Equal(t, "RWY27L", session.Incident["position"])
}

type stubModel struct {
	text string
	err  error
}

func (s stubModel) Complete(context.Context, *modelclient.Request) (*modelclient.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &modelclient.Response{Text: s.text}, nil
}

func TestDeepNormalizeFallsBackOnModelError(t *testing.T) {
	reg := testRegistry(t)
	p := New(reg, stubModel{err: assert.AnError}, nil, nil, nil, nil, telemetry.NoOp(), DefaultConfig())
	session := state.New("s1", "oil_spill", time.Now())

	p.Parse(context.Background(), session, "跑道27左发生燃油泄漏事件需要立即处置")

	assert.True(t, hasWarning(session, "deep_normalisation"))
}

func TestEnrichmentFetchesFlightPlanAndStandLocation(t *testing.T) {
	reg := testRegistry(t)
	flights := providers.NewInMemoryFlightPlanProvider([]providers.FlightPlanRow{
		{FlightNo: "CCA1234", ScheduledTime: "2026-01-01T10:00:00Z", Stand: "217"},
	})
	p := New(reg, nil, flights, nil, nil, testGraph(t), telemetry.NoOp(), DefaultConfig())
	session := state.New("s1", "oil_spill", time.Now())

	p.Parse(context.Background(), session, "CCA1234在机位217发生燃油泄漏")

	require.Len(t, session.FlightPlanTable, 1)
	assert.Equal(t, "CCA1234", session.FlightPlanTable[0].FlightNo)
	require.NotNil(t, session.SpatialAnalysis)
	assert.Contains(t, session.SpatialAnalysis.AffectedTaxiways, "TWY-A")
}

func hasWarning(session *state.Session, stage string) bool {
	for _, m := range session.Messages {
		if strings.Contains(m.Content, "[warning] "+stage) {
			return true
		}
	}
	return false
}
