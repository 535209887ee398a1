package reasoning

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/apron-incident/runtime/modelclient"
	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/telemetry"
	"goa.design/apron-incident/runtime/tools"
)

func TestParseResponseActionAndThought(t *testing.T) {
	step, ok := parseResponse("Thought: need to ask for flight number\nAction: smart_ask\nAction Input: {\"field\": \"flight_no\"}\n")
	require.True(t, ok)
	assert.Equal(t, "need to ask for flight number", step.thought)
	assert.Equal(t, "smart_ask", step.action)
	assert.Equal(t, map[string]any{"field": "flight_no"}, step.actionInput)
}

func TestParseResponseFinalAnswer(t *testing.T) {
	step, ok := parseResponse("Thought: all done\nFinal Answer: 事件已处理完毕。")
	require.True(t, ok)
	assert.Equal(t, "all done", step.thought)
	assert.Equal(t, "事件已处理完毕。", step.finalAnswer)
}

func TestParseResponseFencedAndTrivialString(t *testing.T) {
	step, ok := parseResponse("```\nThought: checking\nAction: ask\nAction Input: CCA1234\n```")
	require.True(t, ok)
	assert.Equal(t, "ask", step.action)
	assert.Equal(t, map[string]any{"value": "CCA1234"}, step.actionInput)
}

func TestParseResponseRejectsMissingAction(t *testing.T) {
	_, ok := parseResponse("just some prose with no structure")
	assert.False(t, ok)
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

type stubTool struct {
	name string
}

func (s stubTool) Name() string                 { return s.name }
func (s stubTool) Description() string          { return "stub " + s.name }
func (s stubTool) InputSchema() []byte          { return []byte(`{"type":"object"}`) }
func (s stubTool) Scenarios() []string          { return []string{"common"} }
func (s stubTool) Class() tools.Class           { return tools.ClassNonCritical }
func (s stubTool) Execute(context.Context, *state.Session, map[string]any) (tools.Result, error) {
	return tools.Result{Success: true}, nil
}

func testRegistry(t *testing.T) *scenario.Registry {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "oil_spill")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("manifest.yaml", "id: oil_spill\nkeywords: [\"燃油\"]\nversion: \"1\"\n")
	write("prompt.yaml", `system_prompt: "You handle oil spill incidents."
field_order: [flight_no, position]
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

	reg, err := scenario.Load(root)
	require.NoError(t, err)
	return reg
}

func testToolset(t *testing.T) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistry([]tools.Tool{stubTool{name: "smart_ask"}, stubTool{name: "generate_report"}})
	require.NoError(t, err)
	return reg
}

func TestReasonNoOpWhenComplete(t *testing.T) {
	r := New(testRegistry(t), testToolset(t), stubModel{text: "should not be called"}, telemetry.NoOp(), DefaultConfig())
	session := state.New("s1", "oil_spill", time.Now())
	session.IsComplete = true
	session.FinalAnswer = "already done"

	r.Reason(context.Background(), session)

	assert.Equal(t, "already done", session.FinalAnswer)
	assert.Empty(t, session.ReasoningSteps)
}

func TestReasonAppliesModelAction(t *testing.T) {
	model := stubModel{text: "Thought: need flight number\nAction: smart_ask\nAction Input: {\"field\": \"flight_no\"}\n"}
	r := New(testRegistry(t), testToolset(t), model, telemetry.NoOp(), DefaultConfig())
	session := state.New("s1", "oil_spill", time.Now())

	r.Reason(context.Background(), session)

	require.Len(t, session.ReasoningSteps, 1)
	assert.Equal(t, "smart_ask", session.CurrentAction)
	assert.Equal(t, "smart_ask", session.ReasoningSteps[0].Action)
	assert.False(t, session.IsComplete)
}

func TestReasonFallbackAsksPendingField(t *testing.T) {
	model := stubModel{text: "not a structured response at all"}
	r := New(testRegistry(t), testToolset(t), model, telemetry.NoOp(), DefaultConfig())
	session := state.New("s1", "oil_spill", time.Now())

	r.Reason(context.Background(), session)

	assert.Equal(t, "smart_ask", session.CurrentAction)
	assert.Equal(t, map[string]any{"field": "flight_no"}, session.CurrentActionInput)
}

func TestReasonFallbackGeneratesReportWhenChecklistAndRiskComplete(t *testing.T) {
	model := stubModel{text: "not structured"}
	r := New(testRegistry(t), testToolset(t), model, telemetry.NoOp(), DefaultConfig())
	session := state.New("s1", "oil_spill", time.Now())
	session.Checklist["flight_no"] = true
	session.Checklist["position"] = true
	session.RiskAssessment = &state.RiskAssessment{Level: "LOW"}

	r.Reason(context.Background(), session)

	assert.Equal(t, "generate_report", session.CurrentAction)
}
