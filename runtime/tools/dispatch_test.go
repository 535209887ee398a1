package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/apron-incident/runtime/state"
)

type stubTool struct {
	scenarios []string
	obs       string
}

func (s stubTool) Name() string                       { return "assess_risk" }
func (s stubTool) Description() string                { return "stub" }
func (s stubTool) Class() Class                        { return ClassCritical }
func (s stubTool) Scenarios() []string                 { return s.scenarios }
func (s stubTool) InputSchema() []byte                 { return []byte(`{}`) }
func (s stubTool) Execute(context.Context, *state.Session, map[string]any) (Result, error) {
	return Result{Success: true, Observation: s.obs}, nil
}

func TestPerScenarioDispatchesByScenarioType(t *testing.T) {
	tool := NewPerScenario("assess_risk", "stub", ClassCritical, []byte(`{}`), map[string]Tool{
		"oil_spill":   stubTool{scenarios: []string{"oil_spill"}, obs: "oil"},
		"bird_strike": stubTool{scenarios: []string{"bird_strike"}, obs: "bird"},
	})

	oilSession := state.New("s1", "oil_spill", time.Now())
	res, err := tool.Execute(context.Background(), oilSession, nil)
	require.NoError(t, err)
	assert.Equal(t, "oil", res.Observation)

	birdSession := state.New("s2", "bird_strike", time.Now())
	res, err = tool.Execute(context.Background(), birdSession, nil)
	require.NoError(t, err)
	assert.Equal(t, "bird", res.Observation)
}

func TestPerScenarioRejectsUnconfiguredScenario(t *testing.T) {
	tool := NewPerScenario("assess_risk", "stub", ClassCritical, []byte(`{}`), map[string]Tool{
		"oil_spill": stubTool{scenarios: []string{"oil_spill"}, obs: "oil"},
	})

	session := state.New("s1", "fod", time.Now())
	_, err := tool.Execute(context.Background(), session, nil)
	assert.Error(t, err)
}

func TestPerScenarioScenariosIsUnionOfKeys(t *testing.T) {
	tool := NewPerScenario("assess_risk", "stub", ClassCritical, []byte(`{}`), map[string]Tool{
		"oil_spill":   stubTool{scenarios: []string{"oil_spill"}},
		"bird_strike": stubTool{scenarios: []string{"bird_strike"}},
	})

	scenarios := tool.Scenarios()
	assert.ElementsMatch(t, []string{"oil_spill", "bird_strike"}, scenarios)
}
