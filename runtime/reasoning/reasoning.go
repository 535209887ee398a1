// Package reasoning implements the ReAct reasoning node (§4.2): prompt
// construction from scenario context, tool catalogue, and session state,
// an LLM call at low temperature, and tolerant parsing of the model's
// Thought/Action/Action Input/Final Answer response. Grounded on
// runtime/agent/planner.Planner's PlanStart/PlanResume split, reduced to a
// single Reason entry point since this spec's turn loop always resumes
// from the same session rather than distinguishing a fresh run.
package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"goa.design/apron-incident/runtime/modelclient"
	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/telemetry"
	"goa.design/apron-incident/runtime/tools"
)

// Config tunes the LLM call (§4.2: "low temperature, e.g. 0.1").
type Config struct {
	Temperature  float64
	MaxTokens    int
	HistoryLimit int // number of recent messages included in the prompt
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{Temperature: 0.1, MaxTokens: 1024, HistoryLimit: 12}
}

// Reasoner is the ReAct reasoning node.
type Reasoner struct {
	scenarios *scenario.Registry
	toolset   *tools.Registry
	model     modelclient.Client
	tel       telemetry.Provider
	cfg       Config
	now       func() time.Time
}

// New constructs a Reasoner.
func New(scenarios *scenario.Registry, toolset *tools.Registry, model modelclient.Client, tel telemetry.Provider, cfg Config) *Reasoner {
	return &Reasoner{scenarios: scenarios, toolset: toolset, model: model, tel: tel, cfg: cfg, now: time.Now}
}

// Reason implements §4.2's full algorithm, mutating session in place. It is
// a no-op once session.IsComplete (the node's guardrail).
func (r *Reasoner) Reason(ctx context.Context, session *state.Session) {
	if session.IsComplete {
		return
	}

	desc, ok := r.scenarios.Get(session.ScenarioType)
	if !ok {
		r.finalize(session, "无法识别事件类型，请人工介入。", "unknown scenario")
		return
	}

	visibleTools := r.toolset.ForScenario(session.ScenarioType)

	prompt := buildPrompt(desc, visibleTools, session, r.cfg.HistoryLimit)
	step, ok := r.call(ctx, desc, prompt)
	if !ok {
		shortPrompt := buildPrompt(desc, visibleTools, session, 3)
		step, ok = r.call(ctx, desc, shortPrompt)
	}
	if !ok {
		step = r.fallback(session, desc)
	}

	r.apply(session, step)
}

// parsedStep is the normalised result of one reasoning call, regardless of
// whether it came from the model or the fallback heuristic.
type parsedStep struct {
	thought     string
	action      string
	actionInput any
	finalAnswer string
}

func (r *Reasoner) call(ctx context.Context, desc *scenario.Descriptor, prompt string) (parsedStep, bool) {
	if r.model == nil {
		return parsedStep{}, false
	}
	resp, err := r.model.Complete(ctx, &modelclient.Request{
		SystemPrompt: desc.SystemPrompt,
		Messages:     []modelclient.Message{{Role: "user", Content: prompt}},
		Temperature:  float32(r.cfg.Temperature),
		MaxTokens:    r.cfg.MaxTokens,
	})
	if err != nil || resp == nil {
		return parsedStep{}, false
	}
	return parseResponse(resp.Text)
}

// fallback implements §4.2's second-failure heuristic: the highest-priority
// pending P1 field routes to smart_ask; otherwise, if risk is assessed and
// every mandatory action is done, route to generate_report.
func (r *Reasoner) fallback(session *state.Session, desc *scenario.Descriptor) parsedStep {
	if field, ok := pendingP1Field(session, desc); ok {
		return parsedStep{
			thought:     "缺少必需信息，转而询问用户。",
			action:      "smart_ask",
			actionInput: map[string]any{"field": field},
		}
	}
	if session.RiskAssessment != nil && mandatoryActionsDone(session, desc) {
		return parsedStep{
			thought:     "风险已评估，必要处置已完成，生成报告。",
			action:      "generate_report",
			actionInput: map[string]any{},
		}
	}
	return parsedStep{
		thought:     "模型响应无法解析，且缺乏足够上下文自动推进，请人工介入。",
		finalAnswer: "处置流程需要人工介入：无法解析推理结果。",
	}
}

func pendingP1Field(session *state.Session, desc *scenario.Descriptor) (string, bool) {
	for _, f := range desc.P1Fields {
		if !session.Checklist[f.Key] {
			return f.Key, true
		}
	}
	return "", false
}

func mandatoryActionsDone(session *state.Session, desc *scenario.Descriptor) bool {
	for _, trig := range desc.MandatoryTriggers {
		if !session.MandatoryActionsDone[trig.CheckField] {
			return false
		}
	}
	return true
}

// apply writes the §4.2 state delta.
func (r *Reasoner) apply(session *state.Session, step parsedStep) {
	session.ReasoningSteps = append(session.ReasoningSteps, state.ReasoningStep{
		Thought:     step.thought,
		Action:      step.action,
		ActionInput: step.actionInput,
	})

	if step.finalAnswer != "" {
		r.finalize(session, step.finalAnswer, "")
		return
	}

	session.CurrentThought = step.thought
	session.CurrentAction = step.action
	session.CurrentActionInput = step.actionInput
}

func (r *Reasoner) finalize(session *state.Session, answer, reason string) {
	session.FinalAnswer = answer
	session.IsComplete = true
	if reason != "" {
		session.Messages = append(session.Messages, state.Message{
			Role:      state.RoleSystem,
			Content:   fmt.Sprintf("[warning] reasoning: %s", reason),
			Timestamp: r.now(),
		})
	}
}

// buildPrompt implements §4.2's prompt composition: scenario system prompt,
// tool catalogue, condensed state summary, and recent history.
func buildPrompt(desc *scenario.Descriptor, visibleTools []tools.Tool, session *state.Session, historyLimit int) string {
	var b strings.Builder

	b.WriteString("## Available tools\n")
	for _, t := range visibleTools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
	}

	b.WriteString("\n## Current state\n")
	b.WriteString(stateSummary(desc, session))

	b.WriteString("\n## Recent messages\n")
	for _, m := range recentMessages(session.Messages, historyLimit) {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	b.WriteString("\nRespond with Thought, then either (Action, Action Input) or Final Answer.\n")
	return b.String()
}

func stateSummary(desc *scenario.Descriptor, session *state.Session) string {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario: %s\n", session.ScenarioType)
	fmt.Fprintf(&b, "fsm_state: %s\n", session.FSMState)

	if len(session.Incident) > 0 {
		b.WriteString("incident:\n")
		for _, k := range desc.FieldOrder {
			if v, ok := session.Incident[k]; ok {
				fmt.Fprintf(&b, "  %s: %v\n", k, v)
			}
		}
	}

	var pending []string
	for _, f := range desc.P1Fields {
		if !session.Checklist[f.Key] {
			pending = append(pending, f.Key)
		}
	}
	if len(pending) > 0 {
		fmt.Fprintf(&b, "pending_p1_fields: %s\n", strings.Join(pending, ", "))
	}

	if session.RiskAssessment != nil {
		fmt.Fprintf(&b, "risk: %s (score %d)\n", session.RiskAssessment.Level, session.RiskAssessment.Score)
	}
	if session.SpatialAnalysis != nil {
		fmt.Fprintf(&b, "affected_stands: %s\n", strings.Join(session.SpatialAnalysis.AffectedStands, ", "))
	}
	if session.FlightImpact != nil {
		fmt.Fprintf(&b, "flight_impact_high_severity_count: %d\n", session.FlightImpact.Statistics.SeverityDistribution.High)
	}

	return b.String()
}

func recentMessages(msgs []state.Message, limit int) []state.Message {
	if limit <= 0 || len(msgs) <= limit {
		return msgs
	}
	return msgs[len(msgs)-limit:]
}
