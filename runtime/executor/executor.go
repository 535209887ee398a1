// Package executor implements the tool executor (§4.3): it resolves the
// reasoning node's chosen action against the scenario-scoped tool registry,
// validates its input against the tool's JSON Schema, executes it, and
// records the outcome. Grounded on
// runtime/toolregistry/executor.Executor's overall shape (resolve spec ->
// validate -> execute -> decode result), simplified from its distributed
// Pulse-stream-result-wait loop to a direct in-process call: tools here run
// synchronously against local session state, with no remote tool-registry
// gateway in play. Schema validation is grounded on
// registry/service.go's validatePayloadJSONAgainstSchema, using the same
// santhosh-tekuri/jsonschema/v6 compiler.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/telemetry"
	"goa.design/apron-incident/runtime/tools"
)

// Executor runs the tool named by session.CurrentAction.
type Executor struct {
	registry *tools.Registry
	tel      telemetry.Provider
	now      func() time.Time
}

// New constructs an Executor.
func New(registry *tools.Registry, tel telemetry.Provider) *Executor {
	return &Executor{registry: registry, tel: tel, now: time.Now}
}

// Execute runs session.CurrentAction against session, appends an
// actions_taken entry, fills the observation of the reasoning step that
// requested it, and clears current_action/current_action_input. It returns
// true iff the tool ran successfully and is of critical class
// (tools.CriticalToolNames; §4.4: "runs only after tools of class
// critical"), signalling the agent graph to route to the FSM validator next.
func (e *Executor) Execute(ctx context.Context, session *state.Session) (critical bool) {
	action := session.CurrentAction
	if action == "" {
		return false
	}
	defer func() {
		session.CurrentAction = ""
		session.CurrentActionInput = nil
	}()

	input := toInputMap(session.CurrentActionInput)

	tool, ok := e.registry.Lookup(action, session.ScenarioType)
	if !ok {
		e.finish(ctx, session, action, input, false, fmt.Sprintf("unknown tool %q", action))
		return false
	}

	if err := validateInput(tool.InputSchema(), input); err != nil {
		e.finish(ctx, session, action, input, false, fmt.Sprintf("invalid input: %s", err.Error()))
		return false
	}

	ctx, end := e.tel.Tracer.StartSpan(ctx, "tool_executor."+action)
	defer end()

	result, err := tool.Execute(ctx, session, input)
	success := result.Success
	observation := result.Observation
	if err != nil {
		success = false
		observation = fmt.Sprintf("tool error: %s", err.Error())
	}

	e.finish(ctx, session, action, input, success, observation)
	return success && tools.CriticalToolNames[action]
}

func (e *Executor) finish(ctx context.Context, session *state.Session, action string, input map[string]any, success bool, observation string) {
	now := e.now()
	session.ActionsTaken = append(session.ActionsTaken, state.ActionTaken{
		Action:      action,
		Timestamp:   now,
		Inputs:      input,
		Observation: observation,
		Success:     success,
	})
	if n := len(session.ReasoningSteps); n > 0 {
		session.ReasoningSteps[n-1].Observation = observation
	}
	session.Messages = append(session.Messages, state.Message{
		Role:      state.RoleSystem,
		Content:   observation,
		Timestamp: now,
	})
	if !success {
		e.tel.Logger.Warn(ctx, "tool_execution_failed", "action", action, "observation", observation, "session_id", session.SessionID)
	}
}

func toInputMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// validateInput implements §4.3's "validates action_input against the
// tool's input schema (types, required fields, enum constraints, bounded
// string lengths)".
func validateInput(schemaBytes []byte, input map[string]any) error {
	if len(schemaBytes) == 0 {
		return nil
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	return schema.Validate(input)
}
