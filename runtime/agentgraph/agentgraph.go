// Package agentgraph wires the per-turn node sequence (§4.10):
// input_parser -> reasoning -> (tool_executor -> fsmvalidator ->)* reasoning
// -> output_generator, bounded by a recursion limit counting node
// executions. Grounded on runtime/agent/engine/inmem's node-dispatch loop
// (a switch over the next node name, looping until a terminal node is
// reached), generalized from its workflow-engine state machine to this
// spec's fixed five-node graph.
package agentgraph

import (
	"context"
	"fmt"

	"goa.design/apron-incident/runtime/executor"
	"goa.design/apron-incident/runtime/fsmvalidator"
	"goa.design/apron-incident/runtime/output"
	"goa.design/apron-incident/runtime/parser"
	"goa.design/apron-incident/runtime/reasoning"
	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/telemetry"
)

// Node names, used only for event labeling.
const (
	NodeInputParser     = "input_parser"
	NodeReasoning       = "reasoning"
	NodeToolExecutor    = "tool_executor"
	NodeFSMValidator    = "fsm_validator"
	NodeOutputGenerator = "output_generator"
)

// DefaultRecursionLimit is the default per-turn node-execution bound
// (§4.10: "default recursion_limit=50").
const DefaultRecursionLimit = 50

// abortAnswer is returned when a turn exceeds the recursion limit (§4.10).
const abortAnswer = "处置流程中断，请人工介入"

// NodeEvent is emitted after each node execution, driving the SSE
// node_update frame (§6).
type NodeEvent struct {
	Node    string
	Session *state.Session
}

// Config bounds graph execution.
type Config struct {
	RecursionLimit int
}

// DefaultConfig matches the spec's stated default.
func DefaultConfig() Config { return Config{RecursionLimit: DefaultRecursionLimit} }

// Graph wires the five per-turn nodes together.
type Graph struct {
	scenarios *scenario.Registry
	parser    *parser.Parser
	reasoner  *reasoning.Reasoner
	executor  *executor.Executor
	validator *fsmvalidator.Validator
	generator *output.Generator
	tel       telemetry.Provider
	cfg       Config
}

// New constructs a Graph from its node collaborators.
func New(
	scenarios *scenario.Registry,
	p *parser.Parser,
	r *reasoning.Reasoner,
	e *executor.Executor,
	v *fsmvalidator.Validator,
	g *output.Generator,
	tel telemetry.Provider,
	cfg Config,
) *Graph {
	return &Graph{scenarios: scenarios, parser: p, reasoner: r, executor: e, validator: v, generator: g, tel: tel, cfg: cfg}
}

// Run executes one full turn against session, starting from the user's
// message, and emits a NodeEvent after every node execution via emit.
// emit may be nil if the caller does not need streaming.
func (gr *Graph) Run(ctx context.Context, session *state.Session, message string, emit func(NodeEvent)) {
	limit := gr.cfg.RecursionLimit
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}
	notify := emit
	if notify == nil {
		notify = func(NodeEvent) {}
	}

	gr.parser.Parse(ctx, session, message)
	notify(NodeEvent{Node: NodeInputParser, Session: session})

	executions := 1
	defer func() { session.IterationCount = executions }()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if executions >= limit {
			gr.abort(session)
			notify(NodeEvent{Node: NodeReasoning, Session: session})
			return
		}

		gr.reasoner.Reason(ctx, session)
		executions++
		notify(NodeEvent{Node: NodeReasoning, Session: session})

		if session.IsComplete {
			gr.generator.Generate(session, gr.descriptorOrNil(session))
			notify(NodeEvent{Node: NodeOutputGenerator, Session: session})
			return
		}

		if session.CurrentAction == "" {
			// No action chosen and not complete: await the next user turn.
			return
		}

		if executions >= limit {
			gr.abort(session)
			notify(NodeEvent{Node: NodeToolExecutor, Session: session})
			return
		}

		critical := gr.executor.Execute(ctx, session)
		executions++
		notify(NodeEvent{Node: NodeToolExecutor, Session: session})

		if critical {
			if executions >= limit {
				gr.abort(session)
				notify(NodeEvent{Node: NodeFSMValidator, Session: session})
				return
			}
			desc, ok := gr.scenarios.Get(session.ScenarioType)
			if ok {
				result := gr.validator.Validate(session, desc)
				applyFSMResult(session, result)
			}
			executions++
			notify(NodeEvent{Node: NodeFSMValidator, Session: session})
		}
	}
}

// applyFSMResult folds the validator's pending actions and errors into the
// session transcript so the reasoning node's next prompt can see them
// (§4.4: pending mandatory actions surface back into the loop).
func applyFSMResult(session *state.Session, result fsmvalidator.Result) {
	for _, e := range result.Errors {
		session.Messages = append(session.Messages, state.Message{
			Role:    state.RoleSystem,
			Content: fmt.Sprintf("fsm violation: %s", e),
		})
	}
	for _, p := range result.PendingActions {
		session.Messages = append(session.Messages, state.Message{
			Role:    state.RoleSystem,
			Content: fmt.Sprintf("pending mandatory action: %s %v", p.Action, p.Params),
		})
	}
}

func (gr *Graph) descriptorOrNil(session *state.Session) *scenario.Descriptor {
	if desc, ok := gr.scenarios.Get(session.ScenarioType); ok {
		return desc
	}
	return &scenario.Descriptor{}
}

// abort implements §4.10's recursion-bound abort: the turn ends in a
// recoverable state (not is_complete, per §8 "recursion-bound recovery")
// so a subsequent chat can resume the same session.
func (gr *Graph) abort(session *state.Session) {
	session.AwaitingUser = true
	session.FinalAnswer = abortAnswer
}
