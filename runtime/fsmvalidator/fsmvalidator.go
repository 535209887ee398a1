// Package fsmvalidator implements the FSM compliance validator (§4.4): it
// infers the furthest FSM state reachable from the session's current state,
// checks the inferred state's preconditions, and evaluates mandatory
// triggers in priority order. New code; the spec's "infer furthest
// reachable state, then check its preconditions, then evaluate mandatory
// triggers in priority order" algorithm has no direct teacher analogue, but
// predicate evaluation reuses runtime/rules' condition-operator language
// (§9 design note: "rule evaluation is a library, not code generation")
// rather than inventing a second one.
package fsmvalidator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"goa.design/apron-incident/runtime/rules"
	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/state"
)

// PendingAction is a mandatory trigger whose condition is satisfied but
// whose check_field is not yet true.
type PendingAction struct {
	Action string
	Params map[string]any
}

// Result is the §4.4 step-4 output shape.
type Result struct {
	IsValid        bool
	CurrentState   string
	InferredState  string
	Errors         []string
	PendingActions []PendingAction
}

// Validator runs the FSM compliance check.
type Validator struct{}

// New constructs a Validator.
func New() *Validator { return &Validator{} }

// Validate implements §4.4 steps 1-4, mutating session.FSMState to the
// furthest reachable state.
func (val *Validator) Validate(session *state.Session, desc *scenario.Descriptor) Result {
	view := buildStateView(session, desc)
	statesByID := make(map[string]scenario.FSMStateDescriptor, len(desc.FSMStates))
	for _, s := range desc.FSMStates {
		statesByID[s.ID] = s
	}

	current := session.FSMState
	inferred := current
	for {
		s, ok := statesByID[inferred]
		if !ok {
			break
		}
		next, ok := firstSatisfiedNext(view, statesByID, s.NextStates)
		if !ok {
			break
		}
		inferred = next
	}
	session.FSMState = inferred

	var errs []string
	if s, ok := statesByID[inferred]; ok {
		for _, pre := range s.Preconditions {
			satisfied, perr := evalPredicate(view, pre)
			if perr != nil {
				errs = append(errs, fmt.Sprintf("malformed precondition %q: %s", pre, perr.Error()))
				continue
			}
			if !satisfied {
				errs = append(errs, fmt.Sprintf("entering %s requires %s", inferred, pre))
			}
		}
	}

	pending := evaluateTriggers(view, session, desc.MandatoryTriggers)

	return Result{
		IsValid:        len(errs) == 0,
		CurrentState:   current,
		InferredState:  inferred,
		Errors:         errs,
		PendingActions: pending,
	}
}

func firstSatisfiedNext(view map[string]any, statesByID map[string]scenario.FSMStateDescriptor, nextIDs []string) (string, bool) {
	for _, id := range nextIDs {
		next, ok := statesByID[id]
		if !ok {
			continue
		}
		if allPredicatesSatisfied(view, next.Preconditions) {
			return id, true
		}
	}
	return "", false
}

func allPredicatesSatisfied(view map[string]any, preds []string) bool {
	for _, p := range preds {
		ok, err := evalPredicate(view, p)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// evaluateTriggers implements §4.4 step 3: triggers whose condition
// evaluates true and whose check_field is not yet set contribute a pending
// action, in ascending priority order, deduplicated by (action, params).
func evaluateTriggers(view map[string]any, session *state.Session, triggers []scenario.MandatoryTrigger) []PendingAction {
	sorted := append([]scenario.MandatoryTrigger(nil), triggers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	seen := map[string]bool{}
	var out []PendingAction
	for _, t := range sorted {
		if session.MandatoryActionsDone[t.CheckField] {
			continue
		}
		satisfied, err := evalCondition(view, t.Condition)
		if err != nil || !satisfied {
			continue
		}
		key := t.Action + "|" + paramsKey(t.Params)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, PendingAction{Action: t.Action, Params: t.Params})
	}
	return out
}

func paramsKey(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	b, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(b)
}

// buildStateView flattens the session into the dotted-path map predicates
// are evaluated against (§4.4: "checklist.p1_complete",
// "mandatory_actions_done.risk_assessed", ...).
func buildStateView(session *state.Session, desc *scenario.Descriptor) map[string]any {
	checklist := map[string]any{"p1_complete": p1Complete(session, desc)}
	for k, v := range session.Checklist {
		checklist[k] = v
	}

	mandatory := map[string]any{}
	for k, v := range session.MandatoryActionsDone {
		mandatory[k] = v
	}

	view := map[string]any{
		"checklist":             checklist,
		"mandatory_actions_done": mandatory,
		"fsm_state":             session.FSMState,
		"is_complete":           session.IsComplete,
	}
	if session.RiskAssessment != nil {
		view["risk_assessment"] = map[string]any{"level": session.RiskAssessment.Level}
	}
	return view
}

// p1Complete reports whether every declared P1 field is checked off,
// required for the "checklist.p1_complete" path §4.4 preconditions
// reference.
func p1Complete(session *state.Session, desc *scenario.Descriptor) bool {
	if len(desc.P1Fields) == 0 {
		return false
	}
	for _, f := range desc.P1Fields {
		if !session.Checklist[f.Key] {
			return false
		}
	}
	return true
}

// evalCondition evaluates a trigger condition, supporting "&&"-joined
// conjunctions of the same predicate DSL the FSM preconditions use.
func evalCondition(view map[string]any, condition string) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true, nil
	}
	for _, part := range strings.Split(condition, "&&") {
		ok, err := evalPredicate(view, part)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// evalPredicate parses and evaluates a single "<path> == <value>" or
// "<path> in <set>" predicate (§4.4 step 2).
func evalPredicate(view map[string]any, predicate string) (bool, error) {
	predicate = strings.TrimSpace(predicate)
	if predicate == "" {
		return true, nil
	}
	if idx := strings.Index(predicate, "=="); idx >= 0 {
		path := strings.TrimSpace(predicate[:idx])
		value := parseScalar(strings.TrimSpace(predicate[idx+2:]))
		return rules.EvalCondition(view, rules.Condition{Path: path, Operator: rules.OpEq, Value: value}), nil
	}
	if idx := strings.Index(predicate, " in "); idx >= 0 {
		path := strings.TrimSpace(predicate[:idx])
		set := parseSet(strings.TrimSpace(predicate[idx+4:]))
		return rules.EvalCondition(view, rules.Condition{Path: path, Operator: rules.OpIn, Value: set}), nil
	}
	return false, fmt.Errorf("unsupported predicate syntax")
}

func parseScalar(raw string) any {
	raw = strings.Trim(raw, `"'`)
	if raw == "true" {
		return true
	}
	if raw == "false" {
		return false
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

func parseSet(raw string) []any {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	var out []any
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, parseScalar(item))
	}
	return out
}
