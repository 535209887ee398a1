// Package httpapi exposes the event-shaped HTTP surface (§6): session
// lifecycle handlers, SSE streaming, an unauthenticated /health endpoint,
// optional X-API-Key auth, and per-key rate limiting. Grounded on
// jordigilh-kubernaut's chi-router gateway package for the router/middleware
// shape, since the teacher's own HTTP surface is goa-DSL-codegenerated and
// out of scope here (see DESIGN.md).
package httpapi

import (
	"time"

	"goa.design/apron-incident/runtime/state"
)

// sessionStatus is the status field of a start/chat response.
type sessionStatus string

const (
	statusProcessing sessionStatus = "processing"
	statusCompleted  sessionStatus = "completed"
	statusError      sessionStatus = "error"
)

// startRequest is the body of POST /event/start.
type startRequest struct {
	Message      string `json:"message"`
	ScenarioType string `json:"scenario_type,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

// chatRequest is the body of POST /event/chat.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// parseRequest is the body of POST /event/parse.
type parseRequest struct {
	Message      string `json:"message"`
	ScenarioType string `json:"scenario_type,omitempty"`
}

// sessionResponse is the shared projection returned by start, chat, and the
// GET-by-id endpoint (§6: "same shape").
type sessionResponse struct {
	SessionID               string                         `json:"session_id"`
	Status                  sessionStatus                  `json:"status"`
	Message                 string                          `json:"message,omitempty"`
	FSMState                string                          `json:"fsm_state"`
	Checklist               map[string]bool                 `json:"checklist"`
	RiskLevel               string                          `json:"risk_level,omitempty"`
	ScenarioType            string                          `json:"scenario_type"`
	Incident                map[string]any                  `json:"incident"`
	FSMStates               []string                        `json:"fsm_states"`
	NextQuestion            string                          `json:"next_question,omitempty"`
	ReasoningSteps          []state.ReasoningStep           `json:"reasoning_steps"`
	ToolCalls               []state.ActionTaken             `json:"tool_calls"`
	SpatialAnalysis         *state.SpatialAnalysis           `json:"spatial_analysis,omitempty"`
	FlightImpactPrediction  *state.FlightImpactPrediction    `json:"flight_impact_prediction,omitempty"`
}

// parseResponse is the body of POST /event/parse's dry-run result.
type parseResponse struct {
	ScenarioType          string          `json:"scenario_type"`
	Incident              map[string]any  `json:"incident"`
	Checklist             map[string]bool `json:"checklist"`
	EnrichmentObservation string          `json:"enrichment_observation,omitempty"`
}

// errorResponse is the JSON body for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// toSessionResponse projects a session into the wire shape shared by
// start/chat/get (§6).
func toSessionResponse(sess *state.Session, fsmStates []string) sessionResponse {
	status := statusProcessing
	switch {
	case sess.IsComplete:
		status = statusCompleted
	case sess.FSMState == "" && len(sess.Messages) == 0:
		status = statusError
	}

	var riskLevel string
	if sess.RiskAssessment != nil {
		riskLevel = sess.RiskAssessment.Level
	}

	return sessionResponse{
		SessionID:              sess.SessionID,
		Status:                 status,
		Message:                lastAssistantMessage(sess),
		FSMState:               sess.FSMState,
		Checklist:              sess.Checklist,
		RiskLevel:              riskLevel,
		ScenarioType:           sess.ScenarioType,
		Incident:               sess.Incident,
		FSMStates:              fsmStates,
		NextQuestion:           sess.NextQuestion,
		ReasoningSteps:         sess.ReasoningSteps,
		ToolCalls:              sess.ActionsTaken,
		SpatialAnalysis:        sess.SpatialAnalysis,
		FlightImpactPrediction: sess.FlightImpact,
	}
}

// lastAssistantMessage returns the most recent assistant-facing text: the
// final answer once the turn completes, the next clarifying question while
// awaiting input, or the empty string otherwise.
func lastAssistantMessage(sess *state.Session) string {
	if sess.FinalAnswer != "" {
		return sess.FinalAnswer
	}
	return sess.NextQuestion
}

// nodeUpdateFrame is the SSE data payload (§6 "SSE frame shape"). Every
// frame carries the session's full current projection; fields whose value
// is empty are omitted from the JSON.
type nodeUpdateFrame struct {
	Node                   string                        `json:"node"`
	Timestamp              time.Time                     `json:"timestamp"`
	SessionID              string                        `json:"session_id"`
	FSMState               string                        `json:"fsm_state,omitempty"`
	Checklist              map[string]bool                `json:"checklist,omitempty"`
	CurrentThought         string                         `json:"current_thought,omitempty"`
	CurrentAction          string                         `json:"current_action,omitempty"`
	CurrentActionInput     any                            `json:"current_action_input,omitempty"`
	CurrentObservation     string                         `json:"current_observation,omitempty"`
	ReasoningSteps         []state.ReasoningStep          `json:"reasoning_steps,omitempty"`
	ToolCalls              []state.ActionTaken            `json:"tool_calls,omitempty"`
	RiskAssessment         *state.RiskAssessment          `json:"risk_assessment,omitempty"`
	SpatialAnalysis        *state.SpatialAnalysis         `json:"spatial_analysis,omitempty"`
	FlightImpactPrediction *state.FlightImpactPrediction   `json:"flight_impact_prediction,omitempty"`
	NextQuestion           string                         `json:"next_question,omitempty"`
	IsComplete             bool                           `json:"is_complete,omitempty"`
	FinalAnswer            string                         `json:"final_answer,omitempty"`
}

// newNodeUpdateFrame builds the SSE payload for one agentgraph.NodeEvent.
func newNodeUpdateFrame(node string, sess *state.Session, now time.Time) nodeUpdateFrame {
	return nodeUpdateFrame{
		Node:                   node,
		Timestamp:              now,
		SessionID:              sess.SessionID,
		FSMState:               sess.FSMState,
		Checklist:              sess.Checklist,
		CurrentThought:         sess.CurrentThought,
		CurrentAction:          sess.CurrentAction,
		CurrentActionInput:     sess.CurrentActionInput,
		CurrentObservation:     sess.CurrentObservation,
		ReasoningSteps:         sess.ReasoningSteps,
		ToolCalls:              sess.ActionsTaken,
		RiskAssessment:         sess.RiskAssessment,
		SpatialAnalysis:        sess.SpatialAnalysis,
		FlightImpactPrediction: sess.FlightImpact,
		NextQuestion:           sess.NextQuestion,
		IsComplete:             sess.IsComplete,
		FinalAnswer:            sess.FinalAnswer,
	}
}
