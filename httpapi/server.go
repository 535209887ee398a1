package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"goa.design/apron-incident/runtime/agentgraph"
	"goa.design/apron-incident/runtime/auditlog"
	"goa.design/apron-incident/runtime/parser"
	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/session"
	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/stream"
)

// Server holds the collaborators every handler needs: the session store,
// the wired agent graph, the scenario registry (for FSM-state enumeration
// and scenario identification on parse), and optionally an audit log and a
// stream.Sink events additionally fan out to (e.g. pulsesink, for other
// engine replicas' SSE subscribers).
type Server struct {
	scenarios *scenario.Registry
	store     session.Store
	graph     *agentgraph.Graph
	parser    *parser.Parser // used only by the dry-run /event/parse endpoint
	audit     auditlog.Store // nil disables durable audit persistence
	sink      stream.Sink    // nil disables secondary fan-out
	now       func() time.Time
}

// Options configures New.
type Options struct {
	Scenarios *scenario.Registry
	Store     session.Store
	Graph     *agentgraph.Graph
	Parser    *parser.Parser
	Audit     auditlog.Store
	Sink      stream.Sink
}

// New constructs a Server. Scenarios, Store, and Graph are required.
func New(opts Options) (*Server, error) {
	if opts.Scenarios == nil {
		return nil, errors.New("httpapi: scenario registry is required")
	}
	if opts.Store == nil {
		return nil, errors.New("httpapi: session store is required")
	}
	if opts.Graph == nil {
		return nil, errors.New("httpapi: agent graph is required")
	}
	return &Server{
		scenarios: opts.Scenarios,
		store:     opts.Store,
		graph:     opts.Graph,
		parser:    opts.Parser,
		audit:     opts.Audit,
		sink:      opts.Sink,
		now:       time.Now,
	}, nil
}

// fsmStateIDs lists every FSM state id declared for sess's scenario, used
// to populate the sessionResponse.FSMStates enumeration (§6).
func (s *Server) fsmStateIDs(scenarioType string) []string {
	desc, ok := s.scenarios.Get(scenarioType)
	if !ok {
		return nil
	}
	ids := make([]string, len(desc.FSMStates))
	for i, st := range desc.FSMStates {
		ids[i] = st.ID
	}
	return ids
}

// openSession loads sessionID if set, or creates a fresh one scoped to
// scenarioType (resolved later by the parser when empty). It does not lock:
// callers lock separately so dry-run callers (parse) can skip the lock
// entirely.
func (s *Server) openSession(ctx context.Context, sessionID, scenarioType string) (*state.Session, error) {
	if sessionID == "" {
		return state.New(uuid.NewString(), scenarioType, s.now()), nil
	}
	sess, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return state.New(sessionID, scenarioType, s.now()), nil
	}
	return sess, err
}

// runTurn locks sessionID, runs one full agentgraph turn against message,
// persists the result, and unlocks. emit, if non-nil, receives a NodeEvent
// after every node execution (driving SSE streaming); it is always called
// on the same goroutine as runTurn.
func (s *Server) runTurn(ctx context.Context, sess *state.Session, message string, emit func(agentgraph.NodeEvent)) error {
	token, err := s.store.Lock(ctx, sess.SessionID, session.DefaultLockTTL)
	if err != nil {
		return err
	}
	defer s.store.Unlock(context.Background(), sess.SessionID, token)

	stepsBefore := len(sess.ReasoningSteps)
	actionsBefore := len(sess.ActionsTaken)
	notificationsBefore := len(sess.NotificationsSent)

	s.graph.Run(ctx, sess, message, emit)

	if ctx.Err() != nil {
		// Cancellation: discard in-flight mutations, leave the stored
		// session exactly as it was at turn entry (§5 cancellation).
		return ctx.Err()
	}

	if err := s.store.Put(ctx, sess, token); err != nil {
		return err
	}
	s.appendAudit(ctx, sess, stepsBefore, actionsBefore, notificationsBefore)
	return nil
}

// appendAudit persists the entries this turn added, tolerating a nil audit
// store (durable logging is an optional enrichment, not a turn invariant).
func (s *Server) appendAudit(ctx context.Context, sess *state.Session, stepsBefore, actionsBefore, notificationsBefore int) {
	if s.audit == nil {
		return
	}
	for _, step := range sess.ReasoningSteps[stepsBefore:] {
		s.appendOne(ctx, sess.SessionID, auditlog.KindReasoningStep, step)
	}
	for _, action := range sess.ActionsTaken[actionsBefore:] {
		s.appendOne(ctx, sess.SessionID, auditlog.KindActionTaken, action)
	}
	for _, n := range sess.NotificationsSent[notificationsBefore:] {
		s.appendOne(ctx, sess.SessionID, auditlog.KindNotificationSent, n)
	}
}

// fanOut publishes ev to the secondary sink (e.g. pulsesink, so other
// engine replicas' SSE subscribers see the same turn), tolerating a nil
// sink and swallowing delivery errors: the primary SSE response already
// carries the frame to this request's caller.
func (s *Server) fanOut(ctx context.Context, ev stream.Event) {
	if s.sink == nil {
		return
	}
	_ = s.sink.Send(ctx, ev)
}

func (s *Server) appendOne(ctx context.Context, sessionID string, kind auditlog.EntryKind, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = s.audit.Append(ctx, &auditlog.Entry{
		SessionID: sessionID,
		Kind:      kind,
		Payload:   raw,
		Timestamp: s.now(),
	})
}
