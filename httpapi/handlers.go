package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"goa.design/apron-incident/runtime/agentgraph"
	"goa.design/apron-incident/runtime/session"
	"goa.design/apron-incident/runtime/state"
	"goa.design/apron-incident/runtime/stream"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty request body")
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

// handleStart implements POST /event/start (§6).
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.openSession(r.Context(), req.SessionID, req.ScenarioType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.finishTurn(w, r, sess, req.Message)
}

// handleChat implements POST /event/chat (§6: "same shape" as start).
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	sess, err := s.store.Get(r.Context(), req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.finishTurn(w, r, sess, req.Message)
}

// finishTurn runs one turn to completion, handling the lock-conflict and
// cancellation error paths common to start and chat.
func (s *Server) finishTurn(w http.ResponseWriter, r *http.Request, sess *state.Session, message string) {
	if err := s.runTurn(r.Context(), sess, message, nil); err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess, s.fsmStateIDs(sess.ScenarioType)))
}

// writeTurnError maps a runTurn error to the §7 HTTP error taxonomy:
// session-busy/version-conflict surfaces as 409, everything else as 500.
func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrAlreadyLocked) || errors.Is(err, session.ErrLockExpired) {
		writeError(w, http.StatusConflict, "session is busy")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// handleGet implements GET /event/{session_id} (§6).
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	sess, err := s.store.Get(r.Context(), sessionID)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess, s.fsmStateIDs(sess.ScenarioType)))
}

// handleReport implements GET /event/{session_id}/report (§6: "404 until
// is_complete").
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.completedSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.FinalReport)
}

// handleReportMarkdown implements GET /event/{session_id}/report/markdown.
func (s *Server) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.completedSession(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sess.FinalAnswer))
}

// completedSession loads the session named by the session_id path
// parameter, responding 404 if it does not exist or has not completed.
func (s *Server) completedSession(w http.ResponseWriter, r *http.Request) (*state.Session, bool) {
	sessionID := chi.URLParam(r, "session_id")
	sess, err := s.store.Get(r.Context(), sessionID)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if !sess.IsComplete || sess.FinalReport == nil {
		writeError(w, http.StatusNotFound, "report not available until the session completes")
		return nil, false
	}
	return sess, true
}

// handleDelete implements DELETE /event/{session_id} (§6).
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := s.store.Delete(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleParse implements POST /event/parse (§6: dry-run, no session
// opened). Falls back to a 501 if the server was built without a Parser
// (e.g. a minimal deployment wiring only the full turn pipeline).
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if s.parser == nil {
		writeError(w, http.StatusNotImplemented, "dry-run parsing is not configured on this server")
		return
	}
	var req parseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess := state.New(uuid.NewString(), req.ScenarioType, s.now())
	before := len(sess.Messages)
	s.parser.Parse(r.Context(), sess, req.Message)

	var notes []string
	for _, m := range sess.Messages[before:] {
		notes = append(notes, m.Content)
	}

	writeJSON(w, http.StatusOK, parseResponse{
		ScenarioType:          sess.ScenarioType,
		Incident:              sess.Incident,
		Checklist:             sess.Checklist,
		EnrichmentObservation: strings.Join(notes, "; "),
	})
}

// handleStartStream implements POST /event/start/stream (§6).
func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.openSession(r.Context(), req.SessionID, req.ScenarioType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.streamTurn(w, r, sess, req.Message)
}

// handleChatStream implements POST /event/chat/stream (§6).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	sess, err := s.store.Get(r.Context(), req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.streamTurn(w, r, sess, req.Message)
}

// streamTurn drives one turn while relaying a node_update SSE frame after
// every agentgraph node execution, terminated by a complete or error frame
// (§6). Only the fields that changed need appear on each frame; this
// implementation sends the full projection each time, which a merging
// consumer handles identically to a delta.
func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, sess *state.Session, message string) {
	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported by this response writer")
		return
	}

	emit := func(ev agentgraph.NodeEvent) {
		_ = sse.send("node_update", newNodeUpdateFrame(ev.Node, ev.Session, s.now()))
		s.fanOut(r.Context(), stream.NewNodeUpdate(ev.Node, ev.Session))
	}

	err := s.runTurn(r.Context(), sess, message, emit)
	if err != nil {
		_ = sse.send("error", errorResponse{Error: err.Error()})
		s.fanOut(r.Context(), stream.NewError(sess.SessionID, err.Error()))
		return
	}
	_ = sse.send("complete", newNodeUpdateFrame(agentgraph.NodeOutputGenerator, sess, s.now()))
	s.fanOut(r.Context(), stream.NewComplete(sess))
}
