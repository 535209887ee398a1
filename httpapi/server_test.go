package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/apron-incident/internal/bootstrap"
	"goa.design/apron-incident/runtime/agentgraph"
	"goa.design/apron-incident/runtime/executor"
	"goa.design/apron-incident/runtime/fsmvalidator"
	"goa.design/apron-incident/runtime/output"
	"goa.design/apron-incident/runtime/parser"
	"goa.design/apron-incident/runtime/reasoning"
	"goa.design/apron-incident/runtime/scenario"
	"goa.design/apron-incident/runtime/session/memstore"
	"goa.design/apron-incident/runtime/telemetry"
	"goa.design/apron-incident/runtime/topology"
)

// writeTestScenario lays down a minimal, complete scenario descriptor
// directory so scenario.Load succeeds, mirroring
// internal/bootstrap's own test fixture shape.
func writeTestScenario(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("manifest.yaml", "id: "+id+"\nkeywords: [\"溢油\"]\nversion: \"1\"\n")
	write("prompt.yaml", `system_prompt: test prompt
field_order: [flight_no]
field_names: {}
ask_prompts: {flight_no: "请提供航班号"}
`)
	write("checklist.yaml", `p1_fields:
  - key: flight_no
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
	write("config.yaml", `mandatory_triggers: []
risk_rules:
  inline:
    - id: r1
      priority: 1
      conditions: {}
      level: LOW
      score: 10
      immediate_actions: []
`)
}

// newTestServer wires the full stack (scenario registry, shared tool
// registry, parser/reasoning/executor/fsmvalidator/output, agentgraph, and
// an in-memory session store) the way cmd/server's entry point would, but
// against a throwaway scenario fixture and no LLM client (the reasoning
// node's fallback heuristic path, §4.2).
func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	writeTestScenario(t, root, "oil_spill")
	scenarios, err := scenario.Load(root)
	require.NoError(t, err)

	graph, _, err := topology.Load(strings.NewReader(`{"nodes": [], "edges": []}`))
	require.NoError(t, err)

	toolRegistry, err := bootstrap.BuildToolRegistry(scenarios, bootstrap.Collaborators{Graph: graph})
	require.NoError(t, err)

	tel := telemetry.NoOp()
	p := parser.New(scenarios, nil, nil, nil, nil, graph, tel, parser.DefaultConfig())
	reasoner := reasoning.New(scenarios, toolRegistry, nil, tel, reasoning.DefaultConfig())
	exec := executor.New(toolRegistry, tel)
	validator := fsmvalidator.New()
	gen := output.New()
	ag := agentgraph.New(scenarios, p, reasoner, exec, validator, gen, tel, agentgraph.DefaultConfig())

	srv, err := New(Options{
		Scenarios: scenarios,
		Store:     memstore.New(),
		Graph:     ag,
		Parser:    p,
	})
	require.NoError(t, err)
	return srv
}

func TestHealthIsUnauthenticated(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv, RouterOptions{APIKey: "secret"})
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventRoutesRequireAPIKeyWhenConfigured(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv, RouterOptions{APIKey: "secret"})
	ts := httptest.NewServer(router)
	defer ts.Close()

	body, _ := json.Marshal(startRequest{Message: "测试", ScenarioType: "oil_spill"})
	resp, err := http.Post(ts.URL+"/event/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStartThenGetRoundTrips(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv, RouterOptions{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	body, _ := json.Marshal(startRequest{Message: "发生溢油事件", ScenarioType: "oil_spill"})
	resp, err := http.Post(ts.URL+"/event/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var started sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.NotEmpty(t, started.SessionID)
	assert.Equal(t, "oil_spill", started.ScenarioType)

	getResp, err := http.Get(ts.URL + "/event/" + started.SessionID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var fetched sessionResponse
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&fetched))
	assert.Equal(t, started.SessionID, fetched.SessionID)
}

func TestReportNotFoundBeforeCompletion(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv, RouterOptions{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	body, _ := json.Marshal(startRequest{Message: "发生溢油事件", ScenarioType: "oil_spill"})
	resp, err := http.Post(ts.URL+"/event/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var started sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))

	reportResp, err := http.Get(ts.URL + "/event/" + started.SessionID + "/report")
	require.NoError(t, err)
	defer reportResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, reportResp.StatusCode)
}

func TestGetUnknownSessionIs404(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv, RouterOptions{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/event/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteRemovesSession(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv, RouterOptions{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	body, _ := json.Marshal(startRequest{Message: "发生溢油事件", ScenarioType: "oil_spill"})
	resp, err := http.Post(ts.URL+"/event/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var started sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/event/"+started.SessionID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	getResp, err := http.Get(ts.URL + "/event/" + started.SessionID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestParseIsDryRunAndOpensNoSession(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv, RouterOptions{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	body, _ := json.Marshal(parseRequest{Message: "航班 CCA1234 发生溢油", ScenarioType: "oil_spill"})
	resp, err := http.Post(ts.URL+"/event/parse", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed parseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, "oil_spill", parsed.ScenarioType)
}

func TestRateLimitReturns429WithRetryAfter(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv, RouterOptions{RateLimitPerMinute: 1})
	ts := httptest.NewServer(router)
	defer ts.Close()

	body, _ := json.Marshal(startRequest{Message: "事件", ScenarioType: "oil_spill"})
	first, err := http.Post(ts.URL+"/event/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	first.Body.Close()

	second, err := http.Post(ts.URL+"/event/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))
}

func TestStartStreamEmitsNodeUpdateFrame(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv, RouterOptions{})
	ts := httptest.NewServer(router)
	defer ts.Close()

	body, _ := json.Marshal(startRequest{Message: "发生溢油事件", ScenarioType: "oil_spill"})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/event/start/stream", bytes.NewReader(body))
	require.NoError(t, err)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	got := string(buf[:n])
	assert.Contains(t, got, "event: node_update")
}
