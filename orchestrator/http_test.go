// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cogspine/economy"
	"cogspine/ledger"
)

type stubExplainProvider struct {
	explanation interface{}
	ok          bool
}

func (s stubExplainProvider) LatestExplanation() (interface{}, bool) { return s.explanation, s.ok }

type stubTrustReader struct{ score float64 }

func (s stubTrustReader) GetTrust(nodeID string) float64 { return s.score }

func newTestServer(t *testing.T, auto ExplanationProvider, trust TrustReader) (*Server, *TokenStore) {
	t.Helper()
	reg := NewRegistry()
	reg.Register(stubTool{name: "echo", domain: "cognition"})

	econ, err := economy.New(&memPersister{})
	require.NoError(t, err)

	audit, err := NewAuditLogger(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	orch := New(Config{DeadlineMS: 1000, QueueMaxLen: 10}, reg, econ, ledger.NewInMemoryLedger(), audit)

	tokens, err := ParseTokenStore(`{"admin-tok":{"scopes":["*"]},"readonly-tok":{"scopes":["orchestrator:read"]}}`)
	require.NoError(t, err)

	return NewServer(orch, econ, auto, tokens, trust), tokens
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealthzAndReadyzRequireNoAuth(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	router := s.Router()

	rec := doRequest(t, router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleExecuteRejectsMissingAndInsufficientScope(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	router := s.Router()
	body := []byte(`{"tool_name":"echo","domain":"cognition","action":"noop","estimated_cost":0.1}`)

	rec := doRequest(t, router, http.MethodPost, "/v1/orchestrator/execute", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/v1/orchestrator/execute", "readonly-tok", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleExecuteSucceedsWithSufficientScope(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	router := s.Router()
	body := []byte(`{"tool_name":"echo","domain":"cognition","action":"noop","estimated_cost":0.1}`)

	rec := doRequest(t, router, http.MethodPost, "/v1/orchestrator/execute", "admin-tok", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
}

func TestHandleExecuteAsyncReturnsAccepted(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	router := s.Router()
	body := []byte(`{"tool_name":"echo","domain":"cognition","action":"noop","estimated_cost":0.1}`)

	rec := doRequest(t, router, http.MethodPost, "/v1/orchestrator/execute:async", "admin-tok", body)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "queued", payload["status"])
	assert.NotEmpty(t, payload["execution_id"])
}

func TestHandleGetExecutionNotFound(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	router := s.Router()

	rec := doRequest(t, router, http.MethodGet, "/v1/orchestrator/executions/does-not-exist", "admin-tok", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleBudgetReturnsSnapshot(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	router := s.Router()

	rec := doRequest(t, router, http.MethodGet, "/v1/orchestrator/budget", "admin-tok", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var snapshot economy.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, economy.DefaultBudget, snapshot.Budget)
}

func TestHandleExplainLatestReflectsWiringState(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	router := s.Router()
	rec := doRequest(t, router, http.MethodGet, "/v1/orchestrator/explain/latest", "admin-tok", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "autonomy loop not wired")

	s2, _ := newTestServer(t, stubExplainProvider{explanation: map[string]string{"outcome": "acted"}, ok: true}, nil)
	rec = doRequest(t, s2.Router(), http.MethodGet, "/v1/orchestrator/explain/latest", "admin-tok", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleTrustReturnsScore(t *testing.T) {
	s, _ := newTestServer(t, nil, stubTrustReader{score: 0.75})
	router := s.Router()

	rec := doRequest(t, router, http.MethodGet, "/v1/orchestrator/trust/peer-a", "admin-tok", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "peer-a", payload["node_id"])
	assert.InDelta(t, 0.75, payload["trust_score"].(float64), 0.001)
}
