// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"cogspine/economy"
	"cogspine/ledger"
	"cogspine/shared/types"
)

// Server wires an Orchestrator, an Economy, and an autonomy loop behind
// the HTTP surface spec.md §6 describes. It depends only on the small
// read interfaces below rather than the concrete autonomy package, so
// the autonomy package is free to depend on this one for Envelope/Result
// without an import cycle.
type Server struct {
	orch   *Orchestrator
	econ   *economy.Economy
	auto   ExplanationProvider
	tokens *TokenStore
	trust  TrustReader
}

// TrustReader is the minimal trust-model read contract the
// GET /v1/orchestrator/trust/{node_id} endpoint needs.
type TrustReader interface {
	GetTrust(nodeID string) float64
}

// ExplanationProvider is the minimal autonomy-controller read contract
// the GET /v1/orchestrator/explain/latest endpoint needs.
type ExplanationProvider interface {
	LatestExplanation() (interface{}, bool)
}

// NewServer builds a Server. auto and trust may be nil if the autonomy
// loop/trust model are not wired into this deployment.
func NewServer(orch *Orchestrator, econ *economy.Economy, auto ExplanationProvider, tokens *TokenStore, trust TrustReader) *Server {
	return &Server{orch: orch, econ: econ, auto: auto, tokens: tokens, trust: trust}
}

// Router builds the mux.Router with every route from spec.md §6,
// wrapped in the auth middleware and CORS the way run.go wires its own
// router.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Handle("/tools/execute", s.authorizedDynamic(s.handleExecute)).Methods(http.MethodPost)
	v1.Handle("/orchestrator/execute", s.authorizedDynamic(s.handleExecute)).Methods(http.MethodPost)
	v1.Handle("/orchestrator/execute:batch", s.authorizedDynamicBatch(s.handleExecuteBatch)).Methods(http.MethodPost)
	v1.Handle("/orchestrator/execute:async", s.authorizedDynamic(s.handleExecuteAsync)).Methods(http.MethodPost)
	v1.Handle("/orchestrator/executions/{id}", s.authorized(s.handleGetExecution, "orchestrator:read")).Methods(http.MethodGet)
	v1.Handle("/orchestrator/executions/{id}/cancel", s.authorized(s.handleCancelExecution, "orchestrator:write")).Methods(http.MethodPost)
	v1.Handle("/orchestrator/timeline", s.authorized(s.handleTimeline, "orchestrator:read")).Methods(http.MethodGet)
	v1.Handle("/orchestrator/budget", s.authorized(s.handleBudget, "economy:read")).Methods(http.MethodGet)
	v1.Handle("/orchestrator/budget/events", s.authorized(s.handleBudgetEvents, "economy:read")).Methods(http.MethodGet)
	v1.Handle("/orchestrator/explain/latest", s.authorized(s.handleExplainLatest, "orchestrator:read")).Methods(http.MethodGet)
	v1.Handle("/orchestrator/trust/{node_id}", s.authorized(s.handleTrust, "trust:read")).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

func (s *Server) principalFor(r *http.Request) (Principal, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return s.tokens.Authenticate(token)
}

// authorized requires a fixed scope, used for read/write endpoints whose
// scope does not depend on the request body.
func (s *Server) authorized(next http.HandlerFunc, scope string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := s.principalFor(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !principal.HasScope(scope) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// authorizedDynamic peeks the request body's domain/action to compute
// the required "{domain}:{action}" scope, then re-presents the body so
// the wrapped handler can decode it again.
func (s *Server) authorizedDynamic(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := s.principalFor(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		var peek struct {
			Domain string `json:"domain"`
			Action string `json:"action"`
		}
		if err := json.Unmarshal(body, &peek); err != nil {
			http.Error(w, "invalid envelope", http.StatusBadRequest)
			return
		}
		if !principal.HasScope(RequiredScope(peek.Domain, peek.Action)) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next(w, r)
	})
}

// authorizedDynamicBatch is authorizedDynamic for the batch endpoint,
// whose body is an array of envelopes: every entry's scope must be held.
func (s *Server) authorizedDynamicBatch(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := s.principalFor(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		var peek []struct {
			Domain string `json:"domain"`
			Action string `json:"action"`
		}
		if err := json.Unmarshal(body, &peek); err != nil {
			http.Error(w, "invalid envelope array", http.StatusBadRequest)
			return
		}
		for _, e := range peek {
			if !principal.HasScope(RequiredScope(e.Domain, e.Action)) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "invalid envelope", http.StatusBadRequest)
		return
	}
	result := s.orch.Invoke(r.Context(), env)
	status := http.StatusOK
	if !result.Success && result.ErrorCode != "" {
		status = types.HTTPStatus(result.ErrorCode)
	}
	writeJSON(w, status, result)
}

func (s *Server) handleExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var envs []Envelope
	if err := json.NewDecoder(r.Body).Decode(&envs); err != nil {
		http.Error(w, "invalid envelope array", http.StatusBadRequest)
		return
	}
	results := make([]Result, len(envs))
	for i, env := range envs {
		results[i] = s.orch.Invoke(r.Context(), env)
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleExecuteAsync(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "invalid envelope", http.StatusBadRequest)
		return
	}
	executionID, err := s.orch.InvokeAsync(r.Context(), env)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"execution_id": executionID,
		"status":       string(ledger.StatusQueued),
	})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.orch.ledger.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.orch.Cancel(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	rows, err := s.orch.ledger.ListRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.econ.Snapshot())
}

func (s *Server) handleBudgetEvents(w http.ResponseWriter, r *http.Request) {
	n := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.econ.RecentEvents(n))
}

func (s *Server) handleExplainLatest(w http.ResponseWriter, r *http.Request) {
	if s.auto == nil {
		http.Error(w, "autonomy loop not wired", http.StatusNotFound)
		return
	}
	explanation, ok := s.auto.LatestExplanation()
	if !ok {
		http.Error(w, "no explanation recorded yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, explanation)
}

func (s *Server) handleTrust(w http.ResponseWriter, r *http.Request) {
	if s.trust == nil {
		http.Error(w, "trust model not wired", http.StatusNotFound)
		return
	}
	nodeID := mux.Vars(r)["node_id"]
	score := s.trust.GetTrust(nodeID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"node_id": nodeID, "trust_score": score})
}

// Shutdown drains and closes the audit logger on process exit. It does
// not close ledger connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.orch.audit.Close()
}
