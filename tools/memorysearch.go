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

package tools

import "cogspine/orchestrator"

// MemoryRecord is one entry a MemorySearch tool can return.
type MemoryRecord struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// MemoryStore is the minimal read contract MemorySearch needs; an
// in-process fixture is provided for tests, production wiring
// backs it with the real memory subsystem.
type MemoryStore interface {
	Search(query string, limit int) []MemoryRecord
}

// staticStore answers every query with its fixed result set, good
// enough for the SERVE/EXPLORE intent paths this tool exists to test.
type staticStore struct {
	records []MemoryRecord
}

func (s *staticStore) Search(query string, limit int) []MemoryRecord {
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	return s.records[:limit]
}

// MemorySearch adapts the memory subsystem's retrieve/search_patterns
// actions as a tool, the way the source's MemoryAdapter wraps an
// HTTP-backed recall call.
type MemorySearch struct {
	store MemoryStore
}

// NewMemorySearch builds a MemorySearch backed by an empty fixture
// store.
func NewMemorySearch() *MemorySearch {
	return &MemorySearch{store: &staticStore{}}
}

// NewMemorySearchWithStore builds a MemorySearch backed by store.
func NewMemorySearchWithStore(store MemoryStore) *MemorySearch {
	return &MemorySearch{store: store}
}

func (m *MemorySearch) Name() string   { return "memorysearch" }
func (m *MemorySearch) Domain() string { return "memory" }

func (m *MemorySearch) EstimateCost(env orchestrator.Envelope) float64 {
	if env.Action == "store_episodic" {
		return 0.5
	}
	return 0.1
}

func (m *MemorySearch) Execute(token orchestrator.SpineToken, env orchestrator.Envelope) orchestrator.Result {
	if !token.Valid() {
		return orchestrator.Failure("security_violation", "memorysearch: missing spine token")
	}
	switch env.Action {
	case "retrieve", "search_patterns":
		query, _ := env.Context["query"].(string)
		limit := 5
		if v, ok := env.Context["limit"].(float64); ok {
			limit = int(v)
		}
		results := m.store.Search(query, limit)
		return orchestrator.Result{
			Success:   true,
			Output:    map[string]interface{}{"results": results},
			CostSpent: m.EstimateCost(env),
		}
	default:
		return orchestrator.Failure("tool_error", "memorysearch: unknown action "+env.Action)
	}
}
