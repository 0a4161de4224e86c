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

package autonomy

import (
	"cogspine/autonomy/canon"
	"cogspine/autonomy/trust"
)

// Observation is the signals bundle the controller's observe step
// collects: ledger-derived health metrics plus the economy's vitality.
type Observation struct {
	ErrorRate    float64 `json:"error_rate"`
	AvgCost      float64 `json:"avg_cost"`
	SuccessRate  float64 `json:"success_rate"`
	LatencyTrend string  `json:"latency_trend"` // "up" | "flat" | "down"
	LastHourCalls int    `json:"last_hour_calls"`
	Pain         float64 `json:"pain_score"`
	BudgetHealthy bool   `json:"budget_healthy"`
}

// Rejection records an intent the planner or decider refused, with why.
type Rejection struct {
	Intent Intent
	Reason string
}

// Planner selects the current top intent, mutating the stack in place
// per spec.md §4.3: trust gate, canon gate, survival push, growth push.
type Planner struct {
	trust *trust.Model
}

// NewPlanner builds a Planner backed by the given trust model.
func NewPlanner(t *trust.Model) *Planner {
	return &Planner{trust: t}
}

// Plan mutates stack and returns the chosen intent (if any) plus every
// intent removed by the trust/canon gates this cycle, for reporting.
func (p *Planner) Plan(obs Observation, stack *Stack) (chosen Intent, hasChosen bool, rejected []Rejection) {
	// 1. Trust gate.
	trustRemoved := stack.filterInPlace(func(i Intent) bool {
		return p.trust.VerifyIntentSource(i.Source, MinTrust)
	})
	for _, i := range trustRemoved {
		rejected = append(rejected, Rejection{Intent: i, Reason: "trust_violation"})
	}

	// 2. Canon gate.
	canonRemoved := stack.filterInPlace(func(i Intent) bool {
		violates, _ := canon.Violates(i.Description, i.Action())
		return !violates
	})
	for _, i := range canonRemoved {
		rejected = append(rejected, Rejection{Intent: i, Reason: "canon_violation"})
	}

	// 3. Survival: pain above 0.3 and no MAINTAIN intent present.
	if obs.Pain > 0.3 && !stack.HasType(IntentMaintain) {
		priority := obs.Pain + 0.2
		if priority > 1 {
			priority = 1
		}
		stack.Add(NewIntent("maintain system stability", priority, IntentMaintain, "self", nil, 0.1))
	}

	// 4. Growth: empty stack, healthy budget, low pain.
	if stack.Len() == 0 && obs.BudgetHealthy && obs.Pain < 0.1 {
		stack.Add(NewIntent("explore new patterns", 0.4, IntentExplore, "self", nil, 0.1))
	}

	return stack.Top()
}
