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

// MaintainerCost is the fixed cost of a maintainer tick, matching the
// source adapter's flat estimate.
const MaintainerCost = 1.0

// Tick is the function the Maintainer tool runs on a "tick"/"maintain"
// action. The default does nothing beyond reporting success; callers
// that need real upkeep work (compacting the ledger, rotating the
// audit log) supply their own via NewMaintainerWithTick.
type Tick func() error

// Maintainer wraps the survival-loop upkeep work so it can be invoked
// through the orchestrator like any other tool, the way the source
// runtime's MaintainerAdapter wraps maintainer_tick().
type Maintainer struct {
	tick Tick
}

// NewMaintainer builds a Maintainer whose tick is a no-op.
func NewMaintainer() *Maintainer {
	return &Maintainer{tick: func() error { return nil }}
}

// NewMaintainerWithTick builds a Maintainer that runs fn on every tick.
func NewMaintainerWithTick(fn Tick) *Maintainer {
	return &Maintainer{tick: fn}
}

func (m *Maintainer) Name() string   { return "maintainer" }
func (m *Maintainer) Domain() string { return "cognition" }

func (m *Maintainer) EstimateCost(env orchestrator.Envelope) float64 { return MaintainerCost }

func (m *Maintainer) Execute(token orchestrator.SpineToken, env orchestrator.Envelope) orchestrator.Result {
	if !token.Valid() {
		return orchestrator.Failure("security_violation", "maintainer: missing spine token")
	}
	if env.Action != "tick" && env.Action != "maintain" {
		return orchestrator.Failure("tool_error", "maintainer: unknown action "+env.Action)
	}
	if err := m.tick(); err != nil {
		return orchestrator.Failure("tool_error", "maintainer: "+err.Error())
	}
	return orchestrator.Result{
		Success:   true,
		Output:    map[string]interface{}{"status": "maintainer_tick_complete"},
		CostSpent: MaintainerCost,
	}
}
