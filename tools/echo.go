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

// Package tools supplies concrete orchestrator.Tool implementations:
// the fixed-cost no-op used in the happy-path scenario, a deliberately
// unreliable fixture used to drive the circuit breaker, and the
// cognition-domain adapters the autonomy controller's act() step calls.
package tools

import "cogspine/orchestrator"

// EchoCost is the fixed estimated/actual cost of an Echo call.
const EchoCost = 0.1

// Echo is the minimal always-succeeds tool used to exercise the happy
// path end to end.
type Echo struct{}

// NewEcho builds an Echo tool.
func NewEcho() *Echo { return &Echo{} }

func (e *Echo) Name() string   { return "echo" }
func (e *Echo) Domain() string { return "cognition" }

func (e *Echo) EstimateCost(env orchestrator.Envelope) float64 { return EchoCost }

func (e *Echo) Execute(token orchestrator.SpineToken, env orchestrator.Envelope) orchestrator.Result {
	if !token.Valid() {
		return orchestrator.Failure("security_violation", "echo: missing spine token")
	}
	return orchestrator.Result{
		Success:   true,
		Output:    map[string]interface{}{"ok": true},
		CostSpent: EchoCost,
	}
}
