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
	"sync/atomic"

	"cogspine/orchestrator"
)

// Flaky always fails. It exists to drive the circuit breaker: it keeps
// its own call count for tests to assert "the tool was never actually
// invoked" once the breaker trips.
type Flaky struct {
	calls int64
}

// NewFlaky builds a Flaky tool.
func NewFlaky() *Flaky { return &Flaky{} }

func (f *Flaky) Name() string   { return "flaky" }
func (f *Flaky) Domain() string { return "cognition" }

func (f *Flaky) EstimateCost(env orchestrator.Envelope) float64 { return 0.1 }

// Calls reports how many times Execute actually ran.
func (f *Flaky) Calls() int64 { return atomic.LoadInt64(&f.calls) }

func (f *Flaky) Execute(token orchestrator.SpineToken, env orchestrator.Envelope) orchestrator.Result {
	if !token.Valid() {
		return orchestrator.Failure("security_violation", "flaky: missing spine token")
	}
	atomic.AddInt64(&f.calls, 1)
	return orchestrator.Result{
		Success:   false,
		ErrorCode: "tool_error",
		Message:   "flaky: simulated failure",
		Retryable: true,
	}
}
