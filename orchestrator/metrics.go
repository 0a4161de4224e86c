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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	promInvocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_invocations_total",
		Help: "Total tool invocations by tool_name and outcome.",
	}, []string{"tool_name", "outcome"})

	promInvocationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orchestrator_invocation_duration_seconds",
		Help:    "Invocation duration in seconds by tool_name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool_name"})

	promBlockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_blocked_total",
		Help: "Invocations refused by error_code.",
	}, []string{"error_code"})

	promBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_circuit_breaker_state",
		Help: "0=closed, 1=half_open, 2=open, by tool_name.",
	}, []string{"tool_name"})
)

func init() {
	prometheus.MustRegister(promInvocationsTotal, promInvocationDuration, promBlockedTotal, promBreakerState)
}

func breakerStateValue(s BreakerState) float64 {
	switch s {
	case BreakerClosed:
		return 0
	case BreakerHalfOpen:
		return 1
	case BreakerOpen:
		return 2
	default:
		return 0
	}
}
