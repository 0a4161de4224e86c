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

package economy

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	promBudget = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_economy_budget",
		Help: "Current signed economy budget.",
	})
	promVitality = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_economy_vitality",
		Help: "Current pain/vitality signal in [0,1].",
	})
	promToolSpend = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_economy_tool_spend_total",
		Help: "Cumulative cost spent per tool.",
	}, []string{"tool_name"})
)

func init() {
	prometheus.MustRegister(promBudget, promVitality, promToolSpend)
}

// ReportMetrics pushes the economy's current budget and vitality to the
// registered Prometheus collectors. Call this after mutating operations,
// or on a short ticker, from the owner of the Economy instance.
func (e *Economy) ReportMetrics() {
	promBudget.Set(e.Budget())
	promVitality.Set(e.CheckVitality())
}
