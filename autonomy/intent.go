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

// Package autonomy drives the periodic observe/plan/decide/act/reflect
// cycle: it produces and resolves intents under the trust and canon
// gates and submits the chosen action through the orchestrator.
package autonomy

import (
	"time"

	"github.com/google/uuid"
)

// IntentType is the closed set of intent kinds the planner can produce.
type IntentType string

const (
	IntentMaintain IntentType = "MAINTAIN"
	IntentServe    IntentType = "SERVE"
	IntentLearn    IntentType = "LEARN"
	IntentExplore  IntentType = "EXPLORE"
	IntentIdle     IntentType = "IDLE"
)

// MinTrust is the planner's trust-gate threshold.
const MinTrust = 0.4

// PruneThreshold is the priority floor below which an intent is removed.
const PruneThreshold = 0.01

// Intent is a prioritized, typed, decaying goal.
type Intent struct {
	IntentID    string                 `json:"intent_id"`
	Description string                 `json:"description"`
	Priority    float64                `json:"priority"`
	IntentType  IntentType             `json:"intent_type"`
	Source      string                 `json:"source"`
	Context     map[string]interface{} `json:"context,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	DecayRate   float64                `json:"decay_rate"`
}

// Action reads context.action, the field the canon gate also inspects.
func (i Intent) Action() string {
	if i.Context == nil {
		return ""
	}
	if v, ok := i.Context["action"].(string); ok {
		return v
	}
	return ""
}

// NewIntent builds an Intent with a fresh ID and CreatedAt.
func NewIntent(description string, priority float64, kind IntentType, source string, ctx map[string]interface{}, decayRate float64) Intent {
	return Intent{
		IntentID:    uuid.NewString(),
		Description: description,
		Priority:    priority,
		IntentType:  kind,
		Source:      source,
		Context:     ctx,
		CreatedAt:   time.Now().UTC(),
		DecayRate:   decayRate,
	}
}

// Decay reduces priority by decay_rate * 0.01 * elapsed_seconds, time
// only ever moving forward — never computed against a resettable clock.
func (i *Intent) Decay(elapsed time.Duration) {
	i.Priority -= i.DecayRate * 0.01 * elapsed.Seconds()
}
