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

// Package economy tracks the orchestrator's budget, per-tool statistics,
// throttling and vitality/pain signals. It is a direct Go port of the
// source runtime's economy manager, restructured as an explicitly
// constructed, mutex-guarded struct instead of a module-level singleton.
package economy

import (
	"sync"
	"time"
)

// ToolStats accumulates per-tool call outcomes.
type ToolStats struct {
	Calls      int     `json:"calls"`
	Failures   int     `json:"failures"`
	TotalSpent float64 `json:"total_spent"`
	TotalValue float64 `json:"total_value"`
}

// ErrorRate is failures/calls, zero when there have been no calls.
func (s ToolStats) ErrorRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Calls)
}

// ROI is total_value/total_spent, zero when nothing has been spent.
func (s ToolStats) ROI() float64 {
	if s.TotalSpent == 0 {
		return 0
	}
	return s.TotalValue / s.TotalSpent
}

// Event is one entry of the economy's bounded history ring.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"` // "spend" | "value" | "tick"
	ToolName  string    `json:"tool_name,omitempty"`
	Amount    float64   `json:"amount"`
	Detail    string    `json:"detail,omitempty"`
}

// State is the persisted, process-wide economy record.
type State struct {
	SchemaVersion int                  `json:"schema_version"`
	Budget        float64              `json:"budget"`
	Reserve       float64              `json:"reserve"`
	RegenRate     float64              `json:"regen_rate"`
	LastTick      time.Time            `json:"last_tick"`
	TotalSpent    float64              `json:"total_spent"`
	TotalValue    float64              `json:"total_value"`
	ToolStats     map[string]ToolStats `json:"tool_stats"`
	Events        []Event              `json:"events"`
}

const currentSchemaVersion = 1

// DefaultMaxEvents bounds the events ring, matching the source's
// ECONOMY_MAX_EVENTS default.
const DefaultMaxEvents = 500

// Default budget constants, matching ORCHESTRATOR_BUDGET/RESERVE/REGEN_RATE.
const (
	DefaultBudget    = 300.0
	DefaultReserve   = 100.0
	DefaultRegenRate = 0.0
)

// essentialTools are exempt from ShouldThrottle's low-budget cut, which
// throttles every other tool early once budget runs low. "maintainer" is
// the only member, so the survival loop can always run.
var essentialTools = map[string]bool{
	"maintainer": true,
}

// Economy is the budget/stats/vitality engine. All mutating operations
// are safe for concurrent use and persist the full state after every
// mutation via the configured Persister.
type Economy struct {
	mu        sync.Mutex
	state      State
	maxEvents int
	persist   Persister
	decay     float64 // realized-value decay factor applied in RecordValue
}

// Persister is the disk-backing contract; Economy flushes to it after
// every mutating call, matching the "full-state rewrite on each
// mutation" on-disk layout contract.
type Persister interface {
	Save(State) error
	Load() (State, bool, error)
}

// Option configures New.
type Option func(*Economy)

// WithMaxEvents overrides DefaultMaxEvents.
func WithMaxEvents(n int) Option {
	return func(e *Economy) { e.maxEvents = n }
}

// WithDecayFactor overrides the realized-value decay applied in
// RecordValue, matching the source's ECONOMY_DECAY_FACTOR knob.
func WithDecayFactor(d float64) Option {
	return func(e *Economy) { e.decay = d }
}

// New builds an Economy, loading existing state from persist if present
// or seeding defaults otherwise.
func New(persist Persister, opts ...Option) (*Economy, error) {
	e := &Economy{
		persist:   persist,
		maxEvents: DefaultMaxEvents,
		decay:     1.0,
	}
	for _, o := range opts {
		o(e)
	}

	loaded, ok, err := persist.Load()
	if err != nil {
		return nil, err
	}
	if ok {
		if loaded.ToolStats == nil {
			loaded.ToolStats = make(map[string]ToolStats)
		}
		e.state = loaded
		return e, nil
	}

	e.state = State{
		SchemaVersion: currentSchemaVersion,
		Budget:        DefaultBudget,
		Reserve:       DefaultReserve,
		RegenRate:     DefaultRegenRate,
		LastTick:      time.Now().UTC(),
		ToolStats:     make(map[string]ToolStats),
	}
	if err := persist.Save(e.state); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Economy) pushEvent(ev Event) {
	e.state.Events = append(e.state.Events, ev)
	if len(e.state.Events) > e.maxEvents {
		e.state.Events = e.state.Events[len(e.state.Events)-e.maxEvents:]
	}
}

func (e *Economy) saveLocked() error {
	return e.persist.Save(e.state)
}

// Tick advances last_tick and, if regen_rate > 0, regenerates budget by
// elapsed_minutes * regen_rate, capped so budget never exceeds
// budget+reserve (i.e. regeneration alone cannot build an unbounded
// surplus past the reserve line).
func (e *Economy) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	elapsedMinutes := now.Sub(e.state.LastTick).Minutes()
	e.state.LastTick = now
	if elapsedMinutes <= 0 {
		e.saveLocked()
		return
	}
	if e.state.RegenRate > 0 {
		cap := e.state.Budget + e.state.Reserve
		e.state.Budget += elapsedMinutes * e.state.RegenRate
		if e.state.Budget > cap {
			e.state.Budget = cap
		}
	}
	e.pushEvent(Event{Timestamp: now, Kind: "tick", Amount: elapsedMinutes})
	e.saveLocked()
}

// Spend debits cost against the budget and updates tool_stats. Spend is
// always permitted — debt is allowed; consequences are handled by
// throttling and the planner's vitality signal, not by refusing Spend.
func (e *Economy) Spend(cost float64, toolName string, failed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Budget -= cost
	e.state.TotalSpent += cost

	stats := e.state.ToolStats[toolName]
	stats.Calls++
	stats.TotalSpent += cost
	if failed {
		stats.Failures++
	}
	e.state.ToolStats[toolName] = stats

	e.pushEvent(Event{Timestamp: time.Now().UTC(), Kind: "spend", ToolName: toolName, Amount: cost})
	e.saveLocked()
	promToolSpend.WithLabelValues(toolName).Add(cost)
}

// RecordValue credits value*confidence*decay to the budget, capped so
// budget never exceeds budget+reserve, and updates tool_stats.
func (e *Economy) RecordValue(value, confidence float64, source, toolName string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	realized := value * confidence * e.decay
	cap := e.state.Budget + e.state.Reserve
	e.state.Budget += realized
	if e.state.Budget > cap {
		e.state.Budget = cap
	}
	e.state.TotalValue += realized

	if toolName != "" {
		stats := e.state.ToolStats[toolName]
		stats.TotalValue += realized
		e.state.ToolStats[toolName] = stats
	}

	e.pushEvent(Event{Timestamp: time.Now().UTC(), Kind: "value", ToolName: toolName, Amount: realized, Detail: source})
	e.saveLocked()
}

// CheckBudget is the authorization gate for a prospective action at the
// given priority: deep debt (<-5.0) requires priority>0.8, plain debt
// (<0) requires priority>0.5, otherwise always permitted.
func (e *Economy) CheckBudget(priority float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkBudgetLocked(priority)
}

func (e *Economy) checkBudgetLocked(priority float64) bool {
	switch {
	case e.state.Budget < -5.0:
		return priority > 0.8
	case e.state.Budget < 0:
		return priority > 0.5
	default:
		return true
	}
}

// CheckVitality returns the pain signal in [0,1]: 0 when budget>=1, a
// low-anxiety constant between 0 and 1, and min(|budget|/10, 1) in debt.
func (e *Economy) CheckVitality() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkVitalityLocked()
}

func (e *Economy) checkVitalityLocked() float64 {
	b := e.state.Budget
	switch {
	case b >= 1:
		return 0
	case b <= 0:
		pain := -b / 10
		if pain > 1 {
			pain = 1
		}
		return pain
	default:
		return 0.1
	}
}

// CheckThrottle reports whether toolName should be throttled on pure
// performance grounds: too many calls with too high an error rate, or
// too much spend with too little return.
func (e *Economy) CheckThrottle(toolName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkThrottleLocked(toolName)
}

func (e *Economy) checkThrottleLocked(toolName string) bool {
	stats := e.state.ToolStats[toolName]
	if stats.Calls > 10 && stats.ErrorRate() > 0.5 {
		return true
	}
	if stats.TotalSpent > 5.0 && stats.ROI() < 0.1 {
		return true
	}
	return false
}

// ShouldThrottle is CheckThrottle plus an early admission-control cut:
// non-essential tools are throttled whenever budget has fallen below 1.0.
func (e *Economy) ShouldThrottle(toolName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.checkThrottleLocked(toolName) {
		return true
	}
	if !essentialTools[toolName] && e.state.Budget < 1.0 {
		return true
	}
	return false
}

// Budget returns the current signed budget.
func (e *Economy) Budget() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Budget
}

// Snapshot returns a copy of the current state, safe to serialize for
// the /v1/orchestrator/budget endpoint.
func (e *Economy) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.state
	cp.ToolStats = make(map[string]ToolStats, len(e.state.ToolStats))
	for k, v := range e.state.ToolStats {
		cp.ToolStats[k] = v
	}
	cp.Events = append([]Event(nil), e.state.Events...)
	return cp
}

// RecentEvents returns the last n events, most recent last, for the
// paginated budget/events endpoint.
func (e *Economy) RecentEvents(n int) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n <= 0 || n > len(e.state.Events) {
		n = len(e.state.Events)
	}
	return append([]Event(nil), e.state.Events[len(e.state.Events)-n:]...)
}

// ToolStatsFor returns the accumulated stats for a tool.
func (e *Economy) ToolStatsFor(toolName string) ToolStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ToolStats[toolName]
}
