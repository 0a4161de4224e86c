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
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cogspine/autonomy/trust"
	"cogspine/economy"
	"cogspine/ledger"
	"cogspine/orchestrator"
	"cogspine/shared/logger"
	"cogspine/tools/hippocampus"
)

// DefaultCycleInterval is how often Run drives a cycle when the caller
// does not override it, matching AUTONOMY_CYCLE_SECONDS' default.
const DefaultCycleInterval = 60 * time.Second

// cooldownWindow is the sliding window recentActions counts over.
const cooldownWindow = 10 * time.Minute

// observeSample bounds how many recent ledger rows observe() inspects.
const observeSample = 100

// Controller drives the observe -> plan -> decide -> act -> reflect
// cycle. It owns the intent stack and the explainability record, and
// submits chosen actions through the orchestrator's Invoke gate like
// any other caller — it holds no back door around authorization,
// budget, or the circuit breaker.
type Controller struct {
	orch        *orchestrator.Orchestrator
	econ        *economy.Economy
	ledger      ledger.Ledger
	trust       *trust.Model
	hippocampus hippocampus.Collaborator

	stack    *Stack
	planner  *Planner
	decider  *Decider
	reflector *Reflector
	explain  *ExplainStore
	log      *logger.Logger

	statePath string

	mu            sync.Mutex
	recentActions []time.Time
	lastCycle     time.Time
}

// NewController wires a Controller from its dependencies. statePath
// defaults to "data/intent_stack.json" when empty. hippo may be nil, in
// which case idle ticks skip the consolidation call.
func NewController(orch *orchestrator.Orchestrator, econ *economy.Economy, led ledger.Ledger, trustModel *trust.Model, hippo hippocampus.Collaborator, explain *ExplainStore, statePath string) *Controller {
	if statePath == "" {
		statePath = "data/intent_stack.json"
	}
	c := &Controller{
		orch:        orch,
		econ:        econ,
		ledger:      led,
		trust:       trustModel,
		hippocampus: hippo,
		stack:       NewStack(),
		planner:     NewPlanner(trustModel),
		decider:     NewDecider(econ),
		reflector:   NewReflector(),
		explain:     explain,
		log:         logger.New("autonomy"),
		statePath:   statePath,
		lastCycle:   time.Now().UTC(),
	}
	c.loadStack()
	return c
}

func (c *Controller) loadStack() {
	b, err := os.ReadFile(c.statePath)
	if err != nil {
		return
	}
	var intents []Intent
	if err := json.Unmarshal(b, &intents); err != nil {
		return
	}
	for _, i := range intents {
		c.stack.Add(i)
	}
}

func (c *Controller) saveStack() error {
	dir := filepath.Dir(c.statePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(c.stack.All(), "", "  ")
	if err != nil {
		return err
	}
	tmp := c.statePath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.statePath)
}

// Enqueue adds an externally raised intent (e.g. a user request routed
// through the controller rather than directly at the orchestrator).
func (c *Controller) Enqueue(i Intent) {
	c.stack.Add(i)
}

// observe samples the ledger's recent history and the economy's
// vitality signal into an Observation, per spec.md §4.3's observe step.
func (c *Controller) observe(ctx context.Context) Observation {
	rows, err := c.ledger.ListRecent(ctx, observeSample)
	if err != nil || len(rows) == 0 {
		return Observation{
			Pain:          c.econ.CheckVitality(),
			BudgetHealthy: c.econ.CheckBudget(0.6),
		}
	}

	var completed, failed int
	var totalCost float64
	var firstHalfAvgMS, secondHalfAvgMS float64
	var firstN, secondN int
	lastHour := time.Now().UTC().Add(-time.Hour)
	lastHourCalls := 0

	for i, rec := range rows {
		if rec.Status == ledger.StatusCompleted {
			completed++
		}
		if rec.Status == ledger.StatusFailed {
			failed++
		}
		totalCost += rec.CostSpent
		if rec.CreatedAt.After(lastHour) {
			lastHourCalls++
		}
		if i < len(rows)/2 {
			firstHalfAvgMS += float64(rec.DurationMS)
			firstN++
		} else {
			secondHalfAvgMS += float64(rec.DurationMS)
			secondN++
		}
	}
	if firstN > 0 {
		firstHalfAvgMS /= float64(firstN)
	}
	if secondN > 0 {
		secondHalfAvgMS /= float64(secondN)
	}

	total := completed + failed
	errorRate := 0.0
	successRate := 0.0
	if total > 0 {
		errorRate = float64(failed) / float64(total)
		successRate = float64(completed) / float64(total)
	}

	trend := "flat"
	if firstN > 0 && secondN > 0 {
		switch {
		case secondHalfAvgMS > firstHalfAvgMS*1.1:
			trend = "up"
		case secondHalfAvgMS < firstHalfAvgMS*0.9:
			trend = "down"
		}
	}

	return Observation{
		ErrorRate:     errorRate,
		AvgCost:       totalCost / float64(len(rows)),
		SuccessRate:   successRate,
		LatencyTrend:  trend,
		LastHourCalls: lastHourCalls,
		Pain:          c.econ.CheckVitality(),
		BudgetHealthy: c.econ.CheckBudget(0.6),
	}
}

// actionFor maps an intent type onto the tool call the source runtime's
// autonomy loop issues for it.
func actionFor(i Intent) (toolName, domain, action string) {
	switch i.IntentType {
	case IntentMaintain:
		return "maintainer", "cognition", "tick"
	case IntentServe:
		return "memorysearch", "memory", "retrieve"
	case IntentExplore:
		return "memorysearch", "memory", "search_patterns"
	case IntentLearn:
		return "evolver", "cognition", "mutate"
	default:
		return "maintainer", "cognition", "tick"
	}
}

func (c *Controller) act(ctx context.Context, i Intent) orchestrator.Result {
	toolName, domain, action := actionFor(i)
	env := orchestrator.Envelope{
		RequestID: orchestrator.NewExecutionID(),
		ToolName:  toolName,
		Domain:    domain,
		Action:    action,
		Caller:    "autonomy-controller",
		Source:    i.Source,
		Priority:  i.Priority,
		RiskLevel: orchestrator.RiskLow,
		Context:   i.Context,
	}
	return c.orch.Invoke(ctx, env)
}

func (c *Controller) recordAction(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-cooldownWindow)
	kept := c.recentActions[:0]
	for _, t := range c.recentActions {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.recentActions = append(kept, now)
}

func (c *Controller) recentActionCount(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-cooldownWindow)
	n := 0
	for _, t := range c.recentActions {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// RunCycle executes one full observe/plan/decide/act/reflect pass,
// persisting the intent stack and the explainability record before
// returning.
func (c *Controller) RunCycle(ctx context.Context) {
	now := time.Now().UTC()
	c.mu.Lock()
	elapsed := now.Sub(c.lastCycle)
	c.lastCycle = now
	c.mu.Unlock()

	c.stack.Decay(elapsed)

	obs := c.observe(ctx)
	chosen, hasChosen, rejected := c.planner.Plan(obs, c.stack)

	exp := Explanation{
		Timestamp:   now,
		Observation: obs,
		Rejections:  rejected,
	}

	if !hasChosen {
		exp.Outcome = "idled"
		exp.Decision = Decision{Action: ActionIdle, Reason: "no intent on stack"}
		c.consolidate()
		c.finishCycle(exp)
		return
	}

	exp.Intent = &chosen
	decision := c.decider.Decide(chosen, c.recentActionCount(now))
	exp.Decision = decision

	switch decision.Action {
	case ActionAct:
		result := c.act(ctx, chosen)
		c.recordAction(now)
		score := c.reflector.Evaluate(result.Success)
		exp.Outcome = "acted"
		exp.Score = score
		if result.Success {
			c.stack.Remove(chosen.IntentID)
			c.trust.UpdateTrust(chosen.Source, 0.01, "intent acted on successfully")
		} else {
			c.trust.UpdateTrust(chosen.Source, -0.02, "intent action failed: "+result.Message)
		}
	case ActionReject:
		exp.Outcome = "rejected"
		c.stack.Remove(chosen.IntentID)
	default: // ActionIdle
		exp.Outcome = "idled"
		c.consolidate()
	}

	c.finishCycle(exp)
}

func (c *Controller) consolidate() {
	if c.hippocampus == nil {
		return
	}
	result := c.hippocampus.Consolidate()
	c.log.Info("", "", "memory consolidation complete", map[string]interface{}{
		"pruned": result.Pruned,
		"kept":   result.Kept,
	})
}

func (c *Controller) finishCycle(exp Explanation) {
	if c.explain != nil {
		if err := c.explain.Record(exp); err != nil {
			c.log.Error("", "", "failed to persist explanation", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := c.saveStack(); err != nil {
		c.log.Error("", "", "failed to persist intent stack", map[string]interface{}{"error": err.Error()})
	}
}

// LatestExplanation satisfies orchestrator.ExplanationProvider.
func (c *Controller) LatestExplanation() (interface{}, bool) {
	if c.explain == nil {
		return nil, false
	}
	return c.explain.Latest()
}

// GetTrust satisfies orchestrator.TrustReader.
func (c *Controller) GetTrust(nodeID string) float64 {
	return c.trust.GetTrust(nodeID)
}

// Run drives RunCycle on a fixed interval until ctx is cancelled,
// recovering from any panic within a cycle rather than letting it kill
// the loop.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCycleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.safeCycle(ctx)
		}
	}
}

func (c *Controller) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("", "", "autonomy cycle panicked", map[string]interface{}{"recovered": r})
		}
	}()
	c.RunCycle(ctx)
}
