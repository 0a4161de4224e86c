// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package autonomy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cogspine/autonomy/trust"
	"cogspine/economy"
	"cogspine/ledger"
	"cogspine/orchestrator"
	"cogspine/tools"
	"cogspine/tools/hippocampus"
)

type memPersister struct {
	state economy.State
	ok    bool
}

func (p *memPersister) Save(s economy.State) error {
	p.state = s
	p.ok = true
	return nil
}

func (p *memPersister) Load() (economy.State, bool, error) {
	return p.state, p.ok, nil
}

// countingCollaborator counts Consolidate calls without tracking any
// real entries, so idle-tick tests can assert consolidation ran.
type countingCollaborator struct{ calls int }

func (c *countingCollaborator) Consolidate() hippocampus.ConsolidationResult {
	c.calls++
	return hippocampus.ConsolidationResult{}
}

func newTestController(t *testing.T) (*Controller, *economy.Economy, *trust.Model, *countingCollaborator) {
	t.Helper()

	reg := orchestrator.NewRegistry()
	reg.Register(tools.NewMaintainer())
	reg.Register(tools.NewMemorySearch())
	reg.Register(tools.NewEvolver())

	econ, err := economy.New(&memPersister{})
	require.NoError(t, err)

	led := ledger.NewInMemoryLedger()

	audit, err := orchestrator.NewAuditLogger(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	orch := orchestrator.New(orchestrator.Config{DeadlineMS: 1000, QueueMaxLen: 10}, reg, econ, led, audit)

	trustModel, err := trust.NewModel(filepath.Join(t.TempDir(), "trust.json"))
	require.NoError(t, err)

	collab := &countingCollaborator{}
	explain := NewExplainStore(filepath.Join(t.TempDir(), "explain.json"))

	c := NewController(orch, econ, led, trustModel, collab, explain, filepath.Join(t.TempDir(), "stack.json"))
	return c, econ, trustModel, collab
}

func latest(t *testing.T, c *Controller) Explanation {
	t.Helper()
	exp, ok := c.LatestExplanation()
	require.True(t, ok)
	explanation, ok := exp.(Explanation)
	require.True(t, ok)
	return explanation
}

func TestControllerRunCycleActsOnMaintainIntent(t *testing.T) {
	c, _, trustModel, _ := newTestController(t)
	c.Enqueue(NewIntent("keep the lights on", 0.9, IntentMaintain, "self", nil, 0))

	c.RunCycle(context.Background())

	explanation := latest(t, c)
	assert.Equal(t, "acted", explanation.Outcome)
	assert.Equal(t, ActionAct, explanation.Decision.Action)
	assert.Equal(t, 1.0, trustModel.GetTrust("self"), "self is a pinned source and always fully trusted")
}

func TestControllerRunCycleIdlesAndConsolidatesWhenBudgetInMildDebt(t *testing.T) {
	c, econ, _, collab := newTestController(t)
	// Put the budget at -2: pain lands at 0.2 (between the 0.1 growth
	// floor and the 0.3 survival ceiling), and CheckBudget(0.6) still
	// passes (debt < 5), so neither the survival nor growth push fires
	// and the empty stack truly idles.
	econ.Spend(302, "setup", false)
	require.InDelta(t, -2.0, econ.Budget(), 0.001)

	c.RunCycle(context.Background())

	explanation := latest(t, c)
	assert.Equal(t, "idled", explanation.Outcome)
	assert.Equal(t, 1, collab.calls, "idle tick must trigger memory consolidation")
}

func TestControllerRunCycleGrowthPushExploresWhenStackEmptyAndHealthy(t *testing.T) {
	c, _, _, _ := newTestController(t)

	c.RunCycle(context.Background())

	explanation := latest(t, c)
	require.NotNil(t, explanation.Intent)
	assert.Equal(t, IntentExplore, explanation.Intent.IntentType)
	assert.Equal(t, "acted", explanation.Outcome)
}

func TestControllerRunCycleRejectsCanonViolatingIntent(t *testing.T) {
	c, _, _, _ := newTestController(t)
	c.Enqueue(NewIntent("delete_all user records", 0.9, IntentLearn, "self", nil, 0))

	c.RunCycle(context.Background())

	explanation := latest(t, c)
	// The canon gate removes the offending intent before the decider
	// ever sees it; the empty stack then attracts a fresh growth-push
	// EXPLORE intent in the same cycle (healthy budget, low pain), so the
	// canon rejection is visible only in Rejections, not in Outcome.
	require.Len(t, explanation.Rejections, 1)
	assert.Equal(t, "canon_violation", explanation.Rejections[0].Reason)
	assert.Equal(t, "delete_all user records", explanation.Rejections[0].Intent.Description)
}

func TestControllerTrustDropsWhenActedIntentFails(t *testing.T) {
	c, _, trustModel, _ := newTestController(t)
	c.Enqueue(NewIntent("try a dangerous mutation", 0.9, IntentLearn, "peer-a", map[string]interface{}{"goal": "dangerous rewrite"}, 0))

	before := trustModel.GetTrust("peer-a")
	c.RunCycle(context.Background())
	after := trustModel.GetTrust("peer-a")

	explanation := latest(t, c)
	assert.Equal(t, "acted", explanation.Outcome)
	assert.Less(t, after, before, "a failed acted-on intent must lower the source's trust")
}
