// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package autonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubBudget struct {
	checkResult bool
	budget      float64
}

func (s stubBudget) CheckBudget(priority float64) bool { return s.checkResult }
func (s stubBudget) Budget() float64                    { return s.budget }

func TestDeciderCanonBackstopRejects(t *testing.T) {
	d := NewDecider(stubBudget{checkResult: true, budget: 10})
	intent := NewIntent("please self_destruct now", 0.9, IntentServe, "user", nil, 0)

	decision := d.Decide(intent, 0)
	assert.Equal(t, ActionReject, decision.Action)
}

func TestDeciderMaintainBypassesBudget(t *testing.T) {
	d := NewDecider(stubBudget{checkResult: false, budget: -10})
	intent := NewIntent("stabilize", 0.1, IntentMaintain, "self", nil, 0)

	decision := d.Decide(intent, 0)
	assert.Equal(t, ActionAct, decision.Action)
}

func TestDeciderLearnActsWheneverBudgetPositive(t *testing.T) {
	d := NewDecider(stubBudget{checkResult: false, budget: 0.01})
	intent := NewIntent("mutate", 0.1, IntentLearn, "self", nil, 0)

	decision := d.Decide(intent, 0)
	assert.Equal(t, ActionAct, decision.Action)
}

func TestDeciderLearnFallsBackToBudgetGateWhenBudgetNonPositive(t *testing.T) {
	d := NewDecider(stubBudget{checkResult: false, budget: 0})
	intent := NewIntent("mutate", 0.1, IntentLearn, "self", nil, 0)

	decision := d.Decide(intent, 0)
	assert.Equal(t, ActionIdle, decision.Action, "growth override only fires when Budget() > 0")
}

func TestDeciderServeFollowsBudgetGate(t *testing.T) {
	allowed := NewDecider(stubBudget{checkResult: true, budget: 10})
	denied := NewDecider(stubBudget{checkResult: false, budget: -10})
	intent := NewIntent("answer a query", 0.5, IntentServe, "user", nil, 0)

	assert.Equal(t, ActionAct, allowed.Decide(intent, 0).Action)
	assert.Equal(t, ActionIdle, denied.Decide(intent, 0).Action)
}

func TestDeciderCooldownGateIdlesLowPriorityUnderLoad(t *testing.T) {
	d := NewDecider(stubBudget{checkResult: true, budget: 10})
	lowPriority := NewIntent("minor task", 0.5, IntentServe, "user", nil, 0)
	highPriority := NewIntent("urgent task", 0.8, IntentServe, "user", nil, 0)

	assert.Equal(t, ActionIdle, d.Decide(lowPriority, 11).Action)
	assert.Equal(t, ActionAct, d.Decide(highPriority, 11).Action)
}

func TestDeciderCooldownGateAppliesToMaintainToo(t *testing.T) {
	d := NewDecider(stubBudget{checkResult: true, budget: 10})
	lowPriority := NewIntent("routine tick", 0.3, IntentMaintain, "self", nil, 0)

	assert.Equal(t, ActionIdle, d.Decide(lowPriority, 11).Action)
}
