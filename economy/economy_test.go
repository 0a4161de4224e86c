// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package economy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPersister is an in-memory Persister fixture, avoiding any disk I/O
// in these tests.
type memPersister struct {
	state State
	ok    bool
}

func (p *memPersister) Save(s State) error {
	p.state = s
	p.ok = true
	return nil
}

func (p *memPersister) Load() (State, bool, error) {
	return p.state, p.ok, nil
}

func newTestEconomy(t *testing.T, budget float64) *Economy {
	t.Helper()
	e, err := New(&memPersister{})
	require.NoError(t, err)
	e.state.Budget = budget
	return e
}

func TestCheckBudgetThresholds(t *testing.T) {
	cases := []struct {
		name     string
		budget   float64
		priority float64
		want     bool
	}{
		{"deep debt, low priority refused", -6, 0.5, false},
		{"deep debt, high priority allowed", -6, 0.9, true},
		{"plain debt, low priority refused", -1, 0.4, false},
		{"plain debt, high priority allowed", -1, 0.6, true},
		{"solvent always allowed", 10, 0.0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := newTestEconomy(t, c.budget)
			assert.Equal(t, c.want, e.CheckBudget(c.priority))
		})
	}
}

func TestCheckVitality(t *testing.T) {
	cases := []struct {
		name   string
		budget float64
		want   float64
	}{
		{"healthy budget, no pain", 5, 0},
		{"exactly at floor, no pain", 1, 0},
		{"mild deficit, low-anxiety constant", 0.5, 0.1},
		{"in debt, proportional pain", -5, 0.5},
		{"deep debt, pain caps at 1", -50, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := newTestEconomy(t, c.budget)
			assert.InDelta(t, c.want, e.CheckVitality(), 1e-9)
		})
	}
}

func TestSpendDebitsBudgetAndStats(t *testing.T) {
	e := newTestEconomy(t, 10)
	e.Spend(2.5, "echo", false)
	assert.InDelta(t, 7.5, e.Budget(), 1e-9)

	stats := e.ToolStatsFor("echo")
	assert.Equal(t, 1, stats.Calls)
	assert.Equal(t, 0, stats.Failures)
	assert.InDelta(t, 2.5, stats.TotalSpent, 1e-9)

	e.Spend(1.0, "echo", true)
	stats = e.ToolStatsFor("echo")
	assert.Equal(t, 2, stats.Calls)
	assert.Equal(t, 1, stats.Failures)
	assert.InDelta(t, 0.5, stats.ErrorRate(), 1e-9)
}

func TestRecordValueCapsAtBudgetPlusReserve(t *testing.T) {
	e := newTestEconomy(t, 10)
	e.state.Reserve = 5

	e.RecordValue(1000, 1.0, "test", "echo")
	assert.InDelta(t, 15, e.Budget(), 1e-9)
}

func TestCheckThrottle(t *testing.T) {
	e := newTestEconomy(t, 10)

	for i := 0; i < 11; i++ {
		e.Spend(0.1, "flaky", true)
	}
	assert.True(t, e.CheckThrottle("flaky"))
}

func TestShouldThrottleProtectsEssentialTools(t *testing.T) {
	e := newTestEconomy(t, 0.5)
	assert.True(t, e.ShouldThrottle("memorysearch"))
	assert.False(t, e.ShouldThrottle("maintainer"))
}

func TestTickRegeneratesBudgetUpToCap(t *testing.T) {
	e := newTestEconomy(t, 10)
	e.state.Reserve = 5
	e.state.RegenRate = 1000 // minutes-independent: force the cap to bind
	e.state.LastTick = e.state.LastTick.Add(-time.Minute)

	e.Tick()
	assert.InDelta(t, 15, e.Budget(), 1e-9)
}
