// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package autonomy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStackTopReturnsHighestPriority(t *testing.T) {
	s := NewStack()
	s.Add(NewIntent("low", 0.2, IntentServe, "user", nil, 0))
	s.Add(NewIntent("high", 0.9, IntentMaintain, "self", nil, 0))
	s.Add(NewIntent("mid", 0.5, IntentExplore, "self", nil, 0))

	top, ok := s.Top()
	assert.True(t, ok)
	assert.Equal(t, "high", top.Description)
}

func TestStackTopEmpty(t *testing.T) {
	s := NewStack()
	_, ok := s.Top()
	assert.False(t, ok)
}

func TestStackRemove(t *testing.T) {
	s := NewStack()
	i := NewIntent("goal", 0.5, IntentServe, "user", nil, 0)
	s.Add(i)
	assert.Equal(t, 1, s.Len())
	s.Remove(i.IntentID)
	assert.Equal(t, 0, s.Len())
}

func TestStackDecayPrunesBelowThreshold(t *testing.T) {
	s := NewStack()
	s.Add(NewIntent("fast decay", 0.05, IntentServe, "user", nil, 100))
	s.Add(NewIntent("no decay", 0.5, IntentServe, "user", nil, 0))

	s.Decay(10 * time.Second)

	assert.Equal(t, 1, s.Len())
	top, ok := s.Top()
	assert.True(t, ok)
	assert.Equal(t, "no decay", top.Description)
}

func TestStackHasType(t *testing.T) {
	s := NewStack()
	assert.False(t, s.HasType(IntentMaintain))
	s.Add(NewIntent("tick", 0.5, IntentMaintain, "self", nil, 0))
	assert.True(t, s.HasType(IntentMaintain))
}

func TestStackClearType(t *testing.T) {
	s := NewStack()
	s.Add(NewIntent("a", 0.5, IntentMaintain, "self", nil, 0))
	s.Add(NewIntent("b", 0.5, IntentServe, "user", nil, 0))
	s.ClearType(IntentMaintain)
	assert.Equal(t, 1, s.Len())
	assert.False(t, s.HasType(IntentMaintain))
}

func TestIntentDecayFormula(t *testing.T) {
	i := NewIntent("goal", 1.0, IntentServe, "user", nil, 2.0)
	i.Decay(5 * time.Second)
	// priority -= decay_rate * 0.01 * elapsed_seconds = 2.0*0.01*5 = 0.1
	assert.InDelta(t, 0.9, i.Priority, 1e-9)
}
