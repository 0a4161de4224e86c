// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package hippocampus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsolidatePrunesLowImportance(t *testing.T) {
	m := NewMemoryFixture(time.Hour, 0.3)
	m.Add("keep", 0.5)
	m.Add("drop", 0.1)

	result := m.Consolidate()
	assert.Equal(t, 1, result.Pruned)
	assert.Equal(t, 1, result.Kept)
}

func TestConsolidatePrunesStaleEntries(t *testing.T) {
	m := NewMemoryFixture(-time.Second, 0.0) // pruneAfter already elapsed for anything added "now"
	m.Add("stale", 0.9)

	result := m.Consolidate()
	assert.Equal(t, 1, result.Pruned)
	assert.Equal(t, 0, result.Kept)
}

func TestConsolidateKeepsFreshImportantEntries(t *testing.T) {
	m := NewMemoryFixture(time.Hour, 0.2)
	m.Add("important", 0.9)

	result := m.Consolidate()
	assert.Equal(t, 0, result.Pruned)
	assert.Equal(t, 1, result.Kept)
}
