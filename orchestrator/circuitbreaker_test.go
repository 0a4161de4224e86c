// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreakers(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		assert.True(t, cb.Allow("flaky"))
		cb.RecordFailure("flaky")
	}
	assert.Equal(t, BreakerClosed, cb.State("flaky"))

	assert.True(t, cb.Allow("flaky"))
	cb.RecordFailure("flaky")
	assert.Equal(t, BreakerOpen, cb.State("flaky"))
	assert.False(t, cb.Allow("flaky"))
}

func TestCircuitBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	cb := NewCircuitBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})

	cb.Allow("flaky")
	cb.RecordFailure("flaky")
	assert.Equal(t, BreakerOpen, cb.State("flaky"))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.Allow("flaky"), "reset timeout elapsed, probe should be allowed")
	assert.Equal(t, BreakerHalfOpen, cb.State("flaky"))

	// A second call while the probe is in flight must be refused.
	assert.False(t, cb.Allow("flaky"))

	cb.RecordSuccess("flaky")
	assert.Equal(t, BreakerClosed, cb.State("flaky"))
	assert.True(t, cb.Allow("flaky"))
}

func TestCircuitBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})

	cb.Allow("flaky")
	cb.RecordFailure("flaky")
	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.Allow("flaky"))
	assert.Equal(t, BreakerHalfOpen, cb.State("flaky"))

	cb.RecordFailure("flaky")
	assert.Equal(t, BreakerOpen, cb.State("flaky"))
	assert.False(t, cb.Allow("flaky"))
}

func TestCircuitBreakerIndependentPerTool(t *testing.T) {
	cb := NewCircuitBreakers(DefaultCircuitBreakerConfig())
	cb.RecordFailure("a")
	assert.Equal(t, BreakerClosed, cb.State("a"))
	assert.Equal(t, BreakerClosed, cb.State("b"))
}
