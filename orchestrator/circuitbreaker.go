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

package orchestrator

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's state machine position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreakerConfig configures a single breaker's thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before tripping OPEN; default 5
	ResetTimeout     time.Duration // time spent OPEN before probing HALF-OPEN; default 30s
}

// DefaultCircuitBreakerConfig matches spec.md's default breaker policy.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
}

type breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	halfOpenUse bool // a half-open probe is currently in flight
}

// CircuitBreakers manages one breaker per tool_name, keyed lazily.
type CircuitBreakers struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	breakers map[string]*breaker
}

// NewCircuitBreakers builds a breaker set using cfg for every tool.
func NewCircuitBreakers(cfg CircuitBreakerConfig) *CircuitBreakers {
	return &CircuitBreakers{cfg: cfg, breakers: make(map[string]*breaker)}
}

func (c *CircuitBreakers) get(tool string) *breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[tool]
	if !ok {
		b = &breaker{state: BreakerClosed}
		c.breakers[tool] = b
	}
	return b
}

// Allow reports whether a call to tool may proceed. When the breaker is
// OPEN but the reset timeout has elapsed, it transitions to HALF-OPEN and
// allows exactly one probing call through.
func (c *CircuitBreakers) Allow(tool string) bool {
	b := c.get(tool)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) >= c.cfg.ResetTimeout {
			b.state = BreakerHalfOpen
			b.halfOpenUse = true
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.halfOpenUse {
			return false // a probe is already outstanding
		}
		b.halfOpenUse = true
		return true
	default:
		return true
	}
}

// RecordSuccess resets the breaker to CLOSED.
func (c *CircuitBreakers) RecordSuccess(tool string) {
	b := c.get(tool)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.halfOpenUse = false
}

// RecordFailure increments the consecutive-failure counter and trips the
// breaker OPEN once FailureThreshold is reached, or immediately re-opens
// a HALF-OPEN breaker whose probe failed.
func (c *CircuitBreakers) RecordFailure(tool string) {
	b := c.get(tool)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.halfOpenUse = false
		return
	}

	b.failures++
	if b.failures >= c.cfg.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
	}
}

// State reports a tool's current breaker state, for introspection/metrics.
func (c *CircuitBreakers) State(tool string) BreakerState {
	b := c.get(tool)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
