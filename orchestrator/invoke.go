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
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"cogspine/economy"
	"cogspine/ledger"
	"cogspine/shared/logger"
	"cogspine/shared/types"
)

// Orchestrator is the single gate every side-effecting call passes
// through. It is constructed explicitly and injected with its
// dependencies — there is no module-level singleton.
type Orchestrator struct {
	registry *Registry
	economy  *economy.Economy
	breakers *CircuitBreakers
	idemp    IdempotencyCache
	ledger   ledger.Ledger
	queue    *ledger.Queue
	audit    *AuditLogger
	log      *logger.Logger
	cfg      Config

	mu           sync.Mutex
	tenantSpent  map[string]float64
}

// New builds an Orchestrator from its dependencies. It always starts with
// per-tool breakers from DefaultCircuitBreakerConfig and an in-process
// idempotency cache using cfg.IdempotencyTTL; SetIdempotencyCache
// replaces the cache afterwards.
func New(cfg Config, reg *Registry, econ *economy.Economy, led ledger.Ledger, audit *AuditLogger) *Orchestrator {
	o := &Orchestrator{
		registry:    reg,
		economy:     econ,
		breakers:    NewCircuitBreakers(DefaultCircuitBreakerConfig()),
		idemp:       NewMemoryIdempotencyCache(cfg.IdempotencyTTL),
		ledger:      led,
		queue:       ledger.NewQueue(cfg.QueueMaxLen),
		audit:       audit,
		log:         logger.New("orchestrator"),
		cfg:         cfg,
		tenantSpent: make(map[string]float64),
	}
	reg.SetKillSwitch(cfg.KillSwitch)
	reg.AllowTools(cfg.ToolAllowlist)
	reg.DenyTools(cfg.ToolDenylist)
	reg.AllowDomains(cfg.DomainAllowlist)
	reg.DenyDomains(cfg.DomainDenylist)
	if cfg.MaxRisk != "" {
		reg.SetMaxRisk(cfg.MaxRisk)
	}
	return o
}

// SetIdempotencyCache overrides the default in-process cache, e.g. with
// a Redis-backed one for multi-instance deployments.
func (o *Orchestrator) SetIdempotencyCache(c IdempotencyCache) {
	o.idemp = c
}

// Queue exposes the async queue so the worker driver (see StartWorker) can be
// started independently of HTTP wiring.
func (o *Orchestrator) Queue() *ledger.Queue { return o.queue }

// budgetGate implements spec §4.1 step 4. It returns ("", "") when the
// call may proceed.
func (o *Orchestrator) budgetGate(env Envelope) (code types.ErrorCode, reason string) {
	if env.EstimatedCost <= 0 {
		return "", ""
	}

	if o.economy.ShouldThrottle(env.ToolName) && env.Priority <= 0.8 {
		return types.ErrBudgetExceeded, "tool is throttled"
	}

	bypass := env.Emergency() || env.Priority > 0.8 || env.ToolName == "maintainer"
	if env.EstimatedCost > o.economy.Budget() && !bypass {
		return types.ErrBudgetExceeded, "estimated cost exceeds budget"
	}

	if ceiling, ok := o.cfg.ToolBudgets[env.ToolName]; ok {
		spent := o.economy.ToolStatsFor(env.ToolName).TotalSpent
		if spent+env.EstimatedCost > ceiling {
			return types.ErrBudgetExceeded, "tool budget ceiling exceeded"
		}
	}

	if env.Tenant != "" {
		if ceiling, ok := o.cfg.TenantBudgets[env.Tenant]; ok {
			o.mu.Lock()
			spent := o.tenantSpent[env.Tenant]
			o.mu.Unlock()
			if spent+env.EstimatedCost > ceiling {
				return types.ErrBudgetExceeded, "tenant budget ceiling exceeded"
			}
		}
	}

	return "", ""
}

func (o *Orchestrator) recordTenantSpend(tenant string, cost float64) {
	if tenant == "" {
		return
	}
	o.mu.Lock()
	o.tenantSpent[tenant] += cost
	o.mu.Unlock()
}

// Invoke is the synchronous entry point: spec §4.1's full 11-step
// contract.
func (o *Orchestrator) Invoke(ctx context.Context, env Envelope) Result {
	// Step 1: idempotency lookup.
	if env.IdempotencyKey != "" {
		if cached, ok := o.idemp.Get(env.IdempotencyKey); ok {
			return cached
		}
	}

	// Step 2: registration check.
	tool, ok := o.registry.Lookup(env.ToolName)
	if !ok {
		r := Failure(types.ErrToolError, "tool not registered: "+env.ToolName)
		r.Retryable = false
		return r
	}

	// Step 3: authorization.
	if denyCode, reason, warn := o.registry.authorize(env); denyCode != "" {
		o.auditDecision(env, 0, 0, false, types.ErrSecurityViolation, reason)
		promBlockedTotal.WithLabelValues(string(types.ErrSecurityViolation)).Inc()
		return Failure(types.ErrSecurityViolation, reason)
	} else if warn != "" {
		o.log.Warn(env.Caller, env.RequestID, warn, map[string]interface{}{"tool": env.ToolName})
	}

	// Step 4: budget gate.
	if code, reason := o.budgetGate(env); code != "" {
		o.auditDecision(env, 0, 0, false, code, reason)
		promBlockedTotal.WithLabelValues(string(code)).Inc()
		return Failure(code, reason)
	}

	// Step 5: circuit breaker.
	if !o.breakers.Allow(env.ToolName) {
		o.auditDecision(env, 0, 0, false, types.ErrToolError, "circuit breaker open")
		promBlockedTotal.WithLabelValues(string(types.ErrToolError)).Inc()
		return Failure(types.ErrToolError, "circuit breaker open for "+env.ToolName)
	}
	promBreakerState.WithLabelValues(env.ToolName).Set(breakerStateValue(o.breakers.State(env.ToolName)))

	// Step 5.5: ledger running row (ordering guarantee in spec §5).
	rec, err := o.ledger.Create(ctx, ledger.Record{
		Status:         ledger.StatusRunning,
		ToolName:       env.ToolName,
		Domain:         env.Domain,
		Action:         env.Action,
		RequestID:      env.RequestID,
		TraceID:        env.TraceID,
		Caller:         env.Caller,
		Tenant:         env.Tenant,
		Source:         env.Source,
		IdempotencyKey: env.IdempotencyKey,
	})
	if err != nil {
		return Failure(types.ErrInternal, "ledger create failed: "+err.Error())
	}

	result, retries, durationMS := o.execute(ctx, tool, env)

	// Step 8: accounting.
	finalCost := result.CostSpent
	if finalCost <= 0 {
		finalCost = env.EstimatedCost
	}
	if finalCost > 0 {
		o.economy.Spend(finalCost, env.ToolName, !result.Success)
		o.recordTenantSpend(env.Tenant, finalCost)
	}
	if result.Success {
		result.MemoryWritten = true
	}

	status := ledger.StatusCompleted
	if !result.Success {
		status = ledger.StatusFailed
	}
	resultJSON, _ := json.Marshal(result)
	o.ledger.Update(ctx, rec.ExecutionID, ledger.Update{
		Status:       &status,
		DurationMS:   &durationMS,
		Retries:      &retries,
		CostSpent:    &finalCost,
		Result:       strPtr(string(resultJSON)),
		ErrorCode:    strPtr(string(result.ErrorCode)),
		ErrorMessage: strPtr(result.Message),
	})

	// Step 9: audit.
	o.auditDecision(env, env.EstimatedCost, finalCost, result.Success, result.ErrorCode, result.Message)
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	promInvocationsTotal.WithLabelValues(env.ToolName, outcome).Inc()
	promInvocationDuration.WithLabelValues(env.ToolName).Observe(float64(durationMS) / 1000.0)

	// Step 10: idempotency store.
	if result.Success && env.IdempotencyKey != "" {
		o.idemp.Put(env.IdempotencyKey, result)
	}

	// Step 11: breaker update.
	if result.Success {
		o.breakers.RecordSuccess(env.ToolName)
	} else {
		o.breakers.RecordFailure(env.ToolName)
	}

	return result
}

// execute runs the tool body within a deadline, retrying on timeout or
// retryable error with exponential backoff, per spec §4.1 step 7. It
// recovers from a tool panic and converts it into an internal_error.
func (o *Orchestrator) execute(ctx context.Context, tool Tool, env Envelope) (result Result, retries int, durationMS int64) {
	deadline := time.Duration(env.DeadlineMS) * time.Millisecond
	if deadline <= 0 {
		deadline = time.Duration(o.cfg.DeadlineMS) * time.Millisecond
	}
	maxRetries := env.MaxRetries()

	start := time.Now()
	token := mintSpineToken()

	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, deadline)
		result = o.runOnce(attemptCtx, token, tool, env)
		cancel()

		if result.Success || !result.Retryable || attempt >= maxRetries {
			break
		}
		retries++
		backoff := time.Duration(500*(1<<uint(attempt))) * time.Millisecond
		time.Sleep(backoff)
	}

	durationMS = time.Since(start).Milliseconds()
	return result, retries, durationMS
}

func (o *Orchestrator) runOnce(ctx context.Context, token SpineToken, tool Tool, env Envelope) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Failure(types.ErrInternal, "tool panicked")
		}
	}()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Failure(types.ErrInternal, "tool panicked")
				return
			}
		}()
		done <- tool.Execute(token, env)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return Result{
			Success:   false,
			ErrorCode: types.ErrToolError,
			Message:   "tool execution timed out",
			Retryable: true,
		}
	}
}

func (o *Orchestrator) auditDecision(env Envelope, estimated, final float64, success bool, code types.ErrorCode, reason string) {
	if o.audit == nil {
		return
	}
	o.audit.Log(AuditEntry{
		Timestamp:     time.Now().UTC(),
		Tool:          env.ToolName,
		Domain:        env.Domain,
		Action:        env.Action,
		Caller:        env.Caller,
		Tenant:        env.Tenant,
		Source:        env.Source,
		Risk:          env.RiskLevel,
		EstimatedCost: estimated,
		FinalCost:     final,
		Success:       success,
		ErrorCode:     code,
		Reason:        reason,
	})
}

// InvokeAsync enqueues env and returns immediately with a queued ledger
// row; a separate worker (started via StartWorker) drains the queue and
// runs each job through Invoke's checks, as described on StartWorker.
func (o *Orchestrator) InvokeAsync(ctx context.Context, env Envelope) (executionID string, err error) {
	rec, err := o.ledger.Create(ctx, ledger.Record{
		Status:         ledger.StatusQueued,
		ToolName:       env.ToolName,
		Domain:         env.Domain,
		Action:         env.Action,
		RequestID:      env.RequestID,
		TraceID:        env.TraceID,
		Caller:         env.Caller,
		Tenant:         env.Tenant,
		Source:         env.Source,
		IdempotencyKey: env.IdempotencyKey,
	})
	if err != nil {
		return "", err
	}

	if err := o.queue.Enqueue(ledger.Job{ExecutionID: rec.ExecutionID, Envelope: env}); err != nil {
		cancelled := ledger.StatusCancelled
		msg := "queue full"
		o.ledger.Update(ctx, rec.ExecutionID, ledger.Update{Status: &cancelled, ErrorMessage: &msg})
		return "", err
	}
	return rec.ExecutionID, nil
}

// StartWorker runs the queue's single drain loop on the calling
// goroutine; callers typically invoke it via `go o.StartWorker(ctx)`.
// Each job transitions its ledger row to running, then passes the same
// registration, authorization, budget and circuit-breaker checks as
// Invoke before running the tool directly and folding the result back
// into that existing row, so no second ledger row is created. The worker
// makes no idempotency-cache lookup before running a job; a successful
// result is still stored under its idempotency key.
func (o *Orchestrator) StartWorker(ctx context.Context) {
	o.queue.Run(func(job ledger.Job) {
		env, ok := job.Envelope.(Envelope)
		if !ok {
			return
		}
		o.runQueuedJob(ctx, job.ExecutionID, env)
	})
}

func (o *Orchestrator) runQueuedJob(ctx context.Context, executionID string, env Envelope) {
	running := ledger.StatusRunning
	if _, err := o.ledger.Update(ctx, executionID, ledger.Update{Status: &running}); err != nil {
		return
	}

	tool, ok := o.registry.Lookup(env.ToolName)
	if !ok {
		failed := ledger.StatusFailed
		msg := "tool not registered: " + env.ToolName
		code := string(types.ErrToolError)
		o.ledger.Update(ctx, executionID, ledger.Update{Status: &failed, ErrorCode: &code, ErrorMessage: &msg})
		return
	}

	if denyCode, reason, _ := o.registry.authorize(env); denyCode != "" {
		o.auditDecision(env, 0, 0, false, types.ErrSecurityViolation, reason)
		failed := ledger.StatusFailed
		code := string(types.ErrSecurityViolation)
		o.ledger.Update(ctx, executionID, ledger.Update{Status: &failed, ErrorCode: &code, ErrorMessage: &reason})
		return
	}

	if code, reason := o.budgetGate(env); code != "" {
		failed := ledger.StatusFailed
		codeStr := string(code)
		o.ledger.Update(ctx, executionID, ledger.Update{Status: &failed, ErrorCode: &codeStr, ErrorMessage: &reason})
		return
	}

	if !o.breakers.Allow(env.ToolName) {
		failed := ledger.StatusFailed
		code := string(types.ErrToolError)
		msg := "circuit breaker open"
		o.ledger.Update(ctx, executionID, ledger.Update{Status: &failed, ErrorCode: &code, ErrorMessage: &msg})
		return
	}

	result, retries, durationMS := o.execute(ctx, tool, env)

	finalCost := result.CostSpent
	if finalCost <= 0 {
		finalCost = env.EstimatedCost
	}
	if finalCost > 0 {
		o.economy.Spend(finalCost, env.ToolName, !result.Success)
		o.recordTenantSpend(env.Tenant, finalCost)
	}
	if result.Success {
		result.MemoryWritten = true
		o.breakers.RecordSuccess(env.ToolName)
	} else {
		o.breakers.RecordFailure(env.ToolName)
	}

	status := ledger.StatusCompleted
	if !result.Success {
		status = ledger.StatusFailed
	}
	resultJSON, _ := json.Marshal(result)
	o.ledger.Update(ctx, executionID, ledger.Update{
		Status:       &status,
		DurationMS:   &durationMS,
		Retries:      &retries,
		CostSpent:    &finalCost,
		Result:       strPtr(string(resultJSON)),
		ErrorCode:    strPtr(string(result.ErrorCode)),
		ErrorMessage: strPtr(result.Message),
	})

	o.auditDecision(env, env.EstimatedCost, finalCost, result.Success, result.ErrorCode, result.Message)

	if result.Success && env.IdempotencyKey != "" {
		o.idemp.Put(env.IdempotencyKey, result)
	}
}

// Cancel transitions executionID to cancelled if it is not already
// terminal, per the HTTP surface's cancel endpoint.
func (o *Orchestrator) Cancel(ctx context.Context, executionID string) (ledger.Record, error) {
	cancelled := ledger.StatusCancelled
	return o.ledger.Update(ctx, executionID, ledger.Update{Status: &cancelled})
}

func strPtr(s string) *string { return &s }

// NewExecutionID is a convenience wrapper so callers outside this
// package don't need to import google/uuid directly just to pre-assign
// an execution_id.
func NewExecutionID() string { return uuid.NewString() }
