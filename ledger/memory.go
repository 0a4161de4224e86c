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

package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryLedger is the non-durable Ledger implementation used by tests
// and by single-instance deployments that accept losing history across
// a restart.
type InMemoryLedger struct {
	mu       sync.RWMutex
	rows     map[string]Record
	byIdemp  map[string]string // idempotency_key -> execution_id
	ordered  []string          // insertion order, for ListRecent
}

// NewInMemoryLedger builds an empty in-memory ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		rows:    make(map[string]Record),
		byIdemp: make(map[string]string),
	}
}

// Create inserts rec, generating an execution_id if absent and defaulting
// status to queued if unset.
func (l *InMemoryLedger) Create(ctx context.Context, rec Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ExecutionID == "" {
		rec.ExecutionID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	l.rows[rec.ExecutionID] = rec
	l.ordered = append(l.ordered, rec.ExecutionID)
	if rec.IdempotencyKey != "" {
		if _, exists := l.byIdemp[rec.IdempotencyKey]; !exists {
			l.byIdemp[rec.IdempotencyKey] = rec.ExecutionID
		}
	}
	return rec, nil
}

// Update applies upd to the row named by executionID, enforcing the
// forward-only status DAG.
func (l *InMemoryLedger) Update(ctx context.Context, executionID string, upd Update) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.rows[executionID]
	if !ok {
		return Record{}, ErrNotFound
	}

	if upd.Status != nil && *upd.Status != rec.Status {
		if rec.Status.terminal() {
			return Record{}, ErrBackwardTransition
		}
		if !forwardTransitions[rec.Status][*upd.Status] {
			return Record{}, ErrBackwardTransition
		}
		rec.Status = *upd.Status
	}
	if upd.DurationMS != nil {
		rec.DurationMS = *upd.DurationMS
	}
	if upd.Retries != nil {
		rec.Retries = *upd.Retries
	}
	if upd.CostSpent != nil {
		rec.CostSpent = *upd.CostSpent
	}
	if upd.Result != nil {
		rec.Result = *upd.Result
	}
	if upd.ErrorCode != nil {
		rec.ErrorCode = *upd.ErrorCode
	}
	if upd.ErrorMessage != nil {
		rec.ErrorMessage = *upd.ErrorMessage
	}
	rec.UpdatedAt = time.Now().UTC()

	l.rows[executionID] = rec
	return rec, nil
}

// Get returns the row named by executionID.
func (l *InMemoryLedger) Get(ctx context.Context, executionID string) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.rows[executionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// GetByIdempotency returns the row first created under key.
func (l *InMemoryLedger) GetByIdempotency(ctx context.Context, key string) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.byIdemp[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec, ok := l.rows[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// ListRecent returns up to limit rows, most recently created first.
func (l *InMemoryLedger) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 || limit > len(l.ordered) {
		limit = len(l.ordered)
	}
	out := make([]Record, 0, limit)
	for i := len(l.ordered) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.rows[l.ordered[i]])
	}
	return out, nil
}
