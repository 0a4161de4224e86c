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

// Package ledger is the durable record of every invocation, with
// idempotency lookup and the in-process async queue that fronts it.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Status is a node in the execution record's DAG. Transitions only ever
// move forward: queued -> running -> {completed, failed, cancelled}.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// terminal reports whether s is one a row may no longer leave.
func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// forwardTransitions enumerates, for each status, the statuses a row is
// allowed to move to next. No entry means no outgoing transition.
var forwardTransitions = map[Status]map[Status]bool{
	StatusQueued:  {StatusRunning: true, StatusCancelled: true},
	StatusRunning: {StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
}

// ErrBackwardTransition is returned when an update would move a row
// anywhere other than forward through the DAG.
var ErrBackwardTransition = errors.New("ledger: backward or invalid status transition")

// ErrNotFound is returned by Get/GetByIdempotency when no row matches.
var ErrNotFound = errors.New("ledger: execution record not found")

// ErrIdempotencyConflict is returned by Create when the ledger's unique
// index on idempotency_key rejects a row because another Create already
// holds that key — the strictly-once backstop behind the in-process and
// Redis idempotency caches.
var ErrIdempotencyConflict = errors.New("ledger: idempotency key already in flight")

// Record is one row of the execution ledger — the durable counterpart
// of an Envelope plus its outcome.
type Record struct {
	ExecutionID    string
	Status         Status
	ToolName       string
	Domain         string
	Action         string
	RequestID      string
	TraceID        string
	Caller         string
	Tenant         string
	Source         string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DurationMS     int64
	Retries        int
	CostSpent      float64
	Result         string // serialized Result, opaque to the ledger
	ErrorCode      string
	ErrorMessage   string
}

// Update is a sparse set of field changes applied by Update. A nil
// pointer field means "leave unchanged".
type Update struct {
	Status       *Status
	DurationMS   *int64
	Retries      *int
	CostSpent    *float64
	Result       *string
	ErrorCode    *string
	ErrorMessage *string
}

// Ledger is the durable execution record store. InMemoryLedger and
// SQLLedger both satisfy it.
type Ledger interface {
	Create(ctx context.Context, rec Record) (Record, error)
	Update(ctx context.Context, executionID string, upd Update) (Record, error)
	Get(ctx context.Context, executionID string) (Record, error)
	GetByIdempotency(ctx context.Context, key string) (Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}
