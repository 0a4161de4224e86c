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
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dialect picks the SQL placeholder style and driver-specific DDL. The
// ledger is otherwise driver-agnostic: it only ever issues portable
// parameterized statements.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// SQLLedger is the durable Ledger backed by database/sql, grounded on
// the orchestrator's cost-tracking repository's query-construction
// idiom: parameterized statements, sql.Null* scan targets, and a
// substring check on duplicate-key errors rather than driver-specific
// error codes.
type SQLLedger struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLLedger opens db (already configured by the caller with the
// correct driver for dialect) and ensures the orchestrator_executions
// table exists.
func NewSQLLedger(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLLedger, error) {
	l := &SQLLedger{db: db, dialect: dialect}
	if err := l.createTable(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SQLLedger) createTable(ctx context.Context) error {
	autoIncrement := "SERIAL"
	if l.dialect == DialectMySQL {
		autoIncrement = "BIGINT AUTO_INCREMENT"
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS orchestrator_executions (
	seq %s PRIMARY KEY,
	execution_id VARCHAR(64) NOT NULL UNIQUE,
	status VARCHAR(32) NOT NULL,
	tool_name VARCHAR(255) NOT NULL,
	domain VARCHAR(255) NOT NULL,
	action VARCHAR(255) NOT NULL,
	request_id VARCHAR(255),
	trace_id VARCHAR(255),
	caller VARCHAR(255),
	tenant VARCHAR(255),
	source VARCHAR(255),
	idempotency_key VARCHAR(255),
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	retries INT NOT NULL DEFAULT 0,
	cost_spent DOUBLE PRECISION NOT NULL DEFAULT 0,
	result TEXT,
	error_code VARCHAR(64),
	error_message TEXT
)`, autoIncrement)
	if l.dialect == DialectMySQL {
		ddl = strings.ReplaceAll(ddl, "DOUBLE PRECISION", "DOUBLE")
	}
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return err
	}

	indexes := []string{
		"tool_name", "domain", "action", "request_id",
		"idempotency_key", "trace_id", "caller", "tenant", "source",
	}
	for _, col := range indexes {
		idx := fmt.Sprintf("idx_orchestrator_executions_%s", col)
		unique := ""
		if col == "idempotency_key" {
			// Strictly-once enforcement: a unique index rejects a second
			// Create under the same key outright. Postgres and MySQL both
			// treat NULL as distinct under UNIQUE, so rows with no
			// idempotency key (nullString converts "" to NULL) never
			// collide with each other.
			unique = "UNIQUE "
		}
		var stmt string
		if l.dialect == DialectMySQL {
			stmt = fmt.Sprintf("CREATE %sINDEX %s ON orchestrator_executions (%s)", unique, idx, col)
			if _, err := l.db.ExecContext(ctx, stmt); err != nil && !strings.Contains(err.Error(), "Duplicate") {
				return err
			}
			continue
		}
		stmt = fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON orchestrator_executions (%s)", unique, idx, col)
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// isDuplicateKeyError reports whether err is a unique-constraint
// violation, recognized by substring the way createTable already
// matches MySQL's "Duplicate" rather than driver-specific error codes.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func (l *SQLLedger) placeholder(n int) string {
	if l.dialect == DialectMySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// Create inserts rec, generating an execution_id if absent.
func (l *SQLLedger) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.ExecutionID == "" {
		rec.ExecutionID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	query := fmt.Sprintf(`INSERT INTO orchestrator_executions
		(execution_id, status, tool_name, domain, action, request_id, trace_id,
		 caller, tenant, source, idempotency_key, created_at, updated_at,
		 duration_ms, retries, cost_spent, result, error_code, error_message)
		VALUES (%s)`, placeholders(l, 19))

	_, err := l.db.ExecContext(ctx, query,
		rec.ExecutionID, string(rec.Status), rec.ToolName, rec.Domain, rec.Action,
		nullString(rec.RequestID), nullString(rec.TraceID), nullString(rec.Caller),
		nullString(rec.Tenant), nullString(rec.Source), nullString(rec.IdempotencyKey),
		rec.CreatedAt, rec.UpdatedAt, rec.DurationMS, rec.Retries, rec.CostSpent,
		nullString(rec.Result), nullString(rec.ErrorCode), nullString(rec.ErrorMessage),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Record{}, ErrIdempotencyConflict
		}
		return Record{}, err
	}
	return rec, nil
}

func placeholders(l *SQLLedger, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = l.placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

// Update applies upd by field name, enforcing the forward-only status
// DAG exactly as InMemoryLedger does, by reading the current row first.
func (l *SQLLedger) Update(ctx context.Context, executionID string, upd Update) (Record, error) {
	current, err := l.Get(ctx, executionID)
	if err != nil {
		return Record{}, err
	}

	if upd.Status != nil && *upd.Status != current.Status {
		if current.Status.terminal() || !forwardTransitions[current.Status][*upd.Status] {
			return Record{}, ErrBackwardTransition
		}
		current.Status = *upd.Status
	}
	if upd.DurationMS != nil {
		current.DurationMS = *upd.DurationMS
	}
	if upd.Retries != nil {
		current.Retries = *upd.Retries
	}
	if upd.CostSpent != nil {
		current.CostSpent = *upd.CostSpent
	}
	if upd.Result != nil {
		current.Result = *upd.Result
	}
	if upd.ErrorCode != nil {
		current.ErrorCode = *upd.ErrorCode
	}
	if upd.ErrorMessage != nil {
		current.ErrorMessage = *upd.ErrorMessage
	}
	current.UpdatedAt = time.Now().UTC()

	query := fmt.Sprintf(`UPDATE orchestrator_executions SET
		status = %s, updated_at = %s, duration_ms = %s, retries = %s,
		cost_spent = %s, result = %s, error_code = %s, error_message = %s
		WHERE execution_id = %s`,
		l.placeholder(1), l.placeholder(2), l.placeholder(3), l.placeholder(4),
		l.placeholder(5), l.placeholder(6), l.placeholder(7), l.placeholder(8), l.placeholder(9))

	_, err = l.db.ExecContext(ctx, query,
		string(current.Status), current.UpdatedAt, current.DurationMS, current.Retries,
		current.CostSpent, nullString(current.Result), nullString(current.ErrorCode),
		nullString(current.ErrorMessage), executionID,
	)
	if err != nil {
		return Record{}, err
	}
	return current, nil
}

// Get returns the row named by executionID.
func (l *SQLLedger) Get(ctx context.Context, executionID string) (Record, error) {
	query := fmt.Sprintf(`SELECT execution_id, status, tool_name, domain, action,
		request_id, trace_id, caller, tenant, source, idempotency_key,
		created_at, updated_at, duration_ms, retries, cost_spent, result,
		error_code, error_message
		FROM orchestrator_executions WHERE execution_id = %s`, l.placeholder(1))
	row := l.db.QueryRowContext(ctx, query, executionID)
	return scanRecord(row)
}

// GetByIdempotency returns the first row created under key.
func (l *SQLLedger) GetByIdempotency(ctx context.Context, key string) (Record, error) {
	query := fmt.Sprintf(`SELECT execution_id, status, tool_name, domain, action,
		request_id, trace_id, caller, tenant, source, idempotency_key,
		created_at, updated_at, duration_ms, retries, cost_spent, result,
		error_code, error_message
		FROM orchestrator_executions WHERE idempotency_key = %s
		ORDER BY created_at ASC LIMIT 1`, l.placeholder(1))
	row := l.db.QueryRowContext(ctx, query, key)
	return scanRecord(row)
}

// ListRecent returns up to limit rows, most recently created first.
func (l *SQLLedger) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT execution_id, status, tool_name, domain, action,
		request_id, trace_id, caller, tenant, source, idempotency_key,
		created_at, updated_at, duration_ms, retries, cost_spent, result,
		error_code, error_message
		FROM orchestrator_executions ORDER BY created_at DESC LIMIT %s`, l.placeholder(1))
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row *sql.Row) (Record, error) {
	rec, err := scanInto(row)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func scanRecordRows(rows *sql.Rows) (Record, error) {
	return scanInto(rows)
}

func scanInto(s scanner) (Record, error) {
	var rec Record
	var requestID, traceID, caller, tenant, source, idempotencyKey sql.NullString
	var result, errorCode, errorMessage sql.NullString
	var status string

	err := s.Scan(
		&rec.ExecutionID, &status, &rec.ToolName, &rec.Domain, &rec.Action,
		&requestID, &traceID, &caller, &tenant, &source, &idempotencyKey,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.DurationMS, &rec.Retries, &rec.CostSpent,
		&result, &errorCode, &errorMessage,
	)
	if err != nil {
		return Record{}, err
	}

	rec.Status = Status(status)
	rec.RequestID = requestID.String
	rec.TraceID = traceID.String
	rec.Caller = caller.String
	rec.Tenant = tenant.String
	rec.Source = source.String
	rec.IdempotencyKey = idempotencyKey.String
	rec.Result = result.String
	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String
	return rec, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
