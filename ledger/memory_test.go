// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLedgerCreateAndGet(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()

	rec, err := l.Create(ctx, Record{ToolName: "echo", IdempotencyKey: "key-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ExecutionID)
	assert.Equal(t, StatusQueued, rec.Status)

	got, err := l.Get(ctx, rec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, rec.ExecutionID, got.ExecutionID)

	byIdemp, err := l.GetByIdempotency(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ExecutionID, byIdemp.ExecutionID)

	_, err = l.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryLedgerForwardTransitionsOnly(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()

	rec, err := l.Create(ctx, Record{ToolName: "echo"})
	require.NoError(t, err)

	running := StatusRunning
	rec, err = l.Update(ctx, rec.ExecutionID, Update{Status: &running})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)

	completed := StatusCompleted
	rec, err = l.Update(ctx, rec.ExecutionID, Update{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)

	// A completed row is terminal: no further transition is allowed.
	queued := StatusQueued
	_, err = l.Update(ctx, rec.ExecutionID, Update{Status: &queued})
	assert.ErrorIs(t, err, ErrBackwardTransition)

	failed := StatusFailed
	_, err = l.Update(ctx, rec.ExecutionID, Update{Status: &failed})
	assert.ErrorIs(t, err, ErrBackwardTransition)
}

func TestInMemoryLedgerRejectsSkippingQueued(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()

	rec, err := l.Create(ctx, Record{ToolName: "echo"})
	require.NoError(t, err)

	completed := StatusCompleted
	_, err = l.Update(ctx, rec.ExecutionID, Update{Status: &completed})
	assert.ErrorIs(t, err, ErrBackwardTransition)
}

func TestInMemoryLedgerListRecentMostRecentFirst(t *testing.T) {
	l := NewInMemoryLedger()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		rec, err := l.Create(ctx, Record{ToolName: "echo"})
		require.NoError(t, err)
		ids = append(ids, rec.ExecutionID)
	}

	rows, err := l.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ids[4], rows[0].ExecutionID)
	assert.Equal(t, ids[3], rows[1].ExecutionID)
	assert.Equal(t, ids[2], rows[2].ExecutionID)
}
