// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) *RedisIdempotencyCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisIdempotencyCacheWithClient(client, time.Minute)
}

func TestRedisIdempotencyCacheRoundTrip(t *testing.T) {
	cache := newTestRedisCache(t)

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Put("key-1", Result{Success: true, Message: "cached"})

	result, ok := cache.Get("key-1")
	require.True(t, ok)
	assert.True(t, result.Success)
	assert.Equal(t, "cached", result.Message)
}

func TestRedisIdempotencyCacheFirstWriteWins(t *testing.T) {
	cache := newTestRedisCache(t)

	cache.Put("key-1", Result{Message: "first"})
	cache.Put("key-1", Result{Message: "second"})

	result, ok := cache.Get("key-1")
	require.True(t, ok)
	assert.Equal(t, "first", result.Message)
}
