package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRegistry_Live(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	registry := NewWorkerRegistry(client, "test_workers")
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, registry.Heartbeat(ctx, "gone", now.Add(-time.Minute)))
	require.NoError(t, registry.Heartbeat(ctx, "alive", now.Add(-time.Second)))

	live, err := registry.Live(ctx, now.Add(-15*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"alive"}, live)

	// Expired entries are pruned
	count, err := client.ZCard(ctx, "test_workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// A fresh heartbeat brings a worker back
	require.NoError(t, registry.Heartbeat(ctx, "gone", now))
	live, err = registry.Live(ctx, now.Add(-15*time.Second))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alive", "gone"}, live)
}

func TestWorkerRegistry_Remove(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	registry := NewWorkerRegistry(client, "test_workers")
	now := time.Now()

	require.NoError(t, registry.Heartbeat(ctx, "w1", now))
	require.NoError(t, registry.Remove(ctx, "w1"))

	live, err := registry.Live(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, live)
}
