package services

import (
	"context"
	"os"
	"testing"
	"teamhub/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseTaskQueue(t *testing.T, q TaskQueue) {
	ctx := context.Background()

	task, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Nil(t, task)

	require.NoError(t, q.Push(ctx, models.CleanupTask{Kind: models.CleanupDeleteRequest, RequestID: "r1"}))
	require.NoError(t, q.Push(ctx, models.CleanupTask{Kind: models.CleanupReconcileMembership, TeamID: "t1", UserID: "u1"}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	first, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "r1", first.RequestID)

	second, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, models.CleanupReconcileMembership, second.Kind)
	assert.Equal(t, "u1", second.UserID)

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryTaskQueueFIFO(t *testing.T) {
	exerciseTaskQueue(t, NewMemoryTaskQueue())
}

func TestRedisTaskQueueFIFO(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	q := NewRedisTaskQueue(client)
	q.key = cleanupTaskKey + ":test:" + t.Name()
	require.NoError(t, client.Del(context.Background(), q.key).Err())

	exerciseTaskQueue(t, q)
}
