// services/task_queue.go - Queue of compensating cleanup tasks
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"teamhub/models"

	"github.com/redis/go-redis/v9"
)

const cleanupTaskKey = "teamhub:cleanup_tasks"

// TaskQueue stores cleanup tasks in FIFO order. Pop returns nil, nil when empty.
type TaskQueue interface {
	Push(ctx context.Context, task models.CleanupTask) error
	Pop(ctx context.Context) (*models.CleanupTask, error)
	Len(ctx context.Context) (int64, error)
}

type RedisTaskQueue struct {
	client *redis.Client
	key    string
}

func NewRedisTaskQueue(client *redis.Client) *RedisTaskQueue {
	return &RedisTaskQueue{client: client, key: cleanupTaskKey}
}

func (q *RedisTaskQueue) Push(ctx context.Context, task models.CleanupTask) error {
	b, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, b).Err(); err != nil {
		return fmt.Errorf("push cleanup task: %w", err)
	}
	return nil
}

func (q *RedisTaskQueue) Pop(ctx context.Context) (*models.CleanupTask, error) {
	b, err := q.client.RPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop cleanup task: %w", err)
	}
	var task models.CleanupTask
	if err := json.Unmarshal(b, &task); err != nil {
		return nil, fmt.Errorf("decode cleanup task: %w", err)
	}
	return &task, nil
}

func (q *RedisTaskQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// MemoryTaskQueue is used when Redis is not configured; tasks do not survive a restart.
type MemoryTaskQueue struct {
	mu    sync.Mutex
	tasks []models.CleanupTask
}

func NewMemoryTaskQueue() *MemoryTaskQueue {
	return &MemoryTaskQueue{}
}

func (q *MemoryTaskQueue) Push(_ context.Context, task models.CleanupTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *MemoryTaskQueue) Pop(_ context.Context) (*models.CleanupTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, nil
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return &task, nil
}

func (q *MemoryTaskQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.tasks)), nil
}
