package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// WorkerRegistry 记录 worker 心跳（Redis Sorted Set，按最近心跳时间排序）
type WorkerRegistry struct {
	client *redis.Client
	key    string
}

func NewWorkerRegistry(client *redis.Client, key string) *WorkerRegistry {
	return &WorkerRegistry{client: client, key: key}
}

// Heartbeat 记录 worker 在 now 仍存活
func (r *WorkerRegistry) Heartbeat(ctx context.Context, workerID string, now time.Time) error {
	return r.client.ZAdd(ctx, r.key, &redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: workerID,
	}).Err()
}

// Live 返回 since 之后有过心跳的 worker，并清理更早的记录
func (r *WorkerRegistry) Live(ctx context.Context, since time.Time) ([]string, error) {
	cutoff := strconv.FormatInt(since.UnixMilli(), 10)

	if err := r.client.ZRemRangeByScore(ctx, r.key, "-inf", "("+cutoff).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune workers: %w", err)
	}

	ids, err := r.client.ZRangeByScore(ctx, r.key, &redis.ZRangeBy{
		Min: cutoff,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	return ids, nil
}

// Remove 注销 worker，正常退出时调用
func (r *WorkerRegistry) Remove(ctx context.Context, workerID string) error {
	return r.client.ZRem(ctx, r.key, workerID).Err()
}
