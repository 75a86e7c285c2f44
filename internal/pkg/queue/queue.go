package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Queue 就绪队列（Redis List）与延迟集合（Redis Sorted Set，按唤醒时间排序）
type Queue struct {
	client     *redis.Client
	queueName  string
	delayedSet string
}

// RunMessage 工作流运行消息
type RunMessage struct {
	RunID          string `json:"run_id"`
	SubscriptionID int64  `json:"subscription_id"`
}

func NewQueue(client *redis.Client, queueName, delayedSet string) *Queue {
	return &Queue{
		client:     client,
		queueName:  queueName,
		delayedSet: delayedSet,
	}
}

// Push 将运行加入就绪队列
func (q *Queue) Push(ctx context.Context, msg *RunMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从队列获取运行（阻塞）
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*RunMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时，无任务
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg RunMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// Length 获取就绪队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

// Schedule 将运行放入延迟集合，到 at 之后才会被移回就绪队列，精度为毫秒。
// 同一运行重复调度只会保留最新的唤醒时间。
func (q *Queue) Schedule(ctx context.Context, msg *RunMessage, at time.Time) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.ZAdd(ctx, q.delayedSet, &redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: string(data),
	}).Err()
}

// PromoteDue 将唤醒时间不晚于 now 的运行移入就绪队列，返回移动数量。
// 通过 ZREM 的返回值抢占成员，多个轮询者并发时每个成员只会被移动一次。
func (q *Queue) PromoteDue(ctx context.Context, now time.Time, limit int64) (int, error) {
	members, err := q.client.ZRangeByScore(ctx, q.delayedSet, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed set: %w", err)
	}

	moved := 0
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.delayedSet, member).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to claim delayed member: %w", err)
		}
		if removed == 0 {
			continue // 已被其他轮询者取走
		}
		if err := q.client.LPush(ctx, q.queueName, member).Err(); err != nil {
			return moved, fmt.Errorf("failed to push due member: %w", err)
		}
		moved++
	}

	return moved, nil
}

// DelayedLength 获取延迟集合大小
func (q *Queue) DelayedLength(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.delayedSet).Result()
}
