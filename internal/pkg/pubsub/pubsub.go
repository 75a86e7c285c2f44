package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelReminderEvents = "subscription_reminder_events"
)

// 提醒事件类型
const (
	EventSleeping  = "sleeping"
	EventNotified  = "notified"
	EventCompleted = "completed"
	EventAborted   = "aborted"
	EventFailed    = "failed"
)

// 事件对应的默认消息
var EventMessages = map[string]string{
	EventSleeping:  "等待下一个提醒节点",
	EventNotified:  "续费提醒已发送",
	EventCompleted: "全部提醒已发送",
	EventAborted:   "提醒流程已终止",
	EventFailed:    "提醒流程执行失败",
}

// ReminderEvent 提醒工作流事件
type ReminderEvent struct {
	Type           string     `json:"type"`
	Event          string     `json:"event"`
	UserID         int64      `json:"user_id"`
	SubscriptionID int64      `json:"subscription_id"`
	RunID          string     `json:"run_id"`
	DaysBefore     int        `json:"days_before,omitempty"`
	RenewalDate    *time.Time `json:"renewal_date,omitempty"`
	WakeAt         *time.Time `json:"wake_at,omitempty"`
	Message        string     `json:"message,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishReminder 发布提醒事件
func (p *Publisher) PublishReminder(ctx context.Context, evt *ReminderEvent) error {
	evt.Type = "subscription_reminder"

	if evt.Message == "" {
		if message, ok := EventMessages[evt.Event]; ok {
			evt.Message = message
		}
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder event: %w", err)
	}

	return p.client.Publish(ctx, ChannelReminderEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅提醒事件，阻塞直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ReminderEvent)) error {
	pubsub := s.client.Subscribe(ctx, ChannelReminderEvents)
	defer pubsub.Close()

	// 等待订阅确认
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var evt ReminderEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue // 忽略解析错误
			}

			handler(&evt)
		}
	}
}
