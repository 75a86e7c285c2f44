package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/internal/model"
	"github.com/qs3c/subtrack_server/internal/pkg/durable"
)

// StepGetSubscription 读取订阅的步骤标签
const StepGetSubscription = "get subscription"

// 终止原因
const (
	AbortNotFound      = "not_found"
	AbortInactive      = "inactive"
	AbortRenewalPassed = "renewal_passed"
)

// ErrSubscriptionNotFound 订阅不存在，工作流据此终止而不是失败
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Snapshot 工作流使用的订阅快照
type Snapshot struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	Frequency     string    `json:"frequency,omitempty"`
	PaymentMethod string    `json:"payment_method"`
	Status        string    `json:"status"`
	StartDate     time.Time `json:"start_date"`
	RenewalDate   time.Time `json:"renewal_date"`
	UserName      string    `json:"user_name"`
	UserEmail     string    `json:"user_email"`
}

// SubscriptionFetcher 按 ID 读取订阅；不存在时返回 ErrSubscriptionNotFound
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, id int64) (*Snapshot, error)
}

// Notification 单个提醒节点的通知内容
type Notification struct {
	RunID        string
	Label        string
	DaysBefore   int
	Subscription *Snapshot
}

// Notifier 发送提醒
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// Outcome 工作流执行结果。挂起时 Status 为空，Subscription 仍会带回供宿主使用。
type Outcome struct {
	Status       string // completed / aborted
	Reason       string
	Notified     []int
	Subscription *Snapshot
}

// fetchResult 读取步骤的记录值。FetchedAt 一并记录，重放时资格判断结果保持不变。
type fetchResult struct {
	Found        bool      `json:"found"`
	Subscription *Snapshot `json:"subscription,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// CheckpointLabel 提醒节点的步骤标签
func CheckpointLabel(daysBefore int) string {
	return fmt.Sprintf("Reminder %d days before", daysBefore)
}

// ReminderWorkflow 续费提醒工作流
type ReminderWorkflow struct {
	fetcher  SubscriptionFetcher
	notifier Notifier
	offsets  []int
	logger   *zap.Logger
}

func NewReminderWorkflow(fetcher SubscriptionFetcher, notifier Notifier, offsets []int, logger *zap.Logger) *ReminderWorkflow {
	return &ReminderWorkflow{
		fetcher:  fetcher,
		notifier: notifier,
		offsets:  offsets,
		logger:   logger,
	}
}

// Run 执行（或从记录恢复）一次提醒工作流。
// 时间未到的休眠以 *durable.SuspendError 返回，此时 Outcome 仍非空；
// 基础设施错误原样返回交由宿主重试。
func (w *ReminderWorkflow) Run(c *durable.Context, subscriptionID int64) (*Outcome, error) {
	fetched, err := durable.Run(c, StepGetSubscription, func(ctx context.Context) (fetchResult, error) {
		sub, err := w.fetcher.FetchSubscription(ctx, subscriptionID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return fetchResult{Found: false, FetchedAt: c.Now()}, nil
		}
		if err != nil {
			return fetchResult{}, err
		}
		return fetchResult{Found: true, Subscription: sub, FetchedAt: c.Now()}, nil
	})
	if err != nil {
		return nil, err
	}

	if reason := eligibility(fetched); reason != "" {
		w.logger.Info("reminder workflow aborted",
			zap.String("run_id", c.RunID()),
			zap.Int64("subscription_id", subscriptionID),
			zap.String("reason", reason),
		)
		return &Outcome{Status: model.RunStatusAborted, Reason: reason, Subscription: fetched.Subscription}, nil
	}

	sub := fetched.Subscription
	outcome := &Outcome{Subscription: sub}

	for _, daysBefore := range w.offsets {
		label := CheckpointLabel(daysBefore)
		fireAt := sub.RenewalDate.AddDate(0, 0, -daysBefore)

		if fireAt.After(c.Now()) {
			if err := c.SleepUntil(label, fireAt); err != nil {
				return outcome, err
			}
		}

		n := &Notification{
			RunID:        c.RunID(),
			Label:        label,
			DaysBefore:   daysBefore,
			Subscription: sub,
		}
		if _, err := durable.Run(c, label, func(ctx context.Context) (bool, error) {
			if err := w.notifier.Notify(ctx, n); err != nil {
				return false, err
			}
			return true, nil
		}); err != nil {
			return outcome, fmt.Errorf("%s: %w", label, err)
		}

		outcome.Notified = append(outcome.Notified, daysBefore)
	}

	outcome.Status = model.RunStatusCompleted
	return outcome, nil
}

func eligibility(f fetchResult) string {
	if !f.Found || f.Subscription == nil {
		return AbortNotFound
	}
	if f.Subscription.Status != model.SubscriptionStatusActive {
		return AbortInactive
	}
	if !f.Subscription.RenewalDate.After(f.FetchedAt) {
		return AbortRenewalPassed
	}
	return ""
}
