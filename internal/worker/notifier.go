package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/internal/pkg/email"
	"github.com/qs3c/subtrack_server/internal/pkg/pubsub"
)

// Mailer 发送提醒邮件
type Mailer interface {
	SendRenewalReminder(to string, data *email.ReminderData) error
}

// EventPublisher 发布提醒事件
type EventPublisher interface {
	PublishReminder(ctx context.Context, evt *pubsub.ReminderEvent) error
}

// ReminderNotifier 先发邮件，再向用户推送实时事件
type ReminderNotifier struct {
	mailer    Mailer
	publisher EventPublisher
	logger    *zap.Logger
}

func NewReminderNotifier(mailer Mailer, publisher EventPublisher, logger *zap.Logger) *ReminderNotifier {
	return &ReminderNotifier{
		mailer:    mailer,
		publisher: publisher,
		logger:    logger,
	}
}

// Notify 邮件失败返回错误（步骤会被重试）；推送失败只记录日志
func (n *ReminderNotifier) Notify(ctx context.Context, note *Notification) error {
	sub := note.Subscription

	n.logger.Info("triggering reminder",
		zap.String("run_id", note.RunID),
		zap.Int64("subscription_id", sub.ID),
		zap.String("label", note.Label),
	)

	if sub.UserEmail != "" {
		err := n.mailer.SendRenewalReminder(sub.UserEmail, &email.ReminderData{
			UserName:         sub.UserName,
			SubscriptionName: sub.Name,
			Price:            sub.Price,
			Currency:         sub.Currency,
			Frequency:        sub.Frequency,
			PaymentMethod:    sub.PaymentMethod,
			RenewalDate:      sub.RenewalDate,
			DaysBefore:       note.DaysBefore,
		})
		if err != nil {
			return fmt.Errorf("failed to send reminder email: %w", err)
		}
	} else {
		n.logger.Warn("subscription owner has no email, skipping mail",
			zap.Int64("subscription_id", sub.ID),
		)
	}

	if n.publisher != nil {
		renewal := sub.RenewalDate
		if err := n.publisher.PublishReminder(ctx, &pubsub.ReminderEvent{
			Event:          pubsub.EventNotified,
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			RunID:          note.RunID,
			DaysBefore:     note.DaysBefore,
			RenewalDate:    &renewal,
			Message:        note.Label,
		}); err != nil {
			n.logger.Warn("failed to publish reminder event", zap.Error(err))
		}
	}

	return nil
}
