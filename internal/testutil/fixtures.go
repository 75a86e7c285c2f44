package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/subtrack_server/internal/model"
)

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := time.Now().UnixNano()
	user := &model.User{
		Name:  fmt.Sprintf("testuser_%d", n%10000),
		Email: fmt.Sprintf("test_%d@example.com", n),
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithName 设置用户名
func WithName(name string) func(*model.User) {
	return func(u *model.User) {
		u.Name = name
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// TestSubscription 创建测试订阅，默认按月计费、30 天后续费
func TestSubscription(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Subscription)) *model.Subscription {
	t.Helper()

	start := time.Now().UTC().Truncate(time.Second)
	sub := &model.Subscription{
		UserID:        userID,
		Name:          fmt.Sprintf("Test Subscription %d", time.Now().UnixNano()%10000),
		Price:         9.99,
		Currency:      "USD",
		Frequency:     model.FrequencyMonthly,
		Category:      "standard",
		PaymentMethod: "credit card",
		Status:        model.SubscriptionStatusActive,
		StartDate:     start,
		RenewalDate:   start.AddDate(0, 0, 30),
	}

	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// WithRenewalDate 设置续费日期
func WithRenewalDate(renewal time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.RenewalDate = renewal
		if !s.StartDate.Before(renewal) {
			s.StartDate = renewal.AddDate(0, 0, -30)
		}
	}
}

// WithStatus 设置订阅状态
func WithStatus(status string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Status = status
	}
}

// TestRun 创建测试工作流运行
func TestRun(t *testing.T, db *gorm.DB, subscriptionID int64, status string) *model.WorkflowRun {
	t.Helper()

	run := &model.WorkflowRun{
		ID:             uuid.NewString(),
		Workflow:       model.WorkflowSubscriptionReminder,
		SubscriptionID: subscriptionID,
		Status:         status,
	}

	if err := db.Create(run).Error; err != nil {
		t.Fatalf("Failed to create test run: %v", err)
	}

	return run
}
