package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/subtrack_server/config"
	"github.com/qs3c/subtrack_server/internal/model"
	"github.com/qs3c/subtrack_server/internal/model/dto"
	"github.com/qs3c/subtrack_server/internal/pkg/renewal"
	"github.com/qs3c/subtrack_server/internal/repository"
)

// ReminderCallbackPath 提醒工作流触发端点
const ReminderCallbackPath = "/api/v1/workflows/subscription/reminder"

const defaultCurrency = "INR"

var (
	ErrSubscriptionNotFound = errors.New("订阅不存在")
	ErrNotOwner             = errors.New("无权访问该订阅")
	ErrStartDateInFuture    = errors.New("开始日期不能晚于当前时间")
)

// ReminderTrigger 启动提醒工作流，并终止被取代的旧运行
type ReminderTrigger interface {
	Trigger(ctx context.Context, subscriptionID int64, callbackURL string) (string, error)
	Supersede(ctx context.Context, subscriptionID int64) (int, error)
}

type SubscriptionService struct {
	subRepo  *repository.SubscriptionRepository
	userRepo *repository.UserRepository
	trigger  ReminderTrigger
	cfg      *config.Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewSubscriptionService(
	subRepo *repository.SubscriptionRepository,
	userRepo *repository.UserRepository,
	trigger ReminderTrigger,
	cfg *config.Config,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subRepo:  subRepo,
		userRepo: userRepo,
		trigger:  trigger,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// CallbackURL 提醒工作流回调地址
func (s *SubscriptionService) CallbackURL() string {
	return strings.TrimRight(s.cfg.Server.PublicURL, "/") + ReminderCallbackPath
}

// Create 创建订阅并启动提醒工作流。
// 订阅写入后触发失败只记录日志，响应中 WorkflowRunID 为空。
func (s *SubscriptionService) Create(ctx context.Context, userID int64, req *dto.CreateSubscriptionRequest) (*dto.CreateSubscriptionResponse, error) {
	if _, err := s.userRepo.GetByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if req.Price == nil {
		return nil, &renewal.ValidationError{Field: "price", Message: "price is required"}
	}

	now := s.now()
	if req.StartDate.After(now) {
		return nil, ErrStartDateInFuture
	}

	result, err := renewal.Compute(renewal.Input{
		StartDate:   req.StartDate,
		Frequency:   req.Frequency,
		RenewalDate: req.RenewalDate,
		Status:      req.Status,
	}, now)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	sub := &model.Subscription{
		UserID:        userID,
		Name:          strings.TrimSpace(req.Name),
		Price:         *req.Price,
		Currency:      currency,
		Frequency:     req.Frequency,
		Category:      req.Category,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Status:        result.Status,
		StartDate:     req.StartDate,
		RenewalDate:   result.RenewalDate,
	}
	if err := s.subRepo.Create(sub); err != nil {
		return nil, err
	}

	return &dto.CreateSubscriptionResponse{
		Subscription:  sub,
		WorkflowRunID: s.startReminder(ctx, sub.ID),
	}, nil
}

// startReminder 为已写入的订阅启动提醒运行，失败时记录日志并返回空 ID
func (s *SubscriptionService) startReminder(ctx context.Context, subscriptionID int64) string {
	runID, err := s.trigger.Trigger(ctx, subscriptionID, s.CallbackURL())
	if err != nil {
		s.logger.Error("failed to trigger reminder workflow",
			zap.Int64("subscription_id", subscriptionID),
			zap.Error(err),
		)
		return ""
	}
	return runID
}

// Get 获取订阅详情，仅限所有者
func (s *SubscriptionService) Get(userID, id int64) (*model.Subscription, error) {
	sub, err := s.subRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	if sub.UserID != userID {
		return nil, ErrNotOwner
	}

	return sub, nil
}

// Update 更新订阅，每次写入都重新计算续费日期与状态。
// 续费日期变化时终止旧的提醒运行，订阅仍为 active 则启动新的运行。
func (s *SubscriptionService) Update(ctx context.Context, userID, id int64, req *dto.UpdateSubscriptionRequest) (*dto.UpdateSubscriptionResponse, error) {
	sub, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	previousRenewal := sub.RenewalDate

	if req.StartDate != nil {
		if req.StartDate.After(now) {
			return nil, ErrStartDateInFuture
		}
		sub.StartDate = *req.StartDate
	}
	if req.Frequency != nil {
		sub.Frequency = *req.Frequency
	}

	// 未显式给出续费日期时，只有开始日期或周期变化才重新推算
	var explicit *time.Time
	switch {
	case req.RenewalDate != nil:
		explicit = req.RenewalDate
	case req.StartDate == nil && req.Frequency == nil:
		explicit = &previousRenewal
	}

	status := sub.Status
	if req.Status != nil {
		status = *req.Status
	} else if status == model.SubscriptionStatusExpired {
		status = ""
	}

	result, err := renewal.Compute(renewal.Input{
		StartDate:   sub.StartDate,
		Frequency:   sub.Frequency,
		RenewalDate: explicit,
		Status:      status,
	}, now)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		sub.Name = strings.TrimSpace(*req.Name)
	}
	if req.Price != nil {
		sub.Price = *req.Price
	}
	if req.Currency != nil {
		sub.Currency = *req.Currency
	}
	if req.Category != nil {
		sub.Category = *req.Category
	}
	if req.PaymentMethod != nil {
		sub.PaymentMethod = strings.TrimSpace(*req.PaymentMethod)
	}
	sub.RenewalDate = result.RenewalDate
	sub.Status = result.Status

	if err := s.subRepo.Update(sub); err != nil {
		return nil, err
	}

	resp := &dto.UpdateSubscriptionResponse{Subscription: sub}
	if sub.RenewalDate.Equal(previousRenewal) {
		return resp, nil
	}

	// 旧运行按旧续费日期提醒，不能与新运行并存
	if _, err := s.trigger.Supersede(ctx, sub.ID); err != nil {
		s.logger.Error("failed to supersede reminder runs",
			zap.Int64("subscription_id", sub.ID),
			zap.Error(err),
		)
	}
	if sub.Status == model.SubscriptionStatusActive {
		resp.WorkflowRunID = s.startReminder(ctx, sub.ID)
	}

	return resp, nil
}

// ListByUser 分页获取用户的订阅，仅限本人
func (s *SubscriptionService) ListByUser(requesterID, ownerID int64, page, pageSize int) ([]*model.Subscription, int64, error) {
	if requesterID != ownerID {
		return nil, 0, ErrNotOwner
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	return s.subRepo.ListByUserID(ownerID, page, pageSize)
}
