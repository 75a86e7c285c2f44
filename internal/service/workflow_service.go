package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/subtrack_server/internal/model"
	"github.com/qs3c/subtrack_server/internal/model/dto"
	"github.com/qs3c/subtrack_server/internal/pkg/queue"
	"github.com/qs3c/subtrack_server/internal/repository"
)

var (
	ErrRunNotFound     = errors.New("工作流运行不存在")
	ErrRunNotResumable = errors.New("当前状态的运行不能恢复")
)

// RunQueue 就绪队列
type RunQueue interface {
	Push(ctx context.Context, msg *queue.RunMessage) error
}

type WorkflowService struct {
	runRepo  *repository.RunRepository
	stepRepo *repository.StepRepository
	subRepo  *repository.SubscriptionRepository
	queue    RunQueue
	logger   *zap.Logger
	now      func() time.Time
}

func NewWorkflowService(
	runRepo *repository.RunRepository,
	stepRepo *repository.StepRepository,
	subRepo *repository.SubscriptionRepository,
	queue RunQueue,
	logger *zap.Logger,
) *WorkflowService {
	return &WorkflowService{
		runRepo:  runRepo,
		stepRepo: stepRepo,
		subRepo:  subRepo,
		queue:    queue,
		logger:   logger,
		now:      time.Now,
	}
}

// Trigger 为订阅创建一次提醒运行并放入就绪队列。
// 入队失败时运行保持 pending，worker 启动恢复时会重新入队。
func (s *WorkflowService) Trigger(ctx context.Context, subscriptionID int64, callbackURL string) (string, error) {
	if _, err := s.subRepo.GetByID(subscriptionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrSubscriptionNotFound
		}
		return "", err
	}

	run := &model.WorkflowRun{
		ID:             uuid.NewString(),
		Workflow:       model.WorkflowSubscriptionReminder,
		SubscriptionID: subscriptionID,
		CallbackURL:    callbackURL,
		Status:         model.RunStatusPending,
	}
	if err := s.runRepo.Create(run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	if err := s.queue.Push(ctx, &queue.RunMessage{RunID: run.ID, SubscriptionID: subscriptionID}); err != nil {
		s.logger.Warn("failed to enqueue run, left for recovery",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
		return run.ID, nil
	}

	s.logger.Info("reminder workflow triggered",
		zap.String("run_id", run.ID),
		zap.Int64("subscription_id", subscriptionID),
	)
	return run.ID, nil
}

// Supersede 终止订阅下所有未结束的运行，原因记为 superseded，返回终止数量。
// running 中的运行由 worker 写回时发现已失去持有，结果会被丢弃。
func (s *WorkflowService) Supersede(ctx context.Context, subscriptionID int64) (int, error) {
	runs, err := s.runRepo.ListBySubscriptionID(subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}

	from := []string{model.RunStatusPending, model.RunStatusSleeping, model.RunStatusRunning}
	now := s.now()
	aborted := 0
	for _, run := range runs {
		if run.IsTerminal() {
			continue
		}
		ok, err := s.runRepo.UpdateStatus(run.ID, from, model.RunStatusAborted, model.RunAbortSuperseded, now)
		if err != nil {
			return aborted, fmt.Errorf("failed to abort run %s: %w", run.ID, err)
		}
		if ok {
			aborted++
			s.logger.Info("run superseded",
				zap.String("run_id", run.ID),
				zap.Int64("subscription_id", subscriptionID),
				zap.String("previous_status", run.Status),
			)
		}
	}
	return aborted, nil
}

// GetRun 获取运行状态及已记录的步骤
func (s *WorkflowService) GetRun(runID string) (*dto.RunDetail, error) {
	run, err := s.runRepo.GetByID(runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	steps, err := s.stepRepo.ListByRunID(runID)
	if err != nil {
		return nil, err
	}

	return &dto.RunDetail{Run: run, Steps: steps}, nil
}

// Resume 以同一运行 ID 重新投递。
// 已完成的步骤不会重复执行，未到期的休眠会再次挂起。
func (s *WorkflowService) Resume(ctx context.Context, runID string) (*model.WorkflowRun, error) {
	run, err := s.runRepo.GetByID(runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	switch run.Status {
	case model.RunStatusFailed:
		run.Status = model.RunStatusPending
		run.Attempts = 0
		run.ErrorMessage = ""
		run.CompletedAt = nil
		run.WakeAt = nil
		if err := s.runRepo.Update(run); err != nil {
			return nil, err
		}
	case model.RunStatusPending, model.RunStatusSleeping:
	default:
		return nil, ErrRunNotResumable
	}

	if err := s.queue.Push(ctx, &queue.RunMessage{RunID: run.ID, SubscriptionID: run.SubscriptionID}); err != nil {
		return nil, fmt.Errorf("failed to enqueue run: %w", err)
	}

	s.logger.Info("run resumed", zap.String("run_id", run.ID), zap.String("status", run.Status))
	return run, nil
}
