package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/config"
)

// promoteBatch 每次轮询最多移动的运行数
const promoteBatch = 500

const defaultHeartbeatInterval = 5 * time.Second

// DuePromoter 将到期的休眠运行移回就绪队列
type DuePromoter interface {
	PromoteDue(ctx context.Context, now time.Time, limit int64) (int, error)
}

// SubscriptionExpirer 批量标记过期订阅
type SubscriptionExpirer interface {
	ExpireDue(now time.Time) (int64, error)
}

// RunReclaimer 登记 worker 心跳并回收无人推进的运行
type RunReclaimer interface {
	Heartbeat(ctx context.Context) error
	Reclaim(ctx context.Context) (int, error)
}

type Service struct {
	cron          *cron.Cron
	promoter      DuePromoter
	expirer       SubscriptionExpirer
	reclaimer     RunReclaimer
	pollSpec      string
	expirySpec    string
	heartbeatSpec string
	logger        *zap.Logger
	now           func() time.Time
}

func NewService(promoter DuePromoter, expirer SubscriptionExpirer, reclaimer RunReclaimer, cfg *config.WorkflowConfig, logger *zap.Logger) *Service {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	return &Service{
		cron:          c,
		promoter:      promoter,
		expirer:       expirer,
		reclaimer:     reclaimer,
		pollSpec:      fmt.Sprintf("@every %s", cfg.PollInterval),
		expirySpec:    cfg.ExpirySweep,
		heartbeatSpec: fmt.Sprintf("@every %s", heartbeat),
		logger:        logger,
		now:           time.Now,
	}
}

// Start 注册唤醒轮询与过期清扫任务并启动调度器
func (s *Service) Start() error {
	if s.promoter != nil {
		if _, err := s.cron.AddFunc(s.pollSpec, s.promote); err != nil {
			return fmt.Errorf("failed to schedule wake poller: %w", err)
		}
		s.logger.Info("scheduled wake poller", zap.String("schedule", s.pollSpec))
	}

	if s.expirer != nil && s.expirySpec != "" {
		if _, err := s.cron.AddFunc(s.expirySpec, s.expire); err != nil {
			return fmt.Errorf("failed to schedule expiry sweep: %w", err)
		}
		s.logger.Info("scheduled expiry sweep", zap.String("schedule", s.expirySpec))
	}

	if s.reclaimer != nil {
		if _, err := s.cron.AddFunc(s.heartbeatSpec, s.reclaim); err != nil {
			return fmt.Errorf("failed to schedule heartbeat: %w", err)
		}
		s.logger.Info("scheduled heartbeat and reclaim", zap.String("schedule", s.heartbeatSpec))
	}

	s.cron.Start()
	return nil
}

// Stop 停止调度器，返回的 context 在运行中的任务结束后关闭
func (s *Service) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Service) promote() {
	if _, err := s.PromoteNow(context.Background()); err != nil {
		s.logger.Error("wake poller failed", zap.Error(err))
	}
}

func (s *Service) expire() {
	if _, err := s.ExpireNow(); err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
	}
}

func (s *Service) reclaim() {
	if _, err := s.ReclaimNow(context.Background()); err != nil {
		s.logger.Error("reclaim failed", zap.Error(err))
	}
}

// ReclaimNow 登记心跳后回收一次无人推进的运行。心跳失败时不回收，
// 否则本进程可能被其他 worker 判定为已退出
func (s *Service) ReclaimNow(ctx context.Context) (int, error) {
	if err := s.reclaimer.Heartbeat(ctx); err != nil {
		return 0, fmt.Errorf("heartbeat: %w", err)
	}
	return s.reclaimer.Reclaim(ctx)
}

// PromoteNow 立即执行一次唤醒轮询
func (s *Service) PromoteNow(ctx context.Context) (int, error) {
	moved, err := s.promoter.PromoteDue(ctx, s.now(), promoteBatch)
	if err != nil {
		return moved, err
	}
	if moved > 0 {
		s.logger.Info("woke sleeping runs", zap.Int("count", moved))
	}
	return moved, nil
}

// ExpireNow 立即执行一次过期清扫
func (s *Service) ExpireNow() (int64, error) {
	affected, err := s.expirer.ExpireDue(s.now())
	if err != nil {
		return affected, err
	}
	if affected > 0 {
		s.logger.Info("expired subscriptions", zap.Int64("count", affected))
	}
	return affected, nil
}
