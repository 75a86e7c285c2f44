package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/config"
	"github.com/qs3c/subtrack_server/internal/model"
	"github.com/qs3c/subtrack_server/internal/pkg/durable"
	"github.com/qs3c/subtrack_server/internal/pkg/pubsub"
	"github.com/qs3c/subtrack_server/internal/pkg/queue"
	"github.com/qs3c/subtrack_server/internal/repository"
)

// recoverBatch 启动恢复时一次最多重新入队的运行数
const recoverBatch = 1000

// defaultHeartbeatInterval 未配置心跳间隔时使用
const defaultHeartbeatInterval = 5 * time.Second

// missedHeartbeats 连续错过该数量的心跳后视为 worker 已退出
const missedHeartbeats = 3

// RunScheduler 就绪队列与延迟集合
type RunScheduler interface {
	Push(ctx context.Context, msg *queue.RunMessage) error
	Schedule(ctx context.Context, msg *queue.RunMessage, at time.Time) error
}

// WorkerRegistry 存活 worker 的心跳记录
type WorkerRegistry interface {
	Heartbeat(ctx context.Context, workerID string, now time.Time) error
	Live(ctx context.Context, since time.Time) ([]string, error)
	Remove(ctx context.Context, workerID string) error
}

// Processor 工作流运行处理器
//
// 每个 Processor 启动时生成唯一的 owner 令牌，抢占的运行都记在该令牌下。
// 令牌不再出现在心跳记录中时，其持有的 running 运行会被回收重新入队。
type Processor struct {
	runRepo   *repository.RunRepository
	steps     durable.StepStore
	workflow  *ReminderWorkflow
	scheduler RunScheduler
	publisher EventPublisher
	workers   WorkerRegistry
	cfg       *config.WorkflowConfig
	logger    *zap.Logger
	owner     string
	now       func() time.Time
}

// NewProcessor 创建运行处理器
func NewProcessor(
	runRepo *repository.RunRepository,
	steps durable.StepStore,
	workflow *ReminderWorkflow,
	scheduler RunScheduler,
	publisher EventPublisher,
	workers WorkerRegistry,
	cfg *config.WorkflowConfig,
	logger *zap.Logger,
) *Processor {
	owner := uuid.NewString()
	return &Processor{
		runRepo:   runRepo,
		steps:     steps,
		workflow:  workflow,
		scheduler: scheduler,
		publisher: publisher,
		workers:   workers,
		cfg:       cfg,
		logger:    logger.With(zap.String("owner", owner)),
		owner:     owner,
		now:       time.Now,
	}
}

// Owner 返回本进程的持有者令牌
func (p *Processor) Owner() string {
	return p.owner
}

// Process 执行一次运行，直到完成、终止、挂起或出错
func (p *Processor) Process(ctx context.Context, msg *queue.RunMessage) error {
	log := p.logger.With(zap.String("run_id", msg.RunID), zap.Int64("subscription_id", msg.SubscriptionID))

	claimed, err := p.runRepo.Claim(msg.RunID, p.owner, p.now())
	if err != nil {
		return fmt.Errorf("failed to claim run: %w", err)
	}
	if !claimed {
		// 已结束、正在被其他 worker 执行，或运行不存在
		log.Debug("run not claimable, skipping")
		return nil
	}

	run, err := p.runRepo.GetByID(msg.RunID)
	if err != nil {
		// 放回 pending，避免运行停留在 running
		if _, releaseErr := p.runRepo.Release(msg.RunID, p.owner); releaseErr != nil {
			log.Error("failed to release run", zap.Error(releaseErr))
		}
		return fmt.Errorf("failed to get run: %w", err)
	}

	dc := durable.New(ctx, run.ID, p.steps,
		durable.WithClock(p.now),
		durable.WithLogger(log),
		durable.WithStepHook(func(label string) {
			run.CurrentStep = label
			if err := p.runRepo.Touch(run.ID, p.owner, p.now()); err != nil {
				log.Warn("failed to touch run", zap.String("label", label), zap.Error(err))
			}
		}),
	)

	outcome, err := p.workflow.Run(dc, run.SubscriptionID)

	var userID int64
	if outcome != nil && outcome.Subscription != nil {
		userID = outcome.Subscription.UserID
	}

	if suspend, ok := durable.AsSuspend(err); ok {
		return p.suspend(ctx, run, userID, suspend, log)
	}
	if err != nil {
		return p.fail(ctx, run, userID, err, log)
	}
	return p.finish(ctx, run, userID, outcome, log)
}

func (p *Processor) suspend(ctx context.Context, run *model.WorkflowRun, userID int64, s *durable.SuspendError, log *zap.Logger) error {
	wakeAt := s.WakeAt
	run.Status = model.RunStatusSleeping
	run.CurrentStep = s.Label
	run.WakeAt = &wakeAt
	run.Attempts = 0
	run.ErrorMessage = ""
	if saved, err := p.save(run, log); err != nil || !saved {
		return err
	}

	if err := p.scheduler.Schedule(ctx, &queue.RunMessage{RunID: run.ID, SubscriptionID: run.SubscriptionID}, wakeAt); err != nil {
		return fmt.Errorf("failed to schedule wake-up: %w", err)
	}

	log.Info("run sleeping", zap.String("label", s.Label), zap.Time("wake_at", wakeAt))
	p.publish(ctx, &pubsub.ReminderEvent{
		Event:          pubsub.EventSleeping,
		UserID:         userID,
		SubscriptionID: run.SubscriptionID,
		RunID:          run.ID,
		WakeAt:         &wakeAt,
		Message:        s.Label,
	})
	return nil
}

func (p *Processor) fail(ctx context.Context, run *model.WorkflowRun, userID int64, cause error, log *zap.Logger) error {
	now := p.now()
	run.Attempts++
	run.ErrorMessage = cause.Error()

	if p.cfg.MaxAttempts > 0 && run.Attempts >= p.cfg.MaxAttempts {
		run.Status = model.RunStatusFailed
		run.WakeAt = nil
		run.CompletedAt = &now
		if saved, err := p.save(run, log); err != nil || !saved {
			return err
		}

		log.Error("run failed", zap.Int("attempts", run.Attempts), zap.Error(cause))
		p.publish(ctx, &pubsub.ReminderEvent{
			Event:          pubsub.EventFailed,
			UserID:         userID,
			SubscriptionID: run.SubscriptionID,
			RunID:          run.ID,
			Reason:         cause.Error(),
		})
		return cause
	}

	retryAt := now.Add(p.cfg.RetryDelay)
	run.Status = model.RunStatusPending
	run.WakeAt = &retryAt
	if saved, err := p.save(run, log); err != nil || !saved {
		return err
	}
	if err := p.scheduler.Schedule(ctx, &queue.RunMessage{RunID: run.ID, SubscriptionID: run.SubscriptionID}, retryAt); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	log.Warn("run attempt failed, retry scheduled",
		zap.Int("attempts", run.Attempts),
		zap.Time("retry_at", retryAt),
		zap.Error(cause),
	)
	return cause
}

func (p *Processor) finish(ctx context.Context, run *model.WorkflowRun, userID int64, outcome *Outcome, log *zap.Logger) error {
	now := p.now()
	run.Status = outcome.Status
	run.AbortReason = outcome.Reason
	run.WakeAt = nil
	run.ErrorMessage = ""
	run.CompletedAt = &now
	if saved, err := p.save(run, log); err != nil || !saved {
		return err
	}

	event := pubsub.EventCompleted
	if outcome.Status == model.RunStatusAborted {
		event = pubsub.EventAborted
	}

	log.Info("run finished", zap.String("status", outcome.Status), zap.String("reason", outcome.Reason))
	p.publish(ctx, &pubsub.ReminderEvent{
		Event:          event,
		UserID:         userID,
		SubscriptionID: run.SubscriptionID,
		RunID:          run.ID,
		Reason:         outcome.Reason,
	})
	return nil
}

// save 以本进程身份写回运行并释放持有。
// 运行已被回收或取代时返回 false，调用方不再调度或发布事件。
func (p *Processor) save(run *model.WorkflowRun, log *zap.Logger) (bool, error) {
	run.Owner = ""
	saved, err := p.runRepo.SaveOwned(run, p.owner)
	if err != nil {
		return false, fmt.Errorf("failed to update run: %w", err)
	}
	if !saved {
		log.Warn("run ownership lost, discarding outcome", zap.String("status", run.Status))
	}
	return saved, nil
}

func (p *Processor) publish(ctx context.Context, evt *pubsub.ReminderEvent) {
	if p.publisher == nil || evt.UserID == 0 {
		return
	}
	if err := p.publisher.PublishReminder(ctx, evt); err != nil {
		p.logger.Warn("failed to publish run event", zap.String("run_id", evt.RunID), zap.Error(err))
	}
}

// Heartbeat 记录本进程仍存活
func (p *Processor) Heartbeat(ctx context.Context) error {
	if p.workers == nil {
		return nil
	}
	return p.workers.Heartbeat(ctx, p.owner, p.now())
}

// Retire 注销心跳，正常退出时调用。其余 worker 随后即可回收本进程遗留的运行
func (p *Processor) Retire(ctx context.Context) error {
	if p.workers == nil {
		return nil
	}
	return p.workers.Remove(ctx, p.owner)
}

// liveOwners 返回仍存活的持有者令牌，本进程总在其中
func (p *Processor) liveOwners(ctx context.Context, now time.Time) ([]string, error) {
	if p.workers == nil {
		return []string{p.owner}, nil
	}

	interval := p.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	live, err := p.workers.Live(ctx, now.Add(-missedHeartbeats*interval))
	if err != nil {
		return nil, fmt.Errorf("failed to list live workers: %w", err)
	}
	for _, id := range live {
		if id == p.owner {
			return live, nil
		}
	}
	return append(live, p.owner), nil
}

// releaseOrphans 将无人推进的 running 运行放回 pending，返回成功放回的运行。
// 持有者已停止心跳，或运行超过 StaleAfter 没有进展，都视为无人推进。
func (p *Processor) releaseOrphans(ctx context.Context) ([]*model.WorkflowRun, error) {
	now := p.now()

	live, err := p.liveOwners(ctx, now)
	if err != nil {
		return nil, err
	}

	var idleBefore time.Time
	if p.cfg.StaleAfter > 0 {
		idleBefore = now.Add(-p.cfg.StaleAfter)
	}

	runs, err := p.runRepo.ListOrphaned(live, idleBefore, recoverBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned runs: %w", err)
	}

	released := make([]*model.WorkflowRun, 0, len(runs))
	for _, run := range runs {
		ok, err := p.runRepo.Release(run.ID, run.Owner)
		if err != nil {
			return released, fmt.Errorf("failed to release run %s: %w", run.ID, err)
		}
		if !ok {
			// 期间已被持有者写回
			continue
		}
		p.logger.Warn("released orphaned run",
			zap.String("run_id", run.ID),
			zap.String("previous_owner", run.Owner),
			zap.Time("updated_at", run.UpdatedAt),
		)
		released = append(released, run)
	}
	return released, nil
}

// Reclaim 回收无人推进的 running 运行并重新入队，返回回收数量，由定时任务周期调用
func (p *Processor) Reclaim(ctx context.Context) (int, error) {
	runs, err := p.releaseOrphans(ctx)
	if err != nil {
		return 0, err
	}
	for i, run := range runs {
		if err := p.scheduler.Push(ctx, &queue.RunMessage{RunID: run.ID, SubscriptionID: run.SubscriptionID}); err != nil {
			return i, fmt.Errorf("failed to requeue run %s: %w", run.ID, err)
		}
	}
	return len(runs), nil
}

// Recover 重新入队崩溃遗留与丢失调度的运行，worker 启动时调用。
// 先登记心跳，再回收无人持有的 running 运行，最后重新入队全部 pending/sleeping 运行。
func (p *Processor) Recover(ctx context.Context) (int, error) {
	if err := p.Heartbeat(ctx); err != nil {
		return 0, fmt.Errorf("failed to record heartbeat: %w", err)
	}

	// 放回的运行已是 pending，下面会一并入队
	if _, err := p.releaseOrphans(ctx); err != nil {
		return 0, err
	}

	now := p.now()
	runs, err := p.runRepo.ListRecoverable(recoverBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list recoverable runs: %w", err)
	}

	for _, run := range runs {
		msg := &queue.RunMessage{RunID: run.ID, SubscriptionID: run.SubscriptionID}
		if run.WakeAt != nil && run.WakeAt.After(now) {
			err = p.scheduler.Schedule(ctx, msg, *run.WakeAt)
		} else {
			err = p.scheduler.Push(ctx, msg)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to requeue run %s: %w", run.ID, err)
		}
	}

	return len(runs), nil
}
