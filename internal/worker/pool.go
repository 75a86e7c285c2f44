package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/internal/pkg/queue"
)

// RunSource 阻塞获取下一条运行消息，超时返回 nil
type RunSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.RunMessage, error)
}

// RunHandler 处理一条运行消息
type RunHandler interface {
	Process(ctx context.Context, msg *queue.RunMessage) error
}

// Pool 固定数量的 worker 从就绪队列取消息并处理
type Pool struct {
	source     RunSource
	handler    RunHandler
	workers    int
	popTimeout time.Duration
	logger     *zap.Logger
}

func NewPool(source RunSource, handler RunHandler, workers int, popTimeout time.Duration, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}
	return &Pool{
		source:     source,
		handler:    handler,
		workers:    workers,
		popTimeout: popTimeout,
		logger:     logger,
	}
}

// Run 启动所有 worker，阻塞到 ctx 取消且正在处理的消息结束
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.loop(ctx, workerID)
		}(i)
	}

	p.logger.Info("worker pool started", zap.Int("workers", p.workers))
	wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	log := p.logger.With(zap.Int("worker", workerID))

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := p.source.Pop(ctx, p.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to pop run", zap.Error(err))
			// 避免 redis 不可用时空转
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		// 处理过程中不因关闭信号中断，保证状态写回
		if err := p.handler.Process(context.WithoutCancel(ctx), msg); err != nil {
			log.Error("run processing failed", zap.String("run_id", msg.RunID), zap.Error(err))
		}
	}
}
