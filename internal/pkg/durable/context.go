package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/internal/model"
)

// StepStore 步骤记录的持久化接口。
// GetStep 在记录不存在时返回 (nil, nil)；SaveStep 按 (RunID, Label, Kind) 覆盖写入。
type StepStore interface {
	GetStep(runID, label, kind string) (*model.WorkflowStep, error)
	SaveStep(step *model.WorkflowStep) error
}

// Context 单次工作流运行的执行上下文
type Context struct {
	ctx    context.Context
	runID  string
	store  StepStore
	now    func() time.Time
	logger *zap.Logger
	onStep func(label string)
}

// Option 上下文选项
type Option func(*Context)

// WithClock 替换时钟，测试中用于注入假时间
func WithClock(now func() time.Time) Option {
	return func(c *Context) {
		c.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithStepHook 在每个步骤真正执行前回调，用于记录当前步骤
func WithStepHook(fn func(label string)) Option {
	return func(c *Context) {
		c.onStep = fn
	}
}

// New 创建执行上下文
func New(ctx context.Context, runID string, store StepStore, opts ...Option) *Context {
	c := &Context{
		ctx:    ctx,
		runID:  runID,
		store:  store,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) Context() context.Context {
	return c.ctx
}

func (c *Context) RunID() string {
	return c.runID
}

// Now 当前时间（来自注入的时钟）
func (c *Context) Now() time.Time {
	return c.now()
}

func (c *Context) Logger() *zap.Logger {
	return c.logger
}

func (c *Context) load(label, kind string) (*model.WorkflowStep, error) {
	rec, err := c.store.GetStep(c.runID, label, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s step %q: %w", kind, label, err)
	}
	return rec, nil
}

func (c *Context) enter(label string) {
	if c.onStep != nil {
		c.onStep(label)
	}
}

// Run 执行带标签的持久化步骤。
// 已完成的步骤直接返回记录的输出，不再执行 fn；fn 失败时不记录，重试时会重新执行。
func Run[T any](c *Context, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	rec, err := c.load(label, model.StepKindRun)
	if err != nil {
		return zero, err
	}

	if rec != nil && rec.IsCompleted() {
		var out T
		if rec.Output != "" {
			if err := json.Unmarshal([]byte(rec.Output), &out); err != nil {
				return zero, fmt.Errorf("failed to decode output of step %q: %w", label, err)
			}
		}
		c.logger.Debug("step replayed", zap.String("run_id", c.runID), zap.String("step", label))
		return out, nil
	}

	c.enter(label)
	out, err := fn(c.ctx)
	if err != nil {
		return zero, err
	}

	data, err := json.Marshal(out)
	if err != nil {
		return zero, fmt.Errorf("failed to encode output of step %q: %w", label, err)
	}

	completedAt := c.now()
	if err := c.store.SaveStep(&model.WorkflowStep{
		RunID:       c.runID,
		Label:       label,
		Kind:        model.StepKindRun,
		Output:      string(data),
		CompletedAt: &completedAt,
	}); err != nil {
		return zero, fmt.Errorf("failed to record step %q: %w", label, err)
	}

	c.logger.Debug("step completed", zap.String("run_id", c.runID), zap.String("step", label))
	return out, nil
}

// SleepUntil 持久化休眠到 at。
// 首次调用时记录唤醒时间，之后的重放都以记录值为准；时间未到返回 *SuspendError。
func (c *Context) SleepUntil(label string, at time.Time) error {
	rec, err := c.load(label, model.StepKindSleep)
	if err != nil {
		return err
	}
	if rec != nil && rec.IsCompleted() {
		return nil
	}

	wakeAt := at
	if rec == nil {
		c.enter(label)
		rec = &model.WorkflowStep{
			RunID:  c.runID,
			Label:  label,
			Kind:   model.StepKindSleep,
			WakeAt: &wakeAt,
		}
		if err := c.store.SaveStep(rec); err != nil {
			return fmt.Errorf("failed to record sleep %q: %w", label, err)
		}
	} else if rec.WakeAt != nil {
		wakeAt = *rec.WakeAt
	}

	now := c.now()
	if now.Before(wakeAt) {
		return &SuspendError{Label: label, WakeAt: wakeAt}
	}

	rec.CompletedAt = &now
	if err := c.store.SaveStep(rec); err != nil {
		return fmt.Errorf("failed to complete sleep %q: %w", label, err)
	}

	c.logger.Debug("sleep elapsed",
		zap.String("run_id", c.runID),
		zap.String("step", label),
		zap.Time("wake_at", wakeAt),
	)
	return nil
}
