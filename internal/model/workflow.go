package model

import (
	"time"
)

// 工作流运行状态
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusSleeping  = "sleeping"
	RunStatusCompleted = "completed"
	RunStatusAborted   = "aborted"
	RunStatusFailed    = "failed"
)

// 步骤类型
const (
	StepKindRun   = "run"
	StepKindSleep = "sleep"
)

const WorkflowSubscriptionReminder = "subscription_reminder"

// RunAbortSuperseded 订阅续费日期变化后，旧运行被新运行取代
const RunAbortSuperseded = "superseded"

type WorkflowRun struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	Workflow       string     `gorm:"size:50;not null" json:"workflow"`
	SubscriptionID int64      `gorm:"not null;index" json:"subscription_id"`
	CallbackURL    string     `gorm:"size:500" json:"callback_url,omitempty"`
	Status         string     `gorm:"size:20;default:pending;index" json:"status"`
	Owner          string     `gorm:"size:36;not null;default:'';index" json:"owner,omitempty"` // 持有 running 运行的 worker 令牌
	CurrentStep    string     `gorm:"size:100" json:"current_step,omitempty"`
	AbortReason    string     `gorm:"size:50" json:"abort_reason,omitempty"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message,omitempty"`
	Attempts       int        `gorm:"default:0" json:"attempts"`
	WakeAt         *time.Time `gorm:"index" json:"wake_at,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `gorm:"index" json:"completed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (WorkflowRun) TableName() string {
	return "workflow_runs"
}

// IsTerminal 运行是否已结束
func (r *WorkflowRun) IsTerminal() bool {
	return IsTerminalRunStatus(r.Status)
}

func IsTerminalRunStatus(status string) bool {
	switch status {
	case RunStatusCompleted, RunStatusAborted, RunStatusFailed:
		return true
	}
	return false
}

// WorkflowStep 持久化的步骤记录，(run_id, label, kind) 唯一。
// 同一标签可以同时存在一条 sleep 记录和一条 run 记录。
type WorkflowStep struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	RunID       string     `gorm:"size:36;not null;uniqueIndex:idx_run_label" json:"run_id"`
	Label       string     `gorm:"size:100;not null;uniqueIndex:idx_run_label" json:"label"`
	Kind        string     `gorm:"size:10;not null;uniqueIndex:idx_run_label" json:"kind"`
	Output      string     `gorm:"type:text" json:"output,omitempty"`
	WakeAt      *time.Time `json:"wake_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (WorkflowStep) TableName() string {
	return "workflow_steps"
}

// IsCompleted 步骤是否已完成
func (s *WorkflowStep) IsCompleted() bool {
	return s.CompletedAt != nil
}
