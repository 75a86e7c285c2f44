package dto

import (
	"github.com/qs3c/subtrack_server/internal/model"
)

// TriggerReminderRequest 触发续费提醒工作流
type TriggerReminderRequest struct {
	SubscriptionID int64 `json:"subscription_id" binding:"required"`
}

// TriggerReminderResponse 触发结果
type TriggerReminderResponse struct {
	WorkflowRunID string `json:"workflow_run_id"`
}

// RunDetail 工作流运行详情
type RunDetail struct {
	Run   *model.WorkflowRun    `json:"run"`
	Steps []*model.WorkflowStep `json:"steps"`
}
