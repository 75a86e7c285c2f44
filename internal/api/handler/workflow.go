package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/internal/model/dto"
	"github.com/qs3c/subtrack_server/internal/pkg/response"
	"github.com/qs3c/subtrack_server/internal/service"
)

type WorkflowHandler struct {
	workflowService *service.WorkflowService
	callbackURL     string
	logger          *zap.Logger
}

func NewWorkflowHandler(workflowService *service.WorkflowService, callbackURL string, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		workflowService: workflowService,
		callbackURL:     callbackURL,
		logger:          logger,
	}
}

// TriggerReminder 触发续费提醒工作流
// POST /api/v1/workflows/subscription/reminder
func (h *WorkflowHandler) TriggerReminder(c *gin.Context) {
	var req dto.TriggerReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	runID, err := h.workflowService.Trigger(c.Request.Context(), req.SubscriptionID, h.callbackURL)
	if err != nil {
		if errors.Is(err, service.ErrSubscriptionNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		h.logger.Error("failed to trigger reminder workflow", zap.Int64("subscription_id", req.SubscriptionID), zap.Error(err))
		response.ServerError(c, "")
		return
	}

	response.Success(c, &dto.TriggerReminderResponse{WorkflowRunID: runID})
}

// GetRun 获取运行状态与步骤
// GET /api/v1/workflows/runs/:id
func (h *WorkflowHandler) GetRun(c *gin.Context) {
	detail, err := h.workflowService.GetRun(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, detail)
}

// Resume 重新投递运行
// POST /api/v1/workflows/runs/:id/resume
func (h *WorkflowHandler) Resume(c *gin.Context) {
	run, err := h.workflowService.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRunNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrRunNotResumable):
			response.InvalidStateError(c, err.Error())
		default:
			h.logger.Error("failed to resume run", zap.String("run_id", c.Param("id")), zap.Error(err))
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "已重新投递", run)
}
