package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/internal/api/middleware"
	"github.com/qs3c/subtrack_server/internal/model/dto"
	"github.com/qs3c/subtrack_server/internal/pkg/renewal"
	"github.com/qs3c/subtrack_server/internal/pkg/response"
	"github.com/qs3c/subtrack_server/internal/service"
)

type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
	logger              *zap.Logger
}

func NewSubscriptionHandler(subscriptionService *service.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

// Create 创建订阅并启动续费提醒
// POST /api/v1/subscriptions
func (h *SubscriptionHandler) Create(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.subscriptionService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Created(c, "订阅创建成功", resp)
}

// Get 获取订阅详情
// GET /api/v1/subscriptions/:id
func (h *SubscriptionHandler) Get(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的订阅ID")
		return
	}

	sub, err := h.subscriptionService.Get(userID, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, sub)
}

// Update 更新订阅
// PUT /api/v1/subscriptions/:id
func (h *SubscriptionHandler) Update(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的订阅ID")
		return
	}

	var req dto.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.subscriptionService.Update(c.Request.Context(), userID, id, &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.Success(c, resp)
}

// ListByUser 获取用户的订阅列表
// GET /api/v1/users/:id/subscriptions
func (h *SubscriptionHandler) ListByUser(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	ownerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的用户ID")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	subs, total, err := h.subscriptionService.ListByUser(userID, ownerID, page, pageSize)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, subs)
}

func (h *SubscriptionHandler) handleError(c *gin.Context, err error) {
	var verr *renewal.ValidationError
	switch {
	case errors.As(err, &verr):
		response.ValidationError(c, verr.Field, verr.Message)
	case errors.Is(err, service.ErrStartDateInFuture):
		response.ValidationError(c, "start_date", err.Error())
	case errors.Is(err, service.ErrSubscriptionNotFound), errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		response.PermissionError(c, err.Error())
	default:
		h.logger.Error("subscription request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.ServerError(c, "")
	}
}
