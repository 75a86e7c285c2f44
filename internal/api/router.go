package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/config"
	"github.com/qs3c/subtrack_server/internal/api/handler"
	"github.com/qs3c/subtrack_server/internal/api/middleware"
)

type Router struct {
	authHandler         *handler.AuthHandler
	subscriptionHandler *handler.SubscriptionHandler
	workflowHandler     *handler.WorkflowHandler
	websocketHandler    *handler.WebSocketHandler
	healthHandler       *handler.HealthHandler
	cfg                 *config.Config
	logger              *zap.Logger
}

func NewRouter(
	authHandler *handler.AuthHandler,
	subscriptionHandler *handler.SubscriptionHandler,
	workflowHandler *handler.WorkflowHandler,
	websocketHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		authHandler:         authHandler,
		subscriptionHandler: subscriptionHandler,
		workflowHandler:     workflowHandler,
		websocketHandler:    websocketHandler,
		healthHandler:       healthHandler,
		cfg:                 cfg,
		logger:              logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(r.logger))
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", r.healthHandler.Check)

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/sign-up", r.authHandler.SignUp)
			auth.POST("/sign-in", r.authHandler.SignIn)
		}

		// 工作流触发端点，使用共享密钥而非用户 token
		workflows := api.Group("/workflows")
		workflows.Use(middleware.TriggerToken(r.cfg.Workflow.TriggerToken))
		{
			workflows.POST("/subscription/reminder", r.workflowHandler.TriggerReminder)
			workflows.GET("/runs/:id", r.workflowHandler.GetRun)
			workflows.POST("/runs/:id/resume", r.workflowHandler.Resume)
		}

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.GET("/auth/me", r.authHandler.Me)

			subscriptions := authenticated.Group("/subscriptions")
			{
				subscriptions.POST("", r.subscriptionHandler.Create)
				subscriptions.GET("/:id", r.subscriptionHandler.Get)
				subscriptions.PUT("/:id", r.subscriptionHandler.Update)
			}

			authenticated.GET("/users/:id/subscriptions", r.subscriptionHandler.ListByUser)
		}
	}

	return engine
}
