package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/config"
	"github.com/qs3c/subtrack_server/internal/api"
	"github.com/qs3c/subtrack_server/internal/api/handler"
	"github.com/qs3c/subtrack_server/internal/database"
	"github.com/qs3c/subtrack_server/internal/pkg/logger"
	"github.com/qs3c/subtrack_server/internal/pkg/pubsub"
	"github.com/qs3c/subtrack_server/internal/pkg/queue"
	"github.com/qs3c/subtrack_server/internal/pkg/ws"
	"github.com/qs3c/subtrack_server/internal/repository"
	"github.com/qs3c/subtrack_server/internal/service"
)

func main() {
	// .env 可选，存在时先于配置加载注入环境变量
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.Log)
	defer log.Sync()

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect redis", zap.Error(err))
	}
	log.Info("Redis connected")

	runQueue := queue.NewQueue(rdb, cfg.Queue.ReminderQueue, cfg.Queue.DelayedSet)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	runRepo := repository.NewRunRepository(db)
	stepRepo := repository.NewStepRepository(db)

	// 初始化 Service
	authService := service.NewAuthService(userRepo, cfg)
	workflowService := service.NewWorkflowService(runRepo, stepRepo, subRepo, runQueue, log)
	subscriptionService := service.NewSubscriptionService(subRepo, userRepo, workflowService, cfg, log)

	// WebSocket Hub 订阅 worker 发布的提醒事件
	wsHub := ws.NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		subscriber := pubsub.NewSubscriber(rdb)
		if err := subscriber.Subscribe(ctx, wsHub.ForwardReminder); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Reminder event subscription stopped", zap.Error(err))
		}
	}()

	// 初始化 Handler
	router := api.NewRouter(
		handler.NewAuthHandler(authService),
		handler.NewSubscriptionHandler(subscriptionService, log),
		handler.NewWorkflowHandler(workflowService, subscriptionService.CallbackURL(), log),
		handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins, log),
		handler.NewHealthHandler(db, rdb),
		cfg,
		log,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("Received shutdown signal")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		log.Warn("Failed to close redis", zap.Error(err))
	}
	log.Info("Server shutdown complete")
}
