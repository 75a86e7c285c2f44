package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/config"
	"github.com/qs3c/subtrack_server/internal/database"
	"github.com/qs3c/subtrack_server/internal/pkg/cron"
	"github.com/qs3c/subtrack_server/internal/pkg/email"
	"github.com/qs3c/subtrack_server/internal/pkg/logger"
	"github.com/qs3c/subtrack_server/internal/pkg/pubsub"
	"github.com/qs3c/subtrack_server/internal/pkg/queue"
	"github.com/qs3c/subtrack_server/internal/repository"
	"github.com/qs3c/subtrack_server/internal/worker"
)

func main() {
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
	log.Info("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("Redis connected")

	// 初始化 Queue 和 Pub/Sub
	runQueue := queue.NewQueue(rdb, cfg.Queue.ReminderQueue, cfg.Queue.DelayedSet)
	publisher := pubsub.NewPublisher(rdb)
	workers := queue.NewWorkerRegistry(rdb, cfg.Queue.WorkerSet)

	// 初始化 Repository
	subRepo := repository.NewSubscriptionRepository(db)
	runRepo := repository.NewRunRepository(db)
	stepRepo := repository.NewStepRepository(db)

	mailer := email.NewService(&cfg.Email, log)
	if !mailer.Enabled() {
		log.Warn("SMTP not configured, reminder emails will only be logged")
	}

	workflow := worker.NewReminderWorkflow(
		worker.NewRepoFetcher(subRepo),
		worker.NewReminderNotifier(mailer, publisher, log),
		cfg.Workflow.ReminderOffsets,
		log,
	)
	processor := worker.NewProcessor(runRepo, stepRepo, workflow, runQueue, publisher, workers, &cfg.Workflow, log)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	// 重新入队崩溃遗留或调度丢失的运行
	recovered, err := processor.Recover(ctx)
	if err != nil {
		log.Error("Failed to recover runs", zap.Error(err))
	} else if recovered > 0 {
		log.Info("Recovered runs", zap.Int("count", recovered))
	}

	// 唤醒轮询、过期清扫与心跳回收
	scheduler := cron.NewService(runQueue, subRepo, processor, &cfg.Workflow, log)
	if err := scheduler.Start(); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	pool := worker.NewPool(runQueue, processor, cfg.Queue.MaxWorkers, cfg.Queue.PopTimeout, log)
	pool.Run(ctx)

	<-scheduler.Stop().Done()

	// ctx 已取消，注销心跳另用新的 context
	if err := processor.Retire(context.Background()); err != nil {
		log.Warn("Failed to remove worker heartbeat", zap.Error(err))
	}
	log.Info("Worker shutdown complete")
}
