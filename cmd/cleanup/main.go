package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/config"
	"github.com/qs3c/subtrack_server/internal/database"
	"github.com/qs3c/subtrack_server/internal/pkg/logger"
	"github.com/qs3c/subtrack_server/internal/repository"
)

// pruneBatch 每轮删除的运行数
const pruneBatch = 500

// dryRunScanLimit dry-run 模式下最多统计的运行数
const dryRunScanLimit = 100000

var (
	dryRun              = flag.Bool("dry-run", true, "Dry run mode, don't actually delete anything")
	runRetentionDays    = flag.Int("run-retention-days", 0, "Days to keep finished workflow runs (0 = use workflow.run_retention)")
	expireSubscriptions = flag.Bool("expire-subscriptions", true, "Mark active subscriptions past their renewal date as expired")
)

func main() {
	flag.Parse()
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

	log.Info("Starting cleanup task", zap.Bool("dry_run", *dryRun))

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect database", zap.Error(err))
	}

	runRepo := repository.NewRunRepository(db)
	stepRepo := repository.NewStepRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)

	retention := cfg.Workflow.RunRetention
	if *runRetentionDays > 0 {
		retention = time.Duration(*runRetentionDays) * 24 * time.Hour
	}
	now := time.Now()

	var prunedRuns, prunedSteps, expired int64

	// 1. 清理过期的已结束运行及其步骤
	if retention > 0 {
		cutoff := now.Add(-retention)
		log.Info("Pruning finished runs", zap.Time("before", cutoff))
		prunedRuns, prunedSteps, err = pruneRuns(runRepo, stepRepo, cutoff, *dryRun)
		if err != nil {
			log.Error("Failed to prune runs", zap.Error(err))
		}
	} else {
		log.Info("Run retention disabled, skipping run pruning")
	}

	// 2. 过期已到续费日的订阅
	if *expireSubscriptions {
		if *dryRun {
			expired, err = subRepo.CountDue(now)
		} else {
			expired, err = subRepo.ExpireDue(now)
		}
		if err != nil {
			log.Error("Failed to expire subscriptions", zap.Error(err))
		}
	}

	// 输出统计
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Cleanup Summary")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Finished runs: %d\n", prunedRuns)
	fmt.Printf("Workflow steps: %d\n", prunedSteps)
	fmt.Printf("Expired subscriptions: %d\n", expired)
	if *dryRun {
		fmt.Println("DRY RUN MODE - nothing was changed")
		fmt.Println("Run with -dry-run=false to apply")
	} else {
		fmt.Println("Cleanup completed")
	}
	fmt.Println(strings.Repeat("=", 60))
}

// pruneRuns 按批删除截止时间前结束的运行，先删步骤再删运行
// dry-run 模式只统计运行数
func pruneRuns(runRepo *repository.RunRepository, stepRepo *repository.StepRepository, before time.Time, dryRun bool) (int64, int64, error) {
	if dryRun {
		ids, err := runRepo.ListFinishedIDsBefore(before, dryRunScanLimit)
		if err != nil {
			return 0, 0, err
		}
		return int64(len(ids)), 0, nil
	}

	var runs, steps int64
	for {
		ids, err := runRepo.ListFinishedIDsBefore(before, pruneBatch)
		if err != nil {
			return runs, steps, err
		}
		if len(ids) == 0 {
			return runs, steps, nil
		}

		n, err := stepRepo.DeleteByRunIDs(ids)
		if err != nil {
			return runs, steps, fmt.Errorf("delete steps: %w", err)
		}
		steps += n

		n, err = runRepo.DeleteByIDs(ids)
		if err != nil {
			return runs, steps, fmt.Errorf("delete runs: %w", err)
		}
		runs += n

		if len(ids) < pruneBatch {
			return runs, steps, nil
		}
	}
}
