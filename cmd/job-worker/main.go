// Package main 异步任务执行器入口（job-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"model-invoke-api/internal/config"
	"model-invoke-api/internal/wire"
	"model-invoke-api/pkg/logger"
	"model-invoke-api/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	logger.Info(ctx, "job-worker started",
		"message_created_subscribers", []string(worker.Subscriptions),
	)

	// 用量流水
	if err := worker.Ledger.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start usage ledger consumer", err)
	}
	go worker.Ledger.Monitor(ctx, time.Minute, 0)

	// message.created 重放
	if err := worker.Replay.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start message replay consumer", err)
	}
	go worker.Replay.Monitor(ctx, time.Minute, 0)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down job-worker...")
	worker.Ledger.Stop()
	worker.Replay.Stop()
	cancel()
	worker.Bus.Wait()
	logger.Info(ctx, "job-worker exited")
}
