package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/odonto-agent/cmd/mainconfig"
	"github.com/wolfman30/odonto-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/odonto-agent/internal/config"
	"github.com/wolfman30/odonto-agent/internal/conversation"
	"github.com/wolfman30/odonto-agent/internal/observability/metrics"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.UseMemoryQueue {
		logger.Error("USE_MEMORY_QUEUE runs turns inside the API; the worker needs CONVERSATION_QUEUE_URL")
		os.Exit(1)
	}
	if cfg.ConversationQueueURL == "" {
		logger.Error("CONVERSATION_QUEUE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	pool := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	engine, err := bootstrap.BuildEngine(ctx, cfg, bootstrap.EngineDeps{
		Redis:   redisClient,
		Pool:    pool,
		AWS:     awsConfig,
		Metrics: metrics.NewConversationMetrics(prometheus.DefaultRegisterer),
	}, logger)
	if err != nil {
		logger.Error("failed to build conversation engine", "error", err)
		os.Exit(1)
	}

	sqsClient := sqs.NewFromConfig(awsConfig)
	queue := conversation.NewSQSQueue(sqsClient, cfg.ConversationQueueURL)
	worker := conversation.NewWorker(
		engine,
		queue,
		bootstrap.BuildOutbox(cfg, sqsClient, logger),
		logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
	)
	worker.Start(ctx)
	logger.Info("conversation worker started", "workers", cfg.WorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
	if pool != nil {
		pool.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
