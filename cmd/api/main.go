package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/odonto-agent/cmd/mainconfig"
	"github.com/wolfman30/odonto-agent/internal/api/router"
	"github.com/wolfman30/odonto-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/odonto-agent/internal/config"
	"github.com/wolfman30/odonto-agent/internal/conversation"
	"github.com/wolfman30/odonto-agent/internal/dedup"
	"github.com/wolfman30/odonto-agent/internal/observability/metrics"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting odonto-agent API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	convMetrics := metrics.NewConversationMetrics(registry)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	pool := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	deps := bootstrap.EngineDeps{Redis: redisClient, Pool: pool, AWS: awsCfg, Metrics: convMetrics}

	dispatcher, err := setupDispatcher(ctx, cfg, deps, logger)
	if err != nil {
		logger.Error("failed to set up message dispatch", "error", err)
		os.Exit(1)
	}

	handler := conversation.NewHandler(dispatcher, dedup.NewWindow(cfg.DedupSize, cfg.DedupWindow), convMetrics, logger)
	r := router.New(&router.Config{
		Logger:         logger,
		Webhook:        handler,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Checks:         healthChecks(redisClient, pool),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if pool != nil {
		pool.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Info("server stopped")
}

// setupDispatcher enqueues to SQS for the worker, or runs turns inline when
// USE_MEMORY_QUEUE is set.
func setupDispatcher(ctx context.Context, cfg *appconfig.Config, deps bootstrap.EngineDeps, logger *logging.Logger) (conversation.Dispatcher, error) {
	if cfg.UseMemoryQueue {
		engine, err := bootstrap.BuildEngine(ctx, cfg, deps, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("running conversation turns inline")
		return conversation.NewInlineDispatcher(engine, bootstrap.BuildOutbox(cfg, outboundSQS(cfg, deps.AWS), logger), logger), nil
	}
	if cfg.ConversationQueueURL == "" {
		return nil, errors.New("CONVERSATION_QUEUE_URL is required unless USE_MEMORY_QUEUE is set")
	}
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(deps.AWS), cfg.ConversationQueueURL)
	return conversation.NewPublisher(queue, logger), nil
}

func outboundSQS(cfg *appconfig.Config, awsCfg aws.Config) *sqs.Client {
	if cfg.OutboundQueueURL == "" {
		return nil
	}
	return sqs.NewFromConfig(awsCfg)
}

func healthChecks(redisClient *redis.Client, pool *pgxpool.Pool) map[string]router.HealthCheck {
	checks := make(map[string]router.HealthCheck)
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	return checks
}
