// Package main 异步任务执行器入口（job-worker）：消费站点生成事件并落库用量
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sitegen-ai-api/internal/application/quota"
	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/infrastructure/messaging"
	"sitegen-ai-api/internal/infrastructure/persistence/postgres"
	"sitegen-ai-api/internal/infrastructure/persistence/redis"
	"sitegen-ai-api/pkg/logger"
	"sitegen-ai-api/pkg/tracer"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithWriter(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format, logger.OutputWriter(cfg.Observability.Logging.Output))
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

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()
	if err := pgClient.AutoMigrate(ctx); err != nil {
		logger.Fatal(ctx, "failed to migrate postgres", err)
	}

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	stream := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:       messaging.StreamSiteGenerated,
		Group:        messaging.ConsumerGroupUsageWriter,
		ConsumerName: hostnameConsumerName(),
		BlockTimeout: stream.BlockTimeout,
		RetryLimit:   stream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    stream.RetryBackoff.Initial,
			Max:        stream.RetryBackoff.Max,
			Multiplier: stream.RetryBackoff.Multiplier,
		},
	})

	recorder := quota.NewLLMUsageRecorder(postgres.NewLLMUsageEventRepository(pgClient))
	consumer.RegisterHandler(messaging.TypeSiteGenerated, messaging.UsageHandler(recorder))

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	if stream.DLQAlertThreshold > 0 {
		go consumer.MonitorDLQ(ctx, stream.DLQAlertThreshold)
	}

	log := logger.FromContext(ctx)
	log.Info("job-worker started",
		"stream", string(messaging.StreamSiteGenerated),
		"group", string(messaging.ConsumerGroupUsageWriter),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("job-worker shutting down")
	consumer.Stop()
	cancel()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
