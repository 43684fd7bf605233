// Package main runs the background worker (session aggregation, expiry sweep).
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yansimam/backend/config"
	"github.com/yansimam/backend/internal/realtime"
	"github.com/yansimam/backend/internal/sessions"
	"github.com/yansimam/backend/internal/votes"
	"github.com/yansimam/backend/internal/worker"
	"github.com/yansimam/backend/pkg/database"
	"github.com/yansimam/backend/pkg/monitoring"
	"github.com/yansimam/backend/pkg/queue"
	"github.com/yansimam/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	if err := monitoring.Init(cfg.Sentry.DSN, cfg.Sentry.Environment, logger); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer monitoring.Flush()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	sessionRepo := sessions.NewRepository(pool)
	voteRepo := votes.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	publisher := realtime.NewRedisPubSub(rdb.Client, logger)
	cache := sessions.NewRedisCache(sessionRepo, rdb.Client, time.Duration(cfg.Voting.SessionCacheSec)*time.Second, logger)

	processor := worker.NewAggregationProcessor(jobQueue, voteRepo, sessionRepo, publisher, nil, logger)
	sweeper := worker.NewExpirySweeper(sessionRepo, cache, time.Duration(cfg.Worker.SweepIntervalSec)*time.Second, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Run(workerCtx)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
