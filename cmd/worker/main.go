// Package main runs the standalone admin notice worker: re-posts admin summaries
// that the bot could not deliver inline.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/utahoverlandcommunity/uoc-dm-bot/config"
	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/gateway"
	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/worker"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/queue"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	gw := gateway.NewClient(gateway.Config{URL: cfg.Gateway.URL, Token: cfg.Gateway.Token}, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewAdminNoticeProcessor(gw, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gwDone := make(chan struct{})
	go func() {
		gw.Run(workerCtx)
		close(gwDone)
	}()
	procDone := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(procDone)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-procDone
	<-gwDone
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
