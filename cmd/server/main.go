// Package main runs the onboarding bot: gateway session, join trigger, periodic sweep,
// admin notice worker and the admin HTTP API, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/utahoverlandcommunity/uoc-dm-bot/config"
	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/auth"
	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/gateway"
	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/middleware"
	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/outreach"
	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/registrations"
	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/tracking"
	"github.com/utahoverlandcommunity/uoc-dm-bot/internal/worker"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/database"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/queue"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/redis"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/response"
	"github.com/utahoverlandcommunity/uoc-dm-bot/pkg/storage"
)

// lockMargin covers the prompt and follow-up sends on top of the reply wait.
const lockMargin = time.Minute

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var exporter registrations.Exporter
	if cfg.AWS.ExportsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			exporter = s3Client
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := outreach.NewMetrics(reg)

	// Stores
	registrationRepo := registrations.NewRepository(pool)
	trackingRepo := tracking.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Gateway
	gw := gateway.NewClient(gateway.Config{
		URL:         cfg.Gateway.URL,
		Token:       cfg.Gateway.Token,
		ReplyWindow: cfg.Outreach.ReplyTimeout + lockMargin,
	}, logger)

	// Outreach
	engager := outreach.NewEngager(outreach.Deps{
		Registrations: registrationRepo,
		Tracker:       trackingRepo,
		Gateway:       gw,
		Locker:        outreach.NewRedisLocker(rdb.Client, cfg.Outreach.ReplyTimeout+lockMargin, logger),
		Notices:       jobQueue,
		Metrics:       metrics,
	}, outreach.SessionConfig{
		Policy:         outreach.Policy{MaxAttempts: cfg.Outreach.MaxAttempts, Cooldown: cfg.Outreach.Cooldown},
		ReplyTimeout:   cfg.Outreach.ReplyTimeout,
		AdminChannelID: cfg.Gateway.AdminChannelID,
		StrictNames:    cfg.Outreach.StrictNames,
	}, logger)
	scheduler := outreach.NewScheduler(gw, engager, outreach.SweepConfig{
		CommunityID:   cfg.Gateway.CommunityID,
		Interval:      cfg.Outreach.SweepInterval,
		BatchSize:     cfg.Outreach.BatchSize,
		DispatchDelay: cfg.Outreach.DispatchDelay,
	}, metrics, logger)
	joins := outreach.NewJoinTrigger(engager, cfg.Gateway.CommunityID, logger)
	gw.OnMemberJoined(func(ctx context.Context, evt outreach.MemberJoined) {
		joins.HandleJoin(ctx, evt)
	})
	noticeProcessor := worker.NewAdminNoticeProcessor(gw, jobQueue, logger)

	// Admin API
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()
	registrationHandler := registrations.NewHandler(registrationRepo, exporter, logger)
	memberHandler := tracking.NewHandler(appCtx, trackingRepo, registrationRepo, engager, joins, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		if !gw.Connected() {
			response.ServiceUnavailable(c, "gateway not connected")
			return
		}
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok", "gateway": "connected"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	api := router.Group("")
	api.Use(middleware.JWT(jwtService), middleware.RequireRole(auth.RoleAdmin))
	{
		api.GET("/registrations", registrationHandler.List)
		api.POST("/registrations/export", registrationHandler.Export)
		api.GET("/members/:id", memberHandler.GetMember)
		api.POST("/members/:id/engage", memberHandler.Engage)
		api.GET("/outreach/stats", memberHandler.GetStats)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	gwDone := make(chan struct{})
	go func() {
		gw.Run(appCtx)
		close(gwDone)
	}()
	// Sessions commit their outcome after cancellation; the pool and Redis must outlive them.
	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		noticeProcessor.Run(appCtx)
	}()
	go func() {
		defer background.Done()
		select {
		case <-gw.Ready():
		case <-appCtx.Done():
			return
		}
		logger.Info("gateway ready, starting outreach sweeps", zap.Duration("interval", cfg.Outreach.SweepInterval))
		scheduler.Run(appCtx)
	}()

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	appCancel()
	background.Wait()
	joins.Wait()
	<-gwDone
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
