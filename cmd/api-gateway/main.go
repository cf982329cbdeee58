package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/Florentin-artemix/Galileo-sub000/api/swagger"
	"github.com/Florentin-artemix/Galileo-sub000/internal/handler"
	"github.com/Florentin-artemix/Galileo-sub000/internal/repository"
	"github.com/Florentin-artemix/Galileo-sub000/internal/service"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/cache"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/config"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/database"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/jobs"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/logger"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/mailer"
)

// @title Galileo Submission API
// @version 1.0.0
// @description Article submission, moderation and publication pipeline
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database unavailable", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, session cache disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	smtp, err := mailer.NewSMTPMailer(cfg.Mail)
	if err != nil {
		logr.Sugar().Fatalw("invalid mail configuration", "error", err)
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}
	validate := validator.New()

	submissionRepo := repository.NewSubmissionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	publicationRepo := repository.NewPublicationRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Identity.CacheTTL, logr, cfg.Identity.CacheEnabled && cacheRepo.Enabled())
	identitySvc := service.NewIdentityService(service.IdentityConfig{
		Secret:   cfg.Identity.Secret,
		Issuer:   cfg.Identity.Issuer,
		CacheTTL: cfg.Identity.CacheTTL,
	}, cacheSvc, logr).WithDirectory(userRepo)

	notificationOpts := []service.NotificationServiceOption{
		service.WithNotificationMetrics(metrics),
		service.WithNotifyRoles(cfg.Moderation.NotifyRoles),
	}
	if smtp != nil {
		notificationOpts = append(notificationOpts, service.WithNotificationMailer(smtp))
	}
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, submissionRepo, logr, notificationOpts...)

	worker := service.NewOutboxWorker(outboxRepo, auditRepo, notificationSvc, metrics, logr)
	outboxQueue := jobs.NewQueue("notification-outbox", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Moderation.OutboxWorkers,
		BufferSize: cfg.Moderation.OutboxBuffer,
		MaxRetries: cfg.Moderation.OutboxMaxRetries,
		RetryDelay: cfg.Moderation.OutboxRetryDelay,
		Logger:     logr,
		Exhausted:  worker.Exhausted,
	})
	outboxQueue.Start(ctx)
	defer outboxQueue.Stop()

	relay := service.NewOutboxRelay(outboxRepo, outboxQueue, cfg.Moderation.OutboxSweep, logr)
	if recovered := relay.RecoverPending(ctx); recovered > 0 {
		logr.Info("recovered pending notifications", zap.Int("count", recovered))
	}
	relay.StartSweeper(ctx)

	publicationSvc := service.NewPublicationService(publicationRepo, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, publicationSvc, relay, validate, logr,
		service.WithSubmissionMetrics(metrics),
	)
	queueSvc := service.NewQueueService(submissionRepo, cfg.Moderation.QueuePageLimit, logr)
	auditSvc := service.NewAuditService(auditRepo, submissionRepo, validate, logr)

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := newRouter(cfg, logr, routeDeps{
		identity:      identitySvc,
		metrics:       metrics,
		submissions:   handler.NewSubmissionHandler(submissionSvc, auditSvc),
		moderation:    handler.NewModerationHandler(queueSvc, notificationSvc),
		notifications: handler.NewNotificationHandler(notificationSvc),
		publications:  handler.NewPublicationHandler(publicationSvc),
		session:       handler.NewSessionHandler(),
		observability: handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}
