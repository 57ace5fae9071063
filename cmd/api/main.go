package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutor-connect-api/api/swagger"
	"github.com/noah-isme/tutor-connect-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tutor-connect-api/internal/middleware"
	"github.com/noah-isme/tutor-connect-api/internal/models"
	"github.com/noah-isme/tutor-connect-api/internal/realtime"
	"github.com/noah-isme/tutor-connect-api/internal/repository"
	"github.com/noah-isme/tutor-connect-api/internal/service"
	"github.com/noah-isme/tutor-connect-api/pkg/cache"
	"github.com/noah-isme/tutor-connect-api/pkg/config"
	"github.com/noah-isme/tutor-connect-api/pkg/database"
	"github.com/noah-isme/tutor-connect-api/pkg/jobs"
	"github.com/noah-isme/tutor-connect-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutor-connect-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutor-connect-api/pkg/middleware/requestid"
)

// @title Tutor Connect API
// @version 1.0.0
// @description Tutor directory, session scheduling and realtime session updates
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
	defer logger.Flush()
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing in degraded mode", zap.Error(err))
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	tutorRepo := repository.NewTutorRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Tutors.CacheTTL, logr, cfg.Tutors.CacheEnabled && redisClient != nil)
	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	queue := jobs.NewQueue("session-events", jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		Logger:     logr,
	})
	events := service.NewSessionEvents(queue, cacheRepo, newNotifier(cfg, logr), metrics, logr)

	tutorSvc := service.NewTutorService(tutorRepo, cacheSvc, metrics, validate, logr, service.TutorServiceConfig{
		CacheTTL:                cfg.Tutors.CacheTTL,
		LeaderboardDefaultLimit: cfg.Tutors.LeaderboardDefaultLimit,
	})
	sessionSvc := service.NewSessionService(sessionRepo, tutorRepo, cacheRepo, events, cacheSvc, metrics, validate, logr, service.SessionServiceConfig{
		AllowedDurations: cfg.Sessions.AllowedDurations,
		IdempotencyTTL:   cfg.Sessions.IdempotencyTTL,
	})

	hub := realtime.NewHub(cacheRepo, metrics, logr, realtime.Config{
		Channel:        service.SessionChannel,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	defer hub.Close()

	queueCtx, stopQueue := context.WithCancel(context.Background())
	queue.Start(queueCtx)

	checks := map[string]handler.Pinger{"database": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	tutorHandler := handler.NewTutorHandler(tutorSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	realtimeHandler := handler.NewRealtimeHandler(authSvc, hub, logr)
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if cfg.Realtime.Enabled {
		api.GET("/ws/sessions", realtimeHandler.Sessions)
	}

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))

	tutors := secured.Group("/tutors")
	tutors.GET("", tutorHandler.List)
	tutors.GET("/leaderboard", tutorHandler.Leaderboard)
	tutors.GET("/:id", tutorHandler.Get)
	tutors.POST("", internalmiddleware.RequireRoles(models.RoleAdmin), tutorHandler.Create)
	tutors.PATCH("/:id/availability", internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleTutor), tutorHandler.UpdateAvailability)

	sessions := secured.Group("/sessions")
	sessions.GET("", sessionHandler.Board)
	sessions.POST("", internalmiddleware.RequireRoles(models.RoleStudent, models.RoleAdmin), sessionHandler.Schedule)
	sessions.GET("/export", sessionHandler.Export)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.PATCH("/:id/status", sessionHandler.UpdateStatus)
	sessions.POST("/:id/feedback", sessionHandler.SubmitFeedback)

	admin := secured.Group("/admin", internalmiddleware.RequireRoles(models.RoleAdmin))
	admin.GET("/metrics", metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	stopQueue()
	queue.Stop()
}

func newNotifier(cfg *config.Config, logr *zap.Logger) service.Notifier {
	if cfg.Notifications.SendgridAPIKey == "" {
		return service.NewLogNotifier(logr)
	}
	return service.NewSendgridNotifier(cfg.Notifications.SendgridAPIKey, cfg.Notifications.FromName, cfg.Notifications.FromAddress)
}
