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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/station-tasks-api/api/swagger"
	"github.com/noah-isme/station-tasks-api/internal/handler"
	internalmiddleware "github.com/noah-isme/station-tasks-api/internal/middleware"
	"github.com/noah-isme/station-tasks-api/internal/models"
	"github.com/noah-isme/station-tasks-api/internal/repository"
	"github.com/noah-isme/station-tasks-api/internal/service"
	"github.com/noah-isme/station-tasks-api/pkg/cache"
	"github.com/noah-isme/station-tasks-api/pkg/config"
	"github.com/noah-isme/station-tasks-api/pkg/database"
	"github.com/noah-isme/station-tasks-api/pkg/jobs"
	"github.com/noah-isme/station-tasks-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/station-tasks-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/station-tasks-api/pkg/middleware/requestid"
)

// @title Station Tasks API
// @version 1.0.0
// @description Task participation, scoring and leaderboards for fan stations
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL(), logr); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Leaderboard.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, leaderboard cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Leaderboard.CacheTTL, logr, redisClient != nil)

	invalidator := service.NewLeaderboardInvalidator(cacheSvc, jobs.QueueConfig{
		Workers:    cfg.Leaderboard.Workers,
		MaxRetries: cfg.Leaderboard.Retries,
		Logger:     logr,
	})
	invalidator.Start(ctx)
	defer invalidator.Stop()

	ledgerRepo := repository.NewLedgerRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	inviteRepo := repository.NewInviteCodeRepository(db)
	stationRepo := repository.NewStationRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	leaderboardRepo := repository.NewLeaderboardRepository(db)

	authSvc := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	accessSvc := service.NewAccessService(stationRepo)
	guard := service.NewCooldownGuard(cfg.Focus.Cooldown)

	submissionSvc := service.NewSubmissionService(ledgerRepo, inviteRepo, submissionRepo, taskRepo, accessSvc, invalidator, metricsSvc, validate, logr,
		service.SubmissionServiceConfig{MaxImages: cfg.Scoring.MaxImages, StoreTimeout: cfg.Database.StoreTimeout})
	taskSvc := service.NewTaskService(taskRepo, inviteRepo, ledgerRepo, accessSvc, guard, invalidator, metricsSvc, validate, logr,
		service.TaskServiceConfig{StoreTimeout: cfg.Database.StoreTimeout})
	leaderboardSvc := service.NewLeaderboardService(leaderboardRepo, taskRepo, inviteRepo, accessSvc, cacheSvc, validate, logr,
		service.LeaderboardServiceConfig{CacheTTL: cfg.Leaderboard.CacheTTL, StoreTimeout: cfg.Database.StoreTimeout})

	fanHandler := handler.NewFanHandler(taskSvc, submissionSvc, leaderboardSvc)
	stationHandler := handler.NewStationHandler(taskSvc, submissionSvc, leaderboardSvc)
	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = cacheRepo.Ping
	}
	healthHandler := handler.NewHealthHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxAge:         cfg.CORS.MaxAge,
	}))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", healthHandler.Prometheus)
	r.GET("/metrics/summary", healthHandler.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	fan := api.Group("/fan")
	fan.GET("/tasks", fanHandler.ListTasks)
	fan.GET("/tasks/:taskId", fanHandler.GetTask)
	fan.POST("/tasks/:taskId/submissions", fanHandler.Submit)
	fan.GET("/leaderboard", fanHandler.Leaderboard)
	fan.GET("/invite-codes/:code/focus-status", fanHandler.FocusStatus)

	station := api.Group("/station")
	station.Use(internalmiddleware.JWT(authSvc), internalmiddleware.RequireRoles(models.RoleStationAdmin, models.RolePlatformAdmin))
	station.GET("/tasks", stationHandler.ListTasks)
	station.GET("/tasks/:taskId", stationHandler.GetTask)
	station.POST("/tasks", stationHandler.CreateTask)
	station.PATCH("/tasks/:taskId", stationHandler.UpdateTask)
	station.PUT("/tasks/:taskId/focus", stationHandler.SetFocus)
	station.POST("/tasks/:taskId/settle", stationHandler.SettleTask)
	station.GET("/tasks/:taskId/submissions", stationHandler.ListSubmissions)
	station.GET("/submissions/:submissionId", stationHandler.GetSubmission)
	station.POST("/submissions/:submissionId/mark-abnormal", stationHandler.MarkAbnormal)
	station.GET("/rankings", stationHandler.Rankings)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
