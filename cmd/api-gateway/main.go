package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/campusworks/timetable-api/internal/handler"
	"github.com/campusworks/timetable-api/internal/middleware"
	"github.com/campusworks/timetable-api/internal/repository"
	"github.com/campusworks/timetable-api/internal/service"
	"github.com/campusworks/timetable-api/pkg/cache"
	"github.com/campusworks/timetable-api/pkg/config"
	"github.com/campusworks/timetable-api/pkg/database"
	"github.com/campusworks/timetable-api/pkg/jobs"
	"github.com/campusworks/timetable-api/pkg/logger"
	corsmiddleware "github.com/campusworks/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusworks/timetable-api/pkg/middleware/requestid"
)

// @title Timetable API
// @version 1.0.0
// @description Constraint-aware timetable generation service
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()

	catalogRepo := repository.NewCatalogRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)

	var resultCache service.ResultCache = service.NoopResultCache{}
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, result cache disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			resultCache = service.NewRedisResultCache(redisClient, cfg.Cache.TTL, logr)
		}
	}

	authService := service.NewAuthService(cfg.Auth, validate, logr)
	availabilityService := service.NewAvailabilityService(availabilityRepo, validate, logr)
	timetableService := service.NewTimetableService(
		catalogRepo,
		timetableRepo,
		service.NewRepoAvailabilitySource(availabilityRepo),
		resultCache,
		metrics,
		validate,
		logr,
		cfg.Engine,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Jobs.Enabled {
		queue := jobs.NewQueue("generation", timetableService.HandleGenerationJob, jobs.QueueConfig{
			Workers:    cfg.Jobs.Workers,
			BufferSize: cfg.Jobs.BufferSize,
			MaxRetries: cfg.Jobs.MaxRetries,
			RetryDelay: cfg.Jobs.RetryDelay,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()
		timetableService.AttachQueue(queue)
	}

	authHandler := handler.NewAuthHandler(authService)
	availabilityHandler := handler.NewAvailabilityHandler(availabilityService)
	timetableHandler := handler.NewTimetableHandler(timetableService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("", middleware.JWT(authService))
	protected.GET("/availability", availabilityHandler.List)
	protected.GET("/availability/:teacher", availabilityHandler.Get)
	protected.PUT("/availability/:teacher", availabilityHandler.Save)
	protected.DELETE("/availability/:teacher", availabilityHandler.Delete)
	protected.POST("/timetables/generate", timetableHandler.Generate)
	protected.GET("/timetables/runs/:id", timetableHandler.Run)
	protected.GET("/timetables/:semester/latest", timetableHandler.Latest)
	protected.GET("/timetables/:semester/latest/export", timetableHandler.Export)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
