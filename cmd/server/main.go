package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/matmarket/procure-service/config"
	"github.com/matmarket/procure-service/internal/catalog"
	"github.com/matmarket/procure-service/internal/database"
	"github.com/matmarket/procure-service/internal/engine"
	"github.com/matmarket/procure-service/internal/handlers"
	"github.com/matmarket/procure-service/internal/middleware"
	"github.com/matmarket/procure-service/internal/sweepers"
	"github.com/matmarket/procure-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting procure service")

	if err := cfg.Engine.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid engine configuration")
	}

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	ctx := context.Background()
	if err := database.Connect(
		ctx,
		dbURL,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("Database connected")

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.GetConfigFromEnv())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	cache := catalog.NewCache(catalog.NewRepository(database.Pool()), &catalog.CacheConfig{
		TTL:               cfg.Catalog.SnapshotTTL,
		LoadTimeout:       cfg.Catalog.LoadTimeout,
		WarmupConcurrency: cfg.Catalog.WarmupConcurrency,
	})
	handlers.InitEngine(cache, &cfg.Engine, engine.NewMetricsRecorder())

	// Warm configured regions in the background so the first requests
	// don't all pay the upstream load. Runs even with no regions configured
	// because completion opens the readiness gate.
	go func() {
		if err := cache.Warmup(ctx, cfg.Catalog.WarmupRegions); err != nil {
			logger.Warn().Err(err).Msg("Snapshot warmup incomplete")
		} else {
			logger.Info().Strs("regions", cfg.Catalog.WarmupRegions).Msg("Snapshot warmup complete")
		}
	}()

	var snapshotSweeper *sweepers.SnapshotSweeper
	if len(cfg.Catalog.WarmupRegions) > 0 {
		snapshotSweeper = sweepers.NewSnapshotSweeper(cache, cfg.Catalog.WarmupRegions, logger, cfg.Catalog.SnapshotTTL)
		go snapshotSweeper.Start(ctx)
	}

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware())
	internal.Use(middleware.ServiceRateLimitMiddleware(
		float64(cfg.RateLimit.RequestsPerSecond),
		cfg.RateLimit.BurstSize,
	))
	{
		internal.GET("/health", handlers.HealthCheck)

		procure := internal.Group("/procure")
		{
			procure.POST("/compare", handlers.Compare)
			procure.POST("/optimize", handlers.Optimize)
			procure.POST("/route", handlers.Route)
			procure.GET("/clusters", handlers.Clusters)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	if snapshotSweeper != nil {
		snapshotSweeper.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Telemetry shutdown failed")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "procure-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
