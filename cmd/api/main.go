package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/api/handlers"
	"github.com/marketpulse/backend/internal/app"
	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/internal/middleware/ratelimit"
	"github.com/marketpulse/backend/internal/middleware/security"
	"github.com/marketpulse/backend/internal/middleware/validation"
	"github.com/marketpulse/backend/pkg/config"
	appLogger "github.com/marketpulse/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(appLogger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting MarketPulse news pipeline")
	metrics.Init()

	ctx := context.Background()
	pipeline, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to build pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	if err := pipeline.StartScheduler(); err != nil {
		appLogger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	if !cfg.Server.Enabled {
		appLogger.Info("HTTP server disabled, running scheduler only")
		waitForSignal()
		return
	}

	server := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		DisableStartupMessage: true,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.RateLimit,
		Logger:               appLogger.Named("ratelimit"),
	})
	defer limiter.Stop()

	server.Use(recover.New())
	server.Use(logger.New())
	server.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	deps := map[string]handlers.Pinger{"sqlite": pipeline.Store}
	var invalidator handlers.CacheInvalidator
	if pipeline.Cache != nil {
		deps["redis"] = pipeline.Cache
		invalidator = pipeline.Cache
	}
	healthHandler := handlers.NewHealthHandler(deps)
	jobsHandler := handlers.NewJobsHandler(pipeline.Scheduler)
	sectorHandler := handlers.NewSectorHandler(pipeline.Store)
	aggregateHandler := handlers.NewAggregateHandler(pipeline.Store)
	newsHandler := handlers.NewNewsHandler(pipeline.Store)
	insightsHandler := handlers.NewInsightsHandler(pipeline.Store)
	cacheHandler := handlers.NewCacheHandler(invalidator, app.CacheKinds...)

	validationConfig := validation.Config{Logger: appLogger.Named("validation")}
	admin := security.AdminToken(cfg.Server.AdminToken, appLogger.Named("security"))

	server.Get("/metrics", metrics.MetricsHandler())

	api := server.Group("/api/v1", limiter.Middleware(), validation.Middleware(validationConfig))

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	api.Get("/jobs", jobsHandler.ListJobs)
	api.Post("/jobs/:name/run", admin, jobsHandler.RunJob)

	api.Get("/sectors", sectorHandler.ListSectors)
	api.Get("/sectors/:id", sectorHandler.GetSector)
	api.Post("/sectors", admin, validation.SectorBodyMiddleware(validationConfig, true), sectorHandler.CreateSector)
	api.Post("/sectors/:id/tickers", admin, validation.SectorBodyMiddleware(validationConfig, false), sectorHandler.AddTickers)
	api.Get("/sectors/:id/aggregates", aggregateHandler.History)
	api.Get("/sectors/:id/news", newsHandler.BySector)

	api.Get("/aggregates/latest", aggregateHandler.Latest)
	api.Get("/signals/spotlight", aggregateHandler.Spotlight)
	api.Get("/signals/hot", insightsHandler.HotStocks)

	api.Get("/news/recent", newsHandler.Recent)

	api.Get("/tickers/:symbol/history", insightsHandler.TickerHistory)
	api.Get("/tickers/:symbol/overview", insightsHandler.TickerOverview)
	api.Get("/insights/top-stocks", insightsHandler.TopStocks)
	api.Get("/insights/sector-summary", insightsHandler.SectorSummary)

	api.Delete("/cache/:kind", admin, cacheHandler.Invalidate)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	waitForSignal()

	appLogger.Info("Server shutting down gracefully...")
	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
}
