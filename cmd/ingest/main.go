package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/app"
	"github.com/marketpulse/backend/pkg/config"
	appLogger "github.com/marketpulse/backend/pkg/logger"
)

// ingest runs a single ingestion cycle, optionally followed by one
// aggregation pass, and exits.
func main() {
	aggregate := flag.Bool("aggregate", false, "compute sector aggregates after ingesting")
	flag.Parse()

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to build pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	report, err := pipeline.Processor.RunCycle(ctx)
	if err != nil {
		appLogger.Error("Ingestion cycle interrupted", zap.Error(err))
		return
	}
	fmt.Printf("run %s: fetched=%d inserted=%d duplicates=%d dropped=%d failed=%d rescored=%d signals=%s applied=%d\n",
		report.RunID, report.Fetched, report.Inserted, report.Duplicates, report.Dropped, report.Failed,
		report.Rescored, report.Signals.Outcome, report.Signals.Applied)

	if !*aggregate {
		return
	}
	rows, err := pipeline.Aggregator.RunCycle(ctx)
	if err != nil {
		appLogger.Error("Aggregation failed", zap.Error(err))
		return
	}
	fmt.Printf("aggregates appended: %d\n", rows)
}
