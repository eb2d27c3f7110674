package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/aggregation"
	"github.com/marketpulse/backend/internal/cache/redis"
	"github.com/marketpulse/backend/internal/inference"
	"github.com/marketpulse/backend/internal/ingestion"
	"github.com/marketpulse/backend/internal/lexicon"
	"github.com/marketpulse/backend/internal/llm"
	"github.com/marketpulse/backend/internal/scheduler"
	"github.com/marketpulse/backend/internal/sector"
	"github.com/marketpulse/backend/internal/sentiment"
	"github.com/marketpulse/backend/internal/signals"
	"github.com/marketpulse/backend/internal/sources"
	"github.com/marketpulse/backend/internal/storage/sqlite"
	"github.com/marketpulse/backend/pkg/config"
	"github.com/marketpulse/backend/pkg/logger"
)

const (
	JobIngest    = "ingest"
	JobAggregate = "aggregate"
)

// CacheKinds lists the redis key families the pipeline writes.
var CacheKinds = []string{"sentiment", "zeroshot"}

// App holds the wired pipeline.
type App struct {
	Config *config.Config

	Store *sqlite.Client
	// Cache is nil when redis is disabled or unreachable.
	Cache *redis.Client

	Processor  *ingestion.Processor
	Aggregator *aggregation.Aggregator
	Scheduler  *scheduler.Scheduler
}

// New opens storage, seeds sectors and builds every pipeline collaborator
// from cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	store, err := sqlite.NewClient(cfg.SQLite.Path, cfg.SQLite.BusyTimeoutMS)
	if err != nil {
		return nil, err
	}
	a.Store = store

	if err := store.InitSchema(ctx); err != nil {
		a.Close()
		return nil, err
	}

	seeds, err := sector.DefaultSeeds()
	if err != nil {
		a.Close()
		return nil, err
	}
	added, err := store.SeedSectors(ctx, seeds)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("Sectors seeded", zap.Int("added", added), zap.Int("known", len(seeds)))

	if cfg.Redis.Enabled {
		cache, err := redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		} else {
			a.Cache = cache
		}
	}

	processor, err := a.buildProcessor(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Processor = processor
	a.Aggregator = aggregation.NewAggregator(store, cfg.Aggregation.WindowMinutes, time.Now)

	return a, nil
}

func (a *App) buildProcessor(ctx context.Context) (*ingestion.Processor, error) {
	cfg := a.Config
	ttl := time.Duration(cfg.Redis.TTLHours) * time.Hour

	// A nil *redis.Client must not reach the scorer as a non-nil interface.
	var sentimentCache sentiment.Cache
	var sectorCache sector.Cache
	if a.Cache != nil {
		sentimentCache = a.Cache
		sectorCache = a.Cache
	}

	hf := inference.NewClient(inference.Config{
		Endpoint: cfg.HuggingFace.Endpoint,
		Token:    cfg.HuggingFace.Token,
		Timeout:  cfg.HuggingFace.Timeout(),
	})

	scorer := sentiment.NewScorer(hf, sentimentCache, sentiment.Config{
		Model:    cfg.HuggingFace.SentimentModel,
		MaxChars: cfg.Pipeline.SentimentMaxChars,
		CacheTTL: ttl,
	})
	classifier := sector.NewClassifier(hf, a.Store, sectorCache, sector.ClassifierConfig{
		Model:     cfg.HuggingFace.ZeroShotModel,
		Threshold: cfg.Pipeline.SectorThreshold,
		MinLength: cfg.Pipeline.MinClassifyLength,
		CacheTTL:  ttl,
	})

	lex, err := lexicon.Default()
	if err != nil {
		return nil, err
	}

	var enricher ingestion.Enricher
	oracle, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		logger.Warn("Generative oracle unavailable, signal extraction disabled", zap.Error(err))
	} else {
		enricher = signals.NewExtractor(a.Store, oracle, lex, sector.NewMapper(a.Store), signals.Config{
			BatchSize:       cfg.Pipeline.BatchSize,
			SnippetLength:   cfg.Pipeline.SnippetLength,
			MaxTickerPasses: cfg.Pipeline.MaxTickerPasses,
			Lookback:        cfg.Pipeline.Lookback(),
		})
	}

	return ingestion.NewProcessor(a.Store, buildSources(cfg.Sources), scorer, classifier, enricher,
		ingestion.WithBacklog(cfg.Pipeline.Lookback(), 0),
	), nil
}

// buildSources skips providers that are disabled or have no credentials.
// Each adapter builds its own HTTP client from its timeout.
func buildSources(cfg config.SourcesConfig) []sources.Source {
	var srcs []sources.Source
	if cfg.Mediastack.Enabled && cfg.Mediastack.APIKey != "" {
		srcs = append(srcs, sources.NewMediastack(cfg.Mediastack, nil))
	}
	if cfg.AlphaVantage.Enabled && cfg.AlphaVantage.APIKey != "" {
		srcs = append(srcs, sources.NewAlphaVantage(cfg.AlphaVantage, nil))
	}
	if cfg.Exchange.Enabled && cfg.Exchange.Token != "" {
		srcs = append(srcs, sources.NewExchange(cfg.Exchange, nil))
	}
	if len(srcs) == 0 {
		logger.Warn("No news sources configured")
	}
	return srcs
}

// StartScheduler registers the ingest and aggregate jobs and starts firing
// them, once immediately and then on their intervals.
func (a *App) StartScheduler() error {
	s := scheduler.New(30 * time.Minute)

	ingestEvery := time.Duration(a.Config.Pipeline.IngestIntervalMinutes) * time.Minute
	if err := s.Register(JobIngest, ingestEvery, func(ctx context.Context) error {
		_, err := a.Processor.RunCycle(ctx)
		return err
	}); err != nil {
		return err
	}

	aggregateEvery := time.Duration(a.Config.Aggregation.WindowMinutes) * time.Minute
	if err := s.Register(JobAggregate, aggregateEvery, func(ctx context.Context) error {
		_, err := a.Aggregator.RunCycle(ctx)
		return err
	}); err != nil {
		return err
	}

	a.Scheduler = s
	s.Start(true)
	return nil
}

// Close stops the scheduler and releases storage and cache connections.
func (a *App) Close() error {
	if a.Scheduler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Scheduler.Stop(ctx); err != nil {
			logger.Warn("Scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
