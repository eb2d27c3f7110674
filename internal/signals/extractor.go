package signals

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/logger"
	"github.com/marketpulse/backend/pkg/utils"
)

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Store interface {
	ListUnenriched(ctx context.Context, q models.UnenrichedQuery) ([]*models.Article, error)
	ApplySignal(ctx context.Context, id int64, u models.SignalUpdate) ([]string, error)
	AssignSector(ctx context.Context, id, sectorID int64) (bool, error)
}

type SectorMapper interface {
	Resolve(ctx context.Context, tickers []string) (int64, bool, error)
	Extend(ctx context.Context, sectorID int64, tickers []string) ([]string, error)
}

type TickerScanner interface {
	Scan(text string) []string
}

type Config struct {
	BatchSize       int
	SnippetLength   int
	MaxTickerPasses int
	Lookback        time.Duration
}

type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomePartial Outcome = "partial"
)

// CycleResult summarises one enrichment pass.
type CycleResult struct {
	Outcome   Outcome
	Parse     ParseStatus
	Selected  int
	Applied   int
	Discarded int
	Sectors   int
}

// Extractor enriches processed articles with impact signals from a
// generative oracle, fuses tickers with the lexicon and resolves sectors.
type Extractor struct {
	store   Store
	oracle  Generator
	lexicon TickerScanner
	mapper  SectorMapper
	cfg     Config
	now     func() time.Time
}

type Option func(*Extractor)

func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

func NewExtractor(store Store, oracle Generator, lex TickerScanner, mapper SectorMapper, cfg Config, opts ...Option) *Extractor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = 600
	}
	if cfg.MaxTickerPasses <= 0 {
		cfg.MaxTickerPasses = 3
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 48 * time.Hour
	}

	e := &Extractor{
		store:   store,
		oracle:  oracle,
		lexicon: lex,
		mapper:  mapper,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunCycle enriches one batch. An oracle failure or unparseable reply
// leaves every article untouched and yields OutcomePartial. Only a failure
// to select the batch is returned as an error.
func (e *Extractor) RunCycle(ctx context.Context) (CycleResult, error) {
	now := e.now().UTC()
	batch, err := e.store.ListUnenriched(ctx, models.UnenrichedQuery{
		Since:           now.Add(-e.cfg.Lookback),
		Limit:           e.cfg.BatchSize,
		MaxTickerPasses: e.cfg.MaxTickerPasses,
	})
	if err != nil {
		return CycleResult{Outcome: OutcomePartial, Parse: ParseFailed}, fmt.Errorf("failed to select batch: %w", err)
	}

	result := CycleResult{Outcome: OutcomeDone, Parse: ParseOK, Selected: len(batch)}
	if len(batch) == 0 {
		return result, nil
	}

	signals, status := e.extract(ctx, batch)
	result.Parse = status
	if status == ParseFailed {
		result.Outcome = OutcomePartial
		return result, nil
	}

	byID := make(map[int64]*models.Article, len(batch))
	for _, a := range batch {
		byID[a.ID] = a
	}

	for _, sig := range signals {
		article, ok := byID[sig.ID]
		if !ok {
			result.Discarded++
			continue
		}
		// A duplicate id in the reply applies once.
		delete(byID, sig.ID)

		assigned, err := e.apply(ctx, article, sig)
		if err != nil {
			result.Outcome = OutcomePartial
			logger.Warn("Failed to apply signal",
				zap.Int64("news_id", article.ID),
				zap.Error(err),
			)
			continue
		}
		result.Applied++
		if assigned {
			result.Sectors++
		}
	}

	metrics.ArticlesEnriched.Add(float64(result.Applied))
	logger.Info("Signal extraction cycle finished",
		zap.String("outcome", string(result.Outcome)),
		zap.String("parse", result.Parse.String()),
		zap.Int("selected", result.Selected),
		zap.Int("applied", result.Applied),
		zap.Int("discarded", result.Discarded),
		zap.Int("sectors_assigned", result.Sectors),
	)
	return result, nil
}

func (e *Extractor) extract(ctx context.Context, batch []*models.Article) ([]Signal, ParseStatus) {
	prompt, err := BuildPrompt(batch, e.cfg.SnippetLength)
	if err != nil {
		logger.Error("Failed to build signal prompt", zap.Error(err))
		return nil, ParseFailed
	}

	reply, err := e.oracle.Generate(ctx, prompt)
	if err != nil {
		metrics.SignalParse.WithLabelValues("oracle_error").Inc()
		logger.Warn("Signal oracle failed", zap.Int("batch", len(batch)), zap.Error(err))
		return nil, ParseFailed
	}

	parsed := Parse(reply)
	metrics.SignalParse.WithLabelValues(parsed.Status.String()).Inc()
	if parsed.Status == ParseFailed {
		logger.Warn("Signal reply could not be parsed",
			zap.Int("batch", len(batch)),
			zap.String("reply", utils.Truncate(reply, 200)),
		)
		return nil, ParseFailed
	}

	signals := make([]Signal, 0, len(parsed.Entries))
	for _, entry := range parsed.Entries {
		if sig, ok := Reconcile(entry); ok {
			signals = append(signals, sig)
		}
	}
	return signals, parsed.Status
}

// apply writes one signal and resolves the article's sector from the fused
// ticker set. It reports whether a sector was newly assigned.
func (e *Extractor) apply(ctx context.Context, article *models.Article, sig Signal) (bool, error) {
	var scanned []string
	if e.lexicon != nil {
		scanned = e.lexicon.Scan(article.Text())
	}
	fused := utils.UniqueUpper(article.Tickers, sig.Tickers, scanned)

	merged, err := e.store.ApplySignal(ctx, article.ID, models.SignalUpdate{
		Tickers:          fused,
		ImpactLabel:      sig.ImpactLabel,
		ImpactConfidence: sig.ImpactConfidence,
		ImpactSummary:    sig.ImpactSummary,
		Topics:           sig.Topics,
		ProcessedAt:      e.now().UTC(),
	})
	if err != nil {
		return false, err
	}

	if len(merged) == 0 || e.mapper == nil {
		return false, nil
	}

	sectorID, found, err := e.mapper.Resolve(ctx, merged)
	if err != nil {
		logger.Warn("Sector resolution failed", zap.Int64("news_id", article.ID), zap.Error(err))
		return false, nil
	}

	if found {
		if article.HasResolvedSector() {
			return false, nil
		}
		changed, err := e.store.AssignSector(ctx, article.ID, sectorID)
		if err != nil {
			logger.Warn("Failed to assign sector", zap.Int64("news_id", article.ID), zap.Error(err))
			return false, nil
		}
		return changed, nil
	}

	if article.HasResolvedSector() {
		added, err := e.mapper.Extend(ctx, *article.SectorID, merged)
		if err != nil {
			logger.Warn("Failed to extend sector membership",
				zap.Int64("news_id", article.ID),
				zap.Int64("sector_id", *article.SectorID),
				zap.Error(err),
			)
			return false, nil
		}
		if len(added) > 0 {
			logger.Info("Sector membership extended",
				zap.Int64("sector_id", *article.SectorID),
				zap.Strings("tickers", added),
			)
		}
	}
	return false, nil
}
