package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/internal/sentiment"
	"github.com/marketpulse/backend/internal/signals"
	"github.com/marketpulse/backend/internal/sources"
	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/logger"
)

type Store interface {
	CreateArticle(ctx context.Context, in models.ArticleInput) (*models.Article, error)
	UpdateSentiment(ctx context.Context, id int64, u models.SentimentUpdate) error
	ListUnscored(ctx context.Context, since time.Time, limit int) ([]*models.Article, error)
}

type Scorer interface {
	Score(ctx context.Context, text string) sentiment.Result
}

type SectorClassifier interface {
	Classify(ctx context.Context, text string) (int64, bool)
}

type Enricher interface {
	RunCycle(ctx context.Context) (signals.CycleResult, error)
}

// Report counts what one ingestion cycle did.
type Report struct {
	RunID      string
	Sources    int
	Fetched    int
	Inserted   int
	Duplicates int
	Dropped    int
	Failed     int
	Rescored   int
	Signals    signals.CycleResult
	Elapsed    time.Duration
}

// Processor runs the ingestion cycle: rescore stored articles an earlier
// cycle failed to mark processed, fetch every provider, store new articles,
// score sentiment and sector for each, then enrich a batch with impact
// signals.
type Processor struct {
	store      Store
	sources    []sources.Source
	scorer     Scorer
	classifier SectorClassifier
	enricher   Enricher
	now        func() time.Time

	backlogWindow time.Duration
	backlogLimit  int
}

type Option func(*Processor)

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithBacklog bounds the unscored articles picked up at the start of each
// cycle to those fetched within window, at most limit of them.
func WithBacklog(window time.Duration, limit int) Option {
	return func(p *Processor) {
		if window > 0 {
			p.backlogWindow = window
		}
		if limit > 0 {
			p.backlogLimit = limit
		}
	}
}

// NewProcessor wires a cycle. classifier and enricher may be nil.
func NewProcessor(store Store, srcs []sources.Source, scorer Scorer, classifier SectorClassifier, enricher Enricher, opts ...Option) *Processor {
	p := &Processor{
		store:      store,
		sources:    srcs,
		scorer:     scorer,
		classifier: classifier,
		enricher:   enricher,
		now:        time.Now,

		backlogWindow: 48 * time.Hour,
		backlogLimit:  100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) RunCycle(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{RunID: uuid.New().String(), Sources: len(p.sources)}
	log := logger.GetLogger().With(zap.String("run_id", report.RunID))

	log.Info("Ingestion cycle started", zap.Int("sources", len(p.sources)))

	report.Rescored = p.rescore(ctx, log)

	for _, batch := range sources.FetchAll(ctx, p.sources) {
		name := batch.Source.Name()
		for _, rec := range batch.Records {
			if err := ctx.Err(); err != nil {
				report.Elapsed = time.Since(start)
				return report, err
			}
			report.Fetched++

			in, ok := batch.Source.Normalize(rec)
			if !ok {
				report.Dropped++
				metrics.SourceRecords.WithLabelValues(name, "dropped").Inc()
				continue
			}

			article, err := p.store.CreateArticle(ctx, in)
			if err != nil {
				report.Failed++
				metrics.SourceRecords.WithLabelValues(name, "failed").Inc()
				log.Warn("Failed to store article",
					zap.String("source", name),
					zap.String("url", in.URL),
					zap.Error(err),
				)
				continue
			}
			if article == nil {
				report.Duplicates++
				metrics.SourceRecords.WithLabelValues(name, "duplicate").Inc()
				continue
			}

			report.Inserted++
			metrics.SourceRecords.WithLabelValues(name, "inserted").Inc()
			p.analyze(ctx, log, article)
		}
	}

	if p.enricher != nil {
		result, err := p.enricher.RunCycle(ctx)
		if err != nil {
			log.Warn("Signal extraction failed", zap.Error(err))
		}
		report.Signals = result
	}

	report.Elapsed = time.Since(start)
	log.Info("Ingestion cycle finished",
		zap.Int("fetched", report.Fetched),
		zap.Int("inserted", report.Inserted),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("dropped", report.Dropped),
		zap.Int("failed", report.Failed),
		zap.Int("rescored", report.Rescored),
		zap.String("signals", string(report.Signals.Outcome)),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// rescore runs analyze over stored articles still lacking processed_at. A
// failed update leaves them for the next cycle.
func (p *Processor) rescore(ctx context.Context, log *zap.Logger) int {
	pending, err := p.store.ListUnscored(ctx, p.now().Add(-p.backlogWindow), p.backlogLimit)
	if err != nil {
		log.Warn("Failed to list unscored articles", zap.Error(err))
		return 0
	}

	n := 0
	for _, article := range pending {
		if ctx.Err() != nil {
			break
		}
		if p.analyze(ctx, log, article) {
			n++
		}
	}
	if n > 0 {
		log.Info("Rescored stranded articles", zap.Int("count", n), zap.Int("pending", len(pending)))
	}
	return n
}

// analyze scores one stored article. Scoring is fail-soft, so the article is
// always marked processed unless the store update itself fails.
func (p *Processor) analyze(ctx context.Context, log *zap.Logger, article *models.Article) bool {
	text := article.Text()

	result := p.scorer.Score(ctx, text)

	update := models.SentimentUpdate{
		Score:      result.Sentiment,
		Label:      result.Label,
		Confidence: result.Confidence,
	}
	if p.classifier != nil {
		if id, ok := p.classifier.Classify(ctx, text); ok {
			update.SectorID = &id
		}
	}
	update.ProcessedAt = p.now().UTC()

	if err := p.store.UpdateSentiment(ctx, article.ID, update); err != nil {
		log.Warn("Failed to record sentiment",
			zap.Int64("news_id", article.ID),
			zap.Error(err),
		)
		return false
	}

	log.Debug("Article analyzed",
		zap.Int64("news_id", article.ID),
		zap.String("label", result.Label),
		zap.Float64("sentiment", result.Sentiment),
		zap.Bool("sector_resolved", update.SectorID != nil),
	)
	return true
}
