package sector

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/inference"
	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/logger"
	"github.com/marketpulse/backend/pkg/utils"
)

const zeroShotCacheKind = "zeroshot"

type ZeroShotter interface {
	ZeroShot(ctx context.Context, model, text string, candidates []string) ([]inference.Label, error)
}

type Cache interface {
	GetJSON(ctx context.Context, kind, id string, dest any) (bool, error)
	SetJSON(ctx context.Context, kind, id string, value any, ttl time.Duration) error
}

type SectorLister interface {
	ListSectors(ctx context.Context) ([]*models.Sector, error)
}

type ClassifierConfig struct {
	Model     string
	Threshold float64
	MinLength int
	MaxChars  int
	CacheTTL  time.Duration
}

// Classifier assigns free text to one of the stored sectors by name.
type Classifier struct {
	oracle ZeroShotter
	store  SectorLister
	cache  Cache
	cfg    ClassifierConfig
}

func NewClassifier(oracle ZeroShotter, store SectorLister, cache Cache, cfg ClassifierConfig) *Classifier {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.55
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = 15
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 500
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Classifier{oracle: oracle, store: store, cache: cache, cfg: cfg}
}

// Classify returns a sector id when the oracle's top label scores at least
// the threshold. When the oracle itself fails, the sector with the most
// keyword hits is used instead.
func (c *Classifier) Classify(ctx context.Context, text string) (int64, bool) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < c.cfg.MinLength {
		return 0, false
	}

	sectors, err := c.store.ListSectors(ctx)
	if err != nil {
		logger.Warn("Failed to load sectors for classification", zap.Error(err))
		return 0, false
	}
	if len(sectors) == 0 {
		logger.Warn("No sectors stored, skipping classification")
		return 0, false
	}

	names := make([]string, len(sectors))
	for i, s := range sectors {
		names[i] = s.Name
	}

	input := utils.Truncate(text, c.cfg.MaxChars)
	labels, err := c.zeroShot(ctx, input, names)
	if err != nil {
		logger.Warn("Zero-shot oracle failed, using keyword fallback", zap.Error(err))
		id, ok := MatchKeywords(sectors, text)
		if ok {
			metrics.SectorAssignments.WithLabelValues("keywords").Inc()
		}
		return id, ok
	}

	if len(labels) == 0 {
		return 0, false
	}

	top := labels[0]
	if top.Score < c.cfg.Threshold {
		logger.Debug("Sector confidence below threshold",
			zap.String("label", top.Label),
			zap.Float64("score", top.Score),
		)
		return 0, false
	}

	for _, s := range sectors {
		if strings.EqualFold(s.Name, top.Label) {
			metrics.SectorAssignments.WithLabelValues("zero_shot").Inc()
			return s.ID, true
		}
	}

	logger.Warn("Zero-shot label does not match any sector", zap.String("label", top.Label))
	return 0, false
}

func (c *Classifier) zeroShot(ctx context.Context, text string, names []string) ([]inference.Label, error) {
	key := utils.HashKey(append([]string{c.cfg.Model, text}, names...)...)

	if c.cache != nil {
		var cached []inference.Label
		hit, err := c.cache.GetJSON(ctx, zeroShotCacheKind, key, &cached)
		if err != nil {
			logger.Warn("Zero-shot cache read failed", zap.Error(err))
		} else if hit && len(cached) > 0 {
			return cached, nil
		}
	}

	labels, err := c.oracle.ZeroShot(ctx, c.cfg.Model, text, names)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && len(labels) > 0 {
		if err := c.cache.SetJSON(ctx, zeroShotCacheKind, key, labels, c.cfg.CacheTTL); err != nil {
			logger.Warn("Zero-shot cache write failed", zap.Error(err))
		}
	}
	return labels, nil
}

// MatchKeywords picks the sector whose keywords occur most often in text as
// whole words. Ties go to the lower id; no hits means unresolved.
func MatchKeywords(sectors []*models.Sector, text string) (int64, bool) {
	words := strings.FieldsFunc(strings.ToLower(text), isSeparator)

	var (
		bestID   int64
		bestHits int
	)
	for _, s := range sectors {
		hits := 0
		for _, kw := range s.Keywords {
			hits += countPhrase(words, strings.FieldsFunc(strings.ToLower(kw), isSeparator))
		}
		if hits > bestHits || (hits == bestHits && hits > 0 && s.ID < bestID) {
			bestID, bestHits = s.ID, hits
		}
	}
	return bestID, bestHits > 0
}

func countPhrase(words, phrase []string) int {
	if len(phrase) == 0 {
		return 0
	}
	n := 0
outer:
	for i := 0; i+len(phrase) <= len(words); i++ {
		for j, p := range phrase {
			if words[i+j] != p {
				continue outer
			}
		}
		n++
	}
	return n
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
}
