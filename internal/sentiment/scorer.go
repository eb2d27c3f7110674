package sentiment

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/inference"
	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/pkg/logger"
	"github.com/marketpulse/backend/pkg/utils"
)

const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"

	cacheKind = "sentiment"
)

type Result struct {
	Sentiment  float64 `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

// Neutral is returned whenever the oracle cannot produce a usable answer.
var Neutral = Result{Sentiment: 0, Confidence: 0, Label: LabelNeutral}

type TextClassifier interface {
	TextClassification(ctx context.Context, model, text string) ([]inference.Label, error)
}

type Cache interface {
	GetJSON(ctx context.Context, kind, id string, dest any) (bool, error)
	SetJSON(ctx context.Context, kind, id string, value any, ttl time.Duration) error
}

type Config struct {
	Model    string
	MaxChars int
	CacheTTL time.Duration
}

type Scorer struct {
	oracle TextClassifier
	cache  Cache
	cfg    Config
}

// NewScorer builds a scorer. cache may be nil.
func NewScorer(oracle TextClassifier, cache Cache, cfg Config) *Scorer {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 2000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Scorer{oracle: oracle, cache: cache, cfg: cfg}
}

// Score maps the top-ranked label to a signed scalar in [-1, 1]. It never
// fails: any oracle problem yields Neutral.
func (s *Scorer) Score(ctx context.Context, text string) Result {
	text = utils.Truncate(strings.TrimSpace(text), s.cfg.MaxChars)
	if text == "" {
		return Neutral
	}

	key := utils.HashKey(s.cfg.Model, text)
	if s.cache != nil {
		var cached Result
		hit, err := s.cache.GetJSON(ctx, cacheKind, key, &cached)
		if err != nil {
			logger.Warn("Sentiment cache read failed", zap.Error(err))
		} else if hit {
			return cached
		}
	}

	labels, err := s.oracle.TextClassification(ctx, s.cfg.Model, text)
	if err != nil {
		logger.Warn("Sentiment oracle failed, using neutral", zap.Error(err))
		return Neutral
	}

	result, ok := FromLabels(labels)
	if !ok {
		logger.Warn("Sentiment oracle returned no usable label, using neutral")
		return Neutral
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKind, key, result, s.cfg.CacheTTL); err != nil {
			logger.Warn("Sentiment cache write failed", zap.Error(err))
		}
	}

	metrics.ArticlesScored.WithLabelValues(result.Label).Inc()
	return result
}

// FromLabels converts a ranked label list into a Result using the
// highest-scoring entry.
func FromLabels(labels []inference.Label) (Result, bool) {
	if len(labels) == 0 {
		return Result{}, false
	}

	top := labels[0]
	for _, l := range labels[1:] {
		if l.Score > top.Score {
			top = l
		}
	}

	confidence := top.Score
	if math.IsNaN(confidence) || confidence < 0 {
		return Result{}, false
	}
	if confidence > 1 {
		confidence = 1
	}

	label := strings.ToLower(strings.TrimSpace(top.Label))
	switch label {
	case LabelPositive:
		return Result{Sentiment: confidence, Confidence: confidence, Label: label}, true
	case LabelNegative:
		return Result{Sentiment: -confidence, Confidence: confidence, Label: label}, true
	default:
		return Result{Sentiment: 0, Confidence: confidence, Label: label}, true
	}
}
