package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/logger"
)

// RawRecord is one provider item decoded from JSON. Numbers are kept as
// json.Number.
type RawRecord map[string]any

// String returns the trimmed string form of key, or "" when absent.
func (r RawRecord) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Source is one news provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]RawRecord, error)
	// Normalize maps a record to the common schema. ok is false for records
	// that carry neither a title nor a URL.
	Normalize(rec RawRecord) (models.ArticleInput, bool)
}

// Batch is the successful output of one source in a cycle.
type Batch struct {
	Source  Source
	Records []RawRecord
}

// FetchAll fetches every source concurrently. A failing source is logged
// and left out; the remaining batches keep the order of srcs.
func FetchAll(ctx context.Context, srcs []Source) []Batch {
	results := make([]*Batch, len(srcs))

	var g errgroup.Group
	for i, src := range srcs {
		g.Go(func() error {
			start := time.Now()
			records, err := src.Fetch(ctx)
			if err != nil {
				metrics.SourceFetches.WithLabelValues(src.Name(), "error").Inc()
				logger.Warn("Source fetch failed",
					zap.String("source", src.Name()),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err),
				)
				return nil
			}

			metrics.SourceFetches.WithLabelValues(src.Name(), "ok").Inc()
			logger.Info("Source fetched",
				zap.String("source", src.Name()),
				zap.Int("records", len(records)),
				zap.Duration("elapsed", time.Since(start)),
			)
			results[i] = &Batch{Source: src, Records: records}
			return nil
		})
	}
	_ = g.Wait()

	batches := make([]Batch, 0, len(srcs))
	for _, b := range results {
		if b != nil {
			batches = append(batches, *b)
		}
	}
	return batches
}

func hasIdentity(title, url string) bool {
	return title != "" || url != ""
}
