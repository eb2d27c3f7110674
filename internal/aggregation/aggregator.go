package aggregation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/logger"
)

type Store interface {
	SectorWindowStats(ctx context.Context, start, end int64) ([]models.SectorWindowStat, error)
	InsertAggregate(ctx context.Context, agg *models.SentimentAggregate) (int64, error)
}

// Aggregator rolls per-sector sentiment of recently processed articles into
// append-only window snapshots.
type Aggregator struct {
	store         Store
	windowMinutes int
	now           func() time.Time
}

func NewAggregator(store Store, windowMinutes int, now func() time.Time) *Aggregator {
	if windowMinutes <= 0 {
		windowMinutes = 15
	}
	if now == nil {
		now = time.Now
	}
	return &Aggregator{store: store, windowMinutes: windowMinutes, now: now}
}

// RunCycle computes the window ending now.
func (a *Aggregator) RunCycle(ctx context.Context) (int, error) {
	return a.Compute(ctx, a.now(), a.windowMinutes)
}

// Compute appends one row per sector with scored articles processed in
// [windowEnd - minutes, windowEnd], both ends inclusive at second
// precision. Sectors without articles get no row. A failed insert is
// logged and skipped; the count of appended rows is returned.
func (a *Aggregator) Compute(ctx context.Context, windowEnd time.Time, minutes int) (int, error) {
	if minutes <= 0 {
		return 0, fmt.Errorf("window must be positive, got %d minutes", minutes)
	}

	end := windowEnd.Unix()
	start := end - int64(minutes)*60

	stats, err := a.store.SectorWindowStats(ctx, start, end)
	if err != nil {
		return 0, err
	}

	startTime := time.Unix(start, 0).UTC()
	endTime := time.Unix(end, 0).UTC()
	computedAt := a.now().UTC()

	written := 0
	for _, s := range stats {
		if s.NewsCount == 0 {
			continue
		}
		agg := &models.SentimentAggregate{
			SectorID:     s.SectorID,
			WindowStart:  startTime,
			WindowEnd:    endTime,
			AvgSentiment: s.AvgSentiment,
			AvgRelevance: s.AvgRelevance,
			NewsCount:    s.NewsCount,
			ComputedAt:   computedAt,
		}
		if _, err := a.store.InsertAggregate(ctx, agg); err != nil {
			logger.Warn("Failed to store aggregate",
				zap.Int64("sector_id", s.SectorID),
				zap.Error(err),
			)
			continue
		}
		written++
	}

	metrics.AggregateRows.Add(float64(written))
	logger.Info("Sentiment aggregation finished",
		zap.Time("window_start", startTime),
		zap.Time("window_end", endTime),
		zap.Int("sectors", len(stats)),
		zap.Int("rows", written),
	)
	return written, nil
}
