package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marketpulse/backend/internal/storage/models"
)

// SectorWindowStats groups scored articles with a resolved sector whose
// processed_at falls within [start, end] (unix seconds, inclusive).
func (c *Client) SectorWindowStats(ctx context.Context, start, end int64) ([]models.SectorWindowStat, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT sector_id, AVG(sentiment_score), AVG(impact_confidence), COUNT(*)
		FROM news
		WHERE processed_at >= ? AND processed_at <= ?
			AND sentiment_score IS NOT NULL
			AND sector_id IS NOT NULL AND sector_id != ?
		GROUP BY sector_id
		ORDER BY sector_id`,
		start, end, models.SectorUnassigned,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sector window stats: %w", err)
	}
	defer rows.Close()

	var stats []models.SectorWindowStat
	for rows.Next() {
		var (
			s         models.SectorWindowStat
			avgSent   sql.NullFloat64
			relevance sql.NullFloat64
		)
		if err := rows.Scan(&s.SectorID, &avgSent, &relevance, &s.NewsCount); err != nil {
			return nil, fmt.Errorf("failed to scan window stat: %w", err)
		}
		if !avgSent.Valid || s.NewsCount == 0 {
			continue
		}
		s.AvgSentiment = avgSent.Float64
		s.AvgRelevance = floatFromNull(relevance)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// InsertAggregate appends one snapshot row. Rows are never updated.
func (c *Client) InsertAggregate(ctx context.Context, agg *models.SentimentAggregate) (int64, error) {
	var relevance any
	if agg.AvgRelevance != nil {
		relevance = *agg.AvgRelevance
	}

	var id int64
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sentiment_aggregates
				(sector_id, window_start, window_end, avg_sentiment, avg_relevance, news_count, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			agg.SectorID, agg.WindowStart.Unix(), agg.WindowEnd.Unix(), agg.AvgSentiment,
			relevance, agg.NewsCount, agg.ComputedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert aggregate for sector %d: %w", agg.SectorID, err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	agg.ID = id
	return id, nil
}

const aggregateSelect = `
	SELECT a.id, a.sector_id, COALESCE(s.name, ''), a.window_start, a.window_end,
		a.avg_sentiment, a.avg_relevance, a.news_count, a.computed_at
	FROM sentiment_aggregates a
	LEFT JOIN sectors s ON s.id = a.sector_id`

// LatestAggregates returns the greatest-id row for every sector.
func (c *Client) LatestAggregates(ctx context.Context) ([]models.SentimentAggregate, error) {
	return c.queryAggregates(ctx, aggregateSelect+`
		WHERE a.id IN (SELECT MAX(id) FROM sentiment_aggregates GROUP BY sector_id)
		ORDER BY a.sector_id`)
}

// AggregateHistory returns a sector's rows newest first.
func (c *Client) AggregateHistory(ctx context.Context, sectorID int64, limit int) ([]models.SentimentAggregate, error) {
	if limit <= 0 {
		limit = 100
	}
	return c.queryAggregates(ctx, aggregateSelect+`
		WHERE a.sector_id = ?
		ORDER BY a.id DESC
		LIMIT ?`, sectorID, limit)
}

func (c *Client) queryAggregates(ctx context.Context, query string, args ...any) ([]models.SentimentAggregate, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var out []models.SentimentAggregate
	for rows.Next() {
		var (
			a                    models.SentimentAggregate
			start, end, computed int64
			relevance            sql.NullFloat64
		)
		err := rows.Scan(&a.ID, &a.SectorID, &a.SectorName, &start, &end,
			&a.AvgSentiment, &relevance, &a.NewsCount, &computed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		a.WindowStart = time.Unix(start, 0).UTC()
		a.WindowEnd = time.Unix(end, 0).UTC()
		a.ComputedAt = time.Unix(computed, 0).UTC()
		a.AvgRelevance = floatFromNull(relevance)
		out = append(out, a)
	}
	return out, rows.Err()
}
