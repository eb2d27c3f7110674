package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/marketpulse/backend/internal/storage/models"
)

const mentionsTicker = `EXISTS (SELECT 1 FROM json_each(news.tickers) WHERE json_each.value = ?)`

// RecentArticles lists the newest articles by publication time, falling back
// to fetch time for records without one.
func (c *Client) RecentArticles(ctx context.Context, limit int) ([]*models.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	return c.queryArticles(ctx, "recent", `
		SELECT `+articleColumns+` FROM news
		ORDER BY COALESCE(published_at, fetched_at) DESC, id DESC
		LIMIT ?`, limit)
}

func (c *Client) ArticlesBySector(ctx context.Context, sectorID int64, limit int) ([]*models.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	return c.queryArticles(ctx, "sector", `
		SELECT `+articleColumns+` FROM news
		WHERE sector_id = ?
		ORDER BY COALESCE(published_at, fetched_at) DESC, id DESC
		LIMIT ?`, sectorID, limit)
}

// ArticlesByTicker lists processed articles naming ticker, newest processed
// first. ticker must already be in canonical form.
func (c *Client) ArticlesByTicker(ctx context.Context, ticker string, limit int) ([]*models.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	return c.queryArticles(ctx, "ticker", `
		SELECT `+articleColumns+` FROM news
		WHERE processed_at IS NOT NULL AND `+mentionsTicker+`
		ORDER BY processed_at DESC, id DESC
		LIMIT ?`, ticker, limit)
}

// TickerOverview averages sentiment and impact confidence over every scored
// article naming ticker. An unknown ticker yields zero mentions.
func (c *Client) TickerOverview(ctx context.Context, ticker string) (models.TickerStat, error) {
	stat := models.TickerStat{Ticker: ticker}
	var confidence sql.NullFloat64

	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(sentiment_score), 0), AVG(impact_confidence)
		FROM news
		WHERE sentiment_score IS NOT NULL AND `+mentionsTicker,
		ticker,
	).Scan(&stat.Mentions, &stat.AvgSentiment, &confidence)
	if err != nil {
		return stat, fmt.Errorf("failed to compute overview for %s: %w", ticker, err)
	}
	stat.AvgConfidence = floatFromNull(confidence)
	return stat, nil
}

// TickerStats ranks tickers across scored articles. Tickers named by fewer
// than q.MinMentions articles are left out.
func (c *Client) TickerStats(ctx context.Context, q models.TickerStatsQuery) ([]models.TickerStat, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.MinMentions <= 0 {
		q.MinMentions = 1
	}
	var since int64
	if !q.Since.IsZero() {
		since = q.Since.Unix()
	}

	order := `COUNT(*) DESC, t.value ASC`
	switch q.Order {
	case models.TickerOrderBullish:
		order = `AVG(n.sentiment_score) DESC, COUNT(*) DESC, t.value ASC`
	case models.TickerOrderBearish:
		order = `AVG(n.sentiment_score) ASC, COUNT(*) DESC, t.value ASC`
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT t.value, COUNT(*), AVG(n.sentiment_score), AVG(n.impact_confidence)
		FROM news n, json_each(n.tickers) t
		WHERE n.sentiment_score IS NOT NULL
			AND COALESCE(n.published_at, n.fetched_at) >= ?
		GROUP BY t.value
		HAVING COUNT(*) >= ?
		ORDER BY `+order+`
		LIMIT ?`,
		since, q.MinMentions, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ticker stats: %w", err)
	}
	defer rows.Close()

	stats := []models.TickerStat{}
	for rows.Next() {
		var (
			s          models.TickerStat
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&s.Ticker, &s.Mentions, &s.AvgSentiment, &confidence); err != nil {
			return nil, fmt.Errorf("failed to scan ticker stat: %w", err)
		}
		s.AvgConfidence = floatFromNull(confidence)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// SectorSummaries averages the sentiment of all scored articles per resolved
// sector, most positive first.
func (c *Client) SectorSummaries(ctx context.Context) ([]models.SectorSummary, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT s.id, s.name, AVG(n.sentiment_score), COUNT(n.id)
		FROM sectors s
		JOIN news n ON n.sector_id = s.id
		WHERE n.sentiment_score IS NOT NULL
		GROUP BY s.id, s.name
		ORDER BY AVG(n.sentiment_score) DESC, s.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize sectors: %w", err)
	}
	defer rows.Close()

	out := []models.SectorSummary{}
	for rows.Next() {
		var s models.SectorSummary
		if err := rows.Scan(&s.SectorID, &s.Name, &s.AvgSentiment, &s.NewsCount); err != nil {
			return nil, fmt.Errorf("failed to scan sector summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
