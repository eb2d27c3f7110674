package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/logger"
	"github.com/marketpulse/backend/pkg/utils"
)

var ErrNotFound = errors.New("record not found")

const articleColumns = `id, url, source, title, content, language, image_url, raw_payload,
	published_at, fetched_at, processed_at, tickers, sector_id,
	sentiment_score, sentiment_label, sentiment_confidence,
	impact_label, impact_confidence, impact_summary, topics, enrich_passes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var (
		a              models.Article
		url, raw       sql.NullString
		published      sql.NullInt64
		fetched        int64
		processed      sql.NullInt64
		tickers        sql.NullString
		sectorID       sql.NullInt64
		sentScore      sql.NullFloat64
		sentLabel      sql.NullString
		sentConfidence sql.NullFloat64
		impactLabel    sql.NullString
		impactConf     sql.NullFloat64
		impactSummary  sql.NullString
		topics         sql.NullString
	)

	err := row.Scan(
		&a.ID, &url, &a.Source, &a.Title, &a.Content, &a.Language, &a.ImageURL, &raw,
		&published, &fetched, &processed, &tickers, &sectorID,
		&sentScore, &sentLabel, &sentConfidence,
		&impactLabel, &impactConf, &impactSummary, &topics, &a.EnrichPasses,
	)
	if err != nil {
		return nil, err
	}

	a.URL = url.String
	if raw.Valid {
		a.RawPayload = []byte(raw.String)
	}
	a.PublishedAt = timeFromNull(published)
	a.FetchedAt = time.Unix(fetched, 0).UTC()
	a.ProcessedAt = timeFromNull(processed)
	a.Tickers = decodeList(tickers)
	a.SectorID = int64FromNull(sectorID)
	a.SentimentScore = floatFromNull(sentScore)
	a.SentimentLabel = stringFromNull(sentLabel)
	a.SentimentConfidence = floatFromNull(sentConfidence)
	a.ImpactLabel = stringFromNull(impactLabel)
	a.ImpactConfidence = floatFromNull(impactConf)
	a.ImpactSummary = stringFromNull(impactSummary)
	a.Topics = decodeList(topics)

	return &a, nil
}

// CreateArticle inserts a normalized record. A record whose URL is already
// stored yields (nil, nil). Records without a URL are keyed on source, title
// and publication time instead.
func (c *Client) CreateArticle(ctx context.Context, in models.ArticleInput) (*models.Article, error) {
	var urlValue any
	if in.URL != "" {
		urlValue = in.URL
	}
	var raw any
	if len(in.RawPayload) > 0 {
		raw = string(in.RawPayload)
	}

	tickers := utils.UniqueUpper(in.Tickers)
	fetchedAt := c.clock().UTC()

	var id int64
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO news (url, source, title, content, language, image_url, raw_payload,
				published_at, fetched_at, tickers, sector_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			urlValue, in.Source, in.Title, in.Content, in.Language, in.ImageURL, raw,
			unixOrNil(in.PublishedAt), fetchedAt.Unix(), encodeList(tickers), models.SectorUnassigned,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			logger.Debug("Article already stored", zap.String("url", in.URL), zap.String("source", in.Source))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to insert article: %w", err)
	}

	return c.GetArticle(ctx, id)
}

func (c *Client) GetArticle(ctx context.Context, id int64) (*models.Article, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM news WHERE id = ?`, id)
	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get article %d: %w", id, err)
	}
	return a, nil
}

// UpdateSentiment records the scorer result and marks the article processed.
// A sector id is only written while the current one is unset or unassigned.
func (c *Client) UpdateSentiment(ctx context.Context, id int64, u models.SentimentUpdate) error {
	var sector any
	if u.SectorID != nil {
		sector = *u.SectorID
	}

	return c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE news SET
				sentiment_score = ?1,
				sentiment_label = ?2,
				sentiment_confidence = ?3,
				processed_at = ?4,
				sector_id = CASE
					WHEN ?5 IS NOT NULL AND (sector_id IS NULL OR sector_id = ?6) THEN ?5
					ELSE sector_id
				END
			WHERE id = ?7`,
			u.Score, u.Label, u.Confidence, u.ProcessedAt.Unix(),
			sector, models.SectorUnassigned, id,
		)
		if err != nil {
			return fmt.Errorf("failed to update sentiment for article %d: %w", id, err)
		}
		return requireAffected(res, id)
	})
}

// ListUnenriched selects processed articles still missing an impact label, or
// still without tickers while passes remain, newest processed first.
func (c *Client) ListUnenriched(ctx context.Context, q models.UnenrichedQuery) ([]*models.Article, error) {
	return c.queryArticles(ctx, "unenriched", `
		SELECT `+articleColumns+` FROM news
		WHERE processed_at IS NOT NULL
			AND (
				impact_label IS NULL
				OR ((tickers IS NULL OR tickers = '' OR tickers = '[]') AND enrich_passes < ?)
			)
			AND COALESCE(published_at, fetched_at) >= ?
		ORDER BY processed_at DESC, id DESC
		LIMIT ?`,
		q.MaxTickerPasses, q.Since.Unix(), q.Limit,
	)
}

// ListUnscored selects articles fetched since the given time that were never
// marked processed, newest fetched first.
func (c *Client) ListUnscored(ctx context.Context, since time.Time, limit int) ([]*models.Article, error) {
	if limit <= 0 {
		limit = 100
	}
	return c.queryArticles(ctx, "unscored", `
		SELECT `+articleColumns+` FROM news
		WHERE processed_at IS NULL AND fetched_at >= ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT ?`,
		since.Unix(), limit,
	)
}

// queryArticles runs an articleColumns select. The result is never nil.
func (c *Client) queryArticles(ctx context.Context, what, query string, args ...any) ([]*models.Article, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s articles: %w", what, err)
	}
	defer rows.Close()

	articles := []*models.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// ApplySignal merges an enrichment result into the stored article and returns
// the resulting ticker set. Stored tickers are never dropped.
func (c *Client) ApplySignal(ctx context.Context, id int64, u models.SignalUpdate) ([]string, error) {
	var merged []string
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		var stored sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT tickers FROM news WHERE id = ?`, id).Scan(&stored)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to read tickers for article %d: %w", id, err)
		}

		merged = utils.UniqueUpper(decodeList(stored), u.Tickers)

		_, err = tx.ExecContext(ctx, `
			UPDATE news SET
				tickers = ?,
				impact_label = ?,
				impact_confidence = ?,
				impact_summary = ?,
				topics = ?,
				processed_at = ?,
				enrich_passes = enrich_passes + 1
			WHERE id = ?`,
			encodeList(merged), u.ImpactLabel, u.ImpactConfidence, u.ImpactSummary,
			encodeList(u.Topics), u.ProcessedAt.Unix(), id,
		)
		if err != nil {
			return fmt.Errorf("failed to apply signal to article %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// AssignSector writes sectorID only when the article's sector is unset or
// unassigned. It reports whether the row changed.
func (c *Client) AssignSector(ctx context.Context, id, sectorID int64) (bool, error) {
	var changed bool
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE news SET sector_id = ?
			WHERE id = ? AND (sector_id IS NULL OR sector_id = ?)`,
			sectorID, id, models.SectorUnassigned,
		)
		if err != nil {
			return fmt.Errorf("failed to assign sector to article %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n > 0
		return nil
	})
	return changed, err
}

// CountArticles returns the number of stored articles whose source matches,
// or all articles when source is empty.
func (c *Client) CountArticles(ctx context.Context, source string) (int, error) {
	query := `SELECT COUNT(*) FROM news`
	var args []any
	if source = strings.TrimSpace(source); source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}

	var n int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return n, nil
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return nil
}

// Spotlight lists ticker-bearing articles whose impact confidence is at
// least q.MinConfidence, published since q.Since, newest processed first.
func (c *Client) Spotlight(ctx context.Context, q models.SpotlightQuery) ([]*models.Article, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}

	return c.queryArticles(ctx, "spotlight", `
		SELECT `+articleColumns+` FROM news
		WHERE impact_confidence >= ?
			AND tickers IS NOT NULL AND tickers != '' AND tickers != '[]'
			AND published_at >= ?
		ORDER BY processed_at DESC, id DESC
		LIMIT ?`,
		q.MinConfidence, q.Since.Unix(), q.Limit,
	)
}
