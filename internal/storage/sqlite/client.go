package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/pkg/logger"
)

type Client struct {
	db    *sql.DB
	clock func() time.Time
}

type Option func(*Client)

// WithClock overrides the time source used for fetched_at and similar
// store-assigned timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

func NewClient(dbPath string, busyTimeoutMS int, opts ...Option) (*Client, error) {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}

	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(busyTimeoutMS))
	params.Set("_journal_mode", "WAL")
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	c := &Client{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return c, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sectors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',
		tickers TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS news (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE,
		source TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		raw_payload TEXT,
		published_at INTEGER,
		fetched_at INTEGER NOT NULL,
		processed_at INTEGER,
		tickers TEXT NOT NULL DEFAULT '[]',
		sector_id INTEGER,
		sentiment_score REAL,
		sentiment_label TEXT,
		sentiment_confidence REAL,
		impact_label TEXT,
		impact_confidence REAL,
		impact_summary TEXT,
		topics TEXT NOT NULL DEFAULT '[]',
		enrich_passes INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_news_processed ON news(processed_at);
	CREATE INDEX IF NOT EXISTS idx_news_sector ON news(sector_id);
	CREATE INDEX IF NOT EXISTS idx_news_published ON news(published_at);
	CREATE INDEX IF NOT EXISTS idx_news_fetched ON news(fetched_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_news_urlless
		ON news(source, title, COALESCE(published_at, -1)) WHERE url IS NULL;

	CREATE TABLE IF NOT EXISTS sentiment_aggregates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sector_id INTEGER NOT NULL,
		window_start INTEGER NOT NULL,
		window_end INTEGER NOT NULL,
		avg_sentiment REAL NOT NULL,
		avg_relevance REAL,
		news_count INTEGER NOT NULL,
		computed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_aggregates_sector ON sentiment_aggregates(sector_id, id);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// withTx runs fn in its own transaction, rolling back on error.
func (c *Client) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Warn("Transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

func encodeList(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeList(raw sql.NullString) []string {
	out := []string{}
	if !raw.Valid || raw.String == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		logger.Warn("Failed to decode stored list", zap.Error(err))
		return []string{}
	}
	return out
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func floatFromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func stringFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func int64FromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}
