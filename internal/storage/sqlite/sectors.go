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

var ErrSectorExists = errors.New("sector already exists")

const sectorColumns = `id, name, description, keywords, tickers, created_at`

func scanSector(row rowScanner) (*models.Sector, error) {
	var (
		s                 models.Sector
		keywords, tickers sql.NullString
		createdAt         int64
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &keywords, &tickers, &createdAt); err != nil {
		return nil, err
	}
	s.Keywords = decodeList(keywords)
	s.Tickers = decodeList(tickers)
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &s, nil
}

// ListSectors returns every sector ordered by id.
func (c *Client) ListSectors(ctx context.Context) ([]*models.Sector, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+sectorColumns+` FROM sectors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sectors: %w", err)
	}
	defer rows.Close()

	var sectors []*models.Sector
	for rows.Next() {
		s, err := scanSector(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sector: %w", err)
		}
		sectors = append(sectors, s)
	}
	return sectors, rows.Err()
}

func (c *Client) SectorNames(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM sectors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sector names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan sector name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SectorByName matches case-insensitively.
func (c *Client) SectorByName(ctx context.Context, name string) (*models.Sector, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+sectorColumns+` FROM sectors WHERE name = ? COLLATE NOCASE ORDER BY id LIMIT 1`,
		strings.TrimSpace(name),
	)
	s, err := scanSector(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sector %q: %w", name, err)
	}
	return s, nil
}

func (c *Client) GetSector(ctx context.Context, id int64) (*models.Sector, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+sectorColumns+` FROM sectors WHERE id = ?`, id)
	s, err := scanSector(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sector %d: %w", id, err)
	}
	return s, nil
}

func (c *Client) CreateSector(ctx context.Context, s models.Sector) (*models.Sector, error) {
	var id int64
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO sectors (name, description, keywords, tickers, created_at) VALUES (?, ?, ?, ?, ?)`,
			strings.TrimSpace(s.Name), s.Description, encodeList(s.Keywords),
			encodeList(utils.UniqueUpper(s.Tickers)), c.clock().Unix(),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%q: %w", s.Name, ErrSectorExists)
		}
		return nil, fmt.Errorf("failed to create sector: %w", err)
	}

	logger.Info("Sector created", zap.Int64("sector_id", id), zap.String("name", s.Name))
	return c.GetSector(ctx, id)
}

// SeedSectors inserts each sector unless one with the same name exists. It
// returns how many rows were added.
func (c *Client) SeedSectors(ctx context.Context, sectors []models.Sector) (int, error) {
	added := 0
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		for _, s := range sectors {
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO sectors (name, description, keywords, tickers, created_at) VALUES (?, ?, ?, ?, ?)`,
				strings.TrimSpace(s.Name), s.Description, encodeList(s.Keywords),
				encodeList(utils.UniqueUpper(s.Tickers)), c.clock().Unix(),
			)
			if err != nil {
				return fmt.Errorf("failed to seed sector %q: %w", s.Name, err)
			}
			n, _ := res.RowsAffected()
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// AddSectorTickers unions tickers into the sector's membership list and
// returns the tickers that were new.
func (c *Client) AddSectorTickers(ctx context.Context, sectorID int64, tickers []string) ([]string, error) {
	var added []string
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		var stored sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT tickers FROM sectors WHERE id = ?`, sectorID).Scan(&stored)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("sector %d: %w", sectorID, ErrNotFound)
			}
			return fmt.Errorf("failed to read sector tickers: %w", err)
		}

		current := utils.UniqueUpper(decodeList(stored))
		merged := utils.UniqueUpper(current, tickers)
		if len(merged) == len(current) {
			return nil
		}
		added = merged[len(current):]

		_, err = tx.ExecContext(ctx, `UPDATE sectors SET tickers = ? WHERE id = ?`, encodeList(merged), sectorID)
		if err != nil {
			return fmt.Errorf("failed to update sector tickers: %w", err)
		}
		return nil
	})
	return added, err
}
