package sector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/logger"
)

type Store interface {
	ListSectors(ctx context.Context) ([]*models.Sector, error)
	AddSectorTickers(ctx context.Context, sectorID int64, tickers []string) ([]string, error)
}

// Mapper resolves ticker sets to sectors through each sector's stored
// membership list. Sectors are read fresh on every call.
type Mapper struct {
	store Store
}

func NewMapper(store Store) *Mapper {
	return &Mapper{store: store}
}

// Resolve returns the lowest-id sector whose membership intersects tickers.
func (m *Mapper) Resolve(ctx context.Context, tickers []string) (int64, bool, error) {
	if len(tickers) == 0 {
		return 0, false, nil
	}

	sectors, err := m.store.ListSectors(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load sectors: %w", err)
	}

	id, ok := resolve(sectors, tickers)
	if ok {
		metrics.SectorAssignments.WithLabelValues("tickers").Inc()
	}
	return id, ok, nil
}

func resolve(sectors []*models.Sector, tickers []string) (int64, bool) {
	wanted := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		wanted[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}

	for _, s := range sectors {
		for _, member := range s.Tickers {
			if _, ok := wanted[strings.ToUpper(member)]; ok {
				return s.ID, true
			}
		}
	}
	return 0, false
}

// Extend adds to sectorID every ticker that no sector lists yet. Tickers
// already mapped to some sector are left where they are.
func (m *Mapper) Extend(ctx context.Context, sectorID int64, tickers []string) ([]string, error) {
	if len(tickers) == 0 {
		return nil, nil
	}

	sectors, err := m.store.ListSectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sectors: %w", err)
	}

	mapped := make(map[string]struct{})
	for _, s := range sectors {
		for _, member := range s.Tickers {
			mapped[strings.ToUpper(member)] = struct{}{}
		}
	}

	var unmapped []string
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := mapped[t]; !ok {
			unmapped = append(unmapped, t)
		}
	}
	if len(unmapped) == 0 {
		return nil, nil
	}

	added, err := m.store.AddSectorTickers(ctx, sectorID, unmapped)
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		logger.Info("Sector membership extended",
			zap.Int64("sector_id", sectorID),
			zap.Strings("tickers", added),
		)
	}
	return added, nil
}
