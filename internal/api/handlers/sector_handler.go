package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/middleware/validation"
	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/internal/storage/sqlite"
	"github.com/marketpulse/backend/pkg/logger"
)

type SectorStore interface {
	ListSectors(ctx context.Context) ([]*models.Sector, error)
	GetSector(ctx context.Context, id int64) (*models.Sector, error)
	CreateSector(ctx context.Context, s models.Sector) (*models.Sector, error)
	AddSectorTickers(ctx context.Context, sectorID int64, tickers []string) ([]string, error)
}

type SectorHandler struct {
	store SectorStore
}

func NewSectorHandler(store SectorStore) *SectorHandler {
	return &SectorHandler{store: store}
}

func (h *SectorHandler) ListSectors(c *fiber.Ctx) error {
	sectors, err := h.store.ListSectors(c.UserContext())
	if err != nil {
		logger.Error("Failed to list sectors", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sectors",
		})
	}

	views := make([]sectorView, 0, len(sectors))
	for _, s := range sectors {
		views = append(views, newSectorView(s))
	}
	return c.JSON(fiber.Map{"sectors": views})
}

func (h *SectorHandler) GetSector(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid sector id",
		})
	}

	s, err := h.store.GetSector(c.UserContext(), int64(id))
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sector not found",
		})
	}
	if err != nil {
		logger.Error("Failed to get sector", zap.Int("sector_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get sector",
		})
	}
	return c.JSON(newSectorView(s))
}

// CreateSector expects validation.SectorBodyMiddleware ahead of it.
func (h *SectorHandler) CreateSector(c *fiber.Ctx) error {
	body, ok := c.Locals(validation.SectorBodyKey).(validation.SectorBody)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	s, err := h.store.CreateSector(c.UserContext(), models.Sector{
		Name:        body.Name,
		Description: body.Description,
		Keywords:    body.Keywords,
		Tickers:     body.Tickers,
	})
	if errors.Is(err, sqlite.ErrSectorExists) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Sector already exists",
		})
	}
	if err != nil {
		logger.Error("Failed to create sector", zap.String("name", body.Name), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sector",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(newSectorView(s))
}

// AddTickers unions the body's tickers into an existing sector.
func (h *SectorHandler) AddTickers(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid sector id",
		})
	}
	body, ok := c.Locals(validation.SectorBodyKey).(validation.SectorBody)
	if !ok || len(body.Tickers) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Tickers are required",
		})
	}

	added, err := h.store.AddSectorTickers(c.UserContext(), int64(id), body.Tickers)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sector not found",
		})
	}
	if err != nil {
		logger.Error("Failed to add sector tickers", zap.Int("sector_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to add tickers",
		})
	}
	if added == nil {
		added = []string{}
	}

	return c.JSON(fiber.Map{
		"sector_id": id,
		"added":     added,
	})
}
