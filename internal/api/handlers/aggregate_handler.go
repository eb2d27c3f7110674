package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/logger"
)

type AggregateStore interface {
	LatestAggregates(ctx context.Context) ([]models.SentimentAggregate, error)
	AggregateHistory(ctx context.Context, sectorID int64, limit int) ([]models.SentimentAggregate, error)
	Spotlight(ctx context.Context, q models.SpotlightQuery) ([]*models.Article, error)
}

type AggregateHandler struct {
	store AggregateStore
	now   func() time.Time
}

func NewAggregateHandler(store AggregateStore) *AggregateHandler {
	return &AggregateHandler{store: store, now: time.Now}
}

// Latest returns the newest aggregate row per sector.
func (h *AggregateHandler) Latest(c *fiber.Ctx) error {
	rows, err := h.store.LatestAggregates(c.UserContext())
	if err != nil {
		logger.Error("Failed to load latest aggregates", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load aggregates",
		})
	}
	return c.JSON(fiber.Map{"aggregates": newAggregateViews(rows)})
}

func (h *AggregateHandler) History(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid sector id",
		})
	}
	limit := c.QueryInt("limit", 50)

	rows, err := h.store.AggregateHistory(c.UserContext(), int64(id), limit)
	if err != nil {
		logger.Error("Failed to load aggregate history", zap.Int("sector_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load aggregates",
		})
	}
	return c.JSON(fiber.Map{
		"sector_id":  id,
		"aggregates": newAggregateViews(rows),
	})
}

// Spotlight lists recent high-confidence signals that name tickers.
func (h *AggregateHandler) Spotlight(c *fiber.Ctx) error {
	minConfidence := c.QueryFloat("min_confidence", 0.6)
	if minConfidence < 0 || minConfidence > 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "min_confidence must be within [0, 1]",
		})
	}
	hours := c.QueryInt("hours", 48)
	if hours <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "hours must be positive",
		})
	}

	articles, err := h.store.Spotlight(c.UserContext(), models.SpotlightQuery{
		MinConfidence: minConfidence,
		Since:         h.now().Add(-time.Duration(hours) * time.Hour),
		Limit:         c.QueryInt("limit", 20),
	})
	if err != nil {
		logger.Error("Failed to load spotlight signals", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load signals",
		})
	}
	return c.JSON(fiber.Map{"signals": newSignalViews(articles)})
}
