package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/logger"
)

type NewsStore interface {
	RecentArticles(ctx context.Context, limit int) ([]*models.Article, error)
	ArticlesBySector(ctx context.Context, sectorID int64, limit int) ([]*models.Article, error)
}

type NewsHandler struct {
	store NewsStore
}

func NewNewsHandler(store NewsStore) *NewsHandler {
	return &NewsHandler{store: store}
}

// Recent lists the newest stored articles.
func (h *NewsHandler) Recent(c *fiber.Ctx) error {
	articles, err := h.store.RecentArticles(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		logger.Error("Failed to list recent news", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load news",
		})
	}
	return c.JSON(fiber.Map{"news": newArticleViews(articles)})
}

func (h *NewsHandler) BySector(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid sector id",
		})
	}

	articles, err := h.store.ArticlesBySector(c.UserContext(), int64(id), c.QueryInt("limit", 50))
	if err != nil {
		logger.Error("Failed to list sector news", zap.Int("sector_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load news",
		})
	}
	return c.JSON(fiber.Map{
		"sector_id": id,
		"news":      newArticleViews(articles),
	})
}
