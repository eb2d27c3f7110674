package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/pkg/logger"
)

type CacheInvalidator interface {
	Invalidate(ctx context.Context, kind string) (int, error)
}

type CacheHandler struct {
	cache CacheInvalidator
	kinds map[string]bool
}

// NewCacheHandler accepts invalidation requests for the listed cache kinds.
// cache may be nil when caching is disabled.
func NewCacheHandler(cache CacheInvalidator, kinds ...string) *CacheHandler {
	allowed := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	return &CacheHandler{cache: cache, kinds: allowed}
}

func (h *CacheHandler) Invalidate(c *fiber.Ctx) error {
	if h.cache == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Cache is disabled",
		})
	}

	kind := c.Params("kind")
	if !h.kinds[kind] {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown cache",
		})
	}

	removed, err := h.cache.Invalidate(c.UserContext(), kind)
	if err != nil {
		logger.Error("Failed to invalidate cache", zap.String("cache_type", kind), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to invalidate cache",
		})
	}

	return c.JSON(fiber.Map{
		"cache_type": kind,
		"removed":    removed,
	})
}
