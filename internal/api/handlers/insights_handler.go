package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/middleware/validation"
	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/logger"
)

// outlookBand is the average sentiment beyond which a ticker reads as
// bullish or bearish.
const outlookBand = 0.15

type InsightsStore interface {
	ArticlesByTicker(ctx context.Context, ticker string, limit int) ([]*models.Article, error)
	TickerOverview(ctx context.Context, ticker string) (models.TickerStat, error)
	TickerStats(ctx context.Context, q models.TickerStatsQuery) ([]models.TickerStat, error)
	SectorSummaries(ctx context.Context) ([]models.SectorSummary, error)
}

// InsightsHandler serves ticker and sector analytics over scored articles.
type InsightsHandler struct {
	store InsightsStore
	now   func() time.Time
}

func NewInsightsHandler(store InsightsStore) *InsightsHandler {
	return &InsightsHandler{store: store, now: time.Now}
}

func outlook(avg float64) string {
	switch {
	case avg > outlookBand:
		return models.ImpactBullish
	case avg < -outlookBand:
		return models.ImpactBearish
	default:
		return models.ImpactNeutral
	}
}

func tickerParam(c *fiber.Ctx) (string, bool) {
	return validation.Ticker(c.Params("symbol"))
}

// TickerHistory lists the sentiment of recent scored articles naming the
// ticker, newest first.
func (h *InsightsHandler) TickerHistory(c *fiber.Ctx) error {
	ticker, ok := tickerParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid ticker",
		})
	}

	articles, err := h.store.ArticlesByTicker(c.UserContext(), ticker, c.QueryInt("limit", 50))
	if err != nil {
		logger.Error("Failed to load ticker history", zap.String("ticker", ticker), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load ticker history",
		})
	}
	return c.JSON(fiber.Map{
		"ticker":  ticker,
		"history": newTickerPointViews(articles),
	})
}

// TickerOverview averages the ticker's coverage and lists its latest news
// next to the most mentioned tickers overall.
func (h *InsightsHandler) TickerOverview(c *fiber.Ctx) error {
	ticker, ok := tickerParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid ticker",
		})
	}
	ctx := c.UserContext()

	stat, err := h.store.TickerOverview(ctx, ticker)
	if err != nil {
		logger.Error("Failed to load ticker overview", zap.String("ticker", ticker), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load ticker overview",
		})
	}
	news, err := h.store.ArticlesByTicker(ctx, ticker, 10)
	if err != nil {
		logger.Error("Failed to load ticker news", zap.String("ticker", ticker), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load ticker overview",
		})
	}
	trending, err := h.store.TickerStats(ctx, models.TickerStatsQuery{Limit: 10})
	if err != nil {
		logger.Error("Failed to load trending tickers", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load ticker overview",
		})
	}

	var confidence float64
	if stat.AvgConfidence != nil {
		confidence = round3(*stat.AvgConfidence)
	}
	return c.JSON(fiber.Map{
		"ticker":            ticker,
		"mentions":          stat.Mentions,
		"avg_sentiment":     round3(stat.AvgSentiment),
		"impact_confidence": confidence,
		"outlook":           outlook(stat.AvgSentiment),
		"news":              newArticleViews(news),
		"trending":          newTickerStatViews(trending),
	})
}

// TopStocks ranks tickers with at least two scored mentions by average
// sentiment, from both ends.
func (h *InsightsHandler) TopStocks(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 5)
	if limit <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be positive",
		})
	}
	ctx := c.UserContext()

	q := models.TickerStatsQuery{MinMentions: 2, Limit: limit, Order: models.TickerOrderBullish}
	bullish, err := h.store.TickerStats(ctx, q)
	if err != nil {
		return rankFailed(c, err)
	}
	q.Order = models.TickerOrderBearish
	bearish, err := h.store.TickerStats(ctx, q)
	if err != nil {
		return rankFailed(c, err)
	}

	return c.JSON(fiber.Map{
		"top_bullish": newTickerStatViews(bullish),
		"top_bearish": newTickerStatViews(bearish),
	})
}

func rankFailed(c *fiber.Ctx, err error) error {
	logger.Error("Failed to rank tickers", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to load top stocks",
	})
}

// HotStocks lists the most mentioned tickers, optionally within the last
// hours query parameter.
func (h *InsightsHandler) HotStocks(c *fiber.Ctx) error {
	q := models.TickerStatsQuery{Limit: c.QueryInt("limit", 10)}
	hours := c.QueryInt("hours", 0)
	if hours < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "hours must not be negative",
		})
	}
	if hours > 0 {
		q.Since = h.now().Add(-time.Duration(hours) * time.Hour)
	}

	stats, err := h.store.TickerStats(c.UserContext(), q)
	if err != nil {
		logger.Error("Failed to load hot stocks", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load hot stocks",
		})
	}
	return c.JSON(fiber.Map{"stocks": newTickerStatViews(stats)})
}

func (h *InsightsHandler) SectorSummary(c *fiber.Ctx) error {
	rows, err := h.store.SectorSummaries(c.UserContext())
	if err != nil {
		logger.Error("Failed to summarize sectors", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load sector summary",
		})
	}

	out := make([]sectorSummaryView, 0, len(rows))
	for _, r := range rows {
		out = append(out, sectorSummaryView{
			SectorID:     r.SectorID,
			Sector:       r.Name,
			AvgSentiment: round3(r.AvgSentiment),
			NewsCount:    r.NewsCount,
		})
	}
	return c.JSON(fiber.Map{"sectors": out})
}
