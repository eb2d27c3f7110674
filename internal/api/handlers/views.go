package handlers

import (
	"math"
	"time"

	"github.com/marketpulse/backend/internal/storage/models"
)

type sectorView struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Keywords    []string  `json:"keywords"`
	Tickers     []string  `json:"tickers"`
	CreatedAt   time.Time `json:"created_at"`
}

func newSectorView(s *models.Sector) sectorView {
	return sectorView{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Keywords:    s.Keywords,
		Tickers:     s.Tickers,
		CreatedAt:   s.CreatedAt,
	}
}

type aggregateView struct {
	ID           int64     `json:"id"`
	SectorID     int64     `json:"sector_id"`
	SectorName   string    `json:"sector_name,omitempty"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	AvgSentiment float64   `json:"avg_sentiment"`
	AvgRelevance *float64  `json:"avg_relevance"`
	NewsCount    int       `json:"news_count"`
	ComputedAt   time.Time `json:"computed_at"`
}

func newAggregateViews(rows []models.SentimentAggregate) []aggregateView {
	out := make([]aggregateView, 0, len(rows))
	for _, r := range rows {
		out = append(out, aggregateView{
			ID:           r.ID,
			SectorID:     r.SectorID,
			SectorName:   r.SectorName,
			WindowStart:  r.WindowStart,
			WindowEnd:    r.WindowEnd,
			AvgSentiment: r.AvgSentiment,
			AvgRelevance: r.AvgRelevance,
			NewsCount:    r.NewsCount,
			ComputedAt:   r.ComputedAt,
		})
	}
	return out
}

type signalView struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Source           string     `json:"source"`
	URL              string     `json:"url,omitempty"`
	Tickers          []string   `json:"tickers"`
	Sentiment        *float64   `json:"sentiment"`
	ImpactLabel      *string    `json:"impact_label"`
	ImpactConfidence *float64   `json:"impact_confidence"`
	ImpactSummary    *string    `json:"impact_summary"`
	Topics           []string   `json:"topics"`
	PublishedAt      *time.Time `json:"published_at"`
	ImageURL         string     `json:"image_url,omitempty"`
}

func newSignalViews(articles []*models.Article) []signalView {
	out := make([]signalView, 0, len(articles))
	for _, a := range articles {
		out = append(out, signalView{
			ID:               a.ID,
			Title:            a.Title,
			Source:           a.Source,
			URL:              a.URL,
			Tickers:          a.Tickers,
			Sentiment:        a.SentimentScore,
			ImpactLabel:      a.ImpactLabel,
			ImpactConfidence: a.ImpactConfidence,
			ImpactSummary:    a.ImpactSummary,
			Topics:           a.Topics,
			PublishedAt:      a.PublishedAt,
			ImageURL:         a.ImageURL,
		})
	}
	return out
}

type articleView struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Source           string     `json:"source"`
	URL              string     `json:"url,omitempty"`
	Tickers          []string   `json:"tickers"`
	SectorID         *int64     `json:"sector_id"`
	Sentiment        *float64   `json:"sentiment"`
	SentimentLabel   *string    `json:"sentiment_label"`
	ImpactLabel      *string    `json:"impact_label"`
	ImpactConfidence *float64   `json:"impact_confidence"`
	ImpactSummary    *string    `json:"impact_summary"`
	PublishedAt      *time.Time `json:"published_at"`
	ProcessedAt      *time.Time `json:"processed_at"`
}

func newArticleViews(articles []*models.Article) []articleView {
	out := make([]articleView, 0, len(articles))
	for _, a := range articles {
		v := articleView{
			ID:               a.ID,
			Title:            a.Title,
			Source:           a.Source,
			URL:              a.URL,
			Tickers:          a.Tickers,
			Sentiment:        a.SentimentScore,
			SentimentLabel:   a.SentimentLabel,
			ImpactLabel:      a.ImpactLabel,
			ImpactConfidence: a.ImpactConfidence,
			ImpactSummary:    a.ImpactSummary,
			PublishedAt:      a.PublishedAt,
			ProcessedAt:      a.ProcessedAt,
		}
		if a.HasResolvedSector() {
			v.SectorID = a.SectorID
		}
		out = append(out, v)
	}
	return out
}

type tickerPointView struct {
	ArticleID        int64     `json:"article_id"`
	Timestamp        time.Time `json:"timestamp"`
	Sentiment        *float64  `json:"sentiment"`
	ImpactLabel      *string   `json:"impact_label"`
	ImpactConfidence *float64  `json:"impact_confidence"`
}

// newTickerPointViews expects processed articles.
func newTickerPointViews(articles []*models.Article) []tickerPointView {
	out := make([]tickerPointView, 0, len(articles))
	for _, a := range articles {
		if a.ProcessedAt == nil {
			continue
		}
		out = append(out, tickerPointView{
			ArticleID:        a.ID,
			Timestamp:        *a.ProcessedAt,
			Sentiment:        a.SentimentScore,
			ImpactLabel:      a.ImpactLabel,
			ImpactConfidence: a.ImpactConfidence,
		})
	}
	return out
}

type tickerStatView struct {
	Ticker        string   `json:"ticker"`
	Mentions      int      `json:"mentions"`
	AvgSentiment  float64  `json:"avg_sentiment"`
	AvgConfidence *float64 `json:"avg_impact_confidence"`
}

func newTickerStatViews(stats []models.TickerStat) []tickerStatView {
	out := make([]tickerStatView, 0, len(stats))
	for _, s := range stats {
		out = append(out, tickerStatView{
			Ticker:        s.Ticker,
			Mentions:      s.Mentions,
			AvgSentiment:  round3(s.AvgSentiment),
			AvgConfidence: s.AvgConfidence,
		})
	}
	return out
}

type sectorSummaryView struct {
	SectorID     int64   `json:"sector_id"`
	Sector       string  `json:"sector"`
	AvgSentiment float64 `json:"avg_sentiment"`
	NewsCount    int     `json:"news_count"`
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
