package models

import (
	"encoding/json"
	"time"
)

// SectorUnassigned marks an article whose sector has not been resolved yet.
// It is distinct from nil (never touched) and from every real sector id.
const SectorUnassigned int64 = -1

const (
	ImpactBullish   = "bullish"
	ImpactBearish   = "bearish"
	ImpactNeutral   = "neutral"
	ImpactUncertain = "uncertain"
)

func ValidImpactLabel(label string) bool {
	switch label {
	case ImpactBullish, ImpactBearish, ImpactNeutral, ImpactUncertain:
		return true
	}
	return false
}

type Article struct {
	ID          int64
	URL         string
	Source      string
	Title       string
	Content     string
	Language    string
	ImageURL    string
	RawPayload  json.RawMessage
	PublishedAt *time.Time
	FetchedAt   time.Time
	ProcessedAt *time.Time

	Tickers  []string
	SectorID *int64

	SentimentScore      *float64
	SentimentLabel      *string
	SentimentConfidence *float64

	ImpactLabel      *string
	ImpactConfidence *float64
	ImpactSummary    *string
	Topics           []string

	EnrichPasses int
}

// HasResolvedSector reports whether the article carries a real sector id.
func (a *Article) HasResolvedSector() bool {
	return a.SectorID != nil && *a.SectorID != SectorUnassigned
}

// Text is the title and body joined for classification and lexicon scans.
func (a *Article) Text() string {
	if a.Content == "" {
		return a.Title
	}
	if a.Title == "" {
		return a.Content
	}
	return a.Title + ". " + a.Content
}

// ArticleInput is a normalized provider record ready for insertion.
type ArticleInput struct {
	URL         string
	Source      string
	Title       string
	Content     string
	Language    string
	ImageURL    string
	RawPayload  json.RawMessage
	PublishedAt *time.Time
	Tickers     []string
}

type Sector struct {
	ID          int64
	Name        string
	Description string
	Keywords    []string
	Tickers     []string
	CreatedAt   time.Time
}

type SentimentAggregate struct {
	ID           int64
	SectorID     int64
	SectorName   string
	WindowStart  time.Time
	WindowEnd    time.Time
	AvgSentiment float64
	AvgRelevance *float64
	NewsCount    int
	ComputedAt   time.Time
}

// SectorWindowStat is one GROUP BY row of the aggregation query.
type SectorWindowStat struct {
	SectorID     int64
	AvgSentiment float64
	AvgRelevance *float64
	NewsCount    int
}

type SentimentUpdate struct {
	Score       float64
	Label       string
	Confidence  float64
	SectorID    *int64
	ProcessedAt time.Time
}

type SignalUpdate struct {
	Tickers          []string
	ImpactLabel      string
	ImpactConfidence float64
	ImpactSummary    string
	Topics           []string
	ProcessedAt      time.Time
}

type UnenrichedQuery struct {
	Since           time.Time
	Limit           int
	MaxTickerPasses int
}

// SpotlightQuery selects recent high-confidence signals that name tickers.
type SpotlightQuery struct {
	MinConfidence float64
	Since         time.Time
	Limit         int
}

type TickerOrder int

const (
	TickerOrderMentions TickerOrder = iota
	TickerOrderBullish
	TickerOrderBearish
)

// TickerStatsQuery groups scored articles by the tickers they name.
// A zero Since means no lower bound.
type TickerStatsQuery struct {
	Since       time.Time
	MinMentions int
	Limit       int
	Order       TickerOrder
}

// TickerStat summarizes the scored articles that name one ticker.
type TickerStat struct {
	Ticker        string
	Mentions      int
	AvgSentiment  float64
	AvgConfidence *float64
}

// SectorSummary is the all-time sentiment of the articles in one sector.
type SectorSummary struct {
	SectorID     int64
	Name         string
	AvgSentiment float64
	NewsCount    int
}
