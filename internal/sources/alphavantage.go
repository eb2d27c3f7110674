package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/config"
	"github.com/marketpulse/backend/pkg/retry"
)

// AlphaVantage reads the NEWS_SENTIMENT market news feed.
type AlphaVantage struct {
	cfg     config.AlphaVantageConfig
	fetcher *fetcher
}

func NewAlphaVantage(cfg config.AlphaVantageConfig, httpClient *http.Client) *AlphaVantage {
	return &AlphaVantage{
		cfg:     cfg,
		fetcher: newFetcher("alphavantage", httpClient, time.Duration(cfg.TimeoutSec)*time.Second, cfg.RequestsPerMinute),
	}
}

func (a *AlphaVantage) Name() string {
	return "alphavantage"
}

func (a *AlphaVantage) Fetch(ctx context.Context) ([]RawRecord, error) {
	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	params.Set("apikey", a.cfg.APIKey)
	params.Set("sort", "LATEST")
	if a.cfg.Topics != "" {
		params.Set("topics", a.cfg.Topics)
	}
	if a.cfg.Limit > 0 {
		params.Set("limit", strconv.Itoa(a.cfg.Limit))
	}

	var resp struct {
		Feed        []RawRecord `json:"feed"`
		Information string      `json:"Information"`
		Note        string      `json:"Note"`
		Error       string      `json:"Error Message"`
	}
	if err := a.fetcher.getJSON(ctx, a.cfg.Endpoint+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	// Quota and key problems come back as 200 with a message instead of a feed.
	if resp.Feed == nil {
		for _, msg := range []string{resp.Error, resp.Information, resp.Note} {
			if msg != "" {
				return nil, retry.Permanent(fmt.Errorf("alphavantage: %s", msg))
			}
		}
	}
	return resp.Feed, nil
}

func (a *AlphaVantage) Normalize(rec RawRecord) (models.ArticleInput, bool) {
	title := StripHTML(rec.String("title"))
	link := rec.String("url")
	if !hasIdentity(title, link) {
		return models.ArticleInput{}, false
	}

	tickers := []string{}
	if top, ok := TopRelevanceTicker(asSlice(rec["ticker_sentiment"])); ok {
		tickers = append(tickers, top)
	}

	return models.ArticleInput{
		URL:         link,
		Source:      a.Name(),
		Title:       title,
		Content:     StripHTML(rec.String("summary")),
		Language:    "en",
		ImageURL:    rec.String("banner_image"),
		RawPayload:  EncodePayload(rec),
		PublishedAt: ParseTimestamp(rec["time_published"]),
		Tickers:     tickers,
	}, true
}
