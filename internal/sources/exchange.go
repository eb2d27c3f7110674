package sources

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/config"
	"github.com/marketpulse/backend/pkg/utils"
)

// Exchange reads ticker news in the Finnhub /news shape. Symbols arrive
// in the related field and as quote links inside the summary markup.
type Exchange struct {
	cfg     config.ExchangeConfig
	fetcher *fetcher
}

func NewExchange(cfg config.ExchangeConfig, httpClient *http.Client) *Exchange {
	return &Exchange{
		cfg:     cfg,
		fetcher: newFetcher("exchange", httpClient, time.Duration(cfg.TimeoutSec)*time.Second, 0),
	}
}

func (e *Exchange) Name() string {
	return "exchange"
}

func (e *Exchange) Fetch(ctx context.Context) ([]RawRecord, error) {
	params := url.Values{}
	params.Set("category", e.cfg.Category)
	params.Set("token", e.cfg.Token)

	var records []RawRecord
	if err := e.fetcher.getJSON(ctx, e.cfg.Endpoint+"?"+params.Encode(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (e *Exchange) Normalize(rec RawRecord) (models.ArticleInput, bool) {
	title := StripHTML(rec.String("headline"))
	link := rec.String("url")
	if !hasIdentity(title, link) {
		return models.ArticleInput{}, false
	}

	summary := rec.String("summary")
	tickers := utils.UniqueUpper(
		SplitSymbols(rec.String("related")),
		ScanMarkupSymbols(summary),
	)

	return models.ArticleInput{
		URL:         link,
		Source:      e.Name(),
		Title:       title,
		Content:     StripHTML(summary),
		Language:    "en",
		ImageURL:    rec.String("image"),
		RawPayload:  EncodePayload(rec),
		PublishedAt: ParseTimestamp(rec["datetime"]),
		Tickers:     tickers,
	}, true
}
