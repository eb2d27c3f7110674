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
)

// Mediastack reads the wire-news aggregator's /v1/news feed.
type Mediastack struct {
	cfg     config.MediastackConfig
	fetcher *fetcher
}

func NewMediastack(cfg config.MediastackConfig, httpClient *http.Client) *Mediastack {
	return &Mediastack{
		cfg:     cfg,
		fetcher: newFetcher("mediastack", httpClient, time.Duration(cfg.TimeoutSec)*time.Second, 0),
	}
}

func (m *Mediastack) Name() string {
	return "mediastack"
}

func (m *Mediastack) Fetch(ctx context.Context) ([]RawRecord, error) {
	params := url.Values{}
	params.Set("access_key", m.cfg.APIKey)
	params.Set("sort", "published_desc")
	if m.cfg.Countries != "" {
		params.Set("countries", m.cfg.Countries)
	}
	if m.cfg.Languages != "" {
		params.Set("languages", m.cfg.Languages)
	}
	if m.cfg.Categories != "" {
		params.Set("categories", m.cfg.Categories)
	}
	if m.cfg.Limit > 0 {
		params.Set("limit", strconv.Itoa(m.cfg.Limit))
	}

	var resp struct {
		Data  []RawRecord `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := m.fetcher.getJSON(ctx, m.cfg.Endpoint+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mediastack error %s: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Data, nil
}

func (m *Mediastack) Normalize(rec RawRecord) (models.ArticleInput, bool) {
	title := StripHTML(rec.String("title"))
	link := rec.String("url")
	if !hasIdentity(title, link) {
		return models.ArticleInput{}, false
	}

	content := StripHTML(rec.String("description"))
	if content == "" {
		content = StripHTML(rec.String("content"))
	}

	return models.ArticleInput{
		URL:         link,
		Source:      m.Name(),
		Title:       title,
		Content:     content,
		Language:    rec.String("language"),
		ImageURL:    rec.String("image"),
		RawPayload:  EncodePayload(rec),
		PublishedAt: ParseTimestamp(rec["published_at"]),
		Tickers:     []string{},
	}, true
}
