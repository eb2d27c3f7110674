package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpulse/backend/internal/middleware/validation"
	"github.com/marketpulse/backend/internal/scheduler"
	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/internal/storage/sqlite"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *sqlite.Client {
	t.Helper()
	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "api.db"), 1000,
		sqlite.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema(context.Background()))
	return store
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	out := map[string]any{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func TestSectorEndpoints(t *testing.T) {
	store := setupStore(t)
	h := NewSectorHandler(store)

	app := fiber.New()
	app.Get("/sectors", h.ListSectors)
	app.Get("/sectors/:id", h.GetSector)
	app.Post("/sectors", validation.SectorBodyMiddleware(validation.Config{}, true), h.CreateSector)
	app.Post("/sectors/:id/tickers", validation.SectorBodyMiddleware(validation.Config{}, false), h.AddTickers)

	status, body := do(t, app, "POST", "/sectors", `{"name":"Energy","keywords":["oil"],"tickers":["nse:ongc"]}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Energy", body["name"])
	assert.Equal(t, []any{"ONGC.NS"}, body["tickers"])

	status, _ = do(t, app, "POST", "/sectors", `{"name":"Energy"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, body = do(t, app, "POST", "/sectors/1/tickers", `{"tickers":["ONGC.NS","RELIANCE.BSE"]}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"RELIANCE.NS"}, body["added"])

	status, _ = do(t, app, "POST", "/sectors/99/tickers", `{"tickers":["TCS.NS"]}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, app, "GET", "/sectors/1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"ONGC.NS", "RELIANCE.NS"}, body["tickers"])

	status, _ = do(t, app, "GET", "/sectors/42", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, app, "GET", "/sectors", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["sectors"], 1)
}

func TestAggregateEndpoints(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	energy, err := store.CreateSector(ctx, models.Sector{Name: "Energy"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := store.InsertAggregate(ctx, &models.SentimentAggregate{
			SectorID:     energy.ID,
			WindowStart:  testNow.Add(time.Duration(i-1) * time.Hour),
			WindowEnd:    testNow.Add(time.Duration(i) * time.Hour),
			AvgSentiment: float64(i) / 10,
			NewsCount:    i + 1,
			ComputedAt:   testNow,
		})
		require.NoError(t, err)
	}

	a, err := store.CreateArticle(ctx, models.ArticleInput{
		URL: "https://x.test/1", Source: "exchange", Title: "ONGC output rises", PublishedAt: &testNow,
	})
	require.NoError(t, err)
	_, err = store.ApplySignal(ctx, a.ID, models.SignalUpdate{
		Tickers: []string{"ONGC.NS"}, ImpactLabel: models.ImpactBullish, ImpactConfidence: 0.8, ProcessedAt: testNow,
	})
	require.NoError(t, err)

	h := NewAggregateHandler(store)
	h.now = func() time.Time { return testNow }

	app := fiber.New()
	app.Get("/aggregates/latest", h.Latest)
	app.Get("/sectors/:id/aggregates", h.History)
	app.Get("/signals/spotlight", h.Spotlight)

	status, body := do(t, app, "GET", "/aggregates/latest", "")
	require.Equal(t, http.StatusOK, status)
	latest := body["aggregates"].([]any)
	require.Len(t, latest, 1)
	assert.Equal(t, float64(3), latest[0].(map[string]any)["news_count"])

	status, body = do(t, app, "GET", "/sectors/1/aggregates?limit=2", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["aggregates"], 2)

	status, body = do(t, app, "GET", "/signals/spotlight", "")
	require.Equal(t, http.StatusOK, status)
	signals := body["signals"].([]any)
	require.Len(t, signals, 1)
	assert.Equal(t, []any{"ONGC.NS"}, signals[0].(map[string]any)["tickers"])

	status, body = do(t, app, "GET", "/signals/spotlight?min_confidence=0.9", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["signals"])

	status, _ = do(t, app, "GET", "/signals/spotlight?min_confidence=1.5", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

type fakeRunner struct {
	err error
}

func (f fakeRunner) Trigger(name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "run-1", nil
}

func (f fakeRunner) Jobs() []scheduler.Status {
	return []scheduler.Status{{Name: "ingest", Interval: "15m0s"}}
}

func TestRunJob(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"unknown", scheduler.ErrUnknownJob, http.StatusNotFound},
		{"busy", scheduler.ErrJobRunning, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewJobsHandler(fakeRunner{err: tt.err})
			app := fiber.New()
			app.Post("/jobs/:name/run", h.RunJob)
			app.Get("/jobs", h.ListJobs)

			status, body := do(t, app, "POST", "/jobs/ingest/run", "")
			assert.Equal(t, tt.want, status)
			if tt.err == nil {
				assert.Equal(t, "run-1", body["run_id"])
			}

			status, body = do(t, app, "GET", "/jobs", "")
			assert.Equal(t, http.StatusOK, status)
			assert.Len(t, body["jobs"], 1)
		})
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestReady(t *testing.T) {
	app := fiber.New()
	app.Get("/ready", NewHealthHandler(map[string]Pinger{
		"sqlite": fakePinger{},
		"redis":  fakePinger{err: errors.New("connection refused")},
	}).Ready)

	status, body := do(t, app, "GET", "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["sqlite"])
	assert.Equal(t, "connection refused", checks["redis"])

	app = fiber.New()
	app.Get("/ready", NewHealthHandler(map[string]Pinger{"sqlite": fakePinger{}}).Ready)
	status, _ = do(t, app, "GET", "/ready", "")
	assert.Equal(t, http.StatusOK, status)
}

type fakeInvalidator struct{ kind string }

func (f *fakeInvalidator) Invalidate(ctx context.Context, kind string) (int, error) {
	f.kind = kind
	return 4, nil
}

func TestCacheInvalidate(t *testing.T) {
	inv := &fakeInvalidator{}
	app := fiber.New()
	app.Delete("/cache/:kind", NewCacheHandler(inv, "sentiment", "zeroshot").Invalidate)

	status, body := do(t, app, "DELETE", "/cache/sentiment", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(4), body["removed"])
	assert.Equal(t, "sentiment", inv.kind)

	status, _ = do(t, app, "DELETE", "/cache/other", "")
	assert.Equal(t, http.StatusNotFound, status)

	disabled := fiber.New()
	disabled.Delete("/cache/:kind", NewCacheHandler(nil, "sentiment").Invalidate)
	status, _ = do(t, disabled, "DELETE", "/cache/sentiment", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

// scored stores an article and records its sentiment and sector.
func scored(t *testing.T, store *sqlite.Client, url string, sentiment float64, sectorID *int64, age time.Duration, tickers ...string) int64 {
	t.Helper()
	ctx := context.Background()
	published := testNow.Add(-age)
	a, err := store.CreateArticle(ctx, models.ArticleInput{
		URL: url, Source: "mediastack", Title: url, PublishedAt: &published, Tickers: tickers,
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateSentiment(ctx, a.ID, models.SentimentUpdate{
		Score: sentiment, Label: "x", Confidence: 0.9, SectorID: sectorID, ProcessedAt: published,
	}))
	return a.ID
}

func TestInsightsEndpoints(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	tech, err := store.CreateSector(ctx, models.Sector{Name: "Technology"})
	require.NoError(t, err)

	scored(t, store, "tcs-1", 0.6, &tech.ID, 3*time.Hour, "TCS.NS")
	latest := scored(t, store, "tcs-2", 0.4, &tech.ID, 2*time.Hour, "TCS.NS", "INFY.NS")
	scored(t, store, "infy-1", -0.5, &tech.ID, time.Hour, "INFY.NS")
	scored(t, store, "infy-2", -0.4, nil, 40*time.Hour, "INFY.NS")
	scored(t, store, "wipro", 0.9, nil, 30*time.Minute, "WIPRO.NS")

	h := NewInsightsHandler(store)
	h.now = func() time.Time { return testNow }

	app := fiber.New()
	app.Get("/tickers/:symbol/history", h.TickerHistory)
	app.Get("/tickers/:symbol/overview", h.TickerOverview)
	app.Get("/insights/top-stocks", h.TopStocks)
	app.Get("/insights/sector-summary", h.SectorSummary)
	app.Get("/signals/hot", h.HotStocks)

	status, body := do(t, app, "GET", "/tickers/tcs.bse/history", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "TCS.NS", body["ticker"])
	history := body["history"].([]any)
	require.Len(t, history, 2)
	assert.Equal(t, float64(latest), history[0].(map[string]any)["article_id"])

	status, _ = do(t, app, "GET", "/tickers/bad%20symbol/history", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, app, "GET", "/tickers/TCS.NS/overview", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["mentions"])
	assert.Equal(t, 0.5, body["avg_sentiment"])
	assert.Equal(t, models.ImpactBullish, body["outlook"])
	assert.Len(t, body["news"], 2)
	trending := body["trending"].([]any)
	require.NotEmpty(t, trending)
	assert.Equal(t, "INFY.NS", trending[0].(map[string]any)["ticker"])

	status, body = do(t, app, "GET", "/tickers/INFY.NS/overview", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.ImpactBearish, body["outlook"])

	status, body = do(t, app, "GET", "/insights/top-stocks?limit=1", "")
	require.Equal(t, http.StatusOK, status)
	bullish := body["top_bullish"].([]any)
	bearish := body["top_bearish"].([]any)
	require.Len(t, bullish, 1)
	require.Len(t, bearish, 1)
	assert.Equal(t, "TCS.NS", bullish[0].(map[string]any)["ticker"])
	assert.Equal(t, "INFY.NS", bearish[0].(map[string]any)["ticker"])

	status, _ = do(t, app, "GET", "/insights/top-stocks?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, app, "GET", "/signals/hot", "")
	require.Equal(t, http.StatusOK, status)
	stocks := body["stocks"].([]any)
	require.Len(t, stocks, 3)
	assert.Equal(t, "INFY.NS", stocks[0].(map[string]any)["ticker"])
	assert.Equal(t, float64(3), stocks[0].(map[string]any)["mentions"])

	status, body = do(t, app, "GET", "/signals/hot?hours=24", "")
	require.Equal(t, http.StatusOK, status)
	stocks = body["stocks"].([]any)
	require.Len(t, stocks, 3)
	assert.Equal(t, float64(2), stocks[0].(map[string]any)["mentions"])

	status, body = do(t, app, "GET", "/insights/sector-summary", "")
	require.Equal(t, http.StatusOK, status)
	sectors := body["sectors"].([]any)
	require.Len(t, sectors, 1)
	summary := sectors[0].(map[string]any)
	assert.Equal(t, "Technology", summary["sector"])
	assert.Equal(t, float64(3), summary["news_count"])
	assert.Equal(t, 0.167, summary["avg_sentiment"])
}

func TestNewsEndpoints(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	energy, err := store.CreateSector(ctx, models.Sector{Name: "Energy"})
	require.NoError(t, err)
	older := scored(t, store, "ongc", 0.2, &energy.ID, 2*time.Hour, "ONGC.NS")
	newer := scored(t, store, "ntpc", 0.1, nil, time.Hour, "NTPC.NS")

	h := NewNewsHandler(store)
	app := fiber.New()
	app.Get("/news/recent", h.Recent)
	app.Get("/sectors/:id/news", h.BySector)

	status, body := do(t, app, "GET", "/news/recent", "")
	require.Equal(t, http.StatusOK, status)
	news := body["news"].([]any)
	require.Len(t, news, 2)
	assert.Equal(t, float64(newer), news[0].(map[string]any)["id"])
	assert.Nil(t, news[0].(map[string]any)["sector_id"])

	status, body = do(t, app, "GET", "/news/recent?limit=1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["news"], 1)

	status, body = do(t, app, "GET", "/sectors/1/news", "")
	require.Equal(t, http.StatusOK, status)
	news = body["news"].([]any)
	require.Len(t, news, 1)
	assert.Equal(t, float64(older), news[0].(map[string]any)["id"])
	assert.Equal(t, float64(energy.ID), news[0].(map[string]any)["sector_id"])

	status, _ = do(t, app, "GET", "/sectors/abc/news", "")
	assert.Equal(t, http.StatusBadRequest, status)
}
