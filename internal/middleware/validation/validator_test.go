package validation

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sectorApp(requireName bool) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxLimit: 100}))
	app.Post("/sectors", SectorBodyMiddleware(Config{}, requireName), func(c *fiber.Ctx) error {
		return c.JSON(c.Locals(SectorBodyKey).(SectorBody))
	})
	app.Get("/history", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	return app
}

func post(t *testing.T, app *fiber.App, contentType, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/sectors", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestSectorBodyValidation(t *testing.T) {
	app := sectorApp(true)

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"valid", "application/json", `{"name":"Energy","tickers":["nse:ongc","RELIANCE.BSE"]}`, fiber.StatusOK},
		{"missing name", "application/json", `{"tickers":["TCS.NS"]}`, fiber.StatusBadRequest},
		{"bad ticker", "application/json", `{"name":"X","tickers":["TCS NS; drop"]}`, fiber.StatusBadRequest},
		{"script in keyword", "application/json", `{"name":"X","keywords":["<script>alert(1)</script>"]}`, fiber.StatusBadRequest},
		{"malformed json", "application/json", `{"name":`, fiber.StatusBadRequest},
		{"wrong content type", "text/plain", `name=x`, fiber.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, post(t, app, tt.contentType, tt.body))
		})
	}
}

func TestSectorBodyNormalizesTickers(t *testing.T) {
	app := sectorApp(false)

	req := httptest.NewRequest("POST", "/sectors", strings.NewReader(`{"tickers":[" nse:ongc ","reliance.bse"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"tickers":["ONGC.NS","RELIANCE.NS"]`)
}

func TestLimitBounds(t *testing.T) {
	app := sectorApp(true)

	for query, want := range map[string]int{
		"":           fiber.StatusNoContent,
		"?limit=10":  fiber.StatusNoContent,
		"?limit=0":   fiber.StatusBadRequest,
		"?limit=abc": fiber.StatusBadRequest,
		"?limit=101": fiber.StatusBadRequest,
	} {
		resp, err := app.Test(httptest.NewRequest("GET", "/history"+query, nil))
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, query)
	}
}

func TestTicker(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"tcs.ns", "TCS.NS", true},
		{" BSE:SBIN ", "SBIN.NS", true},
		{"^NSEI", "^NSEI", true},
		{"M&M.NS", "M&M.NS", true},
		{"", "", false},
		{"TCS NS", "TCS NS", false},
		{"<script>", "<SCRIPT>", false},
		{strings.Repeat("A", 40), strings.Repeat("A", 40), false},
	}

	for _, tt := range tests {
		got, ok := Ticker(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
