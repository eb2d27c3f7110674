package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminToken(t *testing.T) {
	app := fiber.New()
	app.Use(HeadersMiddleware(HeadersConfig{}))
	app.Post("/run", AdminToken("s3cret", nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	for header, want := range map[string]int{
		"":              fiber.StatusUnauthorized,
		"Bearer wrong":  fiber.StatusUnauthorized,
		"Bearer s3cret": fiber.StatusAccepted,
	} {
		req := httptest.NewRequest("POST", "/run", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, header)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	}
}

func TestAdminTokenDisabled(t *testing.T) {
	app := fiber.New()
	app.Post("/run", AdminToken("", nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/run", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
}
