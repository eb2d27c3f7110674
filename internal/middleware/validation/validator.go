package validation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/lexicon"
)

var (
	xssPattern    = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
	symbolPattern = regexp.MustCompile(`^\^?[A-Z0-9&_\-]+(\.[A-Z]+)?$`)
)

// SectorBodyKey is the fiber local holding the validated sector payload.
const SectorBodyKey = "sector_body"

// SectorBody is the accepted shape for sector writes.
type SectorBody struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Tickers     []string `json:"tickers"`
}

type Config struct {
	MaxNameLength       int
	MaxListItems        int
	MaxLimit            int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func (cfg *Config) defaults() {
	if cfg.MaxNameLength == 0 {
		cfg.MaxNameLength = 100
	}
	if cfg.MaxListItems == 0 {
		cfg.MaxListItems = 500
	}
	if cfg.MaxLimit == 0 {
		cfg.MaxLimit = 500
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// Middleware checks content types on writes and bounds the limit query
// parameter on reads.
func Middleware(cfg Config) fiber.Handler {
	cfg.defaults()

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > cfg.MaxLimit {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "limit must be between 1 and " + strconv.Itoa(cfg.MaxLimit),
				})
			}
		}

		return c.Next()
	}
}

// SectorBodyMiddleware parses and validates a sector payload and stores the
// sanitized result under SectorBodyKey. requireName is false for endpoints
// that only append tickers.
func SectorBodyMiddleware(cfg Config, requireName bool) fiber.Handler {
	cfg.defaults()

	return func(c *fiber.Ctx) error {
		var body SectorBody
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		body.Name = sanitizeString(body.Name)
		body.Description = sanitizeString(body.Description)

		if requireName && body.Name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Name is required",
			})
		}
		if len(body.Name) > cfg.MaxNameLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Name exceeds maximum length",
			})
		}
		if len(body.Keywords) > cfg.MaxListItems || len(body.Tickers) > cfg.MaxListItems {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Too many list items",
			})
		}

		for _, field := range append([]string{body.Name, body.Description}, body.Keywords...) {
			if containsXSS(field) {
				cfg.Logger.Warn("Potential XSS attempt",
					zap.String("ip", c.IP()),
					zap.String("path", c.Path()),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid content",
				})
			}
		}

		for i, raw := range body.Tickers {
			t, ok := Ticker(raw)
			if !ok {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid ticker: " + t,
				})
			}
			body.Tickers[i] = t
		}

		c.Locals(SectorBodyKey, body)
		return c.Next()
	}
}

// Ticker normalizes raw to its canonical listing and reports whether the
// result is a well-formed symbol.
func Ticker(raw string) (string, bool) {
	t := lexicon.NormalizeSymbol(sanitizeString(raw))
	return t, len(t) <= 32 && symbolPattern.MatchString(t)
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}
