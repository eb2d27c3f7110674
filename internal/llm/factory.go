package llm

import (
	"context"
	"fmt"

	"github.com/marketpulse/backend/pkg/config"
)

// New builds the configured provider wrapped in a resilient Client.
func New(ctx context.Context, cfg config.LLMConfig) (*Client, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(provider, Options{Timeout: cfg.Timeout()}), nil
}

func NewProvider(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm.apiKey is required for provider %q", cfg.Provider)
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
