package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Aggregation.WindowMinutes)
	assert.Equal(t, 10, cfg.Pipeline.IngestIntervalMinutes)
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.Equal(t, 600, cfg.Pipeline.SnippetLength)
	assert.Equal(t, 48, cfg.Pipeline.LookbackHours)
	assert.InDelta(t, 0.55, cfg.Pipeline.SectorThreshold, 1e-9)
	assert.Equal(t, 15, cfg.Pipeline.MinClassifyLength)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "ProsusAI/finbert", cfg.HuggingFace.SentimentModel)
	assert.Equal(t, 5, cfg.Sources.AlphaVantage.RequestsPerMinute)
	assert.False(t, cfg.Redis.Enabled)
}

func TestYAMLOverridesDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")

	yaml := `
aggregation:
  windowMinutes: 60
llm:
  provider: openai
  model: deepseek-chat
  baseURL: https://api.deepseek.com/v1
sources:
  alphaVantage:
    enabled: false
`
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))

	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Aggregation.WindowMinutes)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "https://api.deepseek.com/v1", cfg.LLM.BaseURL)
	assert.False(t, cfg.Sources.AlphaVantage.Enabled)
	assert.True(t, cfg.Sources.Mediastack.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero window",
			mutate:  func(c *Config) { c.Aggregation.WindowMinutes = 0 },
			wantErr: "windowMinutes",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Pipeline.SectorThreshold = 1.5 },
			wantErr: "sectorThreshold",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.LLM.Provider = "bard" },
			wantErr: "llm.provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			cfg, err := decode(v)
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
