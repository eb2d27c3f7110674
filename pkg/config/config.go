package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	SQLite      SQLiteConfig
	Redis       RedisConfig
	HuggingFace HuggingFaceConfig
	LLM         LLMConfig
	Sources     SourcesConfig
	Pipeline    PipelineConfig
	Aggregation AggregationConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Enabled      bool
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	AdminToken   string
	RateLimit    int
}

type SQLiteConfig struct {
	Path          string
	BusyTimeoutMS int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type HuggingFaceConfig struct {
	Endpoint       string
	Token          string
	SentimentModel string
	ZeroShotModel  string
	TimeoutSec     int
}

func (c HuggingFaceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

type SourcesConfig struct {
	Mediastack   MediastackConfig
	AlphaVantage AlphaVantageConfig
	Exchange     ExchangeConfig
}

type MediastackConfig struct {
	Enabled    bool
	Endpoint   string
	APIKey     string
	Countries  string
	Languages  string
	Categories string
	Limit      int
	TimeoutSec int
}

type AlphaVantageConfig struct {
	Enabled           bool
	Endpoint          string
	APIKey            string
	Topics            string
	Limit             int
	RequestsPerMinute int
	TimeoutSec        int
}

type ExchangeConfig struct {
	Enabled    bool
	Endpoint   string
	Token      string
	Category   string
	TimeoutSec int
}

type PipelineConfig struct {
	IngestIntervalMinutes int
	LookbackHours         int
	BatchSize             int
	SnippetLength         int
	MaxTickerPasses       int
	SentimentMaxChars     int
	SectorThreshold       float64
	MinClassifyLength     int
}

func (c PipelineConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}

// AggregationConfig.WindowMinutes is both the aggregation cadence and the
// window length.
type AggregationConfig struct {
	WindowMinutes int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/marketpulse")

	v.SetEnvPrefix("MARKETPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Aggregation.WindowMinutes <= 0 {
		return fmt.Errorf("aggregation.windowMinutes must be positive, got %d", c.Aggregation.WindowMinutes)
	}
	if c.Pipeline.IngestIntervalMinutes <= 0 {
		return fmt.Errorf("pipeline.ingestIntervalMinutes must be positive, got %d", c.Pipeline.IngestIntervalMinutes)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batchSize must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.SectorThreshold < 0 || c.Pipeline.SectorThreshold > 1 {
		return fmt.Errorf("pipeline.sectorThreshold must be within [0,1], got %v", c.Pipeline.SectorThreshold)
	}
	switch c.LLM.Provider {
	case "openai", "gemini", "anthropic":
	default:
		return fmt.Errorf("unsupported llm.provider %q", c.LLM.Provider)
	}
	return nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15)
	v.SetDefault("server.writeTimeout", 15)
	v.SetDefault("server.adminToken", "")
	v.SetDefault("server.rateLimit", 30)

	v.SetDefault("sqlite.path", "./data/marketpulse.db")
	v.SetDefault("sqlite.busyTimeoutMS", 5000)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlHours", 24)

	v.SetDefault("huggingFace.endpoint", "https://router.huggingface.co/hf-inference")
	v.SetDefault("huggingFace.sentimentModel", "ProsusAI/finbert")
	v.SetDefault("huggingFace.zeroShotModel", "joeddav/xlm-roberta-large-xnli")
	v.SetDefault("huggingFace.timeoutSec", 30)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 2048)
	v.SetDefault("llm.timeoutSec", 60)

	v.SetDefault("sources.mediastack.enabled", true)
	v.SetDefault("sources.mediastack.endpoint", "http://api.mediastack.com/v1/news")
	v.SetDefault("sources.mediastack.countries", "in")
	v.SetDefault("sources.mediastack.languages", "en")
	v.SetDefault("sources.mediastack.categories", "business")
	v.SetDefault("sources.mediastack.limit", 20)
	v.SetDefault("sources.mediastack.timeoutSec", 30)

	v.SetDefault("sources.alphaVantage.enabled", true)
	v.SetDefault("sources.alphaVantage.endpoint", "https://www.alphavantage.co/query")
	v.SetDefault("sources.alphaVantage.topics", "financial_markets")
	v.SetDefault("sources.alphaVantage.limit", 50)
	v.SetDefault("sources.alphaVantage.requestsPerMinute", 5)
	v.SetDefault("sources.alphaVantage.timeoutSec", 30)

	v.SetDefault("sources.exchange.enabled", true)
	v.SetDefault("sources.exchange.endpoint", "https://finnhub.io/api/v1/news")
	v.SetDefault("sources.exchange.category", "general")
	v.SetDefault("sources.exchange.timeoutSec", 30)

	v.SetDefault("pipeline.ingestIntervalMinutes", 10)
	v.SetDefault("pipeline.lookbackHours", 48)
	v.SetDefault("pipeline.batchSize", 10)
	v.SetDefault("pipeline.snippetLength", 600)
	v.SetDefault("pipeline.maxTickerPasses", 3)
	v.SetDefault("pipeline.sentimentMaxChars", 2000)
	v.SetDefault("pipeline.sectorThreshold", 0.55)
	v.SetDefault("pipeline.minClassifyLength", 15)

	v.SetDefault("aggregation.windowMinutes", 15)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
