package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	FetchMode           string `mapstructure:"FETCH_MODE"`
	FixtureFile         string `mapstructure:"FIXTURE_FILE"`
	FetchTimeoutSeconds int    `mapstructure:"FETCH_TIMEOUT_SECONDS"`
	MaxImageBytes       int64  `mapstructure:"MAX_IMAGE_BYTES"`

	MarketplaceDomain string `mapstructure:"MARKETPLACE_DOMAIN"`
	DefaultMaxImages  int    `mapstructure:"DEFAULT_MAX_IMAGES"`
	MaxImagesLimit    int    `mapstructure:"MAX_IMAGES_LIMIT"`
	RulesFile         string `mapstructure:"RULES_FILE"`

	PostgresURL     string `mapstructure:"POSTGRES_URL"`
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int    `mapstructure:"REDIS_DB"`
	CacheTTLMinutes int    `mapstructure:"CACHE_TTL_MINUTES"`

	OpenAIAPIKey       string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel        string `mapstructure:"OPENAI_MODEL"`
	ClassifyWorkers    int    `mapstructure:"CLASSIFY_WORKERS"`
	ClassifyIntervalMS int    `mapstructure:"CLASSIFY_INTERVAL_MS"`
}

var defaults = map[string]any{
	"SERVER_PORT":           "8080",
	"LOG_LEVEL":             "info",
	"FETCH_MODE":            "http",
	"FIXTURE_FILE":          "",
	"FETCH_TIMEOUT_SECONDS": 12,
	"MAX_IMAGE_BYTES":       8 << 20,
	"MARKETPLACE_DOMAIN":    "1688.com",
	"DEFAULT_MAX_IMAGES":    12,
	"MAX_IMAGES_LIMIT":      50,
	"RULES_FILE":            "",
	"POSTGRES_URL":          "",
	"REDIS_ADDR":            "",
	"REDIS_PASSWORD":        "",
	"REDIS_DB":              0,
	"CACHE_TTL_MINUTES":     30,
	"OPENAI_API_KEY":        "",
	"OPENAI_BASE_URL":       "",
	"OPENAI_MODEL":          "gpt-4o-mini",
	"CLASSIFY_WORKERS":      4,
	"CLASSIFY_INTERVAL_MS":  500,
}

// Load reads configuration from an optional .env file and the environment.
// Environment variables win over the file.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// The file is optional; production is configured through the environment.
	_ = v.ReadInConfig()

	// Every key needs a default so AutomaticEnv picks it up during Unmarshal.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.FetchMode = strings.ToLower(strings.TrimSpace(c.FetchMode))
	switch c.FetchMode {
	case "http":
	case "file":
		if c.FixtureFile == "" {
			return fmt.Errorf("config: FETCH_MODE=file requires FIXTURE_FILE")
		}
	default:
		return fmt.Errorf("config: unknown FETCH_MODE %q", c.FetchMode)
	}
	if c.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("config: FETCH_TIMEOUT_SECONDS must be positive")
	}
	if c.MaxImagesLimit <= 0 {
		return fmt.Errorf("config: MAX_IMAGES_LIMIT must be positive")
	}
	if c.DefaultMaxImages < 0 || c.DefaultMaxImages > c.MaxImagesLimit {
		return fmt.Errorf("config: DEFAULT_MAX_IMAGES must be between 0 and %d", c.MaxImagesLimit)
	}
	if c.ClassifyWorkers <= 0 {
		c.ClassifyWorkers = 1
	}
	return nil
}

// FetchTimeout is the page fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// CacheTTL is the lifetime of cached extraction results.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// ClassifyInterval is the minimum spacing between classifier calls.
func (c *Config) ClassifyInterval() time.Duration {
	return time.Duration(c.ClassifyIntervalMS) * time.Millisecond
}
