package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Odds provider (The Odds API)
	OddsAPIKey     string        `envconfig:"ODDS_API_KEY" required:"true"`
	OddsAPIBaseURL string        `envconfig:"ODDS_API_BASE_URL" default:"https://api.the-odds-api.com/v4"`
	OddsAPITimeout time.Duration `envconfig:"ODDS_API_TIMEOUT" default:"30s"`
	OddsAPIRegions string        `envconfig:"ODDS_API_REGIONS" default:"us"`
	OddsAPIMarkets string        `envconfig:"ODDS_API_MARKETS" default:"h2h,spreads,totals"`

	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"oddsline"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"oddsline"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`
	AutoMigrate      bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	// Redis
	RedisEnabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP trigger and read API
	HTTPPort    int      `envconfig:"HTTP_PORT" default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	// Scheduler
	EnableScheduler   bool          `envconfig:"ENABLE_SCHEDULER" default:"true"`
	SchedulerTimezone string        `envconfig:"SCHEDULER_TIMEZONE" default:"Asia/Karachi"`
	OddsSyncCron      string        `envconfig:"ODDS_SYNC_CRON" default:"0 * * * *"`
	PredictionCron    string        `envconfig:"PREDICTION_CRON" default:"30 0 * * *"`
	RunLockTTL        time.Duration `envconfig:"RUN_LOCK_TTL" default:"30m"`

	// Pipeline
	LeaguesFile           string `envconfig:"LEAGUES_FILE" default:""`
	SyncConcurrency       int    `envconfig:"SYNC_CONCURRENCY" default:"3"`
	PredictionHorizonDays int    `envconfig:"PREDICTION_HORIZON_DAYS" default:"2"`
	PredictionConcurrency int    `envconfig:"PREDICTION_CONCURRENCY" default:"2"`

	// Text generation
	GeneratorProvider string        `envconfig:"GENERATOR_PROVIDER" default:"openai"`
	OpenAIAPIKey      string        `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIModel       string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	AnthropicAPIKey   string        `envconfig:"ANTHROPIC_API_KEY" default:""`
	AnthropicModel    string        `envconfig:"ANTHROPIC_MODEL" default:"claude-3-5-haiku-latest"`
	GeneratorTimeout  time.Duration `envconfig:"GENERATOR_TIMEOUT" default:"120s"`

	// Caching TTL (in seconds)
	CacheTTLEvents int `envconfig:"CACHE_TTL_EVENTS" default:"300"` // 5 minutes

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OddsAPIKey == "" {
		return fmt.Errorf("ODDS_API_KEY is required")
	}

	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if _, err := time.LoadLocation(c.SchedulerTimezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE %q is invalid: %w", c.SchedulerTimezone, err)
	}

	if c.PredictionHorizonDays < 1 {
		return fmt.Errorf("PREDICTION_HORIZON_DAYS must be at least 1")
	}

	if c.SyncConcurrency < 1 || c.PredictionConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY and PREDICTION_CONCURRENCY must be at least 1")
	}

	switch strings.ToLower(c.GeneratorProvider) {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when GENERATOR_PROVIDER=openai")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when GENERATOR_PROVIDER=anthropic")
		}
	default:
		return fmt.Errorf("GENERATOR_PROVIDER must be openai or anthropic, got %q", c.GeneratorProvider)
	}

	return nil
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// GeneratorCredentials returns the API key and model for the selected provider
func (c *Config) GeneratorCredentials() (apiKey, model string) {
	if strings.EqualFold(c.GeneratorProvider, "anthropic") {
		return c.AnthropicAPIKey, c.AnthropicModel
	}
	return c.OpenAIAPIKey, c.OpenAIModel
}
