package config

import (
	"fmt"
	"strings" // For LogLevel normalization
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken    string  `env:"TELEGRAM_TOKEN,required" validate:"required"`
	DatabaseURL      string  `env:"DATABASE_URL,required" validate:"required"`
	AdminTelegramIDs []int64 `env:"ADMIN_TELEGRAM_IDS" envSeparator:","`
	LogLevel         string  `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn warning error fatal panic"`
	Environment      string  `env:"ENVIRONMENT" envDefault:"development" validate:"oneof=development staging production"`

	APIBaseURL          string        `env:"API_BASE_URL,required" validate:"required,url"`
	ForecastTimeout     time.Duration `env:"FORECAST_TIMEOUT" envDefault:"60s" validate:"gt=0"`
	ForecastMaxAttempts int           `env:"FORECAST_MAX_ATTEMPTS" envDefault:"4" validate:"min=1,max=10"`
	ForecastBaseDelay   time.Duration `env:"FORECAST_BASE_DELAY" envDefault:"2s" validate:"gt=0"`
	ForecastMaxDelay    time.Duration `env:"FORECAST_MAX_DELAY" envDefault:"30s" validate:"gtefield=ForecastBaseDelay"`

	DispatchRatePerSec      int           `env:"DISPATCH_RATE_PER_SEC" envDefault:"25" validate:"min=1,max=30"`
	DispatchWorkers         int           `env:"DISPATCH_WORKERS" envDefault:"1" validate:"min=1,max=8"`
	DispatchMaxFloodRetries int           `env:"DISPATCH_MAX_FLOOD_RETRIES" envDefault:"5" validate:"min=0"`
	MessageLimit            int           `env:"MESSAGE_LIMIT" envDefault:"4096" validate:"min=64,max=4096"`
	RunTimeout              time.Duration `env:"RUN_TIMEOUT" envDefault:"30m" validate:"gt=0"`

	SchedulerMaxConcurrent int           `env:"SCHEDULER_MAX_CONCURRENT" envDefault:"4" validate:"min=1"`
	FailedRetryInterval    time.Duration `env:"FAILED_RETRY_INTERVAL" envDefault:"0s" validate:"gte=0"`
	ScheduleSeedFile       string        `env:"SCHEDULE_SEED_FILE"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Environment = strings.ToLower(cfg.Environment)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
