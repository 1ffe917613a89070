package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	ProviderHTTP   = "http"
	ProviderStripe = "stripe"
)

type Config struct {
	App struct {
		Name     string `envconfig:"APP_NAME" default:"paycore"`
		Port     int    `envconfig:"PORT" default:"8080"`
		LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	}

	Store string `envconfig:"STORE" default:"postgres"`

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"paycore"`

		MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
		MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
		ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"60s"`
	}

	Provider struct {
		Kind    string        `envconfig:"PROVIDER_KIND" default:"http"`
		URL     string        `envconfig:"PROVIDER_URL"`
		APIKey  string        `envconfig:"PROVIDER_API_KEY"`
		Timeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"10s"`
		Rate    float64       `envconfig:"PROVIDER_RATE" default:"50"`
		Burst   int           `envconfig:"PROVIDER_BURST" default:"10"`
	}

	Retry struct {
		MaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
		BaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"200ms"`
		MaxDelay    time.Duration `envconfig:"RETRY_MAX_DELAY" default:"5s"`
		Jitter      float64       `envconfig:"RETRY_JITTER" default:"0.5"`
	}

	OperationTimeout time.Duration `envconfig:"OPERATION_TIMEOUT" default:"30s"`

	Audit struct {
		SNSTopicARN string `envconfig:"AUDIT_SNS_TOPIC_ARN"`
	}

	Auth struct {
		JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
	}

	CORS struct {
		AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

// Level parses LOG_LEVEL, falling back to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return slog.LevelInfo
	}

	return level
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}

	switch c.Provider.Kind {
	case ProviderHTTP:
		if c.Provider.URL == "" {
			return fmt.Errorf("PROVIDER_URL is required for the http provider")
		}
	case ProviderStripe:
		if c.Provider.APIKey == "" {
			return fmt.Errorf("PROVIDER_API_KEY is required for the stripe provider")
		}
	default:
		return fmt.Errorf("unknown PROVIDER_KIND %q", c.Provider.Kind)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.Retry.MaxAttempts)
	}

	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("RETRY_JITTER must be within [0, 1], got %v", c.Retry.Jitter)
	}

	if c.Provider.Timeout <= 0 || c.OperationTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT and OPERATION_TIMEOUT must be positive")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	cfg.Store = strings.ToLower(cfg.Store)
	cfg.Provider.Kind = strings.ToLower(cfg.Provider.Kind)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
