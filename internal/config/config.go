package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	AppPort  string `envconfig:"APP_PORT" default:"8080"`
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// StorageDriver selects the order store: postgres or memory
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`

	// Database
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"cafe_orders"`
	DBURL      string `envconfig:"DB_URL"`

	// Redis backs the dashboard read cache when CacheDriver is redis
	RedisURL      string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	CacheDriver   string `envconfig:"CACHE_DRIVER" default:"memory"`

	// Order engine
	StatsCacheTTL     time.Duration `envconfig:"STATS_CACHE_TTL" default:"30s"`
	BranchTimezone    string        `envconfig:"BRANCH_TIMEZONE" default:"Africa/Nairobi"`
	MergeTimeout      time.Duration `envconfig:"MERGE_TIMEOUT" default:"5s"`
	WriteRetries      int           `envconfig:"WRITE_RETRIES" default:"3"`
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"15m"`

	// WhatsApp
	WhatsAppToken         string `envconfig:"WHATSAPP_TOKEN"`
	WhatsAppPhoneNumberID string `envconfig:"WHATSAPP_PHONE_NUMBER_ID"`

	// Dashboard
	JWTSecret string        `envconfig:"JWT_SECRET" default:"change-this-secret-in-production"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"12h"`

	// PaymentWebhookSecret verifies the X-Payment-Signature header
	PaymentWebhookSecret string `envconfig:"PAYMENT_WEBHOOK_SECRET"`
}

var instance *Config

// Load initializes and returns the singleton Config instance
func Load() (*Config, error) {
	if instance != nil {
		return instance, nil
	}

	// Load .env file if it exists (for local development)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment variables: %w", err)
	}

	// Hosted Postgres usually exposes DATABASE_URL
	if cfg.DBURL == "" {
		if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
			cfg.DBURL = databaseURL
		}
	}

	if cfg.DBURL == "" {
		cfg.DBURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	instance = cfg
	return instance, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.CacheDriver {
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported CACHE_DRIVER %q", c.CacheDriver)
	}
	if c.WriteRetries < 1 {
		return fmt.Errorf("WRITE_RETRIES must be at least 1")
	}
	if _, err := time.LoadLocation(c.BranchTimezone); err != nil {
		return fmt.Errorf("invalid BRANCH_TIMEZONE %q: %w", c.BranchTimezone, err)
	}
	return nil
}

// Location returns the branch timezone. validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BranchTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Get returns the singleton Config instance (must call Load first)
func Get() *Config {
	if instance == nil {
		panic("config not loaded: call config.Load() first")
	}
	return instance
}

// reset clears the singleton; tests only.
func reset() { instance = nil }
