package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Database   DatabaseConfig
	Registry   RegistryConfig
	CoinGecko  CoinGeckoConfig
	HTTP       HTTPConfig
	Updater    UpdaterConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Logging    LoggingConfig
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	Name           string `envconfig:"DB_NAME" default:"price_tracker"`
	User           string `envconfig:"DB_USER" required:"true"`
	Password       string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"./migrations"`
}

// RegistryConfig represents extra assets seeded on startup
type RegistryConfig struct {
	Seed []string `envconfig:"ASSET_SEED" required:"false"` // SYMBOL:Name:external-id,...
}

// CoinGeckoConfig represents external price source settings
type CoinGeckoConfig struct {
	BaseURL     string        `envconfig:"COINGECKO_BASE_URL" default:"https://api.coingecko.com/api/v3"`
	APIKey      string        `envconfig:"COINGECKO_API_KEY" required:"false"`
	UserAgent   string        `envconfig:"COINGECKO_USER_AGENT" default:"price-tracker/1.0 (+https://github.com/selivandex/price-tracker)"`
	Timeout     time.Duration `envconfig:"COINGECKO_TIMEOUT" default:"10s"`
	MaxAttempts int           `envconfig:"COINGECKO_MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `envconfig:"COINGECKO_BASE_DELAY" default:"1s"`
}

// HTTPConfig represents API server settings
type HTTPConfig struct {
	Port            string        `envconfig:"HTTP_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// UpdaterConfig represents the optional periodic update trigger
type UpdaterConfig struct {
	Interval time.Duration `envconfig:"UPDATE_INTERVAL" default:"0"` // 0 disables the worker
}

// RedisConfig represents Redis connection for update lock and view cache
type RedisConfig struct {
	Enabled  bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD" required:"false"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `envconfig:"REDIS_CACHE_TTL" default:"30s"`
	LockTTL  time.Duration `envconfig:"REDIS_LOCK_TTL" default:"60s"`
}

// ClickHouseConfig represents the optional analytics mirror
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	Database string `envconfig:"CLICKHOUSE_DATABASE" default:"price_tracker"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD" required:"false"`

	SchemaPath    string        `envconfig:"CLICKHOUSE_SCHEMA_PATH" default:"./migrations/clickhouse/price_observations.sql"`
	BatchSize     int           `envconfig:"CLICKHOUSE_BATCH_SIZE" default:"500"`
	FlushInterval time.Duration `envconfig:"CLICKHOUSE_FLUSH_INTERVAL" default:"10s"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" required:"false"`
}

// Load reads configuration from .env (if present) and environment variables
func Load() (*Config, error) {
	// Missing .env is fine, real environment wins
	_ = godotenv.Load()

	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.CoinGecko.BaseURL == "" {
		return fmt.Errorf("coingecko base url is required")
	}
	if c.CoinGecko.MaxAttempts < 1 {
		return fmt.Errorf("coingecko max_attempts must be at least 1")
	}
	if c.CoinGecko.BaseDelay < 0 {
		return fmt.Errorf("coingecko base_delay must not be negative")
	}
	if c.CoinGecko.Timeout <= 0 {
		return fmt.Errorf("coingecko timeout must be positive")
	}
	if c.Updater.Interval < 0 {
		return fmt.Errorf("update interval must not be negative")
	}
	if c.ClickHouse.Enabled && (c.ClickHouse.BatchSize < 1 || c.ClickHouse.FlushInterval <= 0) {
		return fmt.Errorf("clickhouse batch_size and flush_interval must be positive")
	}
	if c.Redis.Enabled && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("redis lock_ttl must be positive")
	}
	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetDSN returns ClickHouse connection string
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

// Addr returns Redis host:port
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
