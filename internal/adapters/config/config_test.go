package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_USER", "tracker")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Errorf("Unexpected database defaults: %s:%d", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.CoinGecko.MaxAttempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", cfg.CoinGecko.MaxAttempts)
	}
	if cfg.CoinGecko.BaseDelay != time.Second {
		t.Errorf("Expected 1s base delay, got %s", cfg.CoinGecko.BaseDelay)
	}
	if cfg.Updater.Interval != 0 {
		t.Errorf("Periodic updater should be disabled by default, got %s", cfg.Updater.Interval)
	}
	if cfg.Redis.Enabled || cfg.ClickHouse.Enabled {
		t.Error("Optional backends should be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_USER", "tracker")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("COINGECKO_MAX_ATTEMPTS", "5")
	t.Setenv("UPDATE_INTERVAL", "2m")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.CoinGecko.MaxAttempts != 5 {
		t.Errorf("Expected 5 attempts, got %d", cfg.CoinGecko.MaxAttempts)
	}
	if cfg.Updater.Interval != 2*time.Minute {
		t.Errorf("Expected 2m interval, got %s", cfg.Updater.Interval)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis should be enabled")
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Errorf("Unexpected redis addr %s", cfg.Redis.Addr())
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	// t.Setenv restores the original values after the test
	t.Setenv("DB_USER", "")
	t.Setenv("DB_PASSWORD", "")
	os.Unsetenv("DB_USER")
	os.Unsetenv("DB_PASSWORD")

	if _, err := Load(); err == nil {
		t.Error("Expected error when database credentials are missing")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			CoinGecko: CoinGeckoConfig{
				BaseURL:     "https://api.coingecko.com/api/v3",
				Timeout:     10 * time.Second,
				MaxAttempts: 3,
				BaseDelay:   time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero attempts", func(c *Config) { c.CoinGecko.MaxAttempts = 0 }, true},
		{"negative delay", func(c *Config) { c.CoinGecko.BaseDelay = -time.Second }, true},
		{"empty base url", func(c *Config) { c.CoinGecko.BaseURL = "" }, true},
		{"negative interval", func(c *Config) { c.Updater.Interval = -time.Minute }, true},
		{"redis without lock ttl", func(c *Config) { c.Redis.Enabled = true }, true},
		{"clickhouse without batch size", func(c *Config) { c.ClickHouse.Enabled = true }, true},
		{"clickhouse configured", func(c *Config) {
			c.ClickHouse = ClickHouseConfig{Enabled: true, BatchSize: 100, FlushInterval: time.Second}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "prices", SSLMode: "disable"}

	want := "host=db port=5433 user=u password=p dbname=prices sslmode=disable"
	if got := cfg.GetDSN(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
