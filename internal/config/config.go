// Package config loads the top-level application configuration from
// YAML plus environment variable overrides, per spec §6.1.
//
// Grounded on internal/config/providers.go's LoadProvidersConfig (read
// file, yaml.Unmarshal, then Validate) and BackoffConfig/CircuitConfig's
// shape, adapted here from a provider-keyed map config to the
// application's flat store/cache/ingest/backtest sections, with env var
// overrides layered on top (DATABASE_URL, CACHE_URL, RUN_MODE,
// LOG_LEVEL) the way the teacher's cmd/cryptorun main.go reads
// os.Getenv for secrets that should never live in a committed YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Backtest BacktestConfig `yaml:"backtest"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	RunMode  string         `yaml:"run_mode"`
}

// DatabaseConfig configures the Postgres TickStore connection.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig configures the two-tier TickCache.
type CacheConfig struct {
	L1Capacity int           `yaml:"l1_capacity"`
	L1TTL      time.Duration `yaml:"l1_ttl"`
	LateWindow time.Duration `yaml:"late_window"`
	RedisURL   string        `yaml:"redis_url"`
}

// IngestConfig configures the live ingest pipeline.
type IngestConfig struct {
	QueueCapacity int           `yaml:"queue_capacity"`
	BatchSize     int           `yaml:"batch_size"`
	BatchAge      time.Duration `yaml:"batch_age"`
	DrainTimeout  time.Duration `yaml:"drain_timeout"`
	SourceURL     string        `yaml:"source_url"`
	// MaxClockSkew bounds how far a tick's ts may diverge from wall-clock
	// time before Submit rejects it, per spec §4.4 step 1.
	MaxClockSkew time.Duration `yaml:"max_clock_skew"`
}

// BacktestConfig configures default backtest parameters.
type BacktestConfig struct {
	InitialCash    string  `yaml:"initial_cash"`
	CommissionRate float64 `yaml:"commission_rate"`
	// ForceCloseAtEnd mirrors spec §6's backtest.force_close_at_end key.
	ForceCloseAtEnd bool `yaml:"force_close_at_end"`
}

// HTTPConfig configures the boundary API server (SPEC_FULL.md §6.3).
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a Config matching spec §6.1's documented defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:    5,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Cache: CacheConfig{
			L1Capacity: 1000,
			L1TTL:      300 * time.Second,
			LateWindow: 2 * time.Second,
		},
		Ingest: IngestConfig{
			QueueCapacity: 10000,
			BatchSize:     100,
			BatchAge:      200 * time.Millisecond,
			DrainTimeout:  5 * time.Second,
			MaxClockSkew:  5 * time.Minute,
		},
		Backtest: BacktestConfig{
			InitialCash:     "100000",
			CommissionRate:  0.001,
			ForceCloseAtEnd: true,
		},
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Log:     LogConfig{Level: "info"},
		RunMode: "live",
	}
}

// Load reads configPath (if non-empty) over Default(), then applies
// environment variable overrides, then validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides layers DATABASE_URL, CACHE_URL, RUN_MODE, and
// LOG_LEVEL over whatever the YAML file (or defaults) set, per spec
// §6.1 — these are exactly the values that should never be committed
// to a config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("CACHE_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("RUN_MODE"); v != "" {
		cfg.RunMode = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate ensures the configuration is self-consistent, mirroring the
// teacher's ProvidersConfig.Validate per-section style.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn (or DATABASE_URL) must be set")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive, got %d", c.Database.MaxOpenConns)
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative, got %d", c.Database.MaxIdleConns)
	}
	if c.Cache.L1Capacity <= 0 {
		return fmt.Errorf("cache.l1_capacity must be positive, got %d", c.Cache.L1Capacity)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.QueueCapacity < c.Ingest.BatchSize {
		return fmt.Errorf("ingest.queue_capacity (%d) must be >= ingest.batch_size (%d)", c.Ingest.QueueCapacity, c.Ingest.BatchSize)
	}
	if c.Backtest.CommissionRate < 0 {
		return fmt.Errorf("backtest.commission_rate cannot be negative, got %f", c.Backtest.CommissionRate)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be in (0, 65535], got %d", c.HTTP.Port)
	}
	switch c.RunMode {
	case "live", "backtest", "serve":
	default:
		return fmt.Errorf("run_mode must be one of live, backtest, serve; got %q", c.RunMode)
	}
	return nil
}
