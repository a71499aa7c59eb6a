package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolguard/internal/pool"
)

// FileEnv names the environment variable pointing at an optional YAML file.
const FileEnv = "POOLGUARD_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Retry     RetryConfig     `yaml:"retry"`
	Alert     AlertConfig     `yaml:"alert"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" yaml:"port"`
	Host            string        `envconfig:"HOST" yaml:"host"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
}

// GRPCConfig holds the gRPC health server configuration.
type GRPCConfig struct {
	Port    string `envconfig:"GRPC_PORT" yaml:"port"`
	Enabled bool   `envconfig:"GRPC_ENABLED" yaml:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
}

// RateLimitConfig holds rate limiting configuration for the health API.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled"`
}

// DatabaseConfig holds the Postgres pool configuration.
type DatabaseConfig struct {
	Enabled        bool          `envconfig:"DB_ENABLED" yaml:"enabled"`
	URL            string        `envconfig:"DATABASE_URL" yaml:"url"`
	MaxConns       int32         `envconfig:"DB_MAX_CONNS" yaml:"max_conns"`
	MinConns       int32         `envconfig:"DB_MIN_CONNS" yaml:"min_conns"`
	ConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" yaml:"connect_timeout"`
	WaitTimeout    time.Duration `envconfig:"DB_WAIT_TIMEOUT" yaml:"wait_timeout"`
}

// RedisConfig holds the Redis pool configuration.
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" yaml:"enabled"`
	Addr     string `envconfig:"REDIS_ADDR" yaml:"addr"`
	Password string `envconfig:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `envconfig:"REDIS_DB" yaml:"db"`
	PoolSize int    `envconfig:"REDIS_POOL_SIZE" yaml:"pool_size"`
}

// MonitorConfig holds pool monitoring configuration.
type MonitorConfig struct {
	Interval            time.Duration `envconfig:"MONITOR_INTERVAL" yaml:"interval"`
	SaturationThreshold float64       `envconfig:"MONITOR_SATURATION_THRESHOLD" yaml:"saturation_threshold"`
	WindowSize          int           `envconfig:"MONITOR_WINDOW_SIZE" yaml:"window_size"`
	WindowAge           time.Duration `envconfig:"MONITOR_WINDOW_AGE" yaml:"window_age"`
	HistorySize         int           `envconfig:"MONITOR_HISTORY_SIZE" yaml:"history_size"`
	SlowQueryThreshold  time.Duration `envconfig:"MONITOR_SLOW_QUERY_THRESHOLD" yaml:"slow_query_threshold"`
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	FailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD" yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `envconfig:"BREAKER_RECOVERY_TIMEOUT" yaml:"recovery_timeout"`
	FailureWindow    time.Duration `envconfig:"BREAKER_FAILURE_WINDOW" yaml:"failure_window"`
}

// RetryConfig holds retry policy configuration.
type RetryConfig struct {
	MaxAttempts     int           `envconfig:"RETRY_MAX_ATTEMPTS" yaml:"max_attempts"`
	BaseDelay       time.Duration `envconfig:"RETRY_BASE_DELAY" yaml:"base_delay"`
	MaxDelay        time.Duration `envconfig:"RETRY_MAX_DELAY" yaml:"max_delay"`
	ExponentialBase float64       `envconfig:"RETRY_EXPONENTIAL_BASE" yaml:"exponential_base"`
	Jitter          bool          `envconfig:"RETRY_JITTER" yaml:"jitter"`
}

// AlertConfig holds alert delivery configuration. An empty WebhookURL
// disables webhook delivery; alerts are still logged.
type AlertConfig struct {
	WebhookURL string        `envconfig:"ALERT_WEBHOOK_URL" yaml:"webhook_url"`
	Timeout    time.Duration `envconfig:"ALERT_TIMEOUT" yaml:"timeout"`
	MaxRetries int           `envconfig:"ALERT_MAX_RETRIES" yaml:"max_retries"`
	Interval   time.Duration `envconfig:"ALERT_INTERVAL" yaml:"interval"`
	Burst      int           `envconfig:"ALERT_BURST" yaml:"burst"`
}

// Load builds the configuration in layers: defaults, then an optional YAML
// file named by POOLGUARD_CONFIG, then environment variables. A .env file in
// the working directory is loaded into the environment first; variables
// already set win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns the default on any error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	retry := resilience.DefaultRetryConfig()
	breaker := resilience.DefaultSettings()
	monitor := pool.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		GRPC: GRPCConfig{
			Port:    "50051",
			Enabled: true,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Database: DatabaseConfig{
			Enabled:        true,
			URL:            "postgres://postgres@localhost:5432/postgres?sslmode=disable",
			MaxConns:       10,
			MinConns:       1,
			ConnectTimeout: 5 * time.Second,
			WaitTimeout:    30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Monitor: MonitorConfig{
			Interval:            15 * time.Second,
			SaturationThreshold: monitor.SaturationThreshold,
			WindowSize:          monitor.WindowSize,
			WindowAge:           monitor.WindowAge,
			HistorySize:         monitor.HistorySize,
			SlowQueryThreshold:  pool.DefaultQueryConfig().SlowThreshold,
		},
		Breaker: BreakerConfig{
			FailureThreshold: breaker.FailureThreshold,
			RecoveryTimeout:  breaker.RecoveryTimeout,
			FailureWindow:    breaker.FailureWindow,
		},
		Retry: RetryConfig{
			MaxAttempts:     retry.MaxAttempts,
			BaseDelay:       retry.BaseDelay,
			MaxDelay:        retry.MaxDelay,
			ExponentialBase: retry.ExponentialBase,
			Jitter:          retry.Jitter,
		},
		Alert: AlertConfig{
			Timeout:    5 * time.Second,
			MaxRetries: 3,
			Interval:   time.Minute,
			Burst:      3,
		},
	}
}

// Validate reports the first setting no component can honor.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port == "":
		return fmt.Errorf("%w: server port is required", resilience.ErrInvalidConfig)
	case c.GRPC.Enabled && c.GRPC.Port == "":
		return fmt.Errorf("%w: grpc port is required when grpc is enabled", resilience.ErrInvalidConfig)
	case c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0):
		return fmt.Errorf("%w: rate limit rps and burst must be positive", resilience.ErrInvalidConfig)
	case c.Database.Enabled && c.Database.URL == "":
		return fmt.Errorf("%w: database url is required when the database is enabled", resilience.ErrInvalidConfig)
	case c.Database.MaxConns < 0 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns:
		return fmt.Errorf("%w: database min conns %d exceeds max conns %d", resilience.ErrInvalidConfig, c.Database.MinConns, c.Database.MaxConns)
	case c.Redis.Enabled && c.Redis.Addr == "":
		return fmt.Errorf("%w: redis addr is required when redis is enabled", resilience.ErrInvalidConfig)
	case c.Monitor.Interval <= 0:
		return fmt.Errorf("%w: %w", resilience.ErrInvalidConfig, pool.ErrInvalidInterval)
	case c.Monitor.SaturationThreshold <= 0 || c.Monitor.SaturationThreshold > 1:
		return fmt.Errorf("%w: saturation threshold must be in (0, 1], got %g", resilience.ErrInvalidConfig, c.Monitor.SaturationThreshold)
	case c.Monitor.WindowSize < 1:
		return fmt.Errorf("%w: monitor window size must be >= 1", resilience.ErrInvalidConfig)
	case c.Monitor.HistorySize < 1:
		return fmt.Errorf("%w: monitor history size must be >= 1", resilience.ErrInvalidConfig)
	case c.Monitor.SlowQueryThreshold <= 0:
		return fmt.Errorf("%w: slow query threshold must be positive", resilience.ErrInvalidConfig)
	case c.Breaker.FailureThreshold < 1:
		return fmt.Errorf("%w: breaker failure threshold must be >= 1", resilience.ErrInvalidConfig)
	case c.Breaker.RecoveryTimeout <= 0 || c.Breaker.FailureWindow <= 0:
		return fmt.Errorf("%w: breaker timeouts must be positive", resilience.ErrInvalidConfig)
	}
	return c.RetryConfig().Validate()
}

// RetryConfig converts the retry section to a resilience.RetryConfig.
func (c *Config) RetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:     c.Retry.MaxAttempts,
		BaseDelay:       c.Retry.BaseDelay,
		MaxDelay:        c.Retry.MaxDelay,
		ExponentialBase: c.Retry.ExponentialBase,
		Jitter:          c.Retry.Jitter,
		RetryOn:         resilience.DefaultRetryOn(),
	}
}

// BreakerSettings converts the breaker section to resilience.Settings.
func (c *Config) BreakerSettings() resilience.Settings {
	return resilience.Settings{
		FailureThreshold: c.Breaker.FailureThreshold,
		RecoveryTimeout:  c.Breaker.RecoveryTimeout,
		FailureWindow:    c.Breaker.FailureWindow,
	}
}

// MonitorConfig converts the monitor section to a pool.Config for target.
func (c *Config) MonitorConfig(target string) pool.Config {
	return pool.Config{
		Target:              target,
		SaturationThreshold: c.Monitor.SaturationThreshold,
		WindowSize:          c.Monitor.WindowSize,
		WindowAge:           c.Monitor.WindowAge,
		HistorySize:         c.Monitor.HistorySize,
	}
}

// QueryConfig converts the monitor section to a pool.QueryConfig.
func (c *Config) QueryConfig() pool.QueryConfig {
	return pool.QueryConfig{SlowThreshold: c.Monitor.SlowQueryThreshold}
}
