// Package config holds the engine configuration and its loading rules.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	LogLevel   string           `yaml:"log_level" koanf:"log_level"`
	Server     ServerConfig     `yaml:"server" koanf:"server"`
	Database   DatabaseConfig   `yaml:"database" koanf:"database"`
	Recognizer RecognizerConfig `yaml:"recognizer" koanf:"recognizer"`
	Matching   MatchingConfig   `yaml:"matching" koanf:"matching"`
	Gateway    GatewayConfig    `yaml:"gateway" koanf:"gateway"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" koanf:"rate_limit"`
	Redis      RedisConfig      `yaml:"redis" koanf:"redis"`
	Capture    CaptureConfig    `yaml:"capture" koanf:"capture"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" koanf:"host"`
	Port            int           `yaml:"port" koanf:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins" koanf:"allowed_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout" koanf:"request_timeout"`   // reporting and device routes
	IdentifyTimeout time.Duration `yaml:"identify_timeout" koanf:"identify_timeout"` // identification routes
}

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver       string `yaml:"driver" koanf:"driver"`           // postgres or sqlite
	URL          string `yaml:"url" koanf:"url"`                 // PostgreSQL connection URL
	SQLitePath   string `yaml:"sqlite_path" koanf:"sqlite_path"` // database file for the sqlite driver
	LegacyDSN    string `yaml:"legacy_dsn" koanf:"legacy_dsn"`   // optional MariaDB DSN of the enrollment system; candidates are read from it when set
	MaxOpenConns int    `yaml:"max_open_conns" koanf:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns" koanf:"max_idle_conns"`
}

type RecognizerConfig struct {
	Enabled    bool          `yaml:"enabled" koanf:"enabled"`
	Executable string        `yaml:"executable" koanf:"executable"` // interpreter, PYTHON_EXECUTABLE overrides
	Script     string        `yaml:"script" koanf:"script"`
	Timeout    time.Duration `yaml:"timeout" koanf:"timeout"`
}

// TierThresholds are the decision thresholds applied when the best result
// came from a given method.
type TierThresholds struct {
	Accept   float64 `yaml:"accept" koanf:"accept"`
	AutoMark float64 `yaml:"auto_mark" koanf:"auto_mark"`
}

type MatchingConfig struct {
	AcceptThreshold   float64                   `yaml:"accept_threshold" koanf:"accept_threshold"`
	AutoMarkThreshold float64                   `yaml:"auto_mark_threshold" koanf:"auto_mark_threshold"`
	Tiers             map[string]TierThresholds `yaml:"tiers" koanf:"tiers"`
}

// ThresholdsFor returns the thresholds for method, falling back to the global pair.
func (m *MatchingConfig) ThresholdsFor(method string) TierThresholds {
	if t, ok := m.Tiers[method]; ok {
		return t
	}
	return TierThresholds{Accept: m.AcceptThreshold, AutoMark: m.AutoMarkThreshold}
}

type GatewayConfig struct {
	Host    string        `yaml:"host" koanf:"host"`
	Port    int           `yaml:"port" koanf:"port"`
	Timeout time.Duration `yaml:"timeout" koanf:"timeout"`
}

// BaseURL returns the device's HTTP base URL.
func (g *GatewayConfig) BaseURL() string {
	if g.Host == "" {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", g.Host, g.Port)
}

type RateLimitConfig struct {
	Backend       string        `yaml:"backend" koanf:"backend"` // memory or redis
	Limit         int           `yaml:"limit" koanf:"limit"`
	Window        time.Duration `yaml:"window" koanf:"window"`
	SweepInterval time.Duration `yaml:"sweep_interval" koanf:"sweep_interval"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" koanf:"addr"`
	Password string `yaml:"password" koanf:"password"`
	DB       int    `yaml:"db" koanf:"db"`
}

type CaptureConfig struct {
	TempDir       string `yaml:"temp_dir" koanf:"temp_dir"` // empty means os.TempDir()
	TemplatesRoot string `yaml:"templates_root" koanf:"templates_root"`
	MaxBytes      int    `yaml:"max_bytes" koanf:"max_bytes"`
}

// Defaults returns the configuration from the embedded defaults.yaml.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// applyLegacyEnv applies the unprefixed variables of older deployments.
func applyLegacyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("PYTHON_EXECUTABLE"); v != "" {
		cfg.Recognizer.Executable = v
	}
	if v := os.Getenv("ESP32_IP"); v != "" {
		cfg.Gateway.Host = v
	}
	cfg.Gateway.Port = envInt("ESP32_PORT", cfg.Gateway.Port)
	if secs := envInt("ESP32_TIMEOUT", 0); secs > 0 {
		cfg.Gateway.Timeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("REDIS_URI"); v != "" {
		cfg.Redis.Addr = v
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}

	if err := checkUnit("matching.accept_threshold", c.Matching.AcceptThreshold); err != nil {
		return err
	}
	if err := checkUnit("matching.auto_mark_threshold", c.Matching.AutoMarkThreshold); err != nil {
		return err
	}
	for method, t := range c.Matching.Tiers {
		if err := checkUnit("matching.tiers."+method+".accept", t.Accept); err != nil {
			return err
		}
		if err := checkUnit("matching.tiers."+method+".auto_mark", t.AutoMark); err != nil {
			return err
		}
	}

	if c.Recognizer.Timeout <= 0 {
		return fmt.Errorf("%w: recognizer.timeout must be positive", ErrInvalidConfig)
	}
	if c.Server.RequestTimeout <= 0 || c.Server.IdentifyTimeout <= 0 {
		return fmt.Errorf("%w: server.request_timeout and server.identify_timeout must be positive", ErrInvalidConfig)
	}
	if c.Server.IdentifyTimeout < c.Recognizer.Timeout {
		return fmt.Errorf("%w: server.identify_timeout must not be shorter than recognizer.timeout", ErrInvalidConfig)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("%w: rate_limit.window must be positive", ErrInvalidConfig)
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("%w: rate_limit.limit must be positive", ErrInvalidConfig)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown rate_limit.backend %q", ErrInvalidConfig, c.RateLimit.Backend)
	}
	if c.Capture.MaxBytes <= 0 {
		return fmt.Errorf("%w: capture.max_bytes must be positive", ErrInvalidConfig)
	}
	return nil
}

func checkUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %s must be within [0, 1], got %v", ErrInvalidConfig, name, v)
	}
	return nil
}
