// Package config loads the handoffd service configuration from the
// environment and an optional .env file.
package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/practiceline/handoff"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	Role     string `mapstructure:"ROLE"`
	TenantID string `mapstructure:"TENANT_ID"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	RedisURL          string        `mapstructure:"REDIS_URL"`
	RedisDialTimeout  time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	RedisReadTimeout  time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`
	RedisWriteTimeout time.Duration `mapstructure:"REDIS_WRITE_TIMEOUT"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`

	BaseDomain    string        `mapstructure:"BASE_DOMAIN"`
	URLScheme     string        `mapstructure:"URL_SCHEME"`
	HandoffPath   string        `mapstructure:"HANDOFF_PATH"`
	HandoffTTL    time.Duration `mapstructure:"HANDOFF_TTL"`
	KeyPrefix     string        `mapstructure:"HANDOFF_KEY_PREFIX"`
	LookupTimeout time.Duration `mapstructure:"LOOKUP_TIMEOUT"`
	CacheTimeout  time.Duration `mapstructure:"CACHE_TIMEOUT"`

	RateIssueMax          int           `mapstructure:"RATE_ISSUE_MAX"`
	RateIssueWindow       time.Duration `mapstructure:"RATE_ISSUE_WINDOW"`
	RateExchangeFailures  int           `mapstructure:"RATE_EXCHANGE_FAILURES"`
	RateExchangeWindow    time.Duration `mapstructure:"RATE_EXCHANGE_WINDOW"`
	AuditEnabled          bool          `mapstructure:"AUDIT_ENABLED"`
	AuditBufferSize       int           `mapstructure:"AUDIT_BUFFER_SIZE"`
	MetricsLatencyEnabled bool          `mapstructure:"METRICS_LATENCY"`

	// CentralSessionKey verifies the central application's session tokens.
	CentralSessionKey string `mapstructure:"CENTRAL_SESSION_KEY"`
	CentralIssuer     string `mapstructure:"CENTRAL_ISSUER"`
	// SessionKey signs tenant sessions minted after an exchange.
	SessionKey    string        `mapstructure:"SESSION_KEY"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`
	SessionCookie string        `mapstructure:"SESSION_COOKIE"`
	LoginPath     string        `mapstructure:"LOGIN_PATH"`
	LandingPath   string        `mapstructure:"LANDING_PATH"`
}

var keys = []string{
	"PORT", "ENV", "ROLE", "TENANT_ID", "LOG_LEVEL",
	"REDIS_URL", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"BASE_DOMAIN", "URL_SCHEME", "HANDOFF_PATH", "HANDOFF_TTL", "HANDOFF_KEY_PREFIX", "LOOKUP_TIMEOUT", "CACHE_TIMEOUT",
	"RATE_ISSUE_MAX", "RATE_ISSUE_WINDOW", "RATE_EXCHANGE_FAILURES", "RATE_EXCHANGE_WINDOW",
	"AUDIT_ENABLED", "AUDIT_BUFFER_SIZE", "METRICS_LATENCY",
	"CENTRAL_SESSION_KEY", "CENTRAL_ISSUER", "SESSION_KEY", "SESSION_TTL", "SESSION_COOKIE",
	"LOGIN_PATH", "LANDING_PATH",
}

// Load reads the environment, falling back to .env and then defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	defaults := handoff.DefaultConfig()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("ROLE", "all")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("URL_SCHEME", defaults.URL.Scheme)
	v.SetDefault("HANDOFF_PATH", defaults.URL.HandoffPath)
	v.SetDefault("HANDOFF_TTL", defaults.Code.TTL)
	v.SetDefault("HANDOFF_KEY_PREFIX", defaults.Code.KeyPrefix)
	v.SetDefault("LOOKUP_TIMEOUT", defaults.Lookup.Timeout)
	v.SetDefault("CACHE_TIMEOUT", defaults.Lookup.CacheTimeout)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 500*time.Millisecond)
	v.SetDefault("REDIS_READ_TIMEOUT", defaults.Lookup.CacheTimeout)
	v.SetDefault("REDIS_WRITE_TIMEOUT", defaults.Lookup.CacheTimeout)
	v.SetDefault("RATE_ISSUE_MAX", defaults.RateLimit.MaxIssuesPerUser)
	v.SetDefault("RATE_ISSUE_WINDOW", defaults.RateLimit.IssueWindow)
	v.SetDefault("RATE_EXCHANGE_FAILURES", defaults.RateLimit.MaxExchangeFailures)
	v.SetDefault("RATE_EXCHANGE_WINDOW", defaults.RateLimit.ExchangeFailureWindow)
	v.SetDefault("AUDIT_ENABLED", defaults.Audit.Enabled)
	v.SetDefault("AUDIT_BUFFER_SIZE", defaults.Audit.BufferSize)
	v.SetDefault("METRICS_LATENCY", true)
	v.SetDefault("CENTRAL_ISSUER", "central")
	v.SetDefault("SESSION_TTL", 8*time.Hour)
	v.SetDefault("SESSION_COOKIE", "session")
	v.SetDefault("LOGIN_PATH", "/login")
	v.SetDefault("LANDING_PATH", "/")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) ServesCentral() bool {
	return c.Role == "central" || c.Role == "all"
}

func (c *Config) ServesTenant() bool {
	return c.Role == "tenant" || c.Role == "all"
}

// Validate checks the settings needed by the configured role.
func (c *Config) Validate() error {
	if c.Role != "central" && c.Role != "tenant" && c.Role != "all" {
		return fmt.Errorf("ROLE must be \"central\", \"tenant\" or \"all\", got %q", c.Role)
	}
	if !c.IsDev() {
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required outside development")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required outside development")
		}
		if c.URLScheme != "https" {
			return fmt.Errorf("URL_SCHEME must be https outside development")
		}
	}
	if c.ServesCentral() {
		if err := checkKey("CENTRAL_SESSION_KEY", c.CentralSessionKey); err != nil {
			return err
		}
	}
	if c.ServesTenant() {
		if c.TenantID == "" {
			return fmt.Errorf("TENANT_ID is required for the tenant role")
		}
		if err := checkKey("SESSION_KEY", c.SessionKey); err != nil {
			return err
		}
		if c.SessionTTL <= 0 {
			return fmt.Errorf("SESSION_TTL must be positive")
		}
	}

	for name, d := range map[string]time.Duration{
		"REDIS_DIAL_TIMEOUT":  c.RedisDialTimeout,
		"REDIS_READ_TIMEOUT":  c.RedisReadTimeout,
		"REDIS_WRITE_TIMEOUT": c.RedisWriteTimeout,
	} {
		if d <= 0 || d > 5*time.Second {
			return fmt.Errorf("%s must be > 0 and <= 5s, got %s", name, d)
		}
	}

	engine := c.Engine()
	return engine.Validate()
}

// Engine maps the service settings onto the engine configuration.
func (c *Config) Engine() handoff.Config {
	cfg := handoff.DefaultConfig()
	cfg.Code.TTL = c.HandoffTTL
	cfg.Code.KeyPrefix = c.KeyPrefix
	cfg.URL.Scheme = c.URLScheme
	cfg.URL.BaseDomain = c.BaseDomain
	cfg.URL.HandoffPath = c.HandoffPath
	cfg.Lookup.Timeout = c.LookupTimeout
	cfg.Lookup.CacheTimeout = c.CacheTimeout
	cfg.RateLimit = handoff.RateLimitConfig{
		MaxIssuesPerUser:      c.RateIssueMax,
		IssueWindow:           c.RateIssueWindow,
		MaxExchangeFailures:   c.RateExchangeFailures,
		ExchangeFailureWindow: c.RateExchangeWindow,
	}
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Audit.BufferSize = c.AuditBufferSize
	cfg.Metrics.EnableLatencyHistograms = c.MetricsLatencyEnabled
	return cfg
}

// DecodeKey returns the raw bytes of a hex signing key.
func DecodeKey(hexKey string) ([]byte, error) {
	return hex.DecodeString(hexKey)
}

func checkKey(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	b, err := hex.DecodeString(value)
	if err != nil {
		return fmt.Errorf("%s is not valid hex: %w", name, err)
	}
	if len(b) < 32 {
		return fmt.Errorf("%s must be at least 32 bytes (64 hex chars), got %d bytes", name, len(b))
	}
	return nil
}
