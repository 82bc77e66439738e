package handoff

import (
	"errors"
	"strings"
	"time"
)

const (
	// DefaultCodeTTL is the lifetime of an issued handoff code.
	DefaultCodeTTL = 60 * time.Second
	// MinCodeTTL and MaxCodeTTL bound CodeConfig.TTL.
	MinCodeTTL = 5 * time.Second
	MaxCodeTTL = 10 * time.Minute
	// DefaultLookupTimeout bounds membership and domain lookups.
	DefaultLookupTimeout = 500 * time.Millisecond
	// DefaultCacheTimeout bounds each code store and rate limiter call.
	DefaultCacheTimeout = 300 * time.Millisecond
	// DefaultHandoffPath is the tenant endpoint that exchanges codes.
	DefaultHandoffPath = "/sso/start"
	// CodeParam is the query parameter carrying the handoff code.
	CodeParam = "code"
)

// Config defines the engine's tuning.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Code      CodeConfig
	URL       URLConfig
	Lookup    LookupConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
CODE CONFIG
====================================
*/

// CodeConfig controls handoff code storage.
type CodeConfig struct {
	TTL        time.Duration
	KeyPrefix  string
	MaxRetries int // SET NX collisions tolerated before giving up
}

/*
====================================
URL CONFIG
====================================
*/

// URLConfig controls how tenant handoff URLs are built.
type URLConfig struct {
	Scheme      string // "https" (default) or "http" for local development
	BaseDomain  string // appended to bare tenant labels, e.g. "example.com"
	HandoffPath string
}

// LookupConfig bounds collaborator calls made on the redirect path.
type LookupConfig struct {
	Timeout time.Duration // membership and domain lookups
	// CacheTimeout bounds code store and rate limiter calls. Redis clients
	// only honour it with ContextTimeoutEnabled or a matching ReadTimeout.
	CacheTimeout time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the Redis fixed-window limiters. A zero maximum
// disables the corresponding limit.
type RateLimitConfig struct {
	MaxIssuesPerUser      int
	IssueWindow           time.Duration
	MaxExchangeFailures   int
	ExchangeFailureWindow time.Duration
}

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// EmitTimeout bounds each sink call; zero uses one second.
	EmitTimeout time.Duration
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Code: CodeConfig{
			TTL:        DefaultCodeTTL,
			KeyPrefix:  "sso",
			MaxRetries: 3,
		},
		URL: URLConfig{
			Scheme:      "https",
			HandoffPath: DefaultHandoffPath,
		},
		Lookup: LookupConfig{
			Timeout:      DefaultLookupTimeout,
			CacheTimeout: DefaultCacheTimeout,
		},
		RateLimit: RateLimitConfig{
			MaxIssuesPerUser:      30,
			IssueWindow:           time.Minute,
			MaxExchangeFailures:   20,
			ExchangeFailureWindow: 5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cfg for values the engine cannot run with.
func (c *Config) Validate() error {
	// Code
	if c.Code.TTL < MinCodeTTL || c.Code.TTL > MaxCodeTTL {
		return errors.New("Code TTL must be between 5s and 10m")
	}
	if strings.TrimSpace(c.Code.KeyPrefix) == "" {
		return errors.New("Code KeyPrefix must not be empty")
	}
	if strings.ContainsAny(c.Code.KeyPrefix, " \t\r\n") {
		return errors.New("Code KeyPrefix must not contain whitespace")
	}
	if c.Code.MaxRetries < 1 || c.Code.MaxRetries > 10 {
		return errors.New("Code MaxRetries must be between 1 and 10")
	}

	// URL
	if c.URL.Scheme != "https" && c.URL.Scheme != "http" {
		return errors.New("URL Scheme must be 'https' or 'http'")
	}
	if !strings.HasPrefix(c.URL.HandoffPath, "/") || strings.ContainsAny(c.URL.HandoffPath, "?#") {
		return errors.New("URL HandoffPath must be an absolute path without query or fragment")
	}
	if strings.ContainsAny(c.URL.BaseDomain, "/:?# ") {
		return errors.New("URL BaseDomain must be a bare host name")
	}

	// Lookup
	if c.Lookup.Timeout <= 0 {
		return errors.New("Lookup Timeout must be > 0")
	}
	if c.Lookup.Timeout > 5*time.Second {
		return errors.New("Lookup Timeout must be <= 5s")
	}
	if c.Lookup.CacheTimeout <= 0 || c.Lookup.CacheTimeout > 5*time.Second {
		return errors.New("Lookup CacheTimeout must be > 0 and <= 5s")
	}

	// Rate limits
	if c.RateLimit.MaxIssuesPerUser < 0 || c.RateLimit.MaxExchangeFailures < 0 {
		return errors.New("RateLimit maximums must be >= 0")
	}
	if c.RateLimit.MaxIssuesPerUser > 0 && c.RateLimit.IssueWindow <= 0 {
		return errors.New("RateLimit IssueWindow must be > 0 when MaxIssuesPerUser is set")
	}
	if c.RateLimit.MaxExchangeFailures > 0 && c.RateLimit.ExchangeFailureWindow <= 0 {
		return errors.New("RateLimit ExchangeFailureWindow must be > 0 when MaxExchangeFailures is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.EmitTimeout < 0 {
		return errors.New("Audit EmitTimeout must be >= 0")
	}

	return nil
}
