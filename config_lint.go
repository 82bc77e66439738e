package handoff

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks configuration warnings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is a configuration that is valid but probably unintended.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of warnings produced by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	codes := make([]string, 0, len(r))
	for _, w := range r {
		codes = append(codes, w.Code)
	}
	return codes
}

// BySeverity returns warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins warnings at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	matched := r.BySeverity(min)
	if len(matched) == 0 {
		return nil
	}
	parts := make([]string, 0, len(matched))
	for _, w := range matched {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint reports settings that pass Validate but weaken the handoff.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.URL.Scheme == "http" {
		add("http_scheme", LintHigh, "handoff codes travel in clear text over http")
	}
	if c.Code.TTL > 2*time.Minute {
		add("ttl_long", LintWarn, "code TTL above 2m widens the interception window")
	}
	if c.RateLimit.MaxIssuesPerUser == 0 && c.RateLimit.MaxExchangeFailures == 0 {
		add("rate_limits_disabled", LintWarn, "neither issuance nor failed exchanges are rate limited")
	} else if c.RateLimit.MaxExchangeFailures == 0 {
		add("exchange_throttle_disabled", LintInfo, "failed exchanges are not throttled per IP")
	}
	if c.Lookup.Timeout > time.Second {
		add("lookup_timeout_long", LintWarn, "directory lookups above 1s stall the redirect")
	}
	if c.Lookup.CacheTimeout > time.Second {
		add("cache_timeout_long", LintWarn, "cache calls above 1s stall the redirect when Redis hangs")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintWarn, "handoff issuance and exchange are not audited")
	} else if c.Audit.DropIfFull {
		add("audit_drop_if_full", LintInfo, "audit events are dropped when the buffer is full")
	}
	if c.URL.BaseDomain == "" {
		add("base_domain_empty", LintInfo, "bare tenant labels are used as host names unchanged")
	}

	return ws
}
