package handoff

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/practiceline/handoff/internal"
	"github.com/practiceline/handoff/internal/audit"
	"github.com/practiceline/handoff/internal/rate"
	"github.com/practiceline/handoff/internal/stores"
)

// Builder assembles an [Engine].
//
// Builder instances are intended to be configured during initialization and
// used for exactly one Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  CodeStore

	membership MembershipChecker
	domains    DomainResolver

	auditSink AuditSink
	logger    *zerolog.Logger
	clock     func() time.Time
	newToken  func() (string, error)

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client used for the code store (unless
// WithCodeStore is also given) and the rate limiters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCodeStore overrides the code store.
func (b *Builder) WithCodeStore(store CodeStore) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithMembership(m MembershipChecker) *Builder {
	b.membership = m
	return b
}

func (b *Builder) WithDomains(d DomainResolver) *Builder {
	b.domains = d
	return b
}

// WithDirectory sets one collaborator for both membership and domains.
func (b *Builder) WithDirectory(d interface {
	MembershipChecker
	DomainResolver
}) *Builder {
	b.membership = d
	b.domains = d
	return b
}

// WithAuditSink sets the audit destination. Without one, audit events go to
// the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithClock replaces time.Now for record timestamps and expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) withTokenSource(fn func() (string, error)) *Builder {
	b.newToken = fn
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.membership == nil {
		return nil, errors.New("membership checker required")
	}
	if b.domains == nil {
		return nil, errors.New("domain resolver required")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}
	logger = logger.With().Str("component", "handoff").Logger()

	// -------- CODE STORE --------
	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or code store required")
		}
		store = stores.NewHandoffStore(b.redis, cfg.Code.KeyPrefix).WithClock(now)
	}

	engine := &Engine{
		config:     cfg,
		store:      store,
		membership: b.membership,
		domains:    b.domains,
		metrics:    NewMetrics(cfg.Metrics),
		logger:     logger,
		now:        now,
		newToken:   internal.NewHandoffToken,
	}
	if b.newToken != nil {
		engine.newToken = b.newToken
	}

	// -------- RATE LIMITER --------
	if b.redis != nil {
		engine.limiter = rate.New(b.redis, rate.Config{
			Namespace:             cfg.Code.KeyPrefix + ":rl",
			MaxIssuesPerUser:      cfg.RateLimit.MaxIssuesPerUser,
			IssueWindow:           cfg.RateLimit.IssueWindow,
			MaxExchangeFailures:   cfg.RateLimit.MaxExchangeFailures,
			ExchangeFailureWindow: cfg.RateLimit.ExchangeFailureWindow,
		})
	} else if cfg.RateLimit.MaxIssuesPerUser > 0 || cfg.RateLimit.MaxExchangeFailures > 0 {
		logger.Warn().Msg("rate limits configured without redis; limits disabled")
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewLogSink(logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		EmitTimeout: cfg.Audit.EmitTimeout,
		OnDrop: func(cause audit.DropCause) {
			engine.metricInc(MetricAuditDropped)
			logger.Debug().Str("cause", string(cause)).Msg("audit event dropped")
		},
	}, sink)

	b.built = true

	return engine, nil
}
