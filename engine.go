package handoff

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/practiceline/handoff/internal/audit"
	"github.com/practiceline/handoff/internal/rate"
)

// Engine issues, exchanges and revokes handoff codes and builds tenant
// handoff URLs.
//
// Engine instances are created by [Builder.Build] and are immutable afterwards.
type Engine struct {
	config     Config
	store      CodeStore
	membership MembershipChecker
	domains    DomainResolver
	limiter    *rate.Limiter
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     zerolog.Logger
	now        func() time.Time
	newToken   func() (string, error)
}

// Close flushes pending audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events that never reached the
// sink: buffer full, caller canceled, or sink timeout.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine's counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e == nil || e.metrics == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.membership != nil && e.domains != nil
}

func (e *Engine) lookupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Lookup.Timeout)
}

// cacheContext bounds one code store or rate limiter call.
func (e *Engine) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Lookup.CacheTimeout)
}
