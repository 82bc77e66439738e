package handoff

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram in [Metrics].
type MetricID uint16

const (
	// MetricIssueSuccess counts codes written to the cache.
	MetricIssueSuccess MetricID = iota
	// MetricIssueFailure counts issuance attempts aborted by infrastructure errors.
	MetricIssueFailure
	// MetricIssueRateLimited counts issuance attempts over the per-user budget.
	MetricIssueRateLimited
	// MetricIssueCollision counts SET NX collisions that forced a new token.
	MetricIssueCollision
	// MetricExchangeSuccess counts exchanges that returned a payload.
	MetricExchangeSuccess
	// MetricExchangeNotFound counts unknown or already consumed codes.
	MetricExchangeNotFound
	// MetricExchangeExpired counts codes found past their expiry.
	MetricExchangeExpired
	// MetricExchangeMembershipRevoked counts codes whose user left the tenant.
	MetricExchangeMembershipRevoked
	// MetricExchangeTenantMismatch counts codes presented on the wrong tenant host.
	MetricExchangeTenantMismatch
	// MetricExchangeMalformed counts inputs rejected before touching the cache.
	MetricExchangeMalformed
	// MetricExchangeRateLimited counts exchanges refused by the per-IP throttle.
	MetricExchangeRateLimited
	// MetricExchangeFailure counts exchanges aborted by infrastructure errors.
	MetricExchangeFailure
	// MetricDomainNotFound counts URL builds for tenants without a domain.
	MetricDomainNotFound
	// MetricCodeRevoked counts explicit revocations.
	MetricCodeRevoked
	// MetricAuditDropped counts audit events that never reached the sink.
	MetricAuditDropped
	// MetricIssueLatency is the issuance latency histogram.
	MetricIssueLatency
	// MetricExchangeLatency is the exchange latency histogram.
	MetricExchangeLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and fixed-bucket latency histograms.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of [Metrics].
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a Metrics instance from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in histogram id. Non-latency ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !IsLatencyMetric(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and, when enabled, latency histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if IsLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricIssueLatency, MetricExchangeLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

// IsLatencyMetric reports whether id is a histogram rather than a counter.
func IsLatencyMetric(id MetricID) bool {
	return id == MetricIssueLatency || id == MetricExchangeLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
