package internaldefs

import (
	"github.com/practiceline/handoff"
)

// OutcomeLabel splits the issue and exchange families by result. Exchange
// outcomes reuse the audit reason codes so dashboards and audit logs agree.
const OutcomeLabel = "outcome"

// Series is one engine counter inside a Family. Value is the label value,
// empty for unlabelled families.
type Series struct {
	ID    handoff.MetricID
	Value string
}

// Family is one exported counter name.
type Family struct {
	Name   string
	Help   string
	Label  string
	Series []Series
}

// HistogramDef maps an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   handoff.MetricID
	Name string
	Help string
}

// CounterFamilies lists every exported counter in render order. Every
// non-latency MetricID appears exactly once.
var CounterFamilies = []Family{
	{
		Name:  "handoff_issue_total",
		Help:  "Handoff code issuance attempts by outcome.",
		Label: OutcomeLabel,
		Series: []Series{
			{ID: handoff.MetricIssueSuccess, Value: "success"},
			{ID: handoff.MetricIssueRateLimited, Value: string(handoff.ReasonRateLimited)},
			{ID: handoff.MetricIssueCollision, Value: "collision"},
			{ID: handoff.MetricIssueFailure, Value: string(handoff.ReasonUnavailable)},
		},
	},
	{
		Name:  "handoff_exchange_total",
		Help:  "Handoff code exchanges by outcome.",
		Label: OutcomeLabel,
		Series: []Series{
			{ID: handoff.MetricExchangeSuccess, Value: "success"},
			{ID: handoff.MetricExchangeNotFound, Value: string(handoff.ReasonNotFound)},
			{ID: handoff.MetricExchangeExpired, Value: string(handoff.ReasonExpired)},
			{ID: handoff.MetricExchangeMembershipRevoked, Value: string(handoff.ReasonMembershipRevoked)},
			{ID: handoff.MetricExchangeTenantMismatch, Value: string(handoff.ReasonTenantMismatch)},
			{ID: handoff.MetricExchangeMalformed, Value: string(handoff.ReasonMalformed)},
			{ID: handoff.MetricExchangeRateLimited, Value: string(handoff.ReasonRateLimited)},
			{ID: handoff.MetricExchangeFailure, Value: string(handoff.ReasonUnavailable)},
		},
	},
	{
		Name:   "handoff_domain_not_found_total",
		Help:   "Tenants with no resolvable domain.",
		Series: []Series{{ID: handoff.MetricDomainNotFound}},
	},
	{
		Name:   "handoff_code_revoked_total",
		Help:   "Codes revoked before use.",
		Series: []Series{{ID: handoff.MetricCodeRevoked}},
	},
	{
		Name:   "handoff_audit_dropped_total",
		Help:   "Audit events that never reached the sink.",
		Series: []Series{{ID: handoff.MetricAuditDropped}},
	},
}

// HistogramDefs lists the exported latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: handoff.MetricIssueLatency, Name: "handoff_issue_latency_seconds", Help: "Issue latency."},
	{ID: handoff.MetricExchangeLatency, Name: "handoff_exchange_latency_seconds", Help: "Exchange latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets in seconds.
var HistogramBounds = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// CumulativeBuckets pads or truncates raw to the engine's eight buckets and
// converts them to running totals.
func CumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(out); i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
