// Package otel publishes handoff engine metrics through an OpenTelemetry
// Meter, mirroring the Prometheus exporter: handoff_issue_total and
// handoff_exchange_total are observable counters with an "outcome"
// attribute, and each latency histogram is a "_bucket" gauge keyed by "le"
// plus a "_count" gauge. The caller owns the MeterProvider.
package otel
