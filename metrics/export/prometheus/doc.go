// Package prometheus renders handoff engine metrics in the Prometheus text
// exposition format. Issue and exchange results are single counters split
// by an outcome label whose values match the audit reason codes, so
//
//	sum by (outcome) (rate(handoff_exchange_total[5m]))
//
// shows why handoffs fail. Latency histograms are only emitted when the
// engine records them. Callers mount [PrometheusExporter.Handler].
package prometheus
