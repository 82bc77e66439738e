// Package internaldefs holds the metric names and bucket bounds shared by the
// Prometheus and OpenTelemetry exporters, so both render identical series.
package internaldefs
