package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/practiceline/handoff"
	"github.com/practiceline/handoff/metrics/export/internaldefs"
)

type snapshotSource interface {
	MetricsSnapshot() handoff.MetricsSnapshot
}

// PrometheusExporter renders engine metrics in the Prometheus text format.
type PrometheusExporter struct {
	source snapshotSource
}

func NewPrometheusExporter(engine *handoff.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource renders any snapshot source.
func NewPrometheusExporterFromSource(source snapshotSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render over HTTP.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics, or "" when metrics are disabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}
	snap := p.source.MetricsSnapshot()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(2048)

	for _, f := range internaldefs.CounterFamilies {
		header(&b, f.Name, f.Help, "counter")
		for _, s := range f.Series {
			sample(&b, f.Name, f.Label, s.Value, snap.Counters[s.ID])
		}
	}

	for _, h := range internaldefs.HistogramDefs {
		buckets, ok := snap.Histograms[h.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(buckets)
		header(&b, h.Name, h.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			sample(&b, h.Name+"_bucket", "le", le, cumulative[i])
		}
		sample(&b, h.Name+"_count", "", "", cumulative[len(cumulative)-1])
		// Snapshots carry bucket counts only.
		sample(&b, h.Name+"_sum", "", "", 0)
	}

	return b.String()
}

func header(b *strings.Builder, name, help, kind string) {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	b.WriteString("# HELP " + name + " " + help + "\n")
	b.WriteString("# TYPE " + name + " " + kind + "\n")
}

func sample(b *strings.Builder, name, label, value string, v uint64) {
	b.WriteString(name)
	if label != "" {
		b.WriteString("{" + label + "=\"" + value + "\"}")
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(v, 10))
	b.WriteByte('\n')
}
