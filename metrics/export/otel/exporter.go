package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/practiceline/handoff"
	"github.com/practiceline/handoff/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type snapshotSource interface {
	MetricsSnapshot() handoff.MetricsSnapshot
}

// series is one observation: an engine counter and the attributes it is
// reported with.
type series struct {
	id   handoff.MetricID
	opts []metric.ObserveOption
}

type family struct {
	instrument metric.Int64ObservableCounter
	series     []series
}

type histogram struct {
	id      handoff.MetricID
	buckets metric.Int64ObservableGauge
	bounds  []metric.ObserveOption
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes engine metrics on a Meter. Issue and exchange
// counters carry an "outcome" attribute; latency buckets carry "le".
// Close unregisters the collection callback.
type OTelExporter struct {
	source       snapshotSource
	registration metric.Registration
	families     []family
	histograms   []histogram
}

func NewOTelExporter(meter metric.Meter, engine *handoff.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source snapshotSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exp := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterFamilies {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		f := family{instrument: ins}
		for _, s := range def.Series {
			var opts []metric.ObserveOption
			if def.Label != "" {
				opts = append(opts, metric.WithAttributes(attribute.String(def.Label, s.Value)))
			}
			f.series = append(f.series, series{id: s.ID, opts: opts})
		}
		exp.families = append(exp.families, f)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s: %w", def.Name, err)
		}
		h := histogram{id: def.ID, buckets: buckets, count: count}
		for _, le := range internaldefs.HistogramBounds {
			h.bounds = append(h.bounds, metric.WithAttributes(attribute.String("le", le)))
		}
		exp.histograms = append(exp.histograms, h)
		observables = append(observables, buckets, count)
	}

	reg, err := meter.RegisterCallback(exp.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exp.registration = reg
	return exp, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for _, s := range f.series {
			o.ObserveInt64(f.instrument, int64(snap.Counters[s.id]), s.opts...)
		}
	}
	for _, h := range e.histograms {
		raw, ok := snap.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(raw)
		for i, opt := range h.bounds {
			o.ObserveInt64(h.buckets, int64(cumulative[i]), opt)
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	return nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
