// FILE: loglayer/src/internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"sync"

	"loglayer/src/internal/filter"
	"loglayer/src/internal/layer"
	"loglayer/src/internal/sink"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loglayer"

// LayerSource reports per-layer statistics, normally a *layer.Pipeline
type LayerSource interface {
	Stats() []layer.Stats
}

// Collector exposes sink, layer and reload counters on a private registry
type Collector struct {
	registry *prometheus.Registry
	reloads  *prometheus.CounterVec
	ignored  *prometheus.CounterVec
	stats    *statsCollector
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "reloads_total",
			Help:      "Filter reloads by layer and outcome",
		}, []string{"layer", "result"}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "ignored_fragments_total",
			Help:      "Directive fragments dropped by the lossy parser",
		}, []string{"layer"}),
		stats: newStatsCollector(),
	}

	c.registry.MustRegister(c.reloads, c.ignored, c.stats)
	return c
}

// AddSink includes s in the sink counters
func (c *Collector) AddSink(s sink.StatsSource) {
	if s == nil {
		return
	}
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.sinks = append(c.stats.sinks, s)
}

// SetLayers sets the source of layer counters
func (c *Collector) SetLayers(src LayerSource) {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()
	c.stats.layers = src
}

// ObserveReload counts a reload. Its signature matches layer.ReloadObserver.
func (c *Collector) ObserveReload(layerName string, spec filter.Spec, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.reloads.WithLabelValues(layerName, result).Inc()

	if n := len(spec.Ignored()); n > 0 {
		c.ignored.WithLabelValues(layerName).Add(float64(n))
	}
}

// ObserveInitial records ignored fragments of a filter installed at setup
func (c *Collector) ObserveInitial(layerName string, spec filter.Spec) {
	if n := len(spec.Ignored()); n > 0 {
		c.ignored.WithLabelValues(layerName).Add(float64(n))
	}
}

// Registry returns the underlying Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// statsCollector turns sink and layer statistics into const metrics at scrape time
type statsCollector struct {
	mu     sync.Mutex
	sinks  []sink.StatsSource
	layers LayerSource

	written     *prometheus.Desc
	dropped     *prometheus.Desc
	writeErrors *prometheus.Desc
	rotations   *prometheus.Desc
	queued      *prometheus.Desc
	records     *prometheus.Desc
}

func newStatsCollector() *statsCollector {
	sinkDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "sink", name), help, []string{"sink"}, nil)
	}

	return &statsCollector{
		written:     sinkDesc("written_total", "Records written to the sink destination"),
		dropped:     sinkDesc("dropped_total", "Records discarded by the sink"),
		writeErrors: sinkDesc("write_errors_total", "Failed writes to the sink destination"),
		rotations:   sinkDesc("rotations_total", "File rotations performed by the sink"),
		queued:      sinkDesc("queued_records", "Records waiting in the sink queue"),
		records: prometheus.NewDesc(prometheus.BuildFQName(namespace, "layer", "records_total"),
			"Records evaluated by a layer filter", []string{"layer", "result"}, nil),
	}
}

func (sc *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sc.written
	ch <- sc.dropped
	ch <- sc.writeErrors
	ch <- sc.rotations
	ch <- sc.queued
	ch <- sc.records
}

func (sc *statsCollector) Collect(ch chan<- prometheus.Metric) {
	sc.mu.Lock()
	sinks := append([]sink.StatsSource(nil), sc.sinks...)
	layers := sc.layers
	sc.mu.Unlock()

	for _, s := range sinks {
		st := s.GetStats()
		ch <- prometheus.MustNewConstMetric(sc.written, prometheus.CounterValue, float64(st.Written), st.Type)
		ch <- prometheus.MustNewConstMetric(sc.dropped, prometheus.CounterValue, float64(st.Dropped), st.Type)
		ch <- prometheus.MustNewConstMetric(sc.writeErrors, prometheus.CounterValue, float64(st.WriteErrors), st.Type)
		ch <- prometheus.MustNewConstMetric(sc.rotations, prometheus.CounterValue, float64(st.Rotations), st.Type)
		ch <- prometheus.MustNewConstMetric(sc.queued, prometheus.GaugeValue, float64(st.QueueLength), st.Type)
	}

	if layers == nil {
		return
	}
	for _, st := range layers.Stats() {
		ch <- prometheus.MustNewConstMetric(sc.records, prometheus.CounterValue, float64(st.Accepted), st.Name, "accepted")
		ch <- prometheus.MustNewConstMetric(sc.records, prometheus.CounterValue, float64(st.Rejected), st.Name, "rejected")
	}
}
