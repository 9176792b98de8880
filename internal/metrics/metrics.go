// Package metrics exposes extraction, pool and cache figures to Prometheus
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lonelymovie/lonelymovie/internal/browser"
	"github.com/lonelymovie/lonelymovie/internal/cache"
	"github.com/lonelymovie/lonelymovie/internal/extract"
)

const namespace = "lonelymovie"

// Metrics owns a private registry so tests and multiple servers never
// collide on the global one.
type Metrics struct {
	registry    *prometheus.Registry
	extractions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

// New creates the collectors, including Go runtime and process metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Finished extractions by source, terminal state and failure reason.",
		}, []string{"source", "state", "reason", "cached"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Wall time from submission to terminal state.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"source", "state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_transitions_total",
			Help:      "State machine transitions by target state.",
		}, []string{"state"}),
	}
	m.registry.MustRegister(
		m.extractions,
		m.duration,
		m.transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing /metrics
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Report implements extract.Reporter
func (m *Metrics) Report(_ context.Context, out extract.Outcome) {
	source := out.Request.SourceID
	cached := "false"
	if out.Cached {
		cached = "true"
	}
	m.extractions.WithLabelValues(source, string(out.State), string(out.Reason), cached).Inc()
	m.duration.WithLabelValues(source, string(out.State)).Observe(out.Elapsed.Seconds())
}

// Observe is an extract.Observer counting transitions
func (m *Metrics) Observe(_ extract.Request, _, to extract.State) {
	m.transitions.WithLabelValues(string(to)).Inc()
}

// WatchPool exports pool occupancy read on every scrape
func (m *Metrics) WatchPool(stats func() browser.Stats) {
	gauge := func(name, help string, pick func(browser.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(pick(stats())) })
	}
	m.registry.MustRegister(
		gauge("size", "Maximum live browser sessions.", func(s browser.Stats) int { return s.Size }),
		gauge("live", "Live browser sessions.", func(s browser.Stats) int { return s.Live }),
		gauge("leased", "Sessions currently leased.", func(s browser.Stats) int { return s.Leased }),
		gauge("waiting", "Callers waiting for a session.", func(s browser.Stats) int { return s.Waiting }),
	)
}

// WatchCache exports result cache size and hit counters
func (m *Metrics) WatchCache(stats func() cache.Stats) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "entries",
			Help: "Entries in the result cache, expired ones included until swept.",
		}, func() float64 { return float64(stats().Entries) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Result cache hits.",
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Result cache misses.",
		}, func() float64 { return float64(stats().Misses) }),
	)
}
