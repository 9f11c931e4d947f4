// Package metrics wires the engine's counters and histograms into
// prometheus/client_golang, per SPEC_FULL.md §3's optional observability
// layer. Grounded on progressdb-ProgressDB/service/pkg/api/http.go's
// prometheus.NewGaugeFunc/MustRegister shape, generalized from runtime
// gauges to the HTTP engine's own connection/request/fetch counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a nil-safe collector bundle: every method tolerates a nil
// receiver so instrumentation call sites never need a guard, per
// SPEC_FULL.md's "optional component" requirement.
type Metrics struct {
	reg *prometheus.Registry

	poolActiveWorkers *prometheus.GaugeVec
	poolQueueDepth    *prometheus.GaugeVec

	serverConnsOpen     prometheus.Gauge
	serverRequestsTotal *prometheus.CounterVec

	dnsCacheHits   prometheus.Counter
	dnsCacheMisses prometheus.Counter

	fetchLatency *prometheus.HistogramVec
}

// New builds a Metrics bundle registered against its own registry, so
// embedding callers never collide with the default global registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		poolActiveWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "httpengine",
			Subsystem: "reactor",
			Name:      "pool_active_workers",
			Help:      "Number of reactor pool worker goroutines currently running a task.",
		}, []string{"pool"}),
		poolQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "httpengine",
			Subsystem: "reactor",
			Name:      "pool_queue_depth",
			Help:      "Number of tasks queued on a reactor pool.",
		}, []string{"pool"}),
		serverConnsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "httpengine",
			Subsystem: "server",
			Name:      "connections_open",
			Help:      "Number of currently open server connections.",
		}),
		serverRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "httpengine",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Total requests handled, labeled by response status class.",
		}, []string{"status_class"}),
		dnsCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "httpengine",
			Subsystem: "client",
			Name:      "dns_cache_hits_total",
			Help:      "DNS cache lookups served from cache.",
		}),
		dnsCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "httpengine",
			Subsystem: "client",
			Name:      "dns_cache_misses_total",
			Help:      "DNS cache lookups requiring a resolve.",
		}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "httpengine",
			Subsystem: "client",
			Name:      "fetch_latency_seconds",
			Help:      "Latency of a single client fetch, labeled by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.poolActiveWorkers,
		m.poolQueueDepth,
		m.serverConnsOpen,
		m.serverRequestsTotal,
		m.dnsCacheHits,
		m.dnsCacheMisses,
		m.fetchLatency,
	)
	return m
}

// Registry exposes the underlying prometheus.Registry for wiring into an
// HTTP handler (e.g. promhttp.HandlerFor).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) SetPoolActiveWorkers(pool string, n int) {
	if m == nil {
		return
	}
	m.poolActiveWorkers.WithLabelValues(pool).Set(float64(n))
}

func (m *Metrics) SetPoolQueueDepth(pool string, n int) {
	if m == nil {
		return
	}
	m.poolQueueDepth.WithLabelValues(pool).Set(float64(n))
}

func (m *Metrics) IncServerConnsOpen() {
	if m == nil {
		return
	}
	m.serverConnsOpen.Inc()
}

func (m *Metrics) DecServerConnsOpen() {
	if m == nil {
		return
	}
	m.serverConnsOpen.Dec()
}

func (m *Metrics) ObserveServerRequest(statusClass string) {
	if m == nil {
		return
	}
	m.serverRequestsTotal.WithLabelValues(statusClass).Inc()
}

func (m *Metrics) IncDNSCacheHit() {
	if m == nil {
		return
	}
	m.dnsCacheHits.Inc()
}

func (m *Metrics) IncDNSCacheMiss() {
	if m == nil {
		return
	}
	m.dnsCacheMisses.Inc()
}

func (m *Metrics) ObserveFetchLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.fetchLatency.WithLabelValues(outcome).Observe(seconds)
}
