// Package metrics holds the Prometheus counters for a harvest run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Download outcomes
const (
	DownloadOK      = "ok"
	DownloadSkipped = "skipped"
	DownloadFailed  = "failed"
)

// Metrics bundles every counter the harvester exports
type Metrics struct {
	Registry *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	Pages            *prometheus.CounterVec
	StreamsResolved  prometheus.Counter
	Downloads        *prometheus.CounterVec
}

// New creates the counters on a fresh registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vodharvest_upstream_requests_total",
			Help: "Upstream HTTP requests issued, by endpoint.",
		}, []string{"endpoint"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vodharvest_cache_lookups_total",
			Help: "Request cache lookups, by result.",
		}, []string{"result"}),
		Pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vodharvest_pages_total",
			Help: "Catalog pages walked, by kind.",
		}, []string{"kind"}),
		StreamsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vodharvest_streams_resolved_total",
			Help: "Episode stream URLs resolved.",
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vodharvest_downloads_total",
			Help: "Episode downloads, by outcome.",
		}, []string{"outcome"}),
	}

	m.Registry.MustRegister(
		m.UpstreamRequests,
		m.CacheLookups,
		m.Pages,
		m.StreamsResolved,
		m.Downloads,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node_exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

// The helpers below accept a nil receiver so components can run without metrics.

// ObserveRequest counts one upstream request
func (m *Metrics) ObserveRequest(endpoint string) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint).Inc()
}

// ObserveCache counts one cache lookup
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObservePage counts one walked page
func (m *Metrics) ObservePage(kind string) {
	if m == nil {
		return
	}
	m.Pages.WithLabelValues(kind).Inc()
}

// ObserveStream counts one resolved stream
func (m *Metrics) ObserveStream() {
	if m == nil {
		return
	}
	m.StreamsResolved.Inc()
}

// ObserveDownload counts one download outcome
func (m *Metrics) ObserveDownload(outcome string) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(outcome).Inc()
}
