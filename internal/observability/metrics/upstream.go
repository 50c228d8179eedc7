package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks outbound HTTP requests to the data sources.
type UpstreamMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	registry *prometheus.Registry
}

// NewUpstreamMetrics creates and registers the outbound request metrics.
func NewUpstreamMetrics(registry *prometheus.Registry) (*UpstreamMetrics, error) {
	m := &UpstreamMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register upstream metrics: %w", err)
	}
	return m, nil
}

func (m *UpstreamMetrics) initMetrics() {
	m.Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "birdlist_upstream_requests_total",
		Help: "Total number of outbound requests by host and status code.",
	}, []string{"host", "status"})
	m.Duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "birdlist_upstream_request_duration_seconds",
		Help:    "Duration of outbound requests in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"host"})
}

// ObserveRequest records one outbound request. status 0 means the
// request failed before a response arrived.
func (m *UpstreamMetrics) ObserveRequest(host string, status int, seconds float64) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.Requests.WithLabelValues(host, label).Inc()
	m.Duration.WithLabelValues(host).Observe(seconds)
}

func (m *UpstreamMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Requests, m.Duration}
}

// Describe implements the prometheus.Collector interface.
func (m *UpstreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *UpstreamMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
