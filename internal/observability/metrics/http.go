package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks requests served by the API.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
	registry *prometheus.Registry
}

// NewHTTPMetrics creates and registers the API request metrics.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "birdlist_http_requests_total",
		Help: "Total number of API requests by route, method and status code.",
	}, []string{"route", "method", "status"})
	m.Duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "birdlist_http_request_duration_seconds",
		Help:    "Duration of API requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
	m.InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "birdlist_http_requests_in_flight",
		Help: "Number of API requests currently being served.",
	})
}

func (m *HTTPMetrics) StartRequest() {
	if m != nil {
		m.InFlight.Inc()
	}
}

// FinishRequest records a served request.
func (m *HTTPMetrics) FinishRequest(route, method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.Duration.WithLabelValues(route, method).Observe(seconds)
}

func (m *HTTPMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Requests, m.Duration, m.InFlight}
}

// Describe implements the prometheus.Collector interface.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
