// Package metrics provides the Prometheus collectors for birdlist components.
// All Record/Increment methods are safe to call on a nil receiver so
// components can run without metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics contains the metrics of the response cache.
type CacheMetrics struct {
	Hits           prometheus.Counter
	Misses         prometheus.Counter
	CoalescedWaits prometheus.Counter
	FetchErrors    prometheus.Counter
	DurableWrites  prometheus.Counter
	DurableErrors  prometheus.Counter
	DurableHits    prometheus.Counter
	Rehydrated     prometheus.Counter
	Entries        prometheus.Gauge
	FetchDuration  prometheus.Histogram
	registry       *prometheus.Registry
}

// NewCacheMetrics creates and registers the cache metrics.
func NewCacheMetrics(registry *prometheus.Registry) (*CacheMetrics, error) {
	m := &CacheMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register cache metrics: %w", err)
	}
	return m, nil
}

func (m *CacheMetrics) initMetrics() {
	m.Hits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_cache_hits_total",
		Help: "Total number of requests answered from the in-memory cache.",
	})
	m.Misses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_cache_misses_total",
		Help: "Total number of requests that started a new fetch.",
	})
	m.CoalescedWaits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_cache_coalesced_waits_total",
		Help: "Total number of requests that joined an in-flight fetch.",
	})
	m.FetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_cache_fetch_errors_total",
		Help: "Total number of failed upstream fetches.",
	})
	m.DurableWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_cache_durable_writes_total",
		Help: "Total number of responses written to the durable tier.",
	})
	m.DurableErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_cache_durable_errors_total",
		Help: "Total number of failed durable tier reads or writes.",
	})
	m.DurableHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_cache_durable_hits_total",
		Help: "Total number of misses answered from the durable tier.",
	})
	m.Rehydrated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_cache_rehydrated_total",
		Help: "Total number of durable entries loaded into memory at startup.",
	})
	m.Entries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "birdlist_cache_entries",
		Help: "Current number of keys held in memory.",
	})
	m.FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "birdlist_cache_fetch_duration_seconds",
		Help:    "Duration of upstream fetches in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
}

func (m *CacheMetrics) IncHits() {
	if m != nil {
		m.Hits.Inc()
	}
}

func (m *CacheMetrics) IncMisses() {
	if m != nil {
		m.Misses.Inc()
	}
}

func (m *CacheMetrics) IncCoalesced() {
	if m != nil {
		m.CoalescedWaits.Inc()
	}
}

func (m *CacheMetrics) IncDurableHits() {
	if m != nil {
		m.DurableHits.Inc()
	}
}

// ObserveFetch records one upstream fetch and its outcome.
func (m *CacheMetrics) ObserveFetch(seconds float64, err error) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(seconds)
	if err != nil {
		m.FetchErrors.Inc()
	}
}

// ObserveDurableWrite records a write-through attempt.
func (m *CacheMetrics) ObserveDurableWrite(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.DurableErrors.Inc()
		return
	}
	m.DurableWrites.Inc()
}

func (m *CacheMetrics) IncDurableErrors() {
	if m != nil {
		m.DurableErrors.Inc()
	}
}

func (m *CacheMetrics) AddRehydrated(n int) {
	if m != nil {
		m.Rehydrated.Add(float64(n))
	}
}

func (m *CacheMetrics) SetEntries(n int) {
	if m != nil {
		m.Entries.Set(float64(n))
	}
}

func (m *CacheMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Hits, m.Misses, m.CoalescedWaits, m.FetchErrors, m.DurableWrites,
		m.DurableErrors, m.DurableHits, m.Rehydrated, m.Entries, m.FetchDuration,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *CacheMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *CacheMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
