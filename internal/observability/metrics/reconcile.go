package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics contains the metrics of species list reconciliation.
type ReconcileMetrics struct {
	Runs               *prometheus.CounterVec
	Synthesized        prometheus.Counter
	Duplicates         prometheus.Counter
	Filtered           prometheus.Counter
	SecondaryFallbacks prometheus.Counter
	UnresolvedIDs      prometheus.Counter
	Duration           prometheus.Histogram
	registry           *prometheus.Registry
}

// NewReconcileMetrics creates and registers the reconcile metrics.
func NewReconcileMetrics(registry *prometheus.Registry) (*ReconcileMetrics, error) {
	m := &ReconcileMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register reconcile metrics: %w", err)
	}
	return m, nil
}

func (m *ReconcileMetrics) initMetrics() {
	m.Runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "birdlist_reconcile_runs_total",
		Help: "Total number of reconcile runs by scope and status.",
	}, []string{"scope", "status"}) // scope: project, full_region; status: success, error
	m.Synthesized = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_reconcile_synthesized_total",
		Help: "Total number of records synthesized from secondary observations.",
	})
	m.Duplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_reconcile_duplicates_total",
		Help: "Total number of secondary candidates dropped as duplicates.",
	})
	m.Filtered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_reconcile_filtered_total",
		Help: "Total number of secondary observations removed by filters.",
	})
	m.SecondaryFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_reconcile_secondary_fallbacks_total",
		Help: "Total number of runs that returned the primary list only because the secondary source failed.",
	})
	m.UnresolvedIDs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlist_reconcile_unresolved_identifiers_total",
		Help: "Total number of identifiers the crosswalk could not translate.",
	})
	m.Duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "birdlist_reconcile_duration_seconds",
		Help:    "Duration of reconcile runs in seconds.",
		Buckets: prometheus.DefBuckets,
	})
}

// ObserveRun records a finished run.
func (m *ReconcileMetrics) ObserveRun(scope string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Runs.WithLabelValues(scope, status).Inc()
	m.Duration.Observe(seconds)
}

// AddMerge records the counters of one merge step.
func (m *ReconcileMetrics) AddMerge(synthesized, duplicates, filtered, unresolved int) {
	if m == nil {
		return
	}
	m.Synthesized.Add(float64(synthesized))
	m.Duplicates.Add(float64(duplicates))
	m.Filtered.Add(float64(filtered))
	m.UnresolvedIDs.Add(float64(unresolved))
}

func (m *ReconcileMetrics) IncSecondaryFallback() {
	if m != nil {
		m.SecondaryFallbacks.Inc()
	}
}

func (m *ReconcileMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Runs, m.Synthesized, m.Duplicates, m.Filtered,
		m.SecondaryFallbacks, m.UnresolvedIDs, m.Duration,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *ReconcileMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *ReconcileMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
