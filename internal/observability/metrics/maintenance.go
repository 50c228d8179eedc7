package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics contains the metrics of crosswalk audits.
type MaintenanceMetrics struct {
	Audits     *prometheus.CounterVec
	Lookups    *prometheus.CounterVec
	Unresolved *prometheus.GaugeVec
	DiffSize   *prometheus.GaugeVec
	Duration   *prometheus.HistogramVec
	registry   *prometheus.Registry
}

// NewMaintenanceMetrics creates and registers the audit metrics.
func NewMaintenanceMetrics(registry *prometheus.Registry) (*MaintenanceMetrics, error) {
	m := &MaintenanceMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register maintenance metrics: %w", err)
	}
	return m, nil
}

func (m *MaintenanceMetrics) initMetrics() {
	m.Audits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "birdlist_audit_runs_total",
		Help: "Total number of crosswalk audits by mode and status.",
	}, []string{"mode", "status"})
	m.Lookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "birdlist_audit_lookups_total",
		Help: "Total number of per-code lookups by mode and outcome.",
	}, []string{"mode", "outcome"}) // outcome: resolved, unresolved
	m.Unresolved = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "birdlist_audit_unresolved",
		Help: "Number of codes left unresolved by the last audit.",
	}, []string{"mode"})
	m.DiffSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "birdlist_audit_diff_entries",
		Help: "Number of added or changed entries reported by the last audit.",
	}, []string{"mode", "kind"}) // kind: added, changed
	m.Duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "birdlist_audit_duration_seconds",
		Help:    "Duration of crosswalk audits in seconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"mode"})
}

// ObserveLookup records one lookup outcome.
func (m *MaintenanceMetrics) ObserveLookup(mode string, resolved bool) {
	if m == nil {
		return
	}
	outcome := "resolved"
	if !resolved {
		outcome = "unresolved"
	}
	m.Lookups.WithLabelValues(mode, outcome).Inc()
}

// ObserveAudit records a finished audit and the size of its report.
func (m *MaintenanceMetrics) ObserveAudit(mode string, seconds float64, added, changed, unresolved int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Audits.WithLabelValues(mode, status).Inc()
	m.Duration.WithLabelValues(mode).Observe(seconds)
	if err != nil {
		return
	}
	m.DiffSize.WithLabelValues(mode, "added").Set(float64(added))
	m.DiffSize.WithLabelValues(mode, "changed").Set(float64(changed))
	m.Unresolved.WithLabelValues(mode).Set(float64(unresolved))
}

func (m *MaintenanceMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Audits, m.Lookups, m.Unresolved, m.DiffSize, m.Duration}
}

// Describe implements the prometheus.Collector interface.
func (m *MaintenanceMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *MaintenanceMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
