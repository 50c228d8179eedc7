package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilReceiversAreSafe(t *testing.T) {
	t.Parallel()

	var c *CacheMetrics
	var r *ReconcileMetrics
	var mt *MaintenanceMetrics
	var u *UpstreamMetrics
	var h *HTTPMetrics

	assert.NotPanics(t, func() {
		c.IncHits()
		c.IncMisses()
		c.IncCoalesced()
		c.ObserveFetch(0.1, errors.New("boom"))
		c.ObserveDurableWrite(nil)
		c.AddRehydrated(3)
		c.SetEntries(1)
		r.ObserveRun("project", 1, nil)
		r.AddMerge(1, 2, 3, 4)
		r.IncSecondaryFallback()
		mt.ObserveLookup("crossref-a", true)
		mt.ObserveAudit("crossref-a", 1, 1, 1, 1, nil)
		u.ObserveRequest("api.ebird.org", 200, 0.1)
		h.StartRequest()
		h.FinishRequest("/x", "GET", 200, 0.1)
	})
}

func TestCacheMetricsCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewCacheMetrics(reg)
	require.NoError(t, err)

	m.IncHits()
	m.IncHits()
	m.IncMisses()
	m.ObserveFetch(0.2, nil)
	m.ObserveFetch(0.3, errors.New("upstream down"))
	m.ObserveDurableWrite(nil)
	m.ObserveDurableWrite(errors.New("disk full"))
	m.SetEntries(7)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Hits), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Misses), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FetchErrors), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DurableWrites), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DurableErrors), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(m.Entries), 0)

	var metric dto.Metric
	require.NoError(t, m.FetchDuration.Write(&metric))
	assert.Equal(t, uint64(2), metric.GetHistogram().GetSampleCount())
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewReconcileMetrics(reg)
	require.NoError(t, err)
	_, err = NewReconcileMetrics(reg)
	assert.Error(t, err)
}

func TestReconcileAndAuditLabels(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r, err := NewReconcileMetrics(reg)
	require.NoError(t, err)
	a, err := NewMaintenanceMetrics(reg)
	require.NoError(t, err)

	r.ObserveRun("project", 0.5, nil)
	r.ObserveRun("project", 0.5, errors.New("primary down"))
	r.AddMerge(45, 30, 5, 0)

	a.ObserveLookup("crossref-b", true)
	a.ObserveLookup("crossref-b", false)
	a.ObserveAudit("crossref-b", 2, 3, 1, 1, nil)

	assert.InDelta(t, 1, testutil.ToFloat64(r.Runs.WithLabelValues("project", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.Runs.WithLabelValues("project", "error")), 0)
	assert.InDelta(t, 45, testutil.ToFloat64(r.Synthesized), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(a.Lookups.WithLabelValues("crossref-b", "unresolved")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(a.DiffSize.WithLabelValues("crossref-b", "added")), 0)
}

func TestUpstreamStatusLabel(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	u, err := NewUpstreamMetrics(reg)
	require.NoError(t, err)

	u.ObserveRequest("api.inaturalist.org", 200, 0.1)
	u.ObserveRequest("api.inaturalist.org", 0, 0.1)

	assert.InDelta(t, 1, testutil.ToFloat64(u.Requests.WithLabelValues("api.inaturalist.org", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(u.Requests.WithLabelValues("api.inaturalist.org", "error")), 0)
}
