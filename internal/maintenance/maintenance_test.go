package maintenance

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/citizenbirds/birdlist/internal/crosswalk"
	"github.com/citizenbirds/birdlist/internal/diagnostics"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/observability/metrics"
	"github.com/citizenbirds/birdlist/internal/observation"
	"github.com/citizenbirds/birdlist/internal/reconcile"
	"github.com/citizenbirds/birdlist/internal/wikimedia"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil)
}

type fakeLister struct {
	species observation.ProjectSpeciesList
	err     error
	calls   atomic.Int32
}

func (f *fakeLister) Reconcile(context.Context, string) (*reconcile.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &reconcile.Result{Species: f.species}, nil
}

func (f *fakeLister) FullRegionProjectID() string { return "birds-of-ohio" }

// fakeLookup answers from maps; absent keys are ErrNoMapping.
type fakeLookup struct {
	pages    map[string]string
	claims   map[string]string
	entities map[string]string
	fail     map[string]error
	delay    time.Duration

	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (f *fakeLookup) enter() func() {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeLookup) answer(m map[string]string, key string) (string, error) {
	if err, ok := f.fail[key]; ok {
		return "", err
	}
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", wikimedia.ErrNoMapping
}

func (f *fakeLookup) PageItem(_ context.Context, title string) (string, error) {
	defer f.enter()()
	return f.answer(f.pages, title)
}

func (f *fakeLookup) Claim(_ context.Context, entityID, property string) (string, error) {
	defer f.enter()()
	return f.answer(f.claims, entityID+"/"+property)
}

func (f *fakeLookup) EntityByClaim(_ context.Context, property, value string) (string, error) {
	defer f.enter()()
	return f.answer(f.entities, property+"="+value)
}

type recordingNotifier struct {
	mu       sync.Mutex
	titles   []string
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.messages = append(n.messages, message)
	return n.err
}

func auditSpecies() observation.ProjectSpeciesList {
	return observation.ProjectSpeciesList{
		{TaxonID: 1, ScientificName: "Cardinalis cardinalis", CommonName: "Northern Cardinal", Count: 9},
		{TaxonID: 2, ScientificName: "Sitta carolinensis", CommonName: "White-breasted Nuthatch", Count: 4},
		{TaxonID: 3, ScientificName: "Baeolophus bicolor", CommonName: "Tufted Titmouse", Count: 3},
		{TaxonID: 4, ScientificName: "Aves incognita", CommonName: "Mystery Bird", Count: 1},
		{TaxonID: 5, ScientificName: "Anas platyrhynchos × rubripes", Rank: "hybrid", Count: 1},
		{TaxonID: 6, ScientificName: "Poecile carolinensis", CommonName: "Carolina Chickadee", Count: 2},
		{TaxonID: 0, CommonName: "Reported Only", SecondaryCode: "repone", Count: 0},
	}
}

func auditTable() crosswalk.Table {
	return crosswalk.Table{
		Forward:  map[int]string{1: "norcar"},
		Wikidata: map[int]string{1: "Q1"},
	}
}

func auditLookup() *fakeLookup {
	return &fakeLookup{
		pages: map[string]string{
			"Cardinalis cardinalis": "Q1",
			"Sitta carolinensis":    "Q2",
			"Tufted Titmouse":       "Q3",
		},
		claims: map[string]string{
			"Q2/" + wikimedia.PropertyEBirdTaxonID: "whbnut",
			"Q3/" + wikimedia.PropertyEBirdTaxonID: "tuftit",
		},
		entities: map[string]string{
			wikimedia.PropertyINaturalistTaxonID + "=2": "Q2",
			wikimedia.PropertyINaturalistTaxonID + "=3": "Q3",
		},
		fail: map[string]error{
			"Poecile carolinensis": errors.Newf("upstream returned 503").Category(errors.CategoryNetwork).Build(),
		},
	}
}

func newSyncer(lister SpeciesLister, table crosswalk.Table, lookup Lookup, opts Options) *Syncer {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewFakeClockAt(t0)
	}
	return New(lister, crosswalk.New(table, nil), lookup, opts, testLogger())
}

func TestCrossrefAFillsSpeciesCodes(t *testing.T) {
	t.Parallel()

	table := auditTable()
	syncer := newSyncer(&fakeLister{species: auditSpecies()}, table, auditLookup(), Options{})

	report, err := syncer.Audit(t.Context(), ModeCrossrefA)
	require.NoError(t, err)

	assert.Equal(t, ModeCrossrefA, report.Mode)
	assert.Equal(t, t0, report.GeneratedAt)
	assert.Equal(t, 4, report.Checked, "taxa 2, 3, 4 and 6; hybrids and taxon-less records are skipped")
	assert.Nil(t, report.Chained)

	assert.Equal(t, []Change{
		{TaxonID: 2, ScientificName: "Sitta carolinensis", New: "whbnut"},
		{TaxonID: 3, ScientificName: "Baeolophus bicolor", New: "tuftit"},
	}, report.Diff.Added)
	assert.Empty(t, report.Diff.Changed)

	require.Len(t, report.Unresolved, 2)
	assert.Equal(t, 4, report.Unresolved[0].TaxonID)
	assert.Equal(t, wikimedia.ErrNoMapping.Error(), report.Unresolved[0].Reason)
	assert.Equal(t, 6, report.Unresolved[1].TaxonID)
	assert.Contains(t, report.Unresolved[1].Reason, "503")

	assert.Equal(t, map[int]string{1: "norcar", 2: "whbnut", 3: "tuftit"}, report.Table.Forward)
	assert.Equal(t, map[int]string{1: "norcar"}, table.Forward, "loaded table is never modified")

	diags := report.Diagnostics()
	require.Len(t, diags, 2)
	assert.Equal(t, diagnostics.KindCurationRequired, diags[0].Kind)
	assert.Equal(t, "taxon:4", diags[0].Key)
}

func TestCrossrefAChangesEmptyCodes(t *testing.T) {
	t.Parallel()

	table := auditTable()
	table.Forward[2] = ""
	species := auditSpecies()[:2]

	report, err := newSyncer(&fakeLister{species: species}, table, auditLookup(), Options{}).Audit(t.Context(), ModeCrossrefA)
	require.NoError(t, err)

	assert.Empty(t, report.Diff.Added)
	assert.Equal(t, []Change{{TaxonID: 2, ScientificName: "Sitta carolinensis", Old: "", New: "whbnut"}}, report.Diff.Changed)
}

func TestCrossrefBFillsItems(t *testing.T) {
	t.Parallel()

	syncer := newSyncer(&fakeLister{species: auditSpecies()}, auditTable(), auditLookup(), Options{})

	report, err := syncer.Audit(t.Context(), ModeCrossrefB)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Checked)
	assert.Len(t, report.Diff.Added, 2)
	assert.Equal(t, map[int]string{1: "Q1", 2: "Q2", 3: "Q3"}, report.Table.Wikidata)
	assert.Equal(t, map[int]string{1: "norcar"}, report.Table.Forward)
	require.Len(t, report.Unresolved, 2)
	assert.Equal(t, []int{4, 6}, []int{report.Unresolved[0].TaxonID, report.Unresolved[1].TaxonID})
}

func TestCompleteCodesChainIntoCrossrefB(t *testing.T) {
	t.Parallel()

	species := observation.ProjectSpeciesList{
		{TaxonID: 1, ScientificName: "Cardinalis cardinalis", Count: 9},
		{TaxonID: 2, ScientificName: "Sitta carolinensis", Count: 4},
	}
	table := crosswalk.Table{
		Forward:  map[int]string{1: "norcar", 2: "whbnut"},
		Wikidata: map[int]string{1: "Q1"},
	}
	lister := &fakeLister{species: species}

	report, err := newSyncer(lister, table, auditLookup(), Options{}).Audit(t.Context(), ModeCrossrefA)
	require.NoError(t, err)

	assert.Zero(t, report.Checked)
	assert.True(t, report.Diff.Empty())
	require.NotNil(t, report.Chained)
	assert.Equal(t, ModeCrossrefB, report.Chained.Mode)
	assert.Equal(t, []Change{{TaxonID: 2, ScientificName: "Sitta carolinensis", New: "Q2"}}, report.Chained.Diff.Added)
	assert.Equal(t, int32(2), lister.calls.Load())
}

func TestAuditConverges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lookup := auditLookup()
	notifier := &recordingNotifier{}
	opts := Options{OutputDir: dir, Notifier: notifier}

	first, err := newSyncer(&fakeLister{species: auditSpecies()}, auditTable(), lookup, opts).Audit(t.Context(), ModeCrossrefA)
	require.NoError(t, err)
	require.False(t, first.Diff.Empty())

	for _, name := range []string{ForwardFile, WikidataFile, OverridesFile, ReportFile(ModeCrossrefA)} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	loaded, err := crosswalk.Load(
		filepath.Join(dir, ForwardFile),
		filepath.Join(dir, WikidataFile),
		filepath.Join(dir, OverridesFile))
	require.NoError(t, err)
	assert.Equal(t, first.Table.Forward, loaded.Forward)

	second, err := newSyncer(&fakeLister{species: auditSpecies()}, loaded, lookup, Options{}).Audit(t.Context(), ModeCrossrefA)
	require.NoError(t, err)
	assert.True(t, second.Diff.Empty(), "re-running with the emitted table shows no diff")
	assert.Len(t, second.Unresolved, 2, "curation findings stay until a human resolves them")

	require.Len(t, notifier.titles, 1)
	assert.Equal(t, "crosswalk audit crossref-a", notifier.titles[0])
	assert.Contains(t, notifier.messages[0], "2 added")
	assert.Contains(t, notifier.messages[0], "Aves incognita (4)")
}

func TestNoDiffWritesNothing(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	species := observation.ProjectSpeciesList{{TaxonID: 1, ScientificName: "Cardinalis cardinalis", Count: 9}}
	notifier := &recordingNotifier{}

	report, err := newSyncer(&fakeLister{species: species}, auditTable(), auditLookup(), Options{OutputDir: dir, Notifier: notifier}).
		Audit(t.Context(), ModeCrossrefB)
	require.NoError(t, err)

	assert.True(t, report.Diff.Empty())
	assert.NoDirExists(t, dir)
	assert.Empty(t, notifier.titles)
}

func TestNotifierFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{err: errors.NewStd("smtp down")}
	report, err := newSyncer(&fakeLister{species: auditSpecies()}, auditTable(), auditLookup(), Options{Notifier: notifier}).
		Audit(t.Context(), ModeCrossrefA)
	require.NoError(t, err)
	assert.Len(t, report.Diff.Added, 2)
	assert.Len(t, notifier.titles, 1)
}

func TestLookupFanOutIsBounded(t *testing.T) {
	t.Parallel()

	var species observation.ProjectSpeciesList
	for id := 100; id < 120; id++ {
		species = append(species, observation.SpeciesRecord{TaxonID: id, ScientificName: "Species", Count: 1})
	}
	lookup := &fakeLookup{delay: 5 * time.Millisecond}

	report, err := newSyncer(&fakeLister{species: species}, crosswalk.Table{}, lookup, Options{Concurrency: 3}).
		Audit(t.Context(), ModeCrossrefB)
	require.NoError(t, err)

	assert.Len(t, report.Unresolved, 20, "every failed lookup is reported, none aborts the batch")
	assert.Equal(t, int32(20), lookup.calls.Load())
	assert.LessOrEqual(t, lookup.maxSeen.Load(), int32(3))
}

func TestListerFailureIsFatal(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{err: errors.Newf("inaturalist returned 502").Category(errors.CategoryNetwork).Build()}
	_, err := newSyncer(lister, auditTable(), auditLookup(), Options{}).Audit(t.Context(), ModeCrossrefA)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}

func TestCancelledAudit(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := newSyncer(&fakeLister{species: auditSpecies()}, auditTable(), auditLookup(), Options{}).Audit(ctx, ModeCrossrefA)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("crossref-b")
	require.NoError(t, err)
	assert.Equal(t, ModeCrossrefB, m)

	_, err = ParseMode("crossref-c")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = New(&fakeLister{}, crosswalk.New(crosswalk.Table{}, nil), auditLookup(), Options{}, nil).Audit(t.Context(), "bogus")
	assert.Error(t, err)
}

func TestAuditMetrics(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewMaintenanceMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	_, err = newSyncer(&fakeLister{species: auditSpecies()}, auditTable(), auditLookup(), Options{Metrics: m}).
		Audit(t.Context(), ModeCrossrefA)
	require.NoError(t, err)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Lookups.WithLabelValues("crossref-a", "resolved")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Lookups.WithLabelValues("crossref-a", "unresolved")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Unresolved.WithLabelValues("crossref-a")), 0)
}

func TestSummaryTruncates(t *testing.T) {
	t.Parallel()

	r := &Report{Mode: ModeCrossrefB}
	for id := range 12 {
		r.Unresolved = append(r.Unresolved, Unresolved{TaxonID: id, ScientificName: "Species", Reason: "no mapping found"})
	}
	s := Summary(r)
	assert.Contains(t, s, "12 need curation")
	assert.Contains(t, s, "... and 2 more")
}

func TestWriteProposalReplacesFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ForwardFile), []byte(`{"1":"old"}`), 0o600))

	r := &Report{Mode: ModeCrossrefA, Table: crosswalk.Table{Forward: map[int]string{1: "norcar"}, Wikidata: map[int]string{}}}
	require.NoError(t, WriteProposal(dir, r))

	f, err := os.Open(filepath.Join(dir, ForwardFile))
	require.NoError(t, err)
	defer f.Close()
	got, err := crosswalk.DecodeIDMap(f)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "norcar"}, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4, "no temporary files left behind")
}
