// Package maintenance audits the crosswalk tables against the full-region
// species list and proposes a new table version for review.
package maintenance

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/citizenbirds/birdlist/internal/crosswalk"
	"github.com/citizenbirds/birdlist/internal/diagnostics"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/observability/metrics"
	"github.com/citizenbirds/birdlist/internal/observation"
	"github.com/citizenbirds/birdlist/internal/reconcile"
	"github.com/citizenbirds/birdlist/internal/wikimedia"
)

const componentName = "maintenance"

// Mode selects which table an audit fills in.
type Mode string

const (
	// ModeCrossrefA looks up missing species codes through encyclopedia pages.
	ModeCrossrefA Mode = "crossref-a"
	// ModeCrossrefB looks up missing knowledge-graph items by taxon claim.
	ModeCrossrefB Mode = "crossref-b"
)

// DefaultConcurrency bounds the lookup fan-out.
const DefaultConcurrency = 4

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeCrossrefA, ModeCrossrefB:
		return m, nil
	}
	return "", errors.Newf("unknown audit mode %q (want %s or %s)", s, ModeCrossrefA, ModeCrossrefB).
		Component(componentName).
		Category(errors.CategoryValidation).
		Build()
}

// SpeciesLister returns the reconciled species list of a project.
type SpeciesLister interface {
	Reconcile(ctx context.Context, projectID string) (*reconcile.Result, error)
	FullRegionProjectID() string
}

// Lookup resolves identifiers through the encyclopedia and linked-data APIs.
// A missing mapping is reported as wikimedia.ErrNoMapping.
type Lookup interface {
	PageItem(ctx context.Context, title string) (string, error)
	Claim(ctx context.Context, entityID, property string) (string, error)
	EntityByClaim(ctx context.Context, property, value string) (string, error)
}

// Notifier delivers a short audit summary to humans.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Options configures a Syncer.
type Options struct {
	Concurrency int
	// OutputDir receives the proposed table and report; empty disables writing
	OutputDir string
	Notifier  Notifier
	Metrics   *metrics.MaintenanceMetrics
	Clock     clockwork.Clock
}

// Change is one added or changed table row.
type Change struct {
	TaxonID        int    `json:"taxonId"`
	ScientificName string `json:"scientificName,omitempty"`
	Old            string `json:"old,omitempty"`
	New            string `json:"new"`
}

// Diff lists the rows of the proposed table that differ from the loaded one.
type Diff struct {
	Added   []Change `json:"added"`
	Changed []Change `json:"changed"`
}

// Empty reports whether the proposed table equals the loaded one.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0
}

// Unresolved is a species that needs a human to curate its mapping.
type Unresolved struct {
	TaxonID        int    `json:"taxonId"`
	ScientificName string `json:"scientificName"`
	CommonName     string `json:"commonName"`
	Reason         string `json:"reason"`
}

// Report is the outcome of one audit.
type Report struct {
	Mode        Mode            `json:"mode"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Checked     int             `json:"checked"`
	Table       crosswalk.Table `json:"table"`
	Diff        Diff            `json:"diff"`
	Unresolved  []Unresolved    `json:"unresolved"`
	// Chained is the crossref-b audit started because crossref-a found
	// nothing missing
	Chained *Report `json:"chained,omitempty"`
}

// Diagnostics returns the curation findings of r and its chained report.
func (r *Report) Diagnostics() []diagnostics.Diagnostic {
	out := make([]diagnostics.Diagnostic, 0, len(r.Unresolved))
	for _, u := range r.Unresolved {
		out = append(out, diagnostics.Diagnostic{
			Component: componentName,
			Kind:      diagnostics.KindCurationRequired,
			Key:       "taxon:" + strconv.Itoa(u.TaxonID),
			Message:   fmt.Sprintf("%s (%s): %s", u.ScientificName, r.Mode, u.Reason),
			Time:      r.GeneratedAt,
		})
	}
	if r.Chained != nil {
		out = append(out, r.Chained.Diagnostics()...)
	}
	return out
}

// Syncer runs crosswalk audits. It never applies the tables it proposes.
type Syncer struct {
	lister SpeciesLister
	cw     *crosswalk.Crosswalk
	lookup Lookup
	opts   Options
	log    logger.Logger
}

// New creates a Syncer over the currently loaded crosswalk.
func New(lister SpeciesLister, cw *crosswalk.Crosswalk, lookup Lookup, opts Options, log logger.Logger) *Syncer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	return &Syncer{lister: lister, cw: cw, lookup: lookup, opts: opts, log: log}
}

// Audit looks up the missing identifiers of mode for every non-hybrid
// species of the full-region list and returns the proposed table. When the
// proposal differs from the loaded table it is written to OutputDir and a
// notification is sent.
func (s *Syncer) Audit(ctx context.Context, mode Mode) (*Report, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	start := s.opts.Clock.Now()
	report, err := s.audit(ctx, mode)
	elapsed := s.opts.Clock.Since(start).Seconds()
	if err != nil {
		s.opts.Metrics.ObserveAudit(string(mode), elapsed, 0, 0, 0, err)
		s.log.Error("crosswalk audit failed",
			logger.String("mode", string(mode)),
			logger.Error(err))
		return nil, err
	}
	s.opts.Metrics.ObserveAudit(string(mode), elapsed,
		len(report.Diff.Added), len(report.Diff.Changed), len(report.Unresolved), nil)

	s.log.Info("crosswalk audit completed",
		logger.String("mode", string(mode)),
		logger.Int("checked", report.Checked),
		logger.Int("added", len(report.Diff.Added)),
		logger.Int("changed", len(report.Diff.Changed)),
		logger.Int("unresolved", len(report.Unresolved)))

	if err := s.emit(ctx, report); err != nil {
		return report, err
	}

	if mode == ModeCrossrefA && report.Checked == 0 {
		s.log.Info("species code table complete, continuing with crossref-b")
		chained, err := s.Audit(ctx, ModeCrossrefB)
		if err != nil {
			return report, err
		}
		report.Chained = chained
	}
	return report, nil
}

func (s *Syncer) audit(ctx context.Context, mode Mode) (*Report, error) {
	res, err := s.lister.Reconcile(ctx, s.lister.FullRegionProjectID())
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Context("mode", string(mode)).
			Context("stage", "species_list").
			Build()
	}

	candidates := s.candidates(res.Species, mode)
	found := make([]string, len(candidates))
	reasons := make([]string, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := range candidates {
		g.Go(func() error {
			found[i], reasons[i] = s.resolve(gctx, mode, &candidates[i])
			s.opts.Metrics.ObserveLookup(string(mode), found[i] != "")
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryCancellation).
			Context("mode", string(mode)).
			Build()
	}

	old := s.cw.Table()
	proposed := old.Clone()
	target := proposed.Forward
	if mode == ModeCrossrefB {
		target = proposed.Wikidata
	}

	report := &Report{
		Mode:        mode,
		GeneratedAt: s.opts.Clock.Now().UTC(),
		Checked:     len(candidates),
		Unresolved:  []Unresolved{},
	}
	for i, rec := range candidates {
		if found[i] == "" {
			report.Unresolved = append(report.Unresolved, Unresolved{
				TaxonID:        rec.TaxonID,
				ScientificName: rec.ScientificName,
				CommonName:     rec.CommonName,
				Reason:         reasons[i],
			})
			continue
		}
		target[rec.TaxonID] = found[i]
	}

	report.Table = proposed
	if mode == ModeCrossrefB {
		report.Diff = diffMaps(old.Wikidata, proposed.Wikidata, res.Species)
	} else {
		report.Diff = diffMaps(old.Forward, proposed.Forward, res.Species)
	}
	slices.SortFunc(report.Unresolved, func(a, b Unresolved) int { return cmp.Compare(a.TaxonID, b.TaxonID) })
	return report, nil
}

// candidates returns the non-hybrid primary species missing the identifier
// of mode. Synthesized records without a taxon cannot be looked up.
func (s *Syncer) candidates(species observation.ProjectSpeciesList, mode Mode) []observation.SpeciesRecord {
	var out []observation.SpeciesRecord
	seen := make(map[int]struct{}, len(species))
	for _, rec := range species {
		if rec.TaxonID == 0 || rec.IsHybrid() {
			continue
		}
		if _, dup := seen[rec.TaxonID]; dup {
			continue
		}
		seen[rec.TaxonID] = struct{}{}

		switch mode {
		case ModeCrossrefA:
			if s.cw.HasSecondary(rec.TaxonID) {
				continue
			}
		case ModeCrossrefB:
			if _, ok := s.cw.WikidataID(rec.TaxonID); ok {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

// resolve returns the identifier found for rec, or "" and the reason.
func (s *Syncer) resolve(ctx context.Context, mode Mode, rec *observation.SpeciesRecord) (value, reason string) {
	var err error
	if mode == ModeCrossrefB {
		value, err = s.lookup.EntityByClaim(ctx, wikimedia.PropertyINaturalistTaxonID, strconv.Itoa(rec.TaxonID))
	} else {
		value, err = s.speciesCode(ctx, rec)
	}
	if err == nil {
		return value, ""
	}

	if !errors.Is(err, wikimedia.ErrNoMapping) {
		s.log.Warn("lookup failed",
			logger.String("mode", string(mode)),
			logger.Int("taxon_id", rec.TaxonID),
			logger.Error(err))
	}
	return "", err.Error()
}

// speciesCode finds the page of rec by scientific name, then by common
// name, and reads the species code claim of its item.
func (s *Syncer) speciesCode(ctx context.Context, rec *observation.SpeciesRecord) (string, error) {
	var item string
	var err error
	for _, title := range []string{rec.ScientificName, rec.CommonName} {
		if title == "" {
			continue
		}
		item, err = s.lookup.PageItem(ctx, title)
		if err == nil {
			break
		}
		if !errors.Is(err, wikimedia.ErrNoMapping) {
			return "", err
		}
	}
	if item == "" {
		if err == nil {
			err = wikimedia.ErrNoMapping
		}
		return "", err
	}
	return s.lookup.Claim(ctx, item, wikimedia.PropertyEBirdTaxonID)
}

func diffMaps(old, proposed map[int]string, species observation.ProjectSpeciesList) Diff {
	d := Diff{Added: []Change{}, Changed: []Change{}}
	for _, id := range slices.Sorted(maps.Keys(proposed)) {
		prev, existed := old[id]
		if existed && prev == proposed[id] {
			continue
		}
		c := Change{TaxonID: id, Old: prev, New: proposed[id]}
		if rec, ok := species.Find(id); ok {
			c.ScientificName = rec.ScientificName
		}
		if existed {
			d.Changed = append(d.Changed, c)
		} else {
			d.Added = append(d.Added, c)
		}
	}
	return d
}
