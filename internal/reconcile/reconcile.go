// Package reconcile builds the canonical species list of a project by
// merging primary species counts with secondary-source observations.
package reconcile

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/citizenbirds/birdlist/internal/crosswalk"
	"github.com/citizenbirds/birdlist/internal/diagnostics"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/inaturalist"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/observation"
)

const componentName = "reconcile"

// PrimarySource lists the species observed in a project.
type PrimarySource interface {
	SpeciesCounts(ctx context.Context, q inaturalist.Query) (observation.ProjectSpeciesList, error)
}

// SecondarySource lists recent observations of a region.
type SecondarySource interface {
	RecentObservations(ctx context.Context, regionCode, locale string) ([]observation.Observation, error)
}

// Result is a reconciled list and what happened while building it.
type Result struct {
	Species      observation.ProjectSpeciesList `json:"species"`
	Diagnostics  []diagnostics.Diagnostic       `json:"diagnostics,omitempty"`
	PrimaryCount int                            `json:"primaryCount"`
	Synthesized  int                            `json:"synthesized"`
	Duplicates   int                            `json:"duplicates"`
	Filtered     int                            `json:"filtered"`

	// SecondaryErr is set when the secondary source failed and only the
	// primary list was returned.
	SecondaryErr error `json:"-"`
}

// Reconciler is safe for concurrent use.
type Reconciler struct {
	primary   PrimarySource
	secondary SecondarySource
	cw        *crosswalk.Crosswalk
	opts      Options
	log       logger.Logger
}

// New creates a Reconciler. secondary may be nil, in which case every
// project gets its primary list only.
func New(primary PrimarySource, secondary SecondarySource, cw *crosswalk.Crosswalk, opts Options, log logger.Logger) *Reconciler {
	opts.applyDefaults()
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	return &Reconciler{primary: primary, secondary: secondary, cw: cw, opts: opts, log: log}
}

// FullRegionProjectID returns the project merged with secondary observations.
func (r *Reconciler) FullRegionProjectID() string {
	return r.opts.FullRegionProjectID
}

// Reconcile returns the species list of projectID. A primary failure is
// returned as an error; a secondary failure degrades to the primary list.
func (r *Reconciler) Reconcile(ctx context.Context, projectID string) (*Result, error) {
	scope := "project"
	if projectID == r.opts.FullRegionProjectID && projectID != "" {
		scope = "full_region"
	}
	return r.run(ctx, scope, projectID, nil)
}

// ReconcileUser returns the species one user observed in projectID. The
// secondary feed is region-wide and cannot be narrowed to a user, so it is
// never merged here.
func (r *Reconciler) ReconcileUser(ctx context.Context, projectID string, userID int) (*Result, error) {
	return r.run(ctx, "user", projectID, &userID)
}

func (r *Reconciler) run(ctx context.Context, scope, projectID string, userID *int) (*Result, error) {
	start := time.Now()
	res, err := r.reconcile(ctx, projectID, userID)
	r.opts.Metrics.ObserveRun(scope, time.Since(start).Seconds(), err)
	if err != nil {
		r.log.Error("reconcile failed",
			logger.String("project_id", projectID),
			logger.String("scope", scope),
			logger.Error(err))
		return nil, err
	}

	r.log.Info("reconcile completed",
		logger.String("project_id", projectID),
		logger.String("scope", scope),
		logger.Int("primary", res.PrimaryCount),
		logger.Int("synthesized", res.Synthesized),
		logger.Int("duplicates", res.Duplicates),
		logger.Int("filtered", res.Filtered),
		logger.Duration("duration", time.Since(start)))
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, projectID string, userID *int) (*Result, error) {
	diags := diagnostics.NewCollector()

	primary, err := r.primary.SpeciesCounts(ctx, inaturalist.Query{
		ProjectID:  projectID,
		UserID:     userID,
		Locale:     r.opts.Locale,
		Verifiable: r.opts.Verifiable,
	})
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Priority(errors.PriorityHigh).
			Context("project_id", projectID).
			Context("stage", "primary").
			Build()
	}

	species := r.annotate(primary, diags)
	res := &Result{PrimaryCount: len(species)}

	if userID != nil || projectID == "" || projectID != r.opts.FullRegionProjectID || r.secondary == nil {
		res.Species = species
		res.Diagnostics = diags.Drain()
		return res, nil
	}

	obs, err := r.secondary.RecentObservations(ctx, r.opts.RegionCode, r.opts.Locale)
	if err != nil {
		r.log.Warn("secondary source unavailable, returning primary list",
			logger.String("region", r.opts.RegionCode),
			logger.Error(err))
		diags.Record(diagnostics.Diagnostic{
			Component: componentName,
			Kind:      diagnostics.KindSourceUnavailable,
			Key:       "region:" + r.opts.RegionCode,
			Message:   err.Error(),
		})
		r.opts.Metrics.IncSecondaryFallback()
		res.Species = species
		res.SecondaryErr = err
		res.Diagnostics = diags.Drain()
		return res, nil
	}

	res.Species, res.Synthesized, res.Duplicates, res.Filtered = r.merge(species, obs, diags)
	r.opts.Metrics.AddMerge(res.Synthesized, res.Duplicates, res.Filtered,
		diags.Count(diagnostics.KindUnresolvedIdentifier))
	res.Diagnostics = diags.Drain()
	return res, nil
}

// annotate copies the primary records with their secondary code and
// knowledge-graph item filled in where known.
func (r *Reconciler) annotate(primary observation.ProjectSpeciesList, diags diagnostics.Sink) observation.ProjectSpeciesList {
	out := make(observation.ProjectSpeciesList, len(primary))
	for i, rec := range primary {
		if code, ok := r.cw.ToSecondary(rec.TaxonID); ok {
			rec.SecondaryCode = code
		} else {
			diags.Record(unresolved("taxon:"+strconv.Itoa(rec.TaxonID), "no species code for "+rec.ScientificName))
		}
		if rec.WikidataID == "" {
			if q, ok := r.cw.WikidataID(rec.TaxonID); ok {
				rec.WikidataID = q
			}
		}
		out[i] = rec
	}
	return out
}

// merge appends one synthesized record per secondary species not already
// present. The de-duplication key is the round-tripped code, so codes that
// collapse onto one taxon count as one species.
func (r *Reconciler) merge(species observation.ProjectSpeciesList, obs []observation.Observation, diags diagnostics.Sink) (merged observation.ProjectSpeciesList, synthesized, duplicates, filtered int) {
	seenCodes := make(map[string]struct{}, len(species)+len(obs))
	seenTaxa := make(map[int]struct{}, len(species)+len(obs))
	for i := range species {
		seenTaxa[species[i].TaxonID] = struct{}{}
		if code := species[i].SecondaryCode; code != "" {
			if rt, ok := r.cw.RoundTrip(code); ok {
				code = rt
			}
			seenCodes[code] = struct{}{}
		}
	}

	merged = species
	for i := range obs {
		o := &obs[i]
		if reason := r.excluded(o); reason != "" {
			filtered++
			diags.Record(diagnostics.Diagnostic{
				Component: componentName,
				Kind:      diagnostics.KindFiltered,
				Key:       "code:" + o.SpeciesCode,
				Message:   reason,
			})
			continue
		}

		key := o.SpeciesCode
		taxonID, mapped := r.cw.ToPrimary(o.SpeciesCode)
		if mapped {
			if rt, ok := r.cw.ToSecondary(taxonID); ok {
				key = rt
			}
		} else {
			diags.Record(unresolved("code:"+o.SpeciesCode, "no taxon for species code "+o.SpeciesCode))
		}

		_, dupCode := seenCodes[key]
		_, dupTaxon := seenTaxa[taxonID]
		if dupCode || (mapped && dupTaxon) {
			duplicates++
			continue
		}
		seenCodes[key] = struct{}{}
		if mapped {
			seenTaxa[taxonID] = struct{}{}
		}

		merged = append(merged, r.synthesize(key, taxonID, o))
		synthesized++
	}
	return merged, synthesized, duplicates, filtered
}

func (r *Reconciler) excluded(o *observation.Observation) string {
	switch {
	case strings.TrimSpace(o.LocationName) == "":
		return "no location name"
	case r.opts.ExcludeLocations.MatchString(o.LocationName):
		return "excluded location " + o.LocationName
	case strings.HasPrefix(o.SpeciesCode, r.opts.CrossSpeciesMarker):
		return "cross-species code"
	case !o.IsValid:
		return "not a valid observation"
	}
	return ""
}

func (r *Reconciler) synthesize(code string, taxonID int, o *observation.Observation) observation.SpeciesRecord {
	rec := observation.SpeciesRecord{
		TaxonID:       taxonID,
		CommonName:    o.CommonName,
		Rank:          "species",
		SecondaryCode: code,
		Count:         0,
		PhotoURL:      r.opts.PlaceholderPhotoURL,
	}
	if taxonID != 0 {
		if q, ok := r.cw.WikidataID(taxonID); ok {
			rec.WikidataID = q
			rec.WikipediaURL = wikipediaByItemURL + q
		}
	}
	return rec
}

func unresolved(key, msg string) diagnostics.Diagnostic {
	return diagnostics.Diagnostic{
		Component: componentName,
		Kind:      diagnostics.KindUnresolvedIdentifier,
		Key:       key,
		Message:   msg,
	}
}
