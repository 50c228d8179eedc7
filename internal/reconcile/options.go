package reconcile

import (
	"regexp"

	"github.com/citizenbirds/birdlist/internal/observability/metrics"
)

const (
	// DefaultExcludeLocations matches offshore and auto-selected report locations.
	DefaultExcludeLocations = `(?i)(pelagic|offshore|\bat sea\b|auto[- ]selected)`
	// DefaultCrossSpeciesMarker prefixes hybrid and slash codes.
	DefaultCrossSpeciesMarker = "x"

	DefaultPlaceholderPhotoURL = "https://static.inaturalist.org/photos/placeholder/square.png"

	wikipediaByItemURL = "https://www.wikidata.org/wiki/Special:GoToLinkedPage/enwiki/"
)

var defaultExcludeLocations = regexp.MustCompile(DefaultExcludeLocations)

// Options configures a Reconciler.
type Options struct {
	// FullRegionProjectID is the only project merged with secondary observations
	FullRegionProjectID string
	// RegionCode is the secondary-source region of the full-region project
	RegionCode          string
	Locale              string
	Verifiable          bool
	ExcludeLocations    *regexp.Regexp
	CrossSpeciesMarker  string
	PlaceholderPhotoURL string
	Metrics             *metrics.ReconcileMetrics
}

func (o *Options) applyDefaults() {
	if o.ExcludeLocations == nil {
		o.ExcludeLocations = defaultExcludeLocations
	}
	if o.CrossSpeciesMarker == "" {
		o.CrossSpeciesMarker = DefaultCrossSpeciesMarker
	}
	if o.PlaceholderPhotoURL == "" {
		o.PlaceholderPhotoURL = DefaultPlaceholderPhotoURL
	}
}
