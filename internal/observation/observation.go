// Package observation holds the species records shared by the source
// clients, the reconciler and the maintenance audit.
package observation

import (
	"slices"
	"strings"
	"time"
)

// Observation is a single secondary-source sighting before normalization.
type Observation struct {
	SpeciesCode  string    `json:"speciesCode"`
	CommonName   string    `json:"commonName"`
	TaxonID      *int      `json:"taxonId,omitempty"`
	LocationName string    `json:"locationName"`
	IsValid      bool      `json:"isValid"`
	ObservedAt   time.Time `json:"observedAt"`
}

// SpeciesRecord is one canonical row of a project species list.
// Count == 0 marks a record synthesized from secondary observations.
type SpeciesRecord struct {
	TaxonID        int    `json:"taxonId"`
	CommonName     string `json:"commonName"`
	ScientificName string `json:"scientificName"`
	Rank           string `json:"rank"`
	SecondaryCode  string `json:"secondaryCode,omitempty"`
	Count          int    `json:"count"`
	PhotoURL       string `json:"photoUrl,omitempty"`
	WikidataID     string `json:"wikidataId,omitempty"`
	WikipediaURL   string `json:"wikipediaUrl,omitempty"`
}

// Synthesized reports whether the record came from the secondary source only
func (r *SpeciesRecord) Synthesized() bool {
	return r.Count == 0
}

// IsHybrid reports whether the record describes a hybrid taxon.
func (r *SpeciesRecord) IsHybrid() bool {
	return r.Rank == "hybrid" ||
		strings.Contains(r.ScientificName, "×") ||
		strings.Contains(r.CommonName, "×")
}

// ProjectSpeciesList is an ordered species list, unique by taxon id after reconciliation.
type ProjectSpeciesList []SpeciesRecord

// Find returns the record with the given taxon id.
func (l ProjectSpeciesList) Find(taxonID int) (SpeciesRecord, bool) {
	i := slices.IndexFunc(l, func(r SpeciesRecord) bool { return r.TaxonID == taxonID })
	if i < 0 {
		return SpeciesRecord{}, false
	}
	return l[i], true
}
