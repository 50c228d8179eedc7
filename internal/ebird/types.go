// Package ebird provides a client for the eBird API v2 recent observations feed.
package ebird

import (
	"time"

	"github.com/citizenbirds/birdlist/internal/observation"
)

// obsTimeLayout is the local date-time format of obsDt.
const obsTimeLayout = "2006-01-02 15:04"

// RecentObservation is a single entry of the /data/obs/{region}/recent feed.
type RecentObservation struct {
	SpeciesCode     string  `json:"speciesCode"`
	CommonName      string  `json:"comName"`
	ScientificName  string  `json:"sciName"`
	LocationID      string  `json:"locId"`
	LocationName    string  `json:"locName"`
	ObservedAt      string  `json:"obsDt"`
	HowMany         int     `json:"howMany,omitempty"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	Valid           bool    `json:"obsValid"`
	Reviewed        bool    `json:"obsReviewed"`
	LocationPrivate bool    `json:"locationPrivate"`
	SubmissionID    string  `json:"subId,omitempty"`
	Exotic          *string `json:"exoticCategory,omitempty"`
}

// Observation converts the feed entry to the shared observation shape.
// eBird codes carry no taxon id, so TaxonID stays nil.
func (r RecentObservation) Observation() observation.Observation {
	o := observation.Observation{
		SpeciesCode:  r.SpeciesCode,
		CommonName:   r.CommonName,
		LocationName: r.LocationName,
		IsValid:      r.Valid,
	}
	if t, err := time.Parse(obsTimeLayout, r.ObservedAt); err == nil {
		o.ObservedAt = t
	}
	return o
}

// Config holds configuration for the eBird client
type Config struct {
	APIToken string `json:"-"`
	BaseURL  string `json:"base_url"`
	// DaysBack limits the feed to the last N days; 0 uses the API default.
	DaysBack int `json:"days_back"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.ebird.org/v2",
	}
}
