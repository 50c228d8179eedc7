// Package inaturalist is the client for the iNaturalist v1 API: project
// species counts and user lookups.
package inaturalist

import "github.com/citizenbirds/birdlist/internal/observation"

// DefaultBaseURL is the public v1 API.
const DefaultBaseURL = "https://api.inaturalist.org/v1"

// avatarURLFormat is the medium-size user icon location.
const avatarURLFormat = "https://static.inaturalist.org/attachments/users/icons/%d/medium.jpeg"

// Config holds configuration for the iNaturalist client
type Config struct {
	BaseURL  string `json:"base_url"`
	PerPage  int    `json:"per_page"`
	MaxPages int    `json:"max_pages"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:  DefaultBaseURL,
		PerPage:  500,
		MaxPages: 500,
	}
}

// Query selects the observations counted by SpeciesCounts.
type Query struct {
	ProjectID  string
	UserID     *int
	Locale     string
	Verifiable bool
}

type speciesCountsPage struct {
	TotalResults int            `json:"total_results"`
	Page         int            `json:"page"`
	PerPage      int            `json:"per_page"`
	Results      []speciesCount `json:"results"`
}

type speciesCount struct {
	Count int   `json:"count"`
	Taxon taxon `json:"taxon"`
}

type taxon struct {
	ID                  int    `json:"id"`
	Name                string `json:"name"`
	Rank                string `json:"rank"`
	PreferredCommonName string `json:"preferred_common_name"`
	WikipediaURL        string `json:"wikipedia_url"`
	DefaultPhoto        *photo `json:"default_photo"`
}

type photo struct {
	SquareURL string `json:"square_url"`
	MediumURL string `json:"medium_url"`
}

func (sc speciesCount) record() observation.SpeciesRecord {
	r := observation.SpeciesRecord{
		TaxonID:        sc.Taxon.ID,
		CommonName:     sc.Taxon.PreferredCommonName,
		ScientificName: sc.Taxon.Name,
		Rank:           sc.Taxon.Rank,
		Count:          sc.Count,
		WikipediaURL:   sc.Taxon.WikipediaURL,
	}
	if r.CommonName == "" {
		r.CommonName = sc.Taxon.Name
	}
	if p := sc.Taxon.DefaultPhoto; p != nil {
		r.PhotoURL = p.SquareURL
		if r.PhotoURL == "" {
			r.PhotoURL = p.MediumURL
		}
	}
	return r
}

type autocompleteResponse struct {
	TotalResults int    `json:"total_results"`
	Results      []user `json:"results"`
}

type user struct {
	ID    int    `json:"id"`
	Login string `json:"login"`
	Icon  string `json:"icon"`
}
