package inaturalist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/citizenbirds/birdlist/internal/cachestore"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/observation"
	"github.com/citizenbirds/birdlist/internal/paging"
)

// Client queries the iNaturalist API through the response cache.
type Client struct {
	config Config
	getter paging.Getter
	log    logger.Logger
}

// NewClient creates a client. Zero config fields take DefaultConfig values.
func NewClient(config Config, getter paging.Getter, log logger.Logger) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.PerPage <= 0 {
		config.PerPage = def.PerPage
	}
	if config.MaxPages <= 0 {
		config.MaxPages = def.MaxPages
	}
	if log == nil {
		log = logger.Global().Module("inaturalist")
	}
	return &Client{config: config, getter: getter, log: log}
}

// SpeciesCounts returns every species observed under q, in API order,
// walking all result pages.
func (c *Client) SpeciesCounts(ctx context.Context, q Query) (observation.ProjectSpeciesList, error) {
	f := c.speciesCountsFetcher(q)
	records, err := f.All(ctx)
	if err != nil {
		c.log.Warn("species counts request failed",
			logger.String("project_id", q.ProjectID),
			logger.Int("pages", f.Requests()),
			logger.Error(err))
		return nil, err
	}
	c.log.Debug("species counts fetched",
		logger.String("project_id", q.ProjectID),
		logger.Int("species", len(records)),
		logger.Int("pages", f.Requests()))
	return records, nil
}

func (c *Client) speciesCountsFetcher(q Query) *paging.Fetcher[observation.SpeciesRecord] {
	return paging.New(c.getter,
		func(page int) cachestore.Request {
			return cachestore.Request{URL: c.speciesCountsURL(q, page)}
		},
		decodeSpeciesCounts,
		paging.WithPageSize(c.config.PerPage),
		paging.WithMaxPages(c.config.MaxPages),
	)
}

func (c *Client) speciesCountsURL(q Query, page int) string {
	v := url.Values{}
	if q.ProjectID != "" {
		v.Set("project_id", q.ProjectID)
	}
	if q.UserID != nil {
		v.Set("user_id", strconv.Itoa(*q.UserID))
	}
	if q.Verifiable {
		v.Set("verifiable", "true")
	}
	if q.Locale != "" {
		v.Set("locale", q.Locale)
	}
	v.Set("per_page", strconv.Itoa(c.config.PerPage))
	v.Set("page", strconv.Itoa(page))
	return c.config.BaseURL + "/observations/species_counts?" + v.Encode()
}

func decodeSpeciesCounts(raw json.RawMessage) ([]observation.SpeciesRecord, int, error) {
	var page speciesCountsPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, 0, fmt.Errorf("failed to decode species counts: %w", err)
	}
	records := make([]observation.SpeciesRecord, len(page.Results))
	for i := range page.Results {
		records[i] = page.Results[i].record()
	}
	return records, page.PerPage, nil
}

// UserID resolves a login name to its numeric id using the first
// autocomplete match. No match is a not-found error.
func (c *Client) UserID(ctx context.Context, username string) (int, error) {
	endpoint := c.config.BaseURL + "/users/autocomplete?q=" + encodeURIComponent(username)

	var resp autocompleteResponse
	if err := getJSON(ctx, c.getter, endpoint, &resp); err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 {
		return 0, errors.Newf("user not found").
			Component("inaturalist").
			Category(errors.CategoryNotFound).
			Context("username", username).
			Build()
	}
	return resp.Results[0].ID, nil
}

// AvatarURL returns the medium icon URL of username.
func (c *Client) AvatarURL(ctx context.Context, username string) (string, error) {
	id, err := c.UserID(ctx, username)
	if err != nil {
		return "", err
	}
	return AvatarURLForID(id), nil
}

// AvatarURLForID returns the medium icon URL of a user id.
func AvatarURLForID(id int) string {
	return fmt.Sprintf(avatarURLFormat, id)
}

func getJSON(ctx context.Context, getter paging.Getter, endpoint string, out any) error {
	raw, err := getter.Get(ctx, cachestore.Request{URL: endpoint})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.New(err).
			Component("inaturalist").
			Category(errors.CategoryFileParsing).
			Build()
	}
	return nil
}

// encodeURIComponent escapes s the way browsers do for query values, so
// spaces become %20 rather than +.
func encodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
