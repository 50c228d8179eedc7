package ebird

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/citizenbirds/birdlist/internal/cachestore"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/observation"
)

// TokenHeader carries the API token on every request.
const TokenHeader = "X-eBirdApiToken"

// ErrMissingCredential is returned before any request when no API token
// is configured.
var ErrMissingCredential = errors.NewStd("eBird API token not configured: set EBIRD_API_TOKEN")

// Getter fetches JSON through the response cache.
type Getter interface {
	Get(ctx context.Context, req cachestore.Request) (json.RawMessage, error)
}

// Client provides methods for interacting with the eBird API
type Client struct {
	config Config
	getter Getter
	log    logger.Logger
}

// NewClient creates a new eBird API client. A missing token is not an
// error here; calls fail with ErrMissingCredential instead.
func NewClient(config Config, getter Getter, log logger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if log == nil {
		log = logger.Global().Module("ebird")
	}

	log.Debug("eBird client initialized",
		logger.String("base_url", config.BaseURL),
		logger.Bool("api_token_configured", config.APIToken != ""))

	return &Client{config: config, getter: getter, log: log}
}

// HasCredential reports whether an API token is configured.
func (c *Client) HasCredential() bool {
	return c.config.APIToken != ""
}

// RecentObservations returns recent observations in regionCode with common
// names in locale (empty for the API default).
func (c *Client) RecentObservations(ctx context.Context, regionCode, locale string) ([]observation.Observation, error) {
	if !c.HasCredential() {
		return nil, errors.New(ErrMissingCredential).
			Component("ebird").
			Category(errors.CategoryConfiguration).
			Build()
	}

	raw, err := c.recent(ctx, regionCode, locale)
	if err != nil {
		return nil, err
	}

	out := make([]observation.Observation, len(raw))
	for i := range raw {
		out[i] = raw[i].Observation()
	}
	return out, nil
}

func (c *Client) recent(ctx context.Context, regionCode, locale string) ([]RecentObservation, error) {
	q := url.Values{}
	if c.config.DaysBack > 0 {
		q.Set("back", strconv.Itoa(c.config.DaysBack))
	}
	if locale != "" {
		q.Set("sppLocale", locale)
	}
	endpoint := c.config.BaseURL + "/data/obs/" + url.PathEscape(regionCode) + "/recent"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req := cachestore.Request{
		URL:    endpoint,
		Header: http.Header{TokenHeader: {c.config.APIToken}},
	}

	payload, err := c.getter.Get(ctx, req)
	if err != nil {
		c.log.Warn("eBird recent observations request failed",
			logger.String("region", regionCode),
			logger.Error(err))
		return nil, err
	}

	var entries []RecentObservation
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, errors.New(err).
			Component("ebird").
			Category(errors.CategoryFileParsing).
			Context("region", regionCode).
			Build()
	}

	c.log.Debug("eBird recent observations fetched",
		logger.String("region", regionCode),
		logger.Int("count", len(entries)))
	return entries, nil
}
