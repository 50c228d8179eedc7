// Package wikimedia looks up knowledge-graph items and their identifier
// claims through the Wikipedia and Wikidata action APIs.
package wikimedia

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antonholmquist/jason"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/citizenbirds/birdlist/internal/cachestore"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
)

const (
	DefaultWikipediaURL = "https://en.wikipedia.org/w/api.php"
	DefaultWikidataURL  = "https://www.wikidata.org/w/api.php"

	// PropertyEBirdTaxonID holds the secondary species code of an item.
	PropertyEBirdTaxonID = "P3444"
	// PropertyINaturalistTaxonID holds the primary taxon id of an item.
	PropertyINaturalistTaxonID = "P3151"

	defaultUserAgent = "birdlist/1.0 (https://github.com/citizenbirds/birdlist)"
)

// ErrNoMapping means the page, item or claim does not exist.
var ErrNoMapping = errors.NewStd("no mapping found")

// Getter fetches JSON through the response cache.
type Getter interface {
	Get(ctx context.Context, req cachestore.Request) (json.RawMessage, error)
}

// Config holds configuration for the Wikimedia client
type Config struct {
	WikipediaURL string
	WikidataURL  string
	// UserAgent identifies the tool to Wikimedia as its API policy requires
	UserAgent     string
	RatePerSecond float64
	Burst         int
	Language      language.Tag
}

// Client performs rate limited lookups. Safe for concurrent use.
type Client struct {
	config  Config
	getter  Getter
	limiter *rate.Limiter
	log     logger.Logger
}

// NewClient creates a client. A zero RatePerSecond disables limiting.
func NewClient(config Config, getter Getter, log logger.Logger) *Client {
	if config.WikipediaURL == "" {
		config.WikipediaURL = DefaultWikipediaURL
	}
	if config.WikidataURL == "" {
		config.WikidataURL = DefaultWikidataURL
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.Language == language.Und {
		config.Language = language.English
	}
	if log == nil {
		log = logger.Global().Module("wikimedia")
	}

	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}

	return &Client{
		config:  config,
		getter:  getter,
		limiter: rate.NewLimiter(limit, config.Burst),
		log:     log,
	}
}

// NormalizeTitle trims and collapses whitespace and applies sentence case,
// which is how article titles are stored.
func (c *Client) NormalizeTitle(title string) string {
	title = strings.Join(strings.Fields(norm.NFC.String(title)), " ")
	if title == "" {
		return ""
	}
	// Casers are stateful, so one per call
	title = cases.Lower(c.config.Language).String(title)
	r, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(r)) + title[size:]
}

// PageItem returns the knowledge-graph item linked from the article
// titled title, following redirects.
func (c *Client) PageItem(ctx context.Context, title string) (string, error) {
	normalized := c.NormalizeTitle(title)
	if normalized == "" {
		return "", ErrNoMapping
	}
	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"prop":          {"pageprops"},
		"ppprop":        {"wikibase_item"},
		"redirects":     {"1"},
		"titles":        {normalized},
	}

	resp, reqID, err := c.query(ctx, c.config.WikipediaURL, params)
	if err != nil {
		return "", err
	}
	pages, err := resp.GetObjectArray("query", "pages")
	if err != nil || len(pages) == 0 {
		return "", c.noMapping(reqID, "page", normalized)
	}
	if missing, _ := pages[0].GetBoolean("missing"); missing {
		return "", c.noMapping(reqID, "page", normalized)
	}
	item, err := pages[0].GetString("pageprops", "wikibase_item")
	if err != nil || item == "" {
		return "", c.noMapping(reqID, "wikibase_item", normalized)
	}
	return item, nil
}

// Claim returns the first string value of property on entityID.
func (c *Client) Claim(ctx context.Context, entityID, property string) (string, error) {
	params := url.Values{
		"action":   {"wbgetclaims"},
		"format":   {"json"},
		"entity":   {entityID},
		"property": {property},
	}

	resp, reqID, err := c.query(ctx, c.config.WikidataURL, params)
	if err != nil {
		return "", err
	}
	claims, err := resp.GetObjectArray("claims", property)
	if err != nil || len(claims) == 0 {
		return "", c.noMapping(reqID, property, entityID)
	}
	value, err := claims[0].GetString("mainsnak", "datavalue", "value")
	if err != nil || value == "" {
		return "", c.noMapping(reqID, property, entityID)
	}
	return value, nil
}

// EntityByClaim returns the item having property = value.
func (c *Client) EntityByClaim(ctx context.Context, property, value string) (string, error) {
	params := url.Values{
		"action":   {"query"},
		"format":   {"json"},
		"list":     {"search"},
		"srsearch": {"haswbstatement:" + property + "=" + value},
		"srlimit":  {"1"},
	}

	resp, reqID, err := c.query(ctx, c.config.WikidataURL, params)
	if err != nil {
		return "", err
	}
	results, err := resp.GetObjectArray("query", "search")
	if err != nil || len(results) == 0 {
		return "", c.noMapping(reqID, property, value)
	}
	item, err := results[0].GetString("title")
	if err != nil || item == "" {
		return "", c.noMapping(reqID, property, value)
	}
	return item, nil
}

func (c *Client) query(ctx context.Context, endpoint string, params url.Values) (*jason.Object, string, error) {
	reqID := uuid.New().String()[:8]
	log := c.log.With(
		logger.String("request_id", reqID),
		logger.String("api_action", params.Get("action")))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, reqID, errors.New(err).
			Component("wikimedia").
			Category(errors.CategoryCancellation).
			Context("request_id", reqID).
			Context("operation", "rate_limiter_wait").
			Build()
	}

	req := cachestore.Request{
		URL:    endpoint + "?" + params.Encode(),
		Header: http.Header{"User-Agent": {c.config.UserAgent}},
	}
	log.Debug("sending Wikimedia API request", logger.String("url", req.URL))

	raw, err := c.getter.Get(ctx, req)
	if err != nil {
		log.Warn("Wikimedia API request failed", logger.Error(err))
		return nil, reqID, err
	}

	resp, err := jason.NewObjectFromBytes(raw)
	if err != nil {
		return nil, reqID, errors.New(err).
			Component("wikimedia").
			Category(errors.CategoryFileParsing).
			Context("request_id", reqID).
			Build()
	}

	if apiErr, err := resp.GetObject("error"); err == nil {
		code, _ := apiErr.GetString("code")
		info, _ := apiErr.GetString("info")
		return nil, reqID, errors.Newf("wikimedia API error %s: %s", code, info).
			Component("wikimedia").
			Category(errors.CategoryIntegration).
			Context("request_id", reqID).
			Context("api_error_code", code).
			Build()
	}
	return resp, reqID, nil
}

func (c *Client) noMapping(reqID, what, subject string) error {
	c.log.Debug("no mapping",
		logger.String("request_id", reqID),
		logger.String("lookup", what),
		logger.String("subject", subject))
	return ErrNoMapping
}
