package ebird

import (
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citizenbirds/birdlist/internal/cachestore"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/httpclient"
	"github.com/citizenbirds/birdlist/internal/logger"
)

const recentURL = "https://api.ebird.org/v2/data/obs/US-OH/recent"

const recentBody = `[
  {"speciesCode":"amecro","comName":"American Crow","sciName":"Corvus brachyrhynchos",
   "locId":"L1","locName":"Maumee Bay SP","obsDt":"2026-05-01 08:15","howMany":3,
   "lat":41.68,"lng":-83.37,"obsValid":true,"obsReviewed":false,"locationPrivate":false},
  {"speciesCode":"x00775","comName":"Mallard x Black Duck","sciName":"Anas sp.",
   "locId":"L2","locName":"Private yard","obsDt":"2026-05-01","obsValid":false,"obsReviewed":true}
]`

func setupTestClient(t *testing.T, token string) *Client {
	t.Helper()

	hc := httpclient.New(nil)
	httpmock.ActivateNonDefault(hc.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil)
	store, err := cachestore.New(cachestore.NewHTTPFetcher(hc), nil, cachestore.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(store.Wait)

	return NewClient(Config{APIToken: token, BaseURL: "https://api.ebird.org/v2/"}, store, log)
}

func TestRecentObservations(t *testing.T) {
	client := setupTestClient(t, "test-token")
	httpmock.RegisterResponder(http.MethodGet, recentURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "test-token", req.Header.Get(TokenHeader))
			return httpmock.NewStringResponse(http.StatusOK, recentBody), nil
		})

	obs, err := client.RecentObservations(t.Context(), "US-OH", "")
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, "amecro", obs[0].SpeciesCode)
	assert.Equal(t, "American Crow", obs[0].CommonName)
	assert.Equal(t, "Maumee Bay SP", obs[0].LocationName)
	assert.True(t, obs[0].IsValid)
	assert.Nil(t, obs[0].TaxonID)
	assert.Equal(t, 8, obs[0].ObservedAt.Hour())

	assert.False(t, obs[1].IsValid)
	assert.True(t, obs[1].ObservedAt.IsZero(), "date without time is left unset")
}

func TestRecentObservationsQuery(t *testing.T) {
	hc := httpclient.New(nil)
	httpmock.ActivateNonDefault(hc.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	store, err := cachestore.New(cachestore.NewHTTPFetcher(hc), nil)
	require.NoError(t, err)

	client := NewClient(Config{APIToken: "t", DaysBack: 14}, store, nil)
	httpmock.RegisterResponderWithQuery(http.MethodGet, recentURL,
		map[string]string{"back": "14", "sppLocale": "fi"},
		httpmock.NewStringResponder(http.StatusOK, `[]`))

	obs, err := client.RecentObservations(t.Context(), "US-OH", "fi")
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestMissingCredentialFailsBeforeRequest(t *testing.T) {
	client := setupTestClient(t, "")
	httpmock.RegisterResponder(http.MethodGet, recentURL, httpmock.NewStringResponder(http.StatusOK, recentBody))

	_, err := client.RecentObservations(t.Context(), "US-OH", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Equal(t, "eBird API token not configured: set EBIRD_API_TOKEN", err.Error())
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestRejectedToken(t *testing.T) {
	client := setupTestClient(t, "bad")
	httpmock.RegisterResponder(http.MethodGet, recentURL,
		httpmock.NewStringResponder(http.StatusForbidden, `{"errors":[{"title":"Forbidden"}]}`))

	_, err := client.RecentObservations(t.Context(), "US-OH", "")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, errors.StatusCode(err))
}

func TestRepeatedCallsAreCached(t *testing.T) {
	client := setupTestClient(t, "test-token")
	httpmock.RegisterResponder(http.MethodGet, recentURL, httpmock.NewStringResponder(http.StatusOK, recentBody))

	for range 3 {
		_, err := client.RecentObservations(t.Context(), "US-OH", "")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
