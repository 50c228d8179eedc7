package telemetry

import (
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citizenbirds/birdlist/internal/conf"
	"github.com/citizenbirds/birdlist/internal/errors"
)

func TestInitDisabledIsNoop(t *testing.T) {
	require.NoError(t, Init(&conf.SentrySettings{}, "test", nil))
	require.NoError(t, Init(nil, "test", nil))
	assert.False(t, Enabled())
}

func TestInitRequiresDSN(t *testing.T) {
	err := Init(&conf.SentrySettings{Enabled: true}, "test", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestEnhancedErrorsReachSentry(t *testing.T) {
	transport := &mockTransport{}
	require.NoError(t, Init(&conf.SentrySettings{Enabled: true, DSN: "https://public@sentry.example.com/1"}, "test", transport))
	t.Cleanup(func() {
		errors.SetTelemetryReporter(nil)
		enabled.Store(false)
	})
	assert.True(t, Enabled())

	_ = errors.Newf("failed to fetch https://api.ebird.org/v2/data/obs/US-OH/recent").
		Component("ebird").
		Category(errors.CategoryNetwork).
		Build()
	Flush(time.Second)

	require.Eventually(t, func() bool { return len(transport.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	event := transport.Events()[0]
	assert.Equal(t, "ebird", event.Tags["component"])
	assert.Empty(t, event.ServerName)
	assert.Equal(t, "birdlist@test", event.Release)
}

func TestPrivacyFilters(t *testing.T) {
	event := &sentry.Event{
		ServerName: "birdlist-prod-1",
		User:       sentry.User{ID: "42"},
		Contexts:   map[string]sentry.Context{"os": {}, "category": {}},
		Extra:      map[string]any{"component": "ebird", "token": "secret"},
	}
	filtered := applyPrivacyFilters(event)

	assert.Empty(t, filtered.ServerName)
	assert.Empty(t, filtered.User.ID)
	assert.NotContains(t, filtered.Contexts, "os")
	assert.Contains(t, filtered.Contexts, "category")
	assert.Equal(t, map[string]any{"component": "ebird"}, filtered.Extra)
}
