// Package telemetry sends enhanced errors to Sentry when enabled.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/citizenbirds/birdlist/internal/conf"
	"github.com/citizenbirds/birdlist/internal/errors"
)

var enabled atomic.Bool

// Init initializes the Sentry SDK and routes enhanced errors to it. It is a
// no-op when settings.Enabled is false. transport is nil outside tests.
func Init(settings *conf.SentrySettings, release string, transport sentry.Transport) error {
	if settings == nil || !settings.Enabled {
		return nil
	}
	if settings.DSN == "" {
		return errors.Newf("sentry is enabled but sentry.dsn is empty").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "", // Explicitly clear server name to prevent hostname leakage
		Release:          "birdlist@" + release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
		Transport: transport,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	enabled.Store(true)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	return nil
}

// applyPrivacyFilters removes host and user details from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	return event
}

// Enabled reports whether Init configured Sentry.
func Enabled() bool {
	return enabled.Load()
}

// Flush waits up to timeout for buffered events to be sent.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}
