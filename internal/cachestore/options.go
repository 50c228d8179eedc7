package cachestore

import (
	"net/http"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/observability/metrics"
)

// DefaultTTL is how long a resolved response is reused.
const DefaultTTL = 10 * time.Minute

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithTTL sets the reuse window of resolved responses.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithHeaderKeys makes the named request headers part of the cache key.
// By default two requests that differ only in headers share an entry.
func WithHeaderKeys(names ...string) Option {
	return func(s *Store) {
		keys := make([]string, 0, len(names))
		for _, n := range names {
			if n != "" {
				keys = append(keys, http.CanonicalHeaderKey(n))
			}
		}
		slices.Sort(keys)
		s.headerKeys = slices.Compact(keys)
	}
}

func WithLogger(log logger.Logger) Option {
	return func(s *Store) { s.log = log }
}

func WithMetrics(m *metrics.CacheMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithoutRehydrate skips loading the durable tier in New.
func WithoutRehydrate() Option {
	return func(s *Store) { s.rehydrate = false }
}
