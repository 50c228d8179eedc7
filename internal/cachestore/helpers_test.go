package cachestore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citizenbirds/birdlist/internal/datastore"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/testutil"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testLogger() logger.Logger {
	return testutil.Logger()
}

// fakeFetcher counts calls and optionally blocks until gate is closed.
type fakeFetcher struct {
	calls   atomic.Int32
	gate    chan struct{}
	respond func(req Request) ([]byte, error)
}

func newFakeFetcher(body string) *fakeFetcher {
	return &fakeFetcher{respond: func(Request) ([]byte, error) { return []byte(body), nil }}
}

func (f *fakeFetcher) Fetch(_ context.Context, req Request) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.respond(req)
}

// memRepo is an in-memory datastore.CacheRepository.
type memRepo struct {
	mu      sync.Mutex
	entries map[string]datastore.CacheEntry
	putErr  error
	puts    int
}

func newMemRepo() *memRepo {
	return &memRepo{entries: make(map[string]datastore.CacheEntry)}
}

func (r *memRepo) Put(_ context.Context, e *datastore.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts++
	if r.putErr != nil {
		return r.putErr
	}
	r.entries[e.Key] = *e
	return nil
}

func (r *memRepo) Get(_ context.Context, key string) (*datastore.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, errors.Newf("cache entry not found").Category(errors.CategoryNotFound).Build()
	}
	return &e, nil
}

func (r *memRepo) LoadSince(_ context.Context, since time.Time) ([]datastore.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []datastore.CacheEntry
	for _, e := range r.entries {
		if e.StoredAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepo) Count(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.entries)), nil
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) putCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.puts
}

func newTestStore(t *testing.T, fetcher Fetcher, durable datastore.CacheRepository, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	s, err := New(fetcher, durable, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Wait)
	return s
}

func get(t *testing.T, s *Store, url string) string {
	t.Helper()
	payload, err := s.Get(t.Context(), Request{URL: url})
	require.NoError(t, err)
	return string(payload)
}
