// Package cachestore memoizes upstream JSON responses by request identity.
//
// Concurrent requests for the same key share one fetch, and a resolved
// response is reused until the TTL elapses. Resolved responses are written
// through to an optional durable tier so a restarted process can serve them
// without refetching.
package cachestore

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/patrickmn/go-cache"

	"github.com/citizenbirds/birdlist/internal/datastore"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/observability/metrics"
)

const componentName = "cachestore"

// Request identifies an upstream GET.
type Request struct {
	URL    string
	Header http.Header
}

// Fetcher performs the network call for a Request.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// call is a pending or resolved fetch. payload, err and storedAt are
// written once before done is closed.
type call struct {
	done     chan struct{}
	payload  json.RawMessage
	err      error
	storedAt time.Time
}

func resolvedCall(payload []byte, storedAt time.Time) *call {
	c := &call{done: make(chan struct{}), payload: payload, storedAt: storedAt}
	close(c.done)
	return c
}

func (c *call) resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Store is the two-tier response cache. Safe for concurrent use.
type Store struct {
	fetcher    Fetcher
	durable    datastore.CacheRepository
	mem        *cache.Cache
	mu         sync.Mutex // serializes lookup-then-insert on mem
	clock      clockwork.Clock
	ttl        time.Duration
	headerKeys []string
	rehydrate  bool
	log        logger.Logger
	metrics    *metrics.CacheMetrics
	inflight   sync.WaitGroup

	hits, misses, coalesced   atomic.Uint64
	durableHits, fetchErrors  atomic.Uint64
	durableWrites, durableErr atomic.Uint64
	rehydrated                atomic.Uint64
}

// New builds a Store. durable may be nil for a memory-only cache. Unless
// WithoutRehydrate is given, fresh durable entries are loaded immediately;
// a failure there is logged and the store starts empty.
func New(fetcher Fetcher, durable datastore.CacheRepository, opts ...Option) (*Store, error) {
	if fetcher == nil {
		return nil, errors.Newf("cache store requires a fetcher").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Store{
		fetcher:   fetcher,
		durable:   durable,
		clock:     clockwork.NewRealClock(),
		ttl:       DefaultTTL,
		rehydrate: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		return nil, errors.Newf("cache TTL must be positive, got %s", s.ttl).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.log == nil {
		s.log = logger.Global().Module(componentName)
	}

	// Pending calls never expire; resolved calls carry their remaining TTL.
	// No janitor goroutine, RunSweeper removes expired items on the store clock.
	s.mem = cache.New(cache.NoExpiration, 0)

	if s.rehydrate && s.durable != nil {
		ctx := context.Background()
		if n, err := s.Rehydrate(ctx); err != nil {
			s.log.Warn("durable cache rehydrate failed, starting empty", logger.Error(err))
		} else {
			rows, _ := s.durable.Count(ctx)
			s.log.Info("cache rehydrated",
				logger.Int("entries", n),
				logger.Int64("durable_rows", rows),
				logger.Duration("ttl", s.ttl))
		}
	}
	return s, nil
}

// Key returns the cache key of req: the URL, plus the values of any
// headers configured with WithHeaderKeys.
func (s *Store) Key(req Request) string {
	if len(s.headerKeys) == 0 || len(req.Header) == 0 {
		return req.URL
	}
	var b strings.Builder
	b.WriteString(req.URL)
	for _, name := range s.headerKeys {
		if values := req.Header.Values(name); len(values) > 0 {
			b.WriteString("\n")
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(strings.Join(values, ","))
		}
	}
	return b.String()
}

// Get returns the JSON payload for req. The returned slice is shared and
// must not be modified. Cancelling ctx abandons this caller's wait only;
// the fetch itself completes for other waiters.
func (s *Store) Get(ctx context.Context, req Request) (json.RawMessage, error) {
	key := s.Key(req)

	s.mu.Lock()
	if v, found := s.mem.Get(key); found {
		c := v.(*call)
		if !c.resolved() {
			s.mu.Unlock()
			s.coalesced.Add(1)
			s.metrics.IncCoalesced()
			return s.wait(ctx, c)
		}
		if c.err == nil && s.fresh(c.storedAt) {
			s.mu.Unlock()
			s.hits.Add(1)
			s.metrics.IncHits()
			return c.payload, nil
		}
	}
	c := &call{done: make(chan struct{})}
	s.mem.Set(key, c, cache.NoExpiration)
	s.mu.Unlock()

	s.misses.Add(1)
	s.metrics.IncMisses()
	s.metrics.SetEntries(s.mem.ItemCount())

	s.inflight.Add(1)
	go s.resolve(context.WithoutCancel(ctx), key, req, c)

	return s.wait(ctx, c)
}

// GetJSON decodes the payload for req into out.
func (s *Store) GetJSON(ctx context.Context, req Request, out any) error {
	payload, err := s.Get(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Context("url", req.URL).
			Build()
	}
	return nil
}

func (s *Store) wait(ctx context.Context, c *call) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.payload, c.err
	case <-ctx.Done():
		return nil, errors.New(ctx.Err()).
			Component(componentName).
			Category(errors.CategoryCancellation).
			Build()
	}
}

func (s *Store) fresh(storedAt time.Time) bool {
	return s.clock.Since(storedAt) < s.ttl
}

// remaining is the go-cache expiration of a response stored at storedAt.
func (s *Store) remaining(storedAt time.Time) time.Duration {
	if d := s.ttl - s.clock.Since(storedAt); d > 0 {
		return d
	}
	return time.Nanosecond
}

func (s *Store) resolve(ctx context.Context, key string, req Request, c *call) {
	defer s.inflight.Done()

	if payload, storedAt, ok := s.readDurable(ctx, key); ok {
		s.durableHits.Add(1)
		s.metrics.IncDurableHits()
		s.publish(key, c, payload, storedAt, nil)
		return
	}

	start := s.clock.Now()
	body, err := s.fetcher.Fetch(ctx, req)
	s.metrics.ObserveFetch(s.clock.Since(start).Seconds(), err)
	if err == nil && !json.Valid(body) {
		err = errors.Newf("upstream response is not valid JSON").
			Component(componentName).
			Category(errors.CategoryFileParsing).
			Context("url", req.URL).
			Build()
	}
	if err != nil {
		s.fetchErrors.Add(1)
		s.log.Debug("fetch failed", logger.String("key", key), logger.Error(err))
		s.publish(key, c, nil, time.Time{}, err)
		return
	}

	now := s.clock.Now()
	s.writeDurable(ctx, key, body, now)
	s.publish(key, c, body, now, nil)
}

// publish resolves c. A failed call is removed from memory first so that
// no caller can observe it as cached; a successful one gets its expiration.
func (s *Store) publish(key string, c *call, payload []byte, storedAt time.Time, err error) {
	s.mu.Lock()
	if v, found := s.mem.Get(key); found && v.(*call) == c {
		if err != nil {
			s.mem.Delete(key)
		} else {
			s.mem.Set(key, c, s.remaining(storedAt))
		}
	}
	s.mu.Unlock()

	c.payload = payload
	c.storedAt = storedAt
	c.err = err
	close(c.done)
}

func (s *Store) readDurable(ctx context.Context, key string) ([]byte, time.Time, bool) {
	if s.durable == nil {
		return nil, time.Time{}, false
	}
	entry, err := s.durable.Get(ctx, key)
	if err != nil {
		if !errors.IsNotFound(err) {
			s.durableErr.Add(1)
			s.metrics.IncDurableErrors()
			s.log.Warn("durable cache read failed", logger.String("key", key), logger.Error(err))
		}
		return nil, time.Time{}, false
	}
	if !entry.Fresh(s.clock.Now(), s.ttl) {
		return nil, time.Time{}, false
	}
	return entry.Payload, entry.StoredAt, true
}

func (s *Store) writeDurable(ctx context.Context, key string, payload []byte, storedAt time.Time) {
	if s.durable == nil {
		return
	}
	err := s.durable.Put(ctx, &datastore.CacheEntry{Key: key, Payload: payload, StoredAt: storedAt})
	s.metrics.ObserveDurableWrite(err)
	if err != nil {
		s.durableErr.Add(1)
		s.log.Warn("durable cache write failed", logger.String("key", key), logger.Error(err))
		return
	}
	s.durableWrites.Add(1)
}

// Rehydrate loads durable entries stored within the last TTL into memory.
// Keys already present in memory are left alone. Older rows are ignored.
func (s *Store) Rehydrate(ctx context.Context) (int, error) {
	if s.durable == nil {
		return 0, nil
	}
	entries, err := s.durable.LoadSince(ctx, s.clock.Now().Add(-s.ttl))
	if err != nil {
		s.durableErr.Add(1)
		s.metrics.IncDurableErrors()
		return 0, err
	}

	n := 0
	s.mu.Lock()
	for i := range entries {
		e := &entries[i]
		if _, found := s.mem.Get(e.Key); found {
			continue
		}
		s.mem.Set(e.Key, resolvedCall(e.Payload, e.StoredAt), s.remaining(e.StoredAt))
		n++
	}
	s.mu.Unlock()

	s.rehydrated.Add(uint64(n))
	s.metrics.AddRehydrated(n)
	s.metrics.SetEntries(s.mem.ItemCount())
	return n, nil
}

// Sweep drops expired responses from memory and returns how many it removed.
// Pending calls are never dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	before := s.mem.ItemCount()
	s.mem.DeleteExpired()
	for key, item := range s.mem.Items() {
		c := item.Object.(*call)
		if c.resolved() && !s.fresh(c.storedAt) {
			s.mem.Delete(key)
		}
	}
	after := s.mem.ItemCount()
	s.mu.Unlock()

	s.metrics.SetEntries(after)
	return before - after
}

// RunSweeper calls Sweep every interval until ctx is done. The memory tier
// otherwise keeps one entry per distinct URL ever requested.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := s.Sweep(); n > 0 {
				s.log.Debug("swept expired responses", logger.Int("removed", n))
			}
		}
	}
}

// Wait blocks until all fetches started so far have finished.
func (s *Store) Wait() {
	s.inflight.Wait()
}

// Stats is a point-in-time view of the store counters.
type Stats struct {
	Entries       int           `json:"entries"`
	Pending       int           `json:"pending"`
	Hits          uint64        `json:"hits"`
	Misses        uint64        `json:"misses"`
	Coalesced     uint64        `json:"coalesced"`
	DurableHits   uint64        `json:"durableHits"`
	DurableWrites uint64        `json:"durableWrites"`
	DurableErrors uint64        `json:"durableErrors"`
	FetchErrors   uint64        `json:"fetchErrors"`
	Rehydrated    uint64        `json:"rehydrated"`
	TTL           time.Duration `json:"ttl"`
}

// Stats returns the current counters.
func (s *Store) Stats() Stats {
	st := Stats{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Coalesced:     s.coalesced.Load(),
		DurableHits:   s.durableHits.Load(),
		DurableWrites: s.durableWrites.Load(),
		DurableErrors: s.durableErr.Load(),
		FetchErrors:   s.fetchErrors.Load(),
		Rehydrated:    s.rehydrated.Load(),
		TTL:           s.ttl,
	}
	for _, item := range s.mem.Items() {
		st.Entries++
		if !item.Object.(*call).resolved() {
			st.Pending++
		}
	}
	return st
}
