// Package diagnostics records non-fatal findings (unmapped identifiers,
// skipped sources, curation hints) so callers can return them next to data.
package diagnostics

import (
	"sync"
	"time"

	"github.com/citizenbirds/birdlist/internal/logger"
)

// Kind classifies a diagnostic
type Kind string

const (
	KindUnresolvedIdentifier Kind = "unresolved-identifier"
	KindSourceUnavailable    Kind = "source-unavailable"
	KindCrosswalkViolation   Kind = "crosswalk-violation"
	KindCurationRequired     Kind = "curation-required"
	KindFiltered             Kind = "filtered"
)

// Diagnostic is a single non-fatal finding.
type Diagnostic struct {
	Component string    `json:"component"`
	Kind      Kind      `json:"kind"`
	Key       string    `json:"key,omitempty"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

// Sink receives diagnostics. Implementations must be safe for concurrent use.
type Sink interface {
	Record(d Diagnostic)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(Diagnostic) {}

// LogSink writes each diagnostic to a logger at debug level and keeps
// nothing. It suits long-lived producers whose findings have no reader.
type LogSink struct {
	log logger.Logger
}

// NewLogSink returns a LogSink writing to log.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

// Record logs d.
func (s *LogSink) Record(d Diagnostic) {
	if s == nil || s.log == nil {
		return
	}
	s.log.Debug(d.Message,
		logger.String("component", d.Component),
		logger.String("kind", string(d.Kind)),
		logger.String("key", d.Key))
}

// Collector is a thread-safe in-memory Sink scoped to one unit of work.
// Callers Drain it when the work completes.
type Collector struct {
	mu      sync.Mutex
	entries []Diagnostic
	now     func() time.Time
}

// CollectorOption configures a Collector
type CollectorOption func(*Collector)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates an empty Collector
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record appends d, stamping it with the current time when unset.
func (c *Collector) Record(d Diagnostic) {
	if d.Time.IsZero() {
		d.Time = c.now()
	}

	c.mu.Lock()
	c.entries = append(c.entries, d)
	c.mu.Unlock()
}

// Drain returns everything recorded and resets the collector.
func (c *Collector) Drain() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.entries
	c.entries = nil
	return out
}

// Count returns how many recorded diagnostics have the given kind
func (c *Collector) Count(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for i := range c.entries {
		if c.entries[i].Kind == kind {
			n++
		}
	}
	return n
}
