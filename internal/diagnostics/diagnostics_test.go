package diagnostics

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citizenbirds/birdlist/internal/logger"
)

func TestCollectorStampsTime(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewCollector(WithClock(func() time.Time { return fixed }))

	c.Record(Diagnostic{Component: "crosswalk", Kind: KindUnresolvedIdentifier, Key: "norcar"})

	assert.Equal(t, 1, c.Count(KindUnresolvedIdentifier))
	assert.Zero(t, c.Count(KindFiltered))
	entries := c.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, fixed, entries[0].Time)
}

func TestCollectorConcurrentRecord(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			c.Record(Diagnostic{Kind: KindFiltered, Key: fmt.Sprint(i)})
		})
	}
	wg.Wait()

	assert.Equal(t, 50, c.Count(KindFiltered))
	assert.Len(t, c.Drain(), 50)
	assert.Empty(t, c.Drain(), "drain resets the collector")
	assert.Zero(t, c.Count(KindFiltered))
}

func TestLogSinkWritesAndRetainsNothing(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewLogSink(logger.NewSlogLogger(&buf, logger.LogLevelDebug, nil))

	sink.Record(Diagnostic{Component: "reconcile", Kind: KindSourceUnavailable, Message: "secondary source skipped"})

	assert.Contains(t, buf.String(), "kind=source-unavailable")
	assert.Contains(t, buf.String(), "secondary source skipped")
}

func TestNilLogSinkIsSafe(t *testing.T) {
	t.Parallel()

	var sink *LogSink
	assert.NotPanics(t, func() { sink.Record(Diagnostic{Kind: KindFiltered}) })
	assert.NotPanics(t, func() { NewLogSink(nil).Record(Diagnostic{Kind: KindFiltered}) })
}
