// Package testutil provides helpers shared by birdlist package tests.
package testutil

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citizenbirds/birdlist/internal/logger"
)

const (
	// DefaultTestTimeout bounds waits on goroutines started by a test.
	DefaultTestTimeout = 5 * time.Second

	pollInterval = time.Millisecond
)

// Logger returns a debug-level logger that discards output.
func Logger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil)
}

// LogBuffer is a goroutine-safe buffer for asserting on log output.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// BufferLogger returns a debug-level logger writing to a LogBuffer.
func BufferLogger() (logger.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	return logger.NewSlogLogger(buf, logger.LogLevelDebug, nil), buf
}

// WaitFor polls cond until it holds or DefaultTestTimeout elapses.
func WaitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, DefaultTestTimeout, pollInterval, msg)
}
