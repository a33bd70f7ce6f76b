// Package testutils holds shared test helpers: a logger-carrying TestHelper
// and diff-reporting asserters for CLI text and JSON output.
package testutils

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	logs   *logBuffer
}

// logBuffer lets tests read logs while scan goroutines are still writing.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewTestHelper creates a test helper whose logger records at debug level
// into a buffer instead of stderr.
func NewTestHelper(t *testing.T) *TestHelper {
	logs := &logBuffer{}
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(logs)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return &TestHelper{
		T:      t,
		Logger: logger,
		logs:   logs,
	}
}

// Logs returns everything logged so far.
func (h *TestHelper) Logs() string {
	return h.logs.String()
}

// DumpLogsOnFailure registers a cleanup that prints the captured logs if the test failed.
func (h *TestHelper) DumpLogsOnFailure() {
	h.T.Cleanup(func() {
		if h.T.Failed() {
			h.T.Logf("captured logs:\n%s", h.logs.String())
		}
	})
}

// TempDBPath returns a database path inside a per-test temp directory.
func (h *TestHelper) TempDBPath() string {
	return filepath.Join(h.T.TempDir(), "beaconpair.db")
}
