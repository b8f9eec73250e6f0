// Package testutil provides testing helpers shared by the library's test
// suites.
package testutil

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

// DiscardLogger returns a logger that drops everything. Tests use it so
// component log output doesn't drown test failures.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WaitFor polls cond until it returns true or the timeout elapses, failing
// the test on timeout. Use it for assertions against background goroutines
// (audit flushes, cleanup loops) instead of bare sleeps.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
