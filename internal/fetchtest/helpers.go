// Package fetchtest provides helpers for tests exercising fetch providers
// and the components built on them.
package fetchtest

import (
	"context"
	"testing"
	"time"
)

// WaitForCondition polls condition every 10ms until it holds or timeout
// elapses, failing the test with msg in the latter case.
func WaitForCondition(t testing.TB, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %s: %s", timeout, msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// WithTimeout runs fn with a context that expires after timeout and fails
// the test if fn does not return in time.
func WithTimeout(t testing.TB, timeout time.Duration, fn func(ctx context.Context)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		fn(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("test timeout after %s", timeout)
	}
}
