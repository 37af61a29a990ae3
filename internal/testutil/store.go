package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/bundlecore/internal/cache"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TempStore opens a cache in a fresh temp directory. The store is closed
// when the test ends.
func TempStore(t testing.TB, opts ...cache.Option) *cache.Store {
	t.Helper()
	opts = append([]cache.Option{cache.WithLogger(DiscardLogger())}, opts...)
	s, err := cache.Open(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("cache.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
