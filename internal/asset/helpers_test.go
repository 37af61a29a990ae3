package asset

import (
	"testing"

	"github.com/roach88/bundlecore/internal/cache"
	"github.com/roach88/bundlecore/internal/ir"
	"github.com/roach88/bundlecore/internal/testutil"
)

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	return newTestRegistryWithStore(t, nil, opts...)
}

func newTestRegistryWithStore(t *testing.T, storeOpts []cache.Option, opts ...Option) *Registry {
	t.Helper()
	store := testutil.TempStore(t, storeOpts...)
	opts = append([]Option{WithLogger(testutil.DiscardLogger())}, opts...)
	return NewRegistry(store, opts...)
}

var browserEnv = ir.Environment{Context: "browser", OutputFormat: "esm"}

func jsOptions(path string) AssetOptions {
	return AssetOptions{
		FilePath: path,
		Type:     "js",
		Env:      browserEnv,
		IsSource: true,
	}
}
