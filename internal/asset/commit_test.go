package asset

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bundlecore/internal/cache"
	"github.com/roach88/bundlecore/internal/ir"
	"github.com/roach88/bundlecore/internal/sourcemap"
)

func TestCommit_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	opts := jsOptions("src/index.js")
	opts.SideEffects = true
	opts.IsBundleSplittable = true
	u, err := r.NewAsset(opts)
	require.NoError(t, err)
	require.NoError(t, u.SetCode("import './b.js'"))
	require.NoError(t, u.SetMeta("lang", ir.MetaString("js")))
	require.NoError(t, u.SetSymbol("default", ir.Symbol{Local: "$a$default"}))
	require.NoError(t, u.InvalidateOnFileChange("package.json"))
	_, err = u.AddDependency(DependencyOptions{Specifier: "./b.js"})
	require.NoError(t, err)

	addr, err := r.Commit(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, ir.Address(0), addr)
	assert.True(t, u.IsCommitted())
	got, ok := u.Address()
	assert.True(t, ok)
	assert.Equal(t, addr, got)

	c, err := r.Committed(addr)
	require.NoError(t, err)
	assert.Same(t, c, mustCommitted(t, r, addr))

	assert.Equal(t, u.ID(), c.ID())
	assert.Equal(t, "src/index.js", c.FilePath())
	assert.Equal(t, "js", c.Type())
	assert.True(t, c.IsSource())
	assert.True(t, c.SideEffects())
	assert.True(t, c.IsSplittable())
	assert.Equal(t, int64(len("import './b.js'")), c.Stats().Size)
	assert.Equal(t, "$a$default", c.Symbols()["default"].Local)
	assert.Equal(t, u.Invalidations(), c.Invalidations())
	assert.False(t, c.Flags().Has(ir.FlagLargeContent))

	code, err := c.Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "import './b.js'", code)

	// The uncommitted wrapper now reads through the cache.
	code, err = u.Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "import './b.js'", code)

	meta, err := c.Meta()
	require.NoError(t, err)
	assert.Equal(t, ir.MetaString("js"), meta["lang"])

	deps, err := c.Dependencies()
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "./b.js", deps[0].Specifier())
	depAddr, committed := deps[0].Address()
	assert.True(t, committed)
	assert.Equal(t, ir.Address(0), depAddr)

	again, err := c.Dependencies()
	require.NoError(t, err)
	assert.Same(t, deps[0], again[0])
}

func mustCommitted(t *testing.T, r *Registry, addr ir.Address) *CommittedAsset {
	t.Helper()
	c, err := r.Committed(addr)
	require.NoError(t, err)
	return c
}

func TestCommit_FinalizesAsset(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	u, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)
	require.NoError(t, u.SetCode("a"))
	_, err = r.Commit(ctx, u)
	require.NoError(t, err)

	for name, fn := range map[string]func() error{
		"SetCode":    func() error { return u.SetCode("b") },
		"SetType":    func() error { return u.SetType("css") },
		"SetMeta":    func() error { return u.SetMeta("k", ir.MetaInt(1)) },
		"MutableSet": func() error { return r.MutableAsset(u).SetSideEffects(true) },
		"AddDep": func() error {
			_, err := u.AddDependency(DependencyOptions{Specifier: "./x.js"})
			return err
		},
	} {
		err := fn()
		assert.True(t, ir.IsInvalidState(err), "%s: got %v", name, err)
	}

	_, err = r.Commit(ctx, u)
	assert.True(t, ir.IsInvalidState(err))
}

func TestCommit_EmptyContent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	u, err := r.NewAsset(jsOptions("src/empty.js"))
	require.NoError(t, err)

	addr, err := r.Commit(ctx, u)
	require.NoError(t, err)

	b, err := mustCommitted(t, r, addr).Buffer(ctx)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestCommit_LargeContent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistryWithStore(t, []cache.Option{cache.WithChunkSize(4)}, WithLargeContentThreshold(4))
	u, err := r.NewAsset(jsOptions("src/big.js"))
	require.NoError(t, err)
	require.NoError(t, u.SetCode("0123456789"))

	addr, err := r.Commit(ctx, u)
	require.NoError(t, err)
	c := mustCommitted(t, r, addr)
	assert.True(t, c.Flags().Has(ir.FlagLargeContent))

	ok, err := r.Store().HasLargeBlob(ctx, ir.ContentKey(c.ID(), "content"))
	require.NoError(t, err)
	assert.True(t, ok)

	code, err := c.Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", code)

	code, err = u.Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", code)
}

func TestCommit_StreamContent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	u, err := r.NewAsset(jsOptions("src/data.bin"))
	require.NoError(t, err)
	require.NoError(t, u.SetStream(strings.NewReader("streamed bytes")))

	addr, err := r.Commit(ctx, u)
	require.NoError(t, err)
	c := mustCommitted(t, r, addr)
	assert.True(t, c.Flags().Has(ir.FlagStreamContent))
	assert.Equal(t, int64(len("streamed bytes")), c.Stats().Size)

	rc, err := c.Stream(ctx)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "streamed bytes", string(data))
}

func TestCommit_ConsumedStream(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	u, err := r.NewAsset(jsOptions("src/data.bin"))
	require.NoError(t, err)
	require.NoError(t, u.SetStream(strings.NewReader("once")))

	rc, err := u.Stream(ctx)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "once", string(data))

	_, err = u.Stream(ctx)
	assert.True(t, ir.IsInvalidState(err))
	_, err = r.Commit(ctx, u)
	assert.True(t, ir.IsInvalidState(err))
}

func TestCommit_BufferDrainsPendingStream(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	u, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)
	require.NoError(t, u.SetStream(strings.NewReader("abc")))

	code, err := u.Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", code)

	addr, err := r.Commit(ctx, u)
	require.NoError(t, err)
	assert.False(t, mustCommitted(t, r, addr).Flags().Has(ir.FlagStreamContent))
}

func TestCommit_MapAndAST(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	u, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)

	m, err := sourcemap.Parse([]byte(`{"version":3,"sources":["a.ts"],"names":[],"mappings":"AAAA;AACA"}`))
	require.NoError(t, err)
	require.NoError(t, u.SetCode("a\nb"))
	require.NoError(t, u.SetAST(&ir.AST{
		Type:    "estree",
		Version: "1.0.0",
		Program: map[string]any{"type": "Program", "sourceType": "module"},
	}))
	require.NoError(t, u.SetMap(m))
	assert.True(t, u.IsASTDirty())

	addr, err := r.Commit(ctx, u)
	require.NoError(t, err)
	c := mustCommitted(t, r, addr)
	assert.True(t, c.Flags().Has(ir.FlagHasMap))
	assert.True(t, c.Flags().Has(ir.FlagHasAST))

	gotMap, err := c.Map(ctx)
	require.NoError(t, err)
	require.NotNil(t, gotMap)
	assert.Equal(t, "AAAA;AACA", gotMap.Mappings())
	assert.Equal(t, []string{"a.ts"}, gotMap.Sources)

	ast, err := c.AST(ctx)
	require.NoError(t, err)
	require.NotNil(t, ast)
	assert.Equal(t, "estree", ast.Type)
	assert.Equal(t, map[string]any{"type": "Program", "sourceType": "module"}, ast.Program)
}

func TestCommit_NoMapOrAST(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	u, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)
	require.NoError(t, u.SetAST(&ir.AST{Type: "estree"}))
	require.NoError(t, u.SetCode("replaced"))
	assert.False(t, u.IsASTDirty(), "new content drops the AST")

	addr, err := r.Commit(ctx, u)
	require.NoError(t, err)
	c := mustCommitted(t, r, addr)

	gotMap, err := c.Map(ctx)
	require.NoError(t, err)
	assert.Nil(t, gotMap)
	ast, err := c.AST(ctx)
	require.NoError(t, err)
	assert.Nil(t, ast)
}

func TestCommit_ReusesAddressForSameID(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	first, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)
	require.NoError(t, first.SetCode("v1"))
	other, err := r.NewAsset(jsOptions("src/b.js"))
	require.NoError(t, err)

	a1, err := r.Commit(ctx, first)
	require.NoError(t, err)
	_, err = r.Commit(ctx, other)
	require.NoError(t, err)
	live := mustCommitted(t, r, a1)

	second, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)
	require.NoError(t, second.SetCode("v2 is longer"))
	a2, err := r.Commit(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Equal(t, 2, r.Len())

	code, err := live.Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2 is longer", code, "live wrapper sees the recommitted record")
	assert.Same(t, live, mustCommitted(t, r, a2))
}

func TestCommit_RecommitReplacesContentShape(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistryWithStore(t, []cache.Option{cache.WithChunkSize(4)}, WithLargeContentThreshold(4))

	big, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)
	require.NoError(t, big.SetCode("0123456789"))
	addr, err := r.Commit(ctx, big)
	require.NoError(t, err)
	key := ir.ContentKey(big.ID(), "content")

	small, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)
	require.NoError(t, small.SetCode("v2"))
	_, err = r.Commit(ctx, small)
	require.NoError(t, err)

	large, err := r.Store().HasLargeBlob(ctx, key)
	require.NoError(t, err)
	assert.False(t, large, "chunks of the earlier commit are gone")
	code, err := small.Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", code)
	code, err = mustCommitted(t, r, addr).Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", code)

	again, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)
	require.NoError(t, again.SetCode("abcdefghij"))
	_, err = r.Commit(ctx, again)
	require.NoError(t, err)

	_, found, err := r.Store().GetBuffer(ctx, key)
	require.NoError(t, err)
	assert.False(t, found, "inline blob of the earlier commit is gone")
	code, err = again.Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", code)
}

func TestCommit_RecommitKeepsDependencyWrapper(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	first, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)
	_, err = first.AddDependency(DependencyOptions{Specifier: "./b.js"})
	require.NoError(t, err)
	addr, err := r.Commit(ctx, first)
	require.NoError(t, err)

	c := mustCommitted(t, r, addr)
	deps, err := c.Dependencies()
	require.NoError(t, err)
	require.Len(t, deps, 1)
	live := deps[0]
	assert.False(t, live.IsOptional())

	second, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)
	_, err = second.AddDependency(DependencyOptions{Specifier: "./b.js", IsOptional: true})
	require.NoError(t, err)
	_, err = r.Commit(ctx, second)
	require.NoError(t, err)

	deps, err = c.Dependencies()
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Same(t, live, deps[0])
	assert.True(t, live.IsOptional(), "live wrapper sees the recommitted record")
}

func TestCommitted_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Committed(ir.Address(3))
	assert.True(t, ir.IsNotFound(err))
	_, ok := r.CommittedByID("missing")
	assert.False(t, ok)
}

func TestCommitted_MetaCopiedOnRead(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	u, err := r.NewAsset(jsOptions("src/a.js"))
	require.NoError(t, err)
	require.NoError(t, u.SetMeta("hoisted", ir.MetaBool(true)))
	addr, err := r.Commit(ctx, u)
	require.NoError(t, err)
	c := mustCommitted(t, r, addr)

	m, err := c.Meta()
	require.NoError(t, err)
	m["hoisted"] = ir.MetaBool(false)

	m, err = c.Meta()
	require.NoError(t, err)
	assert.Equal(t, ir.MetaBool(true), m["hoisted"])
}

func TestFlushLoad(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	u, err := r.NewAsset(jsOptions("src/index.js"))
	require.NoError(t, err)
	require.NoError(t, u.SetCode("console.log(1)"))
	require.NoError(t, u.SetMeta("entry", ir.MetaBool(true)))
	_, err = u.AddDependency(DependencyOptions{
		Specifier:     "./logo.svg",
		SpecifierType: ir.SpecifierURL,
		Meta:          ir.Meta{ir.MetaKeyPlaceholder: ir.MetaString("LOGO")},
	})
	require.NoError(t, err)
	_, err = r.Commit(ctx, u)
	require.NoError(t, err)
	require.NoError(t, r.Flush(ctx))

	next := NewRegistry(r.Store(), WithLogger(r.logger))
	require.NoError(t, next.Load(ctx))
	assert.Equal(t, 1, next.Len())

	c, ok := next.CommittedByID(u.ID())
	require.True(t, ok)
	code, err := c.Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", code)

	meta, err := c.Meta()
	require.NoError(t, err)
	assert.Equal(t, ir.MetaBool(true), meta["entry"])

	deps, err := c.Dependencies()
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, ir.SpecifierURL, deps[0].SpecifierType())
	assert.Equal(t, "LOGO", deps[0].Placeholder())
}

func TestLoad_RefreshesLiveWrappers(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	for _, path := range []string{"src/a.js", "src/c.js"} {
		u, err := r.NewAsset(jsOptions(path))
		require.NoError(t, err)
		_, err = u.AddDependency(DependencyOptions{Specifier: "./x.js"})
		require.NoError(t, err)
		_, err = r.Commit(ctx, u)
		require.NoError(t, err)
	}
	live := mustCommitted(t, r, 0)
	deps, err := live.Dependencies()
	require.NoError(t, err)
	require.Len(t, deps, 1)
	liveDep := deps[0]
	gone := mustCommitted(t, r, 1)

	// Another build writes a different graph to the same cache.
	other := NewRegistry(r.Store(), WithLogger(r.logger))
	u, err := other.NewAsset(jsOptions("src/b.js"))
	require.NoError(t, err)
	_, err = u.AddDependency(DependencyOptions{Specifier: "./y.js"})
	require.NoError(t, err)
	_, err = other.Commit(ctx, u)
	require.NoError(t, err)
	require.NoError(t, other.Flush(ctx))

	require.NoError(t, r.Load(ctx))
	assert.Equal(t, 1, r.Len())

	assert.Same(t, live, mustCommitted(t, r, 0))
	assert.Equal(t, "src/b.js", live.FilePath())
	assert.Equal(t, "./y.js", liveDep.Specifier())
	deps, err = live.Dependencies()
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Same(t, liveDep, deps[0])

	_, err = r.Committed(1)
	assert.True(t, ir.IsNotFound(err))
	assert.Equal(t, "src/c.js", gone.FilePath(), "unregistered wrapper keeps its old record")
}
