package asset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/bundlecore/internal/ir"
	"github.com/roach88/bundlecore/internal/sourcemap"
)

// CommittedAsset is the immutable view of an asset in the persisted graph.
// Content is fetched from the cache on every access; only the parsed
// metadata is cached.
type CommittedAsset struct {
	reg *Registry

	mu   sync.Mutex
	rec  *ir.CommittedAssetRecord
	meta ir.Meta
}

// record returns the current record. A later build that commits an asset
// with the same ID replaces it.
func (c *CommittedAsset) record() *ir.CommittedAssetRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec
}

// replace swaps in a recommitted record and drops cached state.
func (c *CommittedAsset) replace(rec *ir.CommittedAssetRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec = rec
	c.meta = nil
}

func (c *CommittedAsset) Address() ir.Address               { return c.record().Address }
func (c *CommittedAsset) ID() string                        { return c.record().ID }
func (c *CommittedAsset) FilePath() string                  { return c.record().FilePath }
func (c *CommittedAsset) QueryString() string               { return c.record().Query }
func (c *CommittedAsset) Type() string                      { return c.record().Type }
func (c *CommittedAsset) Pipeline() string                  { return c.record().Pipeline }
func (c *CommittedAsset) UniqueKey() string                 { return c.record().UniqueKey }
func (c *CommittedAsset) BundleBehavior() ir.BundleBehavior { return c.record().BundleBehavior }
func (c *CommittedAsset) Stats() ir.Stats                   { return c.record().Stats }
func (c *CommittedAsset) OutputHash() string                { return c.record().OutputHash }
func (c *CommittedAsset) Flags() ir.Flags                   { return c.record().Flags }

func (c *CommittedAsset) IsSplittable() bool { return c.Flags().Has(ir.FlagSplittable) }
func (c *CommittedAsset) IsSource() bool     { return c.Flags().Has(ir.FlagIsSource) }
func (c *CommittedAsset) SideEffects() bool  { return c.Flags().Has(ir.FlagSideEffects) }

func (c *CommittedAsset) Env() ir.Environment {
	env := c.record().Env
	env.Engines = maps.Clone(env.Engines)
	return env
}

func (c *CommittedAsset) Symbols() map[string]ir.Symbol {
	return maps.Clone(c.record().Symbols)
}

func (c *CommittedAsset) Invalidations() []ir.Invalidation {
	return slices.Clone(c.record().Invalidations)
}

// Meta returns a copy of the metadata. The serialized form is parsed on
// first access and cached.
func (c *CommittedAsset) Meta() (ir.Meta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.meta == nil {
		m, err := ir.ParseMeta(c.rec.Meta)
		if err != nil {
			return nil, fmt.Errorf("asset %s meta: %w", c.rec.ID, err)
		}
		c.meta = m
	}
	return c.meta.Clone(), nil
}

// Code returns the content as a string.
func (c *CommittedAsset) Code(ctx context.Context) (string, error) {
	b, err := c.Buffer(ctx)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Buffer fetches the content from the cache.
func (c *CommittedAsset) Buffer(ctx context.Context) ([]byte, error) {
	rec := c.record()
	store := c.reg.store

	switch {
	case rec.Flags.Has(ir.FlagLargeContent):
		return store.GetLargeBlob(ctx, rec.ContentKey)
	case rec.Flags.Has(ir.FlagStreamContent):
		rc, err := store.GetStream(ctx, rec.ContentKey)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	default:
		return store.GetBlob(ctx, rec.ContentKey)
	}
}

// Stream opens the content for reading.
func (c *CommittedAsset) Stream(ctx context.Context) (io.ReadCloser, error) {
	rec := c.record()
	if rec.Flags.Has(ir.FlagStreamContent) {
		return c.reg.store.GetStream(ctx, rec.ContentKey)
	}
	b, err := c.Buffer(ctx)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Map fetches the source map. Returns nil if the asset has none.
func (c *CommittedAsset) Map(ctx context.Context) (*sourcemap.Map, error) {
	rec := c.record()
	if !rec.Flags.Has(ir.FlagHasMap) {
		return nil, nil
	}
	data, err := c.reg.store.GetBlob(ctx, rec.MapKey)
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", rec.ID, err)
	}
	return sourcemap.Parse(data)
}

// AST fetches the syntax tree. Returns nil if the asset has none.
func (c *CommittedAsset) AST(ctx context.Context) (*ir.AST, error) {
	rec := c.record()
	if !rec.Flags.Has(ir.FlagHasAST) {
		return nil, nil
	}
	var ast ir.AST
	found, err := c.reg.store.Get(ctx, rec.ASTKey, &ast)
	if err != nil {
		return nil, fmt.Errorf("asset %s: load ast: %w", rec.ID, err)
	}
	if !found {
		return nil, ir.NewNotFoundError("committed asset ast", rec.ASTKey)
	}
	return &ast, nil
}

// Dependencies returns the asset's dependencies as canonical wrappers.
// The slice is new on every call; the wrappers are shared.
func (c *CommittedAsset) Dependencies() ([]*Dependency, error) {
	addrs := c.record().Dependencies
	out := make([]*Dependency, len(addrs))
	for i, addr := range addrs {
		d, err := c.reg.committedDependency(addr)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
