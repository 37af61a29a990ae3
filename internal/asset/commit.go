package asset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/roach88/bundlecore/internal/ir"
)

// Commit flushes u's content to the cache, flattens its value record into
// the persisted graph and finalizes u. Every later mutation of u fails
// with INVALID_STATE.
//
// An asset whose ID is already in the graph keeps its address. Content
// larger than the large-content threshold is stored as a chunked blob; a
// pending stream is drained straight into the cache.
func (r *Registry) Commit(ctx context.Context, u *UncommittedAsset) (ir.Address, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.value
	if v.Committed {
		return 0, ir.NewInvalidStateError("commit", fmt.Sprintf("asset %s is already committed", v.ID))
	}

	contentKey := ir.ContentKey(v.ID, "content")
	flags, size, err := r.flushContentLocked(ctx, s, contentKey)
	if err != nil {
		return 0, fmt.Errorf("commit %s: %w", v.ID, err)
	}
	flags = flags.
		With(ir.FlagSplittable, v.IsBundleSplittable).
		With(ir.FlagIsSource, v.IsSource).
		With(ir.FlagSideEffects, v.SideEffects)

	mapKey, astKey := v.MapKey, v.ASTKey
	if s.mapSet {
		mapKey = ""
		if s.sourceMap != nil {
			mapKey = ir.ContentKey(v.ID, "map")
			data, err := json.Marshal(s.sourceMap)
			if err != nil {
				return 0, fmt.Errorf("commit %s: encode map: %w", v.ID, err)
			}
			if err := r.store.SetBlob(ctx, mapKey, data); err != nil {
				return 0, fmt.Errorf("commit %s: %w", v.ID, err)
			}
		}
	}
	if s.ast != nil && v.ASTKey == "" {
		astKey = ir.ContentKey(v.ID, "ast")
		if err := r.store.Set(ctx, astKey, s.ast); err != nil {
			return 0, fmt.Errorf("commit %s: %w", v.ID, err)
		}
	}
	flags = flags.With(ir.FlagHasMap, mapKey != "").With(ir.FlagHasAST, astKey != "")

	var meta []byte
	if len(v.Meta) > 0 {
		if meta, err = ir.MarshalCanonical(v.Meta); err != nil {
			return 0, fmt.Errorf("commit %s: meta: %w", v.ID, err)
		}
	}

	rec := &ir.CommittedAssetRecord{
		ID:             v.ID,
		FilePath:       v.FilePath,
		Query:          v.Query,
		Type:           v.Type,
		Pipeline:       v.Pipeline,
		UniqueKey:      v.UniqueKey,
		Env:            v.Env,
		BundleBehavior: v.BundleBehavior,
		Flags:          flags,
		Meta:           meta,
		Symbols:        maps.Clone(v.Symbols),
		Stats:          ir.Stats{Size: size, Time: v.Stats.Time},
		ContentKey:     contentKey,
		MapKey:         mapKey,
		ASTKey:         astKey,
		OutputHash:     v.OutputHash,
		Invalidations:  slices.Clone(v.Invalidations),
	}
	rec.Env.Engines = maps.Clone(v.Env.Engines)

	addr, err := r.insert(rec, v.Dependencies)
	if err != nil {
		return 0, fmt.Errorf("commit %s: %w", v.ID, err)
	}

	// From here on content is served from the cache.
	v.ContentKey, v.MapKey, v.ASTKey = contentKey, mapKey, astKey
	v.Stats.Size = size
	s.kind, s.buf, s.stream = contentNone, nil, nil
	v.Committed, v.Address = true, addr

	r.logger.Debug("asset committed", "id", v.ID, "address", addr, "size", size, "flags", uint32(flags))
	return addr, nil
}

// flushContentLocked writes the content of s under key and returns the
// storage-shape flags and the content size. Whatever another shape left
// under key from an earlier commit is removed first, since readers pick
// the chunked form whenever it exists.
func (r *Registry) flushContentLocked(ctx context.Context, s *assetState, key string) (ir.Flags, int64, error) {
	if s.kind == contentStream {
		if err := r.store.DeleteLargeBlob(ctx, key); err != nil {
			return 0, 0, err
		}
		cr := &countingReader{r: s.stream}
		if err := r.store.SetStream(ctx, key, cr); err != nil {
			return 0, 0, err
		}
		return ir.FlagStreamContent, cr.n, nil
	}

	// Content that was never loaded, or was set as bytes.
	if err := s.loadContentLocked(ctx); err != nil {
		return 0, 0, err
	}
	size := int64(len(s.buf))
	if len(s.buf) > r.cfg.largeThreshold {
		if err := r.store.Delete(ctx, key); err != nil {
			return 0, 0, err
		}
		if err := r.store.SetLargeBlob(ctx, key, s.buf); err != nil {
			return 0, 0, err
		}
		return ir.FlagLargeContent, size, nil
	}
	if err := r.store.DeleteLargeBlob(ctx, key); err != nil {
		return 0, 0, err
	}
	if err := r.store.SetBlob(ctx, key, s.buf); err != nil {
		return 0, 0, err
	}
	return 0, size, nil
}

// insert adds rec and its dependencies to the graph, reusing the
// addresses of records with the same IDs.
func (r *Registry) insert(rec *ir.CommittedAssetRecord, deps []*ir.DependencyValue) (ir.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.Dependencies = make([]ir.Address, 0, len(deps))
	for _, d := range deps {
		addr, reused := r.depByID[d.ID]
		if !reused {
			addr = ir.Address(len(r.deps))
		}
		flat, err := ir.FlattenDependency(addr, d)
		if err != nil {
			return 0, err
		}
		if reused {
			if live := r.committedDep.lookup(addr); live != nil {
				v, err := flat.Value()
				if err != nil {
					return 0, err
				}
				live.replace(v)
			}
			r.deps[addr] = &flat
		} else {
			r.deps = append(r.deps, &flat)
			r.depByID[d.ID] = addr
		}
		rec.Dependencies = append(rec.Dependencies, addr)
	}

	addr, reused := r.assetByID[rec.ID]
	if !reused {
		addr = ir.Address(len(r.assets))
		r.assets = append(r.assets, rec)
		r.assetByID[rec.ID] = addr
	}
	rec.Address = addr
	if reused {
		r.assets[addr] = rec
		if c := r.committed.lookup(addr); c != nil {
			c.replace(rec)
		}
	}
	return addr, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
