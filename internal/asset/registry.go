package asset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"weak"

	"github.com/roach88/bundlecore/internal/cache"
	"github.com/roach88/bundlecore/internal/ir"
)

// Registry owns the asset identity maps and the persisted asset graph.
//
// Thread-safety: all methods are safe for concurrent use. One mutex guards
// the identity maps and the graph; each uncommitted asset guards its own
// value record.
type Registry struct {
	store  cache.Cache
	cfg    config
	logger *slog.Logger

	mu sync.Mutex

	states       identityMap[weak.Pointer[ir.AssetValue], assetState]
	uncommitted  identityMap[weak.Pointer[ir.AssetValue], UncommittedAsset]
	views        identityMap[weak.Pointer[ir.AssetValue], Asset]
	mutables     identityMap[weak.Pointer[ir.AssetValue], MutableAsset]
	committed    identityMap[ir.Address, CommittedAsset]
	dependencies identityMap[weak.Pointer[ir.DependencyValue], Dependency]
	committedDep identityMap[ir.Address, Dependency]

	// Persisted graph, indexed by address.
	assets    []*ir.CommittedAssetRecord
	deps      []*ir.CommittedDependencyRecord
	assetByID map[string]ir.Address
	depByID   map[string]ir.Address
}

// NewRegistry creates a registry that stores content in store.
// Call Load to pick up a graph persisted by an earlier build.
func NewRegistry(store cache.Cache, opts ...Option) *Registry {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		store:        store,
		cfg:          cfg,
		logger:       cfg.logger,
		states:       newIdentityMap[weak.Pointer[ir.AssetValue], assetState](),
		uncommitted:  newIdentityMap[weak.Pointer[ir.AssetValue], UncommittedAsset](),
		views:        newIdentityMap[weak.Pointer[ir.AssetValue], Asset](),
		mutables:     newIdentityMap[weak.Pointer[ir.AssetValue], MutableAsset](),
		committed:    newIdentityMap[ir.Address, CommittedAsset](),
		dependencies: newIdentityMap[weak.Pointer[ir.DependencyValue], Dependency](),
		committedDep: newIdentityMap[ir.Address, Dependency](),
		assetByID:    make(map[string]ir.Address),
		depByID:      make(map[string]ir.Address),
	}
}

// Store returns the cache the registry writes through.
func (r *Registry) Store() cache.Cache {
	return r.store
}

// Load replaces the in-memory graph with the one persisted under GraphKey.
// A missing graph, or one written by an incompatible version, leaves the
// registry empty.
func (r *Registry) Load(ctx context.Context) error {
	var snap ir.GraphSnapshot
	found, err := r.store.Get(ctx, GraphKey, &snap)
	if err != nil {
		return fmt.Errorf("load asset graph: %w", err)
	}
	if !found {
		return nil
	}
	if snap.Version != ir.GraphVersion {
		r.logger.Info("discarding asset graph from another version",
			"version", snap.Version, "want", ir.GraphVersion)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.assets = make([]*ir.CommittedAssetRecord, len(snap.Assets))
	r.assetByID = make(map[string]ir.Address, len(snap.Assets))
	for i := range snap.Assets {
		rec := snap.Assets[i]
		r.assets[i] = &rec
		r.assetByID[rec.ID] = rec.Address
	}
	r.deps = make([]*ir.CommittedDependencyRecord, len(snap.Dependencies))
	r.depByID = make(map[string]ir.Address, len(snap.Dependencies))
	for i := range snap.Dependencies {
		rec := snap.Dependencies[i]
		r.deps[i] = &rec
		r.depByID[rec.ID] = rec.Address
	}
	r.refreshLiveLocked()

	r.logger.Debug("asset graph loaded", "assets", len(r.assets), "dependencies", len(r.deps))
	return nil
}

// refreshLiveLocked points the committed wrappers still held by callers at
// the records now in the graph. Wrappers whose address no longer exists
// are unregistered. r.mu must be held.
func (r *Registry) refreshLiveLocked() {
	for addr := range r.committed.entries {
		c := r.committed.lookup(addr)
		switch {
		case c == nil:
		case int(addr) < len(r.assets) && r.assets[addr] != nil:
			c.replace(r.assets[addr])
		default:
			delete(r.committed.entries, addr)
		}
	}
	for addr := range r.committedDep.entries {
		d := r.committedDep.lookup(addr)
		if d == nil {
			continue
		}
		if int(addr) >= len(r.deps) {
			delete(r.committedDep.entries, addr)
			continue
		}
		v, err := r.deps[addr].Value()
		if err != nil {
			r.logger.Warn("dropping unreadable dependency wrapper", "address", addr, "error", err)
			delete(r.committedDep.entries, addr)
			continue
		}
		d.replace(v)
	}
}

// Flush persists the graph under GraphKey.
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.Lock()
	snap := ir.GraphSnapshot{
		Version:      ir.GraphVersion,
		Assets:       make([]ir.CommittedAssetRecord, len(r.assets)),
		Dependencies: make([]ir.CommittedDependencyRecord, len(r.deps)),
	}
	for i, rec := range r.assets {
		snap.Assets[i] = *rec
	}
	for i, rec := range r.deps {
		snap.Dependencies[i] = *rec
	}
	r.mu.Unlock()

	if err := r.store.Set(ctx, GraphKey, snap); err != nil {
		return fmt.Errorf("flush asset graph: %w", err)
	}
	r.logger.Debug("asset graph flushed", "assets", len(snap.Assets), "dependencies", len(snap.Dependencies))
	return nil
}

// Len returns the number of committed assets in the graph.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assets)
}

// NewAsset builds a value record from opts, derives its ID and tracks it.
func (r *Registry) NewAsset(opts AssetOptions) (*UncommittedAsset, error) {
	v := &ir.AssetValue{
		FilePath:           opts.FilePath,
		Query:              opts.Query,
		Type:               opts.Type,
		Pipeline:           opts.Pipeline,
		UniqueKey:          opts.UniqueKey,
		Env:                opts.Env,
		BundleBehavior:     opts.BundleBehavior,
		IsBundleSplittable: opts.IsBundleSplittable,
		SideEffects:        opts.SideEffects,
		IsSource:           opts.IsSource,
		Meta:               opts.Meta.Clone(),
		Stats:              opts.Stats,
	}
	params, err := v.IDParams()
	if err != nil {
		return nil, fmt.Errorf("new asset %s: %w", opts.FilePath, err)
	}
	if v.ID, err = ir.AssetID(params); err != nil {
		return nil, fmt.Errorf("new asset %s: %w", opts.FilePath, err)
	}
	return r.Track(v), nil
}

// Track returns the canonical uncommitted wrapper for value, registering
// one if none is live. value.ID must already be derived.
func (r *Registry) Track(value *ir.AssetValue) *UncommittedAsset {
	key := weak.Make(value)
	s := r.state(key, value)
	return wrap(&r.mu, &r.uncommitted, key, func() *UncommittedAsset {
		return &UncommittedAsset{assetReader: assetReader{s}, assetWriter: assetWriter{s}, s: s}
	})
}

// Asset returns the canonical read-only view of u.
func (r *Registry) Asset(u *UncommittedAsset) *Asset {
	return wrap(&r.mu, &r.views, weak.Make(u.s.value), func() *Asset {
		return &Asset{assetReader{u.s}}
	})
}

// MutableAsset returns the canonical mutable view of u.
func (r *Registry) MutableAsset(u *UncommittedAsset) *MutableAsset {
	return wrap(&r.mu, &r.mutables, weak.Make(u.s.value), func() *MutableAsset {
		return &MutableAsset{assetReader{u.s}, assetWriter{u.s}}
	})
}

// state returns the shared storage for a value record. Every wrapper over
// one record shares one state, even if earlier wrappers were collected.
func (r *Registry) state(key weak.Pointer[ir.AssetValue], value *ir.AssetValue) *assetState {
	return wrap(&r.mu, &r.states, key, func() *assetState {
		return &assetState{reg: r, value: value}
	})
}

// Committed returns the canonical wrapper for the committed asset at addr.
func (r *Registry) Committed(addr ir.Address) (*CommittedAsset, error) {
	var missing bool
	c := wrap(&r.mu, &r.committed, addr, func() *CommittedAsset {
		if int(addr) >= len(r.assets) || r.assets[addr] == nil {
			missing = true
			return nil
		}
		return &CommittedAsset{reg: r, rec: r.assets[addr]}
	})
	if missing {
		return nil, ir.NewNotFoundError("committed asset", addr.String())
	}
	return c, nil
}

// CommittedByID returns the committed asset with the given ID.
func (r *Registry) CommittedByID(id string) (*CommittedAsset, bool) {
	r.mu.Lock()
	addr, ok := r.assetByID[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	c, err := r.Committed(addr)
	return c, err == nil
}

// Dependency returns the canonical wrapper for an uncommitted dependency
// record.
func (r *Registry) Dependency(value *ir.DependencyValue) *Dependency {
	return wrap(&r.mu, &r.dependencies, weak.Make(value), func() *Dependency {
		return &Dependency{value: value}
	})
}

// committedDependency returns the canonical wrapper for the committed
// dependency at addr.
func (r *Registry) committedDependency(addr ir.Address) (*Dependency, error) {
	var buildErr error
	d := wrap(&r.mu, &r.committedDep, addr, func() *Dependency {
		if int(addr) >= len(r.deps) {
			buildErr = ir.NewNotFoundError("committed dependency", addr.String())
			return nil
		}
		v, err := r.deps[addr].Value()
		if err != nil {
			buildErr = err
			return nil
		}
		return &Dependency{value: v, addr: addr, committed: true}
	})
	if buildErr != nil {
		return nil, buildErr
	}
	return d, nil
}
