package asset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/bundlecore/internal/ir"
	"github.com/roach88/bundlecore/internal/sourcemap"
)

// AssetOptions describes a new uncommitted asset.
type AssetOptions struct {
	FilePath           string
	Query              string
	Type               string
	Pipeline           string
	UniqueKey          string
	Env                ir.Environment
	BundleBehavior     ir.BundleBehavior
	IsBundleSplittable bool
	SideEffects        bool
	IsSource           bool
	Meta               ir.Meta
	Stats              ir.Stats
}

type contentKind uint8

const (
	contentNone contentKind = iota
	contentBytes
	contentStream

	// contentConsumed is a stream that was handed out by Stream and can
	// not be read again.
	contentConsumed
)

// assetState is the storage shared by every wrapper over one value record.
type assetState struct {
	reg   *Registry
	value *ir.AssetValue

	mu sync.Mutex

	kind   contentKind
	buf    []byte
	stream io.Reader

	ast      *ir.AST
	astDirty bool

	sourceMap *sourcemap.Map
	mapSet    bool

	query url.Values
}

// assetReader carries the read surface shared by all uncommitted views.
type assetReader struct{ s *assetState }

// assetWriter carries the mutating surface of MutableAsset and
// UncommittedAsset.
type assetWriter struct{ s *assetState }

// UncommittedAsset is an asset under transformation. It exposes the full
// read and write surface; Registry.Commit finalizes it.
type UncommittedAsset struct {
	assetReader
	assetWriter
	s *assetState
}

// Asset is the read-only view of an uncommitted asset.
type Asset struct {
	assetReader
}

// MutableAsset is the mutable view of an uncommitted asset. Writes are
// visible through every other view of the same asset immediately.
type MutableAsset struct {
	assetReader
	assetWriter
}

// IsCommitted reports whether Commit has finalized u.
func (u *UncommittedAsset) IsCommitted() bool {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	return u.s.value.Committed
}

// Address returns the address assigned by Commit.
func (u *UncommittedAsset) Address() (ir.Address, bool) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	return u.s.value.Address, u.s.value.Committed
}

// --- read surface ---

func (a assetReader) ID() string {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.value.ID
}

func (a assetReader) FilePath() string {
	return a.s.value.FilePath
}

func (a assetReader) Type() string {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.value.Type
}

func (a assetReader) Pipeline() string {
	return a.s.value.Pipeline
}

func (a assetReader) UniqueKey() string {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.value.UniqueKey
}

func (a assetReader) Env() ir.Environment {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	env := a.s.value.Env
	env.Engines = maps.Clone(env.Engines)
	return env
}

func (a assetReader) BundleBehavior() ir.BundleBehavior {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.value.BundleBehavior
}

func (a assetReader) IsBundleSplittable() bool {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.value.IsBundleSplittable
}

func (a assetReader) SideEffects() bool {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.value.SideEffects
}

func (a assetReader) IsSource() bool {
	return a.s.value.IsSource
}

// QueryString returns the raw query the asset was requested with.
func (a assetReader) QueryString() string {
	return a.s.value.Query
}

// Query returns the parsed query. It is parsed on first use and cached;
// the result is derived data and changing it does not change the asset.
func (a assetReader) Query() url.Values {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if a.s.query == nil {
		// A malformed pair is skipped; ParseQuery keeps the rest.
		q, _ := url.ParseQuery(strings.TrimPrefix(a.s.value.Query, "?"))
		a.s.query = q
	}
	return a.s.query
}

// Meta returns a copy of the asset's metadata.
func (a assetReader) Meta() ir.Meta {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.value.Meta.Clone()
}

// Symbols returns a copy of the exported symbol table.
func (a assetReader) Symbols() map[string]ir.Symbol {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return maps.Clone(a.s.value.Symbols)
}

func (a assetReader) Stats() ir.Stats {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.value.Stats
}

func (a assetReader) Invalidations() []ir.Invalidation {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return slices.Clone(a.s.value.Invalidations)
}

func (a assetReader) NativeDependencies() []uint32 {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return slices.Clone(a.s.value.NativeDependencies)
}

func (a assetReader) NativeSymbols() []uint32 {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return slices.Clone(a.s.value.NativeSymbols)
}

// IsASTDirty reports whether the AST holds changes not yet reflected in
// the content.
func (a assetReader) IsASTDirty() bool {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.astDirty
}

// Code returns the content as a string. See Buffer.
func (a assetReader) Code(ctx context.Context) (string, error) {
	b, err := a.Buffer(ctx)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Buffer returns the content. A pending stream is drained and kept as
// bytes. Content that only exists in the cache (an asset committed in an
// earlier build, or one already committed) is fetched. The returned
// slice must not be modified.
func (a assetReader) Buffer(ctx context.Context) ([]byte, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if err := a.s.loadContentLocked(ctx); err != nil {
		return nil, err
	}
	return a.s.buf, nil
}

// Stream returns the content as a reader. A pending stream is handed out
// as is and can be read only once; afterwards the content is gone and
// Commit fails.
func (a assetReader) Stream(ctx context.Context) (io.ReadCloser, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	switch a.s.kind {
	case contentStream:
		r := a.s.stream
		a.s.stream, a.s.kind = nil, contentConsumed
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil
	case contentBytes:
		return io.NopCloser(bytes.NewReader(a.s.buf)), nil
	case contentConsumed:
		return nil, errConsumed("stream")
	}
	if a.s.value.ContentKey != "" {
		return openContent(ctx, a.s.reg, a.s.value.ContentKey)
	}
	return io.NopCloser(bytes.NewReader(nil)), nil
}

// AST returns the syntax tree, fetching it from the cache if it was
// stored by an earlier commit. Returns nil if the asset has none.
func (a assetReader) AST(ctx context.Context) (*ir.AST, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	if a.s.ast != nil || a.s.value.ASTKey == "" {
		return a.s.ast, nil
	}
	var ast ir.AST
	found, err := a.s.reg.store.Get(ctx, a.s.value.ASTKey, &ast)
	if err != nil {
		return nil, fmt.Errorf("asset %s: load ast: %w", a.s.value.ID, err)
	}
	if !found {
		return nil, nil
	}
	a.s.ast = &ast
	return a.s.ast, nil
}

// Map returns the source map, fetching it from the cache if needed.
// Returns nil if the asset has none.
func (a assetReader) Map(ctx context.Context) (*sourcemap.Map, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	if a.s.mapSet || a.s.value.MapKey == "" {
		return a.s.sourceMap, nil
	}
	m, err := loadMap(ctx, a.s.reg, a.s.value.MapKey)
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", a.s.value.ID, err)
	}
	a.s.sourceMap, a.s.mapSet = m, true
	return m, nil
}

// Dependencies returns the asset's dependencies as canonical wrappers.
// The slice is new on every call; the wrappers are shared.
func (a assetReader) Dependencies() []*Dependency {
	a.s.mu.Lock()
	values := slices.Clone(a.s.value.Dependencies)
	a.s.mu.Unlock()

	out := make([]*Dependency, len(values))
	for i, v := range values {
		out[i] = a.s.reg.Dependency(v)
	}
	return out
}

// --- write surface ---

// SetCode replaces the content with code and drops the AST.
func (w assetWriter) SetCode(code string) error {
	return w.SetBuffer([]byte(code))
}

// SetBuffer replaces the content with b and drops the AST.
func (w assetWriter) SetBuffer(b []byte) error {
	return w.s.mutate("set buffer", func(s *assetState) error {
		s.kind, s.buf, s.stream = contentBytes, b, nil
		s.clearASTLocked()
		return nil
	})
}

// SetStream replaces the content with r, which is read at most once
// and drops the AST.
func (w assetWriter) SetStream(r io.Reader) error {
	return w.s.mutate("set stream", func(s *assetState) error {
		s.kind, s.buf, s.stream = contentStream, nil, r
		s.clearASTLocked()
		return nil
	})
}

// SetAST replaces the syntax tree and marks it dirty.
func (w assetWriter) SetAST(ast *ir.AST) error {
	return w.s.mutate("set ast", func(s *assetState) error {
		s.ast = ast
		s.astDirty = true
		s.value.ASTKey = ""
		return nil
	})
}

// SetMap replaces the source map. A nil map removes it.
func (w assetWriter) SetMap(m *sourcemap.Map) error {
	return w.s.mutate("set map", func(s *assetState) error {
		s.sourceMap, s.mapSet = m, true
		s.value.MapKey = ""
		return nil
	})
}

// MarkDirty records that the AST holds changes not yet reflected in the
// content.
func (w assetWriter) MarkDirty() error {
	return w.s.mutate("mark dirty", func(s *assetState) error {
		s.astDirty = true
		return nil
	})
}

// SetType changes the asset type and regenerates its ID.
func (w assetWriter) SetType(t string) error {
	return w.s.mutate("set type", func(s *assetState) error {
		prev := s.value.Type
		s.value.Type = t
		if err := s.regenerateIDLocked(); err != nil {
			s.value.Type = prev
			return err
		}
		return nil
	})
}

// SetEnvironment changes the target environment and regenerates the ID.
func (w assetWriter) SetEnvironment(env ir.Environment) error {
	return w.s.mutate("set environment", func(s *assetState) error {
		prev := s.value.Env
		s.value.Env = env
		if err := s.regenerateIDLocked(); err != nil {
			s.value.Env = prev
			return err
		}
		return nil
	})
}

// SetUniqueKey sets the unique key, which distinguishes assets that would
// otherwise share an ID. It can be set once.
func (w assetWriter) SetUniqueKey(key string) error {
	return w.s.mutate("set unique key", func(s *assetState) error {
		if s.value.UniqueKey != "" {
			return ir.NewInvalidStateError("set unique key",
				"cannot change an asset's unique key after it has been set")
		}
		s.value.UniqueKey = key
		if err := s.regenerateIDLocked(); err != nil {
			s.value.UniqueKey = ""
			return err
		}
		return nil
	})
}

func (w assetWriter) SetBundleBehavior(b ir.BundleBehavior) error {
	return w.s.mutate("set bundle behavior", func(s *assetState) error {
		s.value.BundleBehavior = b
		return nil
	})
}

func (w assetWriter) SetIsBundleSplittable(v bool) error {
	return w.s.mutate("set bundle splittable", func(s *assetState) error {
		s.value.IsBundleSplittable = v
		return nil
	})
}

func (w assetWriter) SetSideEffects(v bool) error {
	return w.s.mutate("set side effects", func(s *assetState) error {
		s.value.SideEffects = v
		return nil
	})
}

// SetMeta sets one metadata key.
func (w assetWriter) SetMeta(key string, v ir.MetaValue) error {
	return w.s.mutate("set meta", func(s *assetState) error {
		if s.value.Meta == nil {
			s.value.Meta = ir.Meta{}
		}
		s.value.Meta[key] = v
		return nil
	})
}

// MergeMeta copies every key of m into the asset's metadata.
func (w assetWriter) MergeMeta(m ir.Meta) error {
	return w.s.mutate("merge meta", func(s *assetState) error {
		if s.value.Meta == nil {
			s.value.Meta = ir.Meta{}
		}
		s.value.Meta.Merge(m)
		return nil
	})
}

// SetSymbol records that exported is provided by sym.
func (w assetWriter) SetSymbol(exported string, sym ir.Symbol) error {
	return w.s.mutate("set symbol", func(s *assetState) error {
		if s.value.Symbols == nil {
			s.value.Symbols = make(map[string]ir.Symbol)
		}
		s.value.Symbols[exported] = sym
		return nil
	})
}

// AddDependency adds a dependency and returns its derived ID. A
// dependency with the same ID replaces the earlier one.
func (w assetWriter) AddDependency(opts DependencyOptions) (string, error) {
	var id string
	err := w.s.mutate("add dependency", func(s *assetState) error {
		d, err := newDependencyValue(s.value, opts)
		if err != nil {
			return err
		}
		id = d.ID
		for i, existing := range s.value.Dependencies {
			if existing.ID == d.ID {
				s.value.Dependencies[i] = d
				return nil
			}
		}
		s.value.Dependencies = append(s.value.Dependencies, d)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetNativeDependencies replaces the opaque native dependency handles.
func (w assetWriter) SetNativeDependencies(handles []uint32) error {
	return w.s.mutate("set native dependencies", func(s *assetState) error {
		s.value.NativeDependencies = slices.Clone(handles)
		return nil
	})
}

// MergeNativeDependencies adds handles not already present, keeping order.
func (w assetWriter) MergeNativeDependencies(handles []uint32) error {
	return w.s.mutate("merge native dependencies", func(s *assetState) error {
		s.value.NativeDependencies = mergeHandles(s.value.NativeDependencies, handles)
		return nil
	})
}

// SetNativeSymbols replaces the opaque native symbol handles.
func (w assetWriter) SetNativeSymbols(handles []uint32) error {
	return w.s.mutate("set native symbols", func(s *assetState) error {
		s.value.NativeSymbols = slices.Clone(handles)
		return nil
	})
}

// MergeNativeSymbols adds handles not already present, keeping order.
func (w assetWriter) MergeNativeSymbols(handles []uint32) error {
	return w.s.mutate("merge native symbols", func(s *assetState) error {
		s.value.NativeSymbols = mergeHandles(s.value.NativeSymbols, handles)
		return nil
	})
}

// InvalidateOnFileChange makes the asset stale when path changes.
func (w assetWriter) InvalidateOnFileChange(path string) error {
	return w.addInvalidation("invalidate on file change", ir.Invalidation{
		Type:     ir.InvalidateFileChange,
		FilePath: path,
	})
}

// FileCreateOptions describes which file creations invalidate an asset.
// Exactly one of FilePath, Glob or FileName (with AboveFilePath) is used.
type FileCreateOptions struct {
	FilePath      string
	Glob          string
	FileName      string
	AboveFilePath string
}

// InvalidateOnFileCreate makes the asset stale when a matching file is
// created.
func (w assetWriter) InvalidateOnFileCreate(opts FileCreateOptions) error {
	if opts.FilePath == "" && opts.Glob == "" && opts.FileName == "" {
		return fmt.Errorf("invalidate on file create: one of file path, glob or file name is required")
	}
	return w.addInvalidation("invalidate on file create", ir.Invalidation{
		Type:          ir.InvalidateFileCreate,
		FilePath:      opts.FilePath,
		Glob:          opts.Glob,
		FileName:      opts.FileName,
		AboveFilePath: opts.AboveFilePath,
	})
}

// InvalidateOnEnvChange makes the asset stale when the environment
// variable name changes.
func (w assetWriter) InvalidateOnEnvChange(name string) error {
	return w.addInvalidation("invalidate on env change", ir.Invalidation{
		Type:    ir.InvalidateEnvChange,
		EnvName: name,
	})
}

func (w assetWriter) addInvalidation(op string, inv ir.Invalidation) error {
	return w.s.mutate(op, func(s *assetState) error {
		if !slices.Contains(s.value.Invalidations, inv) {
			s.value.Invalidations = append(s.value.Invalidations, inv)
		}
		return nil
	})
}

// --- state helpers ---

// mutate runs fn under the state lock, refusing once committed.
func (s *assetState) mutate(op string, fn func(*assetState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value.Committed {
		return ir.NewInvalidStateError(op, fmt.Sprintf("asset %s is committed", s.value.ID))
	}
	return fn(s)
}

func (s *assetState) clearASTLocked() {
	s.ast = nil
	s.astDirty = false
	s.value.ASTKey = ""
}

func (s *assetState) regenerateIDLocked() error {
	params, err := s.value.IDParams()
	if err != nil {
		return err
	}
	id, err := ir.AssetID(params)
	if err != nil {
		return err
	}
	s.value.ID = id
	return nil
}

// loadContentLocked makes s.buf hold the content.
func (s *assetState) loadContentLocked(ctx context.Context) error {
	switch s.kind {
	case contentBytes:
		return nil
	case contentConsumed:
		return errConsumed("read")
	case contentStream:
		data, err := io.ReadAll(s.stream)
		if err != nil {
			return ir.NewUpstreamIOError("read content", s.value.ID, err)
		}
		s.kind, s.buf, s.stream = contentBytes, data, nil
		return nil
	}

	if s.value.ContentKey == "" {
		s.kind, s.buf = contentBytes, []byte{}
		return nil
	}
	data, err := fetchContent(ctx, s.reg, s.value.ContentKey)
	if err != nil {
		return fmt.Errorf("asset %s: %w", s.value.ID, err)
	}
	s.kind, s.buf = contentBytes, data
	return nil
}

// openContent opens content stored under key by an earlier commit,
// whatever shape it was stored in.
func openContent(ctx context.Context, reg *Registry, key string) (io.ReadCloser, error) {
	large, err := reg.store.HasLargeBlob(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	if large {
		data, err := reg.store.GetLargeBlob(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load content: %w", err)
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	rc, err := reg.store.GetStream(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	return rc, nil
}

func fetchContent(ctx context.Context, reg *Registry, key string) ([]byte, error) {
	rc, err := openContent(ctx, reg, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	return data, nil
}

func loadMap(ctx context.Context, reg *Registry, key string) (*sourcemap.Map, error) {
	data, found, err := reg.store.GetBuffer(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load map: %w", err)
	}
	if !found {
		return nil, nil
	}
	return sourcemap.Parse(data)
}

func errConsumed(op string) error {
	return ir.NewInvalidStateError(op, "stream content was already consumed")
}

func mergeHandles(dst, src []uint32) []uint32 {
	for _, h := range src {
		if !slices.Contains(dst, h) {
			dst = append(dst, h)
		}
	}
	return dst
}
