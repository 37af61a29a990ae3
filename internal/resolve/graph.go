package resolve

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/roach88/bundlecore/internal/ir"
)

// Bundle is the view of an output bundle the resolver needs.
type Bundle struct {
	ID   string
	Name string

	// DistDir is the output directory, slash separated.
	DistDir string

	// PublicURL is the base URL the target is served from.
	PublicURL string

	BundleBehavior ir.BundleBehavior

	// InlineType is the inline type of the bundle's main entry: "" or
	// "string" for text, anything else for a binary payload.
	InlineType string
}

// FilePath returns the bundle's output path.
func (b *Bundle) FilePath() string {
	return path.Join(b.DistDir, b.Name)
}

// IsInline reports whether the bundle is embedded into its parents.
func (b *Bundle) IsInline() bool {
	return b.BundleBehavior == ir.BundleBehaviorInline
}

// BundleGraph answers the graph queries the resolver depends on.
type BundleGraph interface {
	// ReferencedBundle returns the bundle dep resolves to from within
	// from. false means the dependency is external or unbundled.
	ReferencedBundle(dep *ir.DependencyValue, from *Bundle) (*Bundle, bool)

	// TraverseDependencies calls visit for every dependency in b.
	TraverseDependencies(b *Bundle, visit func(dep *ir.DependencyValue))
}

// Contents is packaged bundle output: either bytes or a single-pass
// stream.
type Contents struct {
	data   []byte
	reader io.Reader
}

// BytesContents wraps an in-memory payload.
func BytesContents(b []byte) Contents { return Contents{data: b} }

// StringContents wraps a string payload.
func StringContents(s string) Contents { return Contents{data: []byte(s)} }

// StreamContents wraps a stream. It is drained at most once.
func StreamContents(r io.Reader) Contents { return Contents{reader: r} }

// IsStream reports whether c is stream-shaped.
func (c Contents) IsStream() bool { return c.reader != nil }

// Bytes returns the payload, draining the stream if c is stream-shaped.
// A failed read is an UPSTREAM_IO error.
func (c Contents) Bytes() ([]byte, error) {
	if c.reader == nil {
		return c.data, nil
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(c.reader); err != nil {
		return nil, ir.NewUpstreamIOError("drain contents", "", err)
	}
	return buf.Bytes(), nil
}

// InlineContentsFunc packages bundle and returns its contents.
type InlineContentsFunc func(ctx context.Context, bundle *Bundle, graph BundleGraph) (Contents, error)
