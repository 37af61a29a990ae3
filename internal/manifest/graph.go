package manifest

import (
	"fmt"

	"github.com/roach88/bundlecore/internal/ir"
	"github.com/roach88/bundlecore/internal/resolve"
	"github.com/roach88/bundlecore/internal/sourcemap"
)

// Graph is the bundle graph a manifest describes. It implements
// resolve.BundleGraph.
type Graph struct {
	order    []*resolve.Bundle
	byID     map[string]*resolve.Bundle
	deps     map[*resolve.Bundle][]*ir.DependencyValue
	targets  map[*ir.DependencyValue]*resolve.Bundle
	contents map[*resolve.Bundle]string
	maps     map[*resolve.Bundle]*sourcemap.Map
}

var _ resolve.BundleGraph = (*Graph)(nil)

// Graph builds the bundle graph. The manifest must be valid.
func (m *Manifest) Graph() (*Graph, error) {
	g := &Graph{
		byID:     make(map[string]*resolve.Bundle, len(m.Bundles)),
		deps:     make(map[*resolve.Bundle][]*ir.DependencyValue, len(m.Bundles)),
		targets:  make(map[*ir.DependencyValue]*resolve.Bundle),
		contents: make(map[*resolve.Bundle]string, len(m.Bundles)),
		maps:     make(map[*resolve.Bundle]*sourcemap.Map),
	}

	for _, spec := range m.Bundles {
		b := &resolve.Bundle{
			ID:             spec.ID,
			Name:           spec.Name,
			DistDir:        spec.DistDir,
			PublicURL:      spec.PublicURL,
			BundleBehavior: spec.Behavior,
			InlineType:     spec.InlineType,
		}
		g.order = append(g.order, b)
		g.byID[spec.ID] = b
		g.contents[b] = spec.Contents
		if spec.Map != "" {
			sm, err := sourcemap.Parse([]byte(spec.Map))
			if err != nil {
				return nil, fmt.Errorf("bundle %s: %w", spec.ID, err)
			}
			g.maps[b] = sm
		}
	}

	for _, spec := range m.Bundles {
		b := g.byID[spec.ID]
		for _, d := range spec.Dependencies {
			dep := dependencyValue(d)
			g.deps[b] = append(g.deps[b], dep)
			if d.Target == "" {
				continue
			}
			target, ok := g.byID[d.Target]
			if !ok {
				return nil, fmt.Errorf("bundle %s: dependency %s: target %q is not a bundle", spec.ID, d.ID, d.Target)
			}
			g.targets[dep] = target
		}
	}
	return g, nil
}

func dependencyValue(d DependencySpec) *ir.DependencyValue {
	v := &ir.DependencyValue{
		ID:            d.ID,
		Specifier:     d.Specifier,
		SpecifierType: d.SpecifierType,
		Priority:      ir.PrioritySync,
	}
	if v.SpecifierType == ir.SpecifierURL {
		v.Priority = ir.PriorityLazy
	}
	if d.Placeholder != "" {
		v.Meta = ir.Meta{ir.MetaKeyPlaceholder: ir.MetaString(d.Placeholder)}
	}
	return v
}

// Bundle returns the bundle with the given ID.
func (g *Graph) Bundle(id string) (*resolve.Bundle, bool) {
	b, ok := g.byID[id]
	return b, ok
}

// Bundles returns the bundles in declaration order.
func (g *Graph) Bundles() []*resolve.Bundle {
	return g.order
}

// Contents returns the packaged text of b.
func (g *Graph) Contents(b *resolve.Bundle) string {
	return g.contents[b]
}

// Map returns the source map of b, or nil.
func (g *Graph) Map(b *resolve.Bundle) *sourcemap.Map {
	return g.maps[b]
}

// ReferencedBundle implements resolve.BundleGraph.
func (g *Graph) ReferencedBundle(dep *ir.DependencyValue, _ *resolve.Bundle) (*resolve.Bundle, bool) {
	b, ok := g.targets[dep]
	return b, ok
}

// TraverseDependencies implements resolve.BundleGraph.
func (g *Graph) TraverseDependencies(b *resolve.Bundle, visit func(*ir.DependencyValue)) {
	for _, dep := range g.deps[b] {
		visit(dep)
	}
}
