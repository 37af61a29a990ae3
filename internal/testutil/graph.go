package testutil

import (
	"github.com/roach88/bundlecore/internal/ir"
	"github.com/roach88/bundlecore/internal/resolve"
)

// FakeGraph is an in-memory resolve.BundleGraph.
//
// Dependencies are attached to bundles with Add; Link records which bundle
// a dependency resolves to. An unlinked dependency is external.
type FakeGraph struct {
	deps  map[*resolve.Bundle][]*ir.DependencyValue
	links map[*ir.DependencyValue]*resolve.Bundle
}

// NewFakeGraph creates an empty graph.
func NewFakeGraph() *FakeGraph {
	return &FakeGraph{
		deps:  make(map[*resolve.Bundle][]*ir.DependencyValue),
		links: make(map[*ir.DependencyValue]*resolve.Bundle),
	}
}

// Add attaches dep to b and returns dep.
func (g *FakeGraph) Add(b *resolve.Bundle, dep *ir.DependencyValue) *ir.DependencyValue {
	g.deps[b] = append(g.deps[b], dep)
	return dep
}

// Link makes dep resolve to target.
func (g *FakeGraph) Link(dep *ir.DependencyValue, target *resolve.Bundle) {
	g.links[dep] = target
}

// ReferencedBundle implements resolve.BundleGraph.
func (g *FakeGraph) ReferencedBundle(dep *ir.DependencyValue, _ *resolve.Bundle) (*resolve.Bundle, bool) {
	b, ok := g.links[dep]
	return b, ok
}

// TraverseDependencies implements resolve.BundleGraph.
func (g *FakeGraph) TraverseDependencies(b *resolve.Bundle, visit func(*ir.DependencyValue)) {
	for _, dep := range g.deps[b] {
		visit(dep)
	}
}

// URLDependency returns a URL-type dependency whose placeholder is id.
func URLDependency(id, specifier string) *ir.DependencyValue {
	return &ir.DependencyValue{
		ID:            id,
		Specifier:     specifier,
		SpecifierType: ir.SpecifierURL,
		Priority:      ir.PriorityLazy,
	}
}

// ESMDependency returns an ESM dependency whose placeholder is id.
func ESMDependency(id, specifier string) *ir.DependencyValue {
	return &ir.DependencyValue{
		ID:            id,
		Specifier:     specifier,
		SpecifierType: ir.SpecifierESM,
		Priority:      ir.PrioritySync,
	}
}
