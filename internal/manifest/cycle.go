package manifest

import (
	"fmt"
	"strings"

	"github.com/roach88/bundlecore/internal/ir"
)

// InlineCycle is a set of inline bundles that embed each other. Stitching
// any of them would never terminate.
type InlineCycle struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// inlineGraph maps a bundle ID to the inline bundles it embeds.
type inlineGraph map[string][]string

// AnalyzeInlineCycles reports every cycle among inline bundle references.
// Only edges into inline bundles count: a URL to a sibling bundle is a
// runtime reference, not an embedding.
//
// Strongly connected components are found with Tarjan's algorithm; each
// component with more than one bundle, or a bundle embedding itself, is a
// cycle. Results follow declaration order.
func AnalyzeInlineCycles(m *Manifest) []InlineCycle {
	g, order := buildInlineGraph(m)

	var cycles []InlineCycle
	for _, scc := range tarjanSCC(g, order) {
		if len(scc) > 1 || hasSelfLoop(scc[0], g) {
			cycles = append(cycles, sccToCycle(scc, g))
		}
	}
	return cycles
}

func buildInlineGraph(m *Manifest) (inlineGraph, []string) {
	inline := make(map[string]bool, len(m.Bundles))
	order := make([]string, 0, len(m.Bundles))
	for _, b := range m.Bundles {
		inline[b.ID] = b.Behavior == ir.BundleBehaviorInline
		order = append(order, b.ID)
	}

	g := make(inlineGraph, len(m.Bundles))
	for _, b := range m.Bundles {
		g[b.ID] = []string{}
		for _, d := range b.Dependencies {
			if inline[d.Target] {
				g[b.ID] = append(g[b.ID], d.Target)
			}
		}
	}
	return g, order
}

func hasSelfLoop(node string, g inlineGraph) bool {
	for _, n := range g[node] {
		if n == node {
			return true
		}
	}
	return false
}

func tarjanSCC(g inlineGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// sccToCycle walks the component from its first member back to itself.
func sccToCycle(scc []string, g inlineGraph) InlineCycle {
	if len(scc) == 1 {
		id := scc[0]
		return InlineCycle{
			Path:    []string{id, id},
			Message: fmt.Sprintf("inline bundle %s embeds itself", id),
		}
	}

	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[len(scc)-1]
	path := []string{start}
	visited := map[string]bool{start: true}
	for current := start; ; {
		var next string
		for _, n := range g[current] {
			if members[n] && (!visited[n] || n == start) {
				next = n
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}

	return InlineCycle{
		Path:    path,
		Message: fmt.Sprintf("inline bundles embed each other: %s", strings.Join(path, " -> ")),
	}
}
