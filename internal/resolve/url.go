package resolve

import (
	"errors"
	"net/url"

	"github.com/roach88/bundlecore/internal/ir"
	"github.com/roach88/bundlecore/internal/sourcemap"
)

// URLOptions configures ReplaceURLReferences.
type URLOptions struct {
	Bundle   *Bundle
	Graph    BundleGraph
	Contents string

	// Map, if set, is the source map of Contents. It is not modified.
	Map *sourcemap.Map

	// Relative selects bundle-relative paths instead of absolute URLs.
	Relative bool

	// Escape, if set, is applied to every computed URL, e.g. to quote it
	// for the target language. Original specifiers of unresolved
	// dependencies are not escaped.
	Escape func(string) string
}

// Result is rewritten bundle text with its source map.
type Result struct {
	Contents    string
	Map         *sourcemap.Map
	Corrections []Correction
}

// ReplaceURLReferences replaces the placeholders of URL dependencies in
// opts.Contents.
//
// A dependency that resolves to no bundle is replaced by its original
// specifier. One that resolves to an inline bundle is left for
// ReplaceInlineReferences. Otherwise the placeholder becomes the path from
// this bundle to the target, keeping the specifier's query and fragment,
// or in absolute mode the target's public URL joined with its name.
func ReplaceURLReferences(opts URLOptions) (Result, error) {
	if opts.Bundle == nil || opts.Graph == nil {
		return Result{}, errors.New("replace url references: bundle and graph are required")
	}

	replacements := make(map[string]string)
	opts.Graph.TraverseDependencies(opts.Bundle, func(dep *ir.DependencyValue) {
		if dep.SpecifierType != ir.SpecifierURL {
			return
		}
		target, ok := opts.Graph.ReferencedBundle(dep, opts.Bundle)
		if !ok {
			replacements[dep.Placeholder()] = dep.Specifier
			return
		}
		if target.IsInline() {
			return
		}
		to := urlReplacement(dep, opts.Bundle, target, opts.Relative)
		if opts.Escape != nil {
			to = opts.Escape(to)
		}
		replacements[dep.Placeholder()] = to
	})

	return applyReplacements(replacements, opts.Contents, opts.Map), nil
}

func urlReplacement(dep *ir.DependencyValue, from, to *Bundle, relative bool) string {
	if !relative {
		return JoinURL(to.PublicURL, to.Name)
	}

	rel := &url.URL{Path: RelativeBundlePath(from, to)}
	if orig, err := url.Parse(dep.Specifier); err == nil {
		rel.RawQuery = orig.RawQuery
		rel.Fragment = orig.Fragment
	}
	return rel.String()
}

// applyReplacements runs the substitution and, if m is set, corrects a
// copy of it.
func applyReplacements(replacements map[string]string, contents string, m *sourcemap.Map) Result {
	text, corrections := PerformReplacement(replacements, contents)
	res := Result{Contents: text, Corrections: corrections}
	if m != nil {
		res.Map = m.Clone()
		ApplyCorrections(res.Map, corrections)
	}
	return res
}
