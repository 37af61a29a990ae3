package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/bundlecore/internal/ir"
	"github.com/roach88/bundlecore/internal/sourcemap"
)

// InlineOptions configures ReplaceInlineReferences.
type InlineOptions struct {
	Bundle   *Bundle
	Graph    BundleGraph
	Contents string
	Map      *sourcemap.Map

	// InlineReplacement formats the packaged contents of an inline
	// bundle for embedding at dep. If nil the contents are embedded as is.
	InlineReplacement func(dep *ir.DependencyValue, inlineType string, contents string) string

	// InlineContents packages an inline bundle. Required.
	InlineContents InlineContentsFunc
}

// ReplaceInlineReferences replaces placeholders of dependencies that
// resolve to inline bundles with those bundles' packaged contents.
//
// Only bundles whose inline type is unset or "string" are substituted;
// other inline types are embedded by some other collaborator and their
// placeholders are left alone.
func ReplaceInlineReferences(ctx context.Context, opts InlineOptions) (Result, error) {
	if opts.Bundle == nil || opts.Graph == nil || opts.InlineContents == nil {
		return Result{}, errors.New("replace inline references: bundle, graph and contents callback are required")
	}

	type inlineDep struct {
		dep    *ir.DependencyValue
		target *Bundle
	}
	var pending []inlineDep
	opts.Graph.TraverseDependencies(opts.Bundle, func(dep *ir.DependencyValue) {
		target, ok := opts.Graph.ReferencedBundle(dep, opts.Bundle)
		if ok && target.IsInline() {
			pending = append(pending, inlineDep{dep, target})
		}
	})

	replacements := make(map[string]string, len(pending))
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		contents, err := opts.InlineContents(ctx, p.target, opts.Graph)
		if err != nil {
			return Result{}, fmt.Errorf("package inline bundle %s: %w", p.target.Name, err)
		}
		data, err := contents.Bytes()
		if err != nil {
			return Result{}, fmt.Errorf("package inline bundle %s: %w", p.target.Name, err)
		}

		inlineType := p.target.InlineType
		if inlineType != "" && inlineType != "string" {
			continue
		}
		to := string(data)
		if opts.InlineReplacement != nil {
			to = opts.InlineReplacement(p.dep, inlineType, to)
		}
		replacements[p.dep.Placeholder()] = to
	}

	return applyReplacements(replacements, opts.Contents, opts.Map), nil
}
