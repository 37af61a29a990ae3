package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/bundlecore/internal/ir"
	"github.com/roach88/bundlecore/internal/resolve"
	"github.com/roach88/bundlecore/internal/sourcemap"
)

// StitchOptions configures Graph.Stitch.
type StitchOptions struct {
	Relative bool

	// Escape is applied to computed URLs. Nil writes them as is.
	Escape func(string) string

	// InlineReplacement formats inline bundle contents. Nil embeds them
	// as is. Raw contents that span several lines add lines to the output,
	// and source-map corrections only shift columns, so mappings after a
	// multi-line raw payload drift. The json form stays on one line.
	InlineReplacement func(dep *ir.DependencyValue, inlineType, contents string) string

	Logger *slog.Logger
}

// Options converts the manifest's stitch settings.
func (s StitchSpec) Options() StitchOptions {
	opts := StitchOptions{Relative: s.Relative}
	if s.Escape == "json" {
		opts.Escape = JSONString
	}
	if s.Inline == "json" {
		opts.InlineReplacement = func(_ *ir.DependencyValue, _ string, contents string) string {
			return JSONString(contents)
		}
	}
	return opts
}

// StitchResult is a fully resolved bundle.
type StitchResult struct {
	Contents string
	Map      *sourcemap.Map

	// Corrections of each pass, relative to that pass's input text.
	URLCorrections    []resolve.Correction
	InlineCorrections []resolve.Correction
}

// Stitch resolves every placeholder in b: URL references first, then
// inline bundles, which are themselves stitched before they are embedded.
func (g *Graph) Stitch(ctx context.Context, b *resolve.Bundle, opts StitchOptions) (*StitchResult, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return g.stitch(ctx, b, opts, map[*resolve.Bundle]bool{})
}

func (g *Graph) stitch(ctx context.Context, b *resolve.Bundle, opts StitchOptions, active map[*resolve.Bundle]bool) (*StitchResult, error) {
	if active[b] {
		return nil, ir.NewInvalidStateError("stitch", fmt.Sprintf("inline bundle %s embeds itself", b.ID))
	}
	active[b] = true
	defer delete(active, b)

	urls, err := resolve.ReplaceURLReferences(resolve.URLOptions{
		Bundle:   b,
		Graph:    g,
		Contents: g.Contents(b),
		Map:      g.Map(b),
		Relative: opts.Relative,
		Escape:   opts.Escape,
	})
	if err != nil {
		return nil, fmt.Errorf("stitch %s: %w", b.ID, err)
	}

	inline, err := resolve.ReplaceInlineReferences(ctx, resolve.InlineOptions{
		Bundle:            b,
		Graph:             g,
		Contents:          urls.Contents,
		Map:               urls.Map,
		InlineReplacement: opts.InlineReplacement,
		InlineContents: func(ctx context.Context, target *resolve.Bundle, _ resolve.BundleGraph) (resolve.Contents, error) {
			res, err := g.stitch(ctx, target, opts, active)
			if err != nil {
				return resolve.Contents{}, err
			}
			return resolve.StringContents(res.Contents), nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("stitch %s: %w", b.ID, err)
	}

	opts.Logger.Debug("bundle stitched",
		"bundle", b.ID,
		"url_corrections", len(urls.Corrections),
		"inline_corrections", len(inline.Corrections))

	return &StitchResult{
		Contents:          inline.Contents,
		Map:               inline.Map,
		URLCorrections:    urls.Corrections,
		InlineCorrections: inline.Corrections,
	}, nil
}

// JSONString encodes s as a JSON string literal without HTML escaping.
func JSONString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string can not fail.
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}
