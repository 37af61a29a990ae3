package manifest

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/bundlecore/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Manifest is a compiled stitch manifest. Bundles keep their declaration
// order.
type Manifest struct {
	Bundles []*BundleSpec
	Stitch  StitchSpec
}

// BundleSpec describes one packaged bundle.
type BundleSpec struct {
	ID         string
	Name       string
	DistDir    string
	PublicURL  string
	Behavior   ir.BundleBehavior
	InlineType string

	// Contents is the packaged text, placeholders included.
	Contents string

	// Map is the raw source map JSON of Contents, if any.
	Map string

	Dependencies []DependencySpec

	Pos token.Pos
}

// DependencySpec describes a dependency emitted into a bundle's text.
type DependencySpec struct {
	ID            string
	Specifier     string
	SpecifierType ir.SpecifierType
	Placeholder   string

	// Target is the ID of the bundle the dependency resolves to. Empty
	// means the dependency is external.
	Target string
}

// StitchSpec selects the bundle to stitch and how.
type StitchSpec struct {
	Bundle   string
	Relative bool

	// Escape is "none" or "json": how computed URLs are written.
	Escape string

	// Inline is "raw" or "json": how inline bundle contents are written.
	Inline string
}

// Bundle returns the bundle with the given ID.
func (m *Manifest) Bundle(id string) (*BundleSpec, bool) {
	for _, b := range m.Bundles {
		if b.ID == id {
			return b, true
		}
	}
	return nil, false
}

// Load compiles the manifest at path. A directory is loaded as one CUE
// instance, so a manifest can be split across files.
func Load(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
		return Compile(data, path)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, fmt.Errorf("manifest %s: no CUE instances loaded", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	ctx := cuecontext.New()
	return compileValue(ctx, ctx.BuildInstance(inst))
}

// Compile compiles manifest source. filename is used in error positions.
func Compile(data []byte, filename string) (*Manifest, error) {
	ctx := cuecontext.New()
	return compileValue(ctx, ctx.CompileBytes(data, cue.Filename(filename)))
}

func compileValue(ctx *cue.Context, v cue.Value) (*Manifest, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("manifest schema: %w", err)
	}

	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Manifest{}
	iter, err := v.LookupPath(cue.ParsePath("bundles")).Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		b, err := compileBundle(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		m.Bundles = append(m.Bundles, b)
	}

	var stitch struct {
		Bundle   string `json:"bundle"`
		Relative bool   `json:"relative"`
		Escape   string `json:"escape"`
		Inline   string `json:"inline"`
	}
	if err := v.LookupPath(cue.ParsePath("stitch")).Decode(&stitch); err != nil {
		return nil, formatCUEError(err)
	}
	m.Stitch = StitchSpec(stitch)

	return m, nil
}

type rawDependency struct {
	ID          string `json:"id"`
	Specifier   string `json:"specifier"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder"`
	Target      string `json:"target"`
}

type rawBundle struct {
	Name         string          `json:"name"`
	DistDir      string          `json:"dist_dir"`
	PublicURL    string          `json:"public_url"`
	Behavior     string          `json:"behavior"`
	InlineType   string          `json:"inline_type"`
	Contents     string          `json:"contents"`
	Map          string          `json:"map"`
	Dependencies []rawDependency `json:"dependencies"`
}

func compileBundle(id string, v cue.Value) (*BundleSpec, error) {
	var raw rawBundle
	if err := v.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}

	b := &BundleSpec{
		ID:         id,
		Name:       raw.Name,
		DistDir:    raw.DistDir,
		PublicURL:  raw.PublicURL,
		Behavior:   ir.BundleBehavior(raw.Behavior),
		InlineType: raw.InlineType,
		Contents:   raw.Contents,
		Map:        raw.Map,
		Pos:        v.Pos(),
	}
	for _, d := range raw.Dependencies {
		b.Dependencies = append(b.Dependencies, DependencySpec{
			ID:            d.ID,
			Specifier:     d.Specifier,
			SpecifierType: ir.SpecifierType(d.Type),
			Placeholder:   d.Placeholder,
			Target:        d.Target,
		})
	}
	return b, nil
}

// CompileError is a manifest error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
