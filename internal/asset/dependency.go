package asset

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/bundlecore/internal/ir"
)

// DependencyOptions describes a dependency added by a transform.
// Zero SpecifierType and Priority default to esm and sync; a nil Env
// inherits the asset's environment.
type DependencyOptions struct {
	Specifier         string
	SpecifierType     ir.SpecifierType
	Priority          ir.Priority
	BundleBehavior    ir.BundleBehavior
	NeedsStableName   bool
	IsOptional        bool
	IsEntry           bool
	Loc               *ir.SourceLocation
	Env               *ir.Environment
	ResolveFrom       string
	Range             string
	Pipeline          string
	PackageConditions []string
	Meta              ir.Meta
	Symbols           map[string]ir.Symbol
}

func newDependencyValue(source *ir.AssetValue, opts DependencyOptions) (*ir.DependencyValue, error) {
	if opts.Specifier == "" {
		return nil, errors.New("dependency specifier is required")
	}
	d := &ir.DependencyValue{
		Specifier:         opts.Specifier,
		SpecifierType:     opts.SpecifierType,
		Priority:          opts.Priority,
		BundleBehavior:    opts.BundleBehavior,
		NeedsStableName:   opts.NeedsStableName,
		IsOptional:        opts.IsOptional,
		IsEntry:           opts.IsEntry,
		Loc:               opts.Loc,
		Env:               source.Env,
		SourceAssetID:     source.ID,
		SourcePath:        source.FilePath,
		SourceAssetType:   source.Type,
		ResolveFrom:       opts.ResolveFrom,
		Range:             opts.Range,
		Pipeline:          opts.Pipeline,
		PackageConditions: slices.Clone(opts.PackageConditions),
		Meta:              opts.Meta.Clone(),
		Symbols:           maps.Clone(opts.Symbols),
	}
	if d.SpecifierType == "" {
		d.SpecifierType = ir.SpecifierESM
	}
	if d.Priority == "" {
		d.Priority = ir.PrioritySync
	}
	if opts.Env != nil {
		d.Env = *opts.Env
	}

	envID, err := ir.EnvironmentID(d.Env)
	if err != nil {
		return nil, fmt.Errorf("dependency %q: %w", d.Specifier, err)
	}
	d.ID, err = ir.DependencyID(ir.DependencyIDParams{
		SourceAssetID:     d.SourceAssetID,
		Specifier:         d.Specifier,
		SpecifierType:     d.SpecifierType,
		EnvironmentID:     envID,
		Priority:          d.Priority,
		BundleBehavior:    d.BundleBehavior,
		Pipeline:          d.Pipeline,
		PackageConditions: d.PackageConditions,
	})
	if err != nil {
		return nil, fmt.Errorf("dependency %q: %w", d.Specifier, err)
	}
	return d, nil
}

// Dependency is the read-only view of one dependency record. Wrappers are
// canonical: every lookup of the same record, or of the same committed
// address, returns the same *Dependency.
type Dependency struct {
	mu        sync.Mutex
	value     *ir.DependencyValue
	addr      ir.Address
	committed bool
}

func (d *Dependency) val() *ir.DependencyValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// replace swaps in the record of a recommitted dependency.
func (d *Dependency) replace(v *ir.DependencyValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.value = v
}

// Value returns the underlying record. Callers must treat it as read-only.
func (d *Dependency) Value() *ir.DependencyValue { return d.val() }

// Address returns the dependency's address in the persisted graph, if it
// is committed.
func (d *Dependency) Address() (ir.Address, bool) { return d.addr, d.committed }

func (d *Dependency) ID() string                        { return d.val().ID }
func (d *Dependency) Specifier() string                 { return d.val().Specifier }
func (d *Dependency) SpecifierType() ir.SpecifierType   { return d.val().SpecifierType }
func (d *Dependency) Priority() ir.Priority             { return d.val().Priority }
func (d *Dependency) BundleBehavior() ir.BundleBehavior { return d.val().BundleBehavior }
func (d *Dependency) NeedsStableName() bool             { return d.val().NeedsStableName }
func (d *Dependency) IsOptional() bool                  { return d.val().IsOptional }
func (d *Dependency) IsEntry() bool                     { return d.val().IsEntry }
func (d *Dependency) Loc() *ir.SourceLocation           { return d.val().Loc }
func (d *Dependency) Env() ir.Environment               { return d.val().Env }
func (d *Dependency) SourceAssetID() string             { return d.val().SourceAssetID }
func (d *Dependency) SourcePath() string                { return d.val().SourcePath }
func (d *Dependency) ResolveFrom() string               { return d.val().ResolveFrom }
func (d *Dependency) Range() string                     { return d.val().Range }
func (d *Dependency) Pipeline() string                  { return d.val().Pipeline }

// PackageConditions returns a copy of the package export conditions.
func (d *Dependency) PackageConditions() []string {
	return slices.Clone(d.val().PackageConditions)
}

// Meta returns a copy of the dependency's metadata.
func (d *Dependency) Meta() ir.Meta { return d.val().Meta.Clone() }

// Symbols returns a copy of the imported symbol table.
func (d *Dependency) Symbols() map[string]ir.Symbol { return maps.Clone(d.val().Symbols) }

// Placeholder returns the token packaged output uses for this dependency.
func (d *Dependency) Placeholder() string { return d.val().Placeholder() }
