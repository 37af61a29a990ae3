package ir

import "fmt"

// Flags packs the boolean properties of a committed asset into one
// integer. Test bits with Has; never rely on field order.
type Flags uint32

const (
	FlagSplittable Flags = 1 << iota
	FlagIsSource
	FlagSideEffects

	// Storage shape of the committed content.
	FlagLargeContent
	FlagStreamContent
	FlagHasMap
	FlagHasAST
)

// Has reports whether every bit of mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// With returns f with mask set or cleared.
func (f Flags) With(mask Flags, on bool) Flags {
	if on {
		return f | mask
	}
	return f &^ mask
}

// Address is the stable position of a committed record in the persisted
// graph. Addresses are reused when an asset with the same ID is committed
// again in a later build.
type Address uint32

// String implements fmt.Stringer.
func (a Address) String() string {
	return fmt.Sprintf("@%d", uint32(a))
}

// CommittedAssetRecord is the immutable, flattened form of an asset.
// Content lives in the cache under the keys recorded here.
type CommittedAssetRecord struct {
	Address        Address           `json:"address"`
	ID             string            `json:"id"`
	FilePath       string            `json:"file_path"`
	Query          string            `json:"query,omitempty"`
	Type           string            `json:"type"`
	Pipeline       string            `json:"pipeline,omitempty"`
	UniqueKey      string            `json:"unique_key,omitempty"`
	Env            Environment       `json:"env"`
	BundleBehavior BundleBehavior    `json:"bundle_behavior,omitempty"`
	Flags          Flags             `json:"flags"`
	Meta           []byte            `json:"meta,omitempty"`
	Symbols        map[string]Symbol `json:"symbols,omitempty"`
	Dependencies   []Address         `json:"dependencies,omitempty"`
	Stats          Stats             `json:"stats"`
	ContentKey     string            `json:"content_key"`
	MapKey         string            `json:"map_key,omitempty"`
	ASTKey         string            `json:"ast_key,omitempty"`
	OutputHash     string            `json:"output_hash,omitempty"`
	Invalidations  []Invalidation    `json:"invalidations,omitempty"`
}

// CommittedDependencyRecord is the persisted form of a dependency.
// Meta is canonical JSON so the record encodes without interface values.
type CommittedDependencyRecord struct {
	Address           Address           `json:"address"`
	ID                string            `json:"id"`
	Specifier         string            `json:"specifier"`
	SpecifierType     SpecifierType     `json:"specifier_type"`
	Priority          Priority          `json:"priority"`
	BundleBehavior    BundleBehavior    `json:"bundle_behavior,omitempty"`
	NeedsStableName   bool              `json:"needs_stable_name,omitempty"`
	IsOptional        bool              `json:"is_optional,omitempty"`
	IsEntry           bool              `json:"is_entry,omitempty"`
	Loc               *SourceLocation   `json:"loc,omitempty"`
	Env               Environment       `json:"env"`
	SourceAssetID     string            `json:"source_asset_id,omitempty"`
	SourcePath        string            `json:"source_path,omitempty"`
	SourceAssetType   string            `json:"source_asset_type,omitempty"`
	ResolveFrom       string            `json:"resolve_from,omitempty"`
	Range             string            `json:"range,omitempty"`
	Pipeline          string            `json:"pipeline,omitempty"`
	PackageConditions []string          `json:"package_conditions,omitempty"`
	Meta              []byte            `json:"meta,omitempty"`
	Symbols           map[string]Symbol `json:"symbols,omitempty"`
}

// FlattenDependency converts a dependency value into its persisted form.
func FlattenDependency(addr Address, d *DependencyValue) (CommittedDependencyRecord, error) {
	var meta []byte
	if len(d.Meta) > 0 {
		var err error
		meta, err = MarshalCanonical(d.Meta)
		if err != nil {
			return CommittedDependencyRecord{}, fmt.Errorf("flatten dependency %s: %w", d.ID, err)
		}
	}
	return CommittedDependencyRecord{
		Address:           addr,
		ID:                d.ID,
		Specifier:         d.Specifier,
		SpecifierType:     d.SpecifierType,
		Priority:          d.Priority,
		BundleBehavior:    d.BundleBehavior,
		NeedsStableName:   d.NeedsStableName,
		IsOptional:        d.IsOptional,
		IsEntry:           d.IsEntry,
		Loc:               d.Loc,
		Env:               d.Env,
		SourceAssetID:     d.SourceAssetID,
		SourcePath:        d.SourcePath,
		SourceAssetType:   d.SourceAssetType,
		ResolveFrom:       d.ResolveFrom,
		Range:             d.Range,
		Pipeline:          d.Pipeline,
		PackageConditions: append([]string(nil), d.PackageConditions...),
		Meta:              meta,
		Symbols:           cloneSymbols(d.Symbols),
	}, nil
}

// Value expands a persisted dependency back into a value record.
func (r *CommittedDependencyRecord) Value() (*DependencyValue, error) {
	meta, err := ParseMeta(r.Meta)
	if err != nil {
		return nil, fmt.Errorf("dependency %s meta: %w", r.ID, err)
	}
	return &DependencyValue{
		ID:                r.ID,
		Specifier:         r.Specifier,
		SpecifierType:     r.SpecifierType,
		Priority:          r.Priority,
		BundleBehavior:    r.BundleBehavior,
		NeedsStableName:   r.NeedsStableName,
		IsOptional:        r.IsOptional,
		IsEntry:           r.IsEntry,
		Loc:               r.Loc,
		Env:               r.Env,
		SourceAssetID:     r.SourceAssetID,
		SourcePath:        r.SourcePath,
		SourceAssetType:   r.SourceAssetType,
		ResolveFrom:       r.ResolveFrom,
		Range:             r.Range,
		Pipeline:          r.Pipeline,
		PackageConditions: append([]string(nil), r.PackageConditions...),
		Meta:              meta,
		Symbols:           cloneSymbols(r.Symbols),
	}, nil
}

func cloneSymbols(in map[string]Symbol) map[string]Symbol {
	if in == nil {
		return nil
	}
	out := make(map[string]Symbol, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GraphSnapshot is the persisted asset graph: every committed asset and
// dependency indexed by address.
type GraphSnapshot struct {
	Version      int                         `json:"version"`
	Assets       []CommittedAssetRecord      `json:"assets"`
	Dependencies []CommittedDependencyRecord `json:"dependencies"`
}
