package ir

// SpecifierType describes how a dependency specifier was written.
type SpecifierType string

const (
	SpecifierESM      SpecifierType = "esm"
	SpecifierCommonJS SpecifierType = "commonjs"
	SpecifierURL      SpecifierType = "url"
	SpecifierCustom   SpecifierType = "custom"
)

// Priority is the loading priority of a dependency.
type Priority string

const (
	PrioritySync     Priority = "sync"
	PriorityParallel Priority = "parallel"
	PriorityLazy     Priority = "lazy"
)

// BundleBehavior controls how an asset or bundle is placed in output.
type BundleBehavior string

const (
	BundleBehaviorNone     BundleBehavior = ""
	BundleBehaviorInline   BundleBehavior = "inline"
	BundleBehaviorIsolated BundleBehavior = "isolated"
)

// Environment describes the target an asset is compiled for.
type Environment struct {
	Context            string            `json:"context"`
	OutputFormat       string            `json:"output_format"`
	SourceType         string            `json:"source_type,omitempty"`
	Engines            map[string]string `json:"engines,omitempty"`
	IsLibrary          bool              `json:"is_library,omitempty"`
	ShouldOptimize     bool              `json:"should_optimize,omitempty"`
	ShouldScopeHoist   bool              `json:"should_scope_hoist,omitempty"`
	IncludeNodeModules bool              `json:"include_node_modules,omitempty"`
	SourceMap          bool              `json:"source_map,omitempty"`
}

// SourceLocation is a span within a source file. Lines are 1-based,
// columns 0-based.
type SourceLocation struct {
	FilePath string `json:"file_path"`
	Start    Pos    `json:"start"`
	End      Pos    `json:"end"`
}

// Pos is a line/column pair.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Symbol maps an exported name to the local binding that provides it.
type Symbol struct {
	Local  string          `json:"local"`
	Loc    *SourceLocation `json:"loc,omitempty"`
	IsWeak bool            `json:"is_weak,omitempty"`
}

// InvalidationType names the trigger that makes a cached asset stale.
type InvalidationType string

const (
	InvalidateFileChange InvalidationType = "file_change"
	InvalidateFileCreate InvalidationType = "file_create"
	InvalidateEnvChange  InvalidationType = "env_change"
)

// Invalidation is one registered trigger.
type Invalidation struct {
	Type          InvalidationType `json:"type"`
	FilePath      string           `json:"file_path,omitempty"`
	Glob          string           `json:"glob,omitempty"`
	FileName      string           `json:"file_name,omitempty"`
	AboveFilePath string           `json:"above_file_path,omitempty"`
	EnvName       string           `json:"env_name,omitempty"`
}

// Stats records the size of an asset's content and how long its
// transformation took.
type Stats struct {
	Size int64 `json:"size"`
	Time int64 `json:"time"`
}

// AST is a transformer-owned syntax tree. The program is opaque to this
// package; it only needs to round-trip through the cache.
type AST struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Program any    `json:"program"`
}

// AssetValue is the mutable value record of an uncommitted asset.
type AssetValue struct {
	ID                 string             `json:"id"`
	FilePath           string             `json:"file_path"`
	Query              string             `json:"query,omitempty"`
	Type               string             `json:"type"`
	Pipeline           string             `json:"pipeline,omitempty"`
	UniqueKey          string             `json:"unique_key,omitempty"`
	Env                Environment        `json:"env"`
	BundleBehavior     BundleBehavior     `json:"bundle_behavior,omitempty"`
	IsBundleSplittable bool               `json:"is_bundle_splittable"`
	SideEffects        bool               `json:"side_effects"`
	IsSource           bool               `json:"is_source"`
	Symbols            map[string]Symbol  `json:"symbols,omitempty"`
	Dependencies       []*DependencyValue `json:"dependencies,omitempty"`
	Meta               Meta               `json:"meta,omitempty"`
	Stats              Stats              `json:"stats"`
	ContentKey         string             `json:"content_key,omitempty"`
	MapKey             string             `json:"map_key,omitempty"`
	ASTKey             string             `json:"ast_key,omitempty"`
	OutputHash         string             `json:"output_hash,omitempty"`
	NativeDependencies []uint32           `json:"native_dependencies,omitempty"`
	NativeSymbols      []uint32           `json:"native_symbols,omitempty"`
	Invalidations      []Invalidation     `json:"invalidations,omitempty"`

	// Committed and Address are set once the record has been committed.
	// A committed record is final whichever wrapper reaches it.
	Committed bool    `json:"-"`
	Address   Address `json:"-"`
}

// IDParams returns the identity inputs of v.
func (v *AssetValue) IDParams() (AssetIDParams, error) {
	envID, err := EnvironmentID(v.Env)
	if err != nil {
		return AssetIDParams{}, err
	}
	return AssetIDParams{
		EnvironmentID: envID,
		FilePath:      v.FilePath,
		Type:          v.Type,
		Pipeline:      v.Pipeline,
		Query:         v.Query,
		UniqueKey:     v.UniqueKey,
	}, nil
}

// DependencyValue is the value record of a dependency between assets.
type DependencyValue struct {
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
	Meta              Meta              `json:"meta,omitempty"`
	Symbols           map[string]Symbol `json:"symbols,omitempty"`
}

// Placeholder returns the token emitted into packaged output for d:
// meta.placeholder when set, the dependency ID otherwise.
func (d *DependencyValue) Placeholder() string {
	if p, ok := d.Meta.GetString(MetaKeyPlaceholder); ok && p != "" {
		return p
	}
	return d.ID
}
