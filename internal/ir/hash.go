package ir

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainAsset       = "bundlecore/asset/v1"
	DomainDependency  = "bundlecore/dependency/v1"
	DomainEnvironment = "bundlecore/environment/v1"
	DomainContent     = "bundlecore/content/v1"
)

// idBytes is the truncated digest length. 16 bytes (32 hex chars) keeps
// keys short while leaving collisions out of reach for a single project.
const idBytes = 16

// hashWithDomain computes BLAKE3(domain + 0x00 + data), truncated.
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := blake3.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)[:idBytes])
}

// AssetIDParams lists every input that affects how a file is transformed.
// Two assets with equal params are the same asset.
type AssetIDParams struct {
	EnvironmentID string
	FilePath      string
	Type          string
	Pipeline      string
	Query         string
	UniqueKey     string
}

// AssetID computes the content-addressed ID for an asset.
// Changing any param (notably Type) yields a new ID.
func AssetID(p AssetIDParams) (string, error) {
	obj := Meta{
		"env":        MetaString(p.EnvironmentID),
		"file_path":  MetaString(p.FilePath),
		"type":       MetaString(p.Type),
		"pipeline":   MetaString(p.Pipeline),
		"query":      MetaString(p.Query),
		"unique_key": MetaString(p.UniqueKey),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("AssetID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainAsset, canonical), nil
}

// DependencyIDParams lists the inputs that distinguish one dependency of an
// asset from another.
type DependencyIDParams struct {
	SourceAssetID     string
	Specifier         string
	SpecifierType     SpecifierType
	EnvironmentID     string
	Priority          Priority
	BundleBehavior    BundleBehavior
	Pipeline          string
	PackageConditions []string
}

// DependencyID computes the content-addressed ID for a dependency.
func DependencyID(p DependencyIDParams) (string, error) {
	obj := Meta{
		"source_asset_id":    MetaString(p.SourceAssetID),
		"specifier":          MetaString(p.Specifier),
		"specifier_type":     MetaString(p.SpecifierType),
		"env":                MetaString(p.EnvironmentID),
		"priority":           MetaString(p.Priority),
		"bundle_behavior":    MetaString(p.BundleBehavior),
		"pipeline":           MetaString(p.Pipeline),
		"package_conditions": stringList(p.PackageConditions),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("DependencyID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDependency, canonical), nil
}

// EnvironmentID computes the content-addressed ID for an environment.
func EnvironmentID(env Environment) (string, error) {
	engines := make(Meta, len(env.Engines))
	for k, v := range env.Engines {
		engines[k] = MetaString(v)
	}
	obj := Meta{
		"context":              MetaString(env.Context),
		"output_format":        MetaString(env.OutputFormat),
		"source_type":          MetaString(env.SourceType),
		"engines":              engines,
		"is_library":           MetaBool(env.IsLibrary),
		"should_optimize":      MetaBool(env.ShouldOptimize),
		"should_scope_hoist":   MetaBool(env.ShouldScopeHoist),
		"include_node_modules": MetaBool(env.IncludeNodeModules),
		"source_map":           MetaBool(env.SourceMap),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EnvironmentID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEnvironment, canonical), nil
}

// ContentKey derives the cache key under which one kind of content
// ("content", "map", "ast") of an asset is stored.
func ContentKey(assetID, kind string) string {
	data := []byte(assetID + ":" + kind + ":" + CacheVersion)
	return hashWithDomain(DomainContent, data)
}

// MustAssetID is like AssetID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustAssetID(p AssetIDParams) string {
	id, err := AssetID(p)
	if err != nil {
		panic(err)
	}
	return id
}

// MustEnvironmentID is like EnvironmentID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEnvironmentID(env Environment) string {
	id, err := EnvironmentID(env)
	if err != nil {
		panic(err)
	}
	return id
}

func stringList(ss []string) MetaList {
	out := make(MetaList, len(ss))
	for i, s := range ss {
		out[i] = MetaString(s)
	}
	return out
}
