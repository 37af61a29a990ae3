package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() AssetIDParams {
	return AssetIDParams{
		EnvironmentID: MustEnvironmentID(Environment{Context: "browser", OutputFormat: "esmodule"}),
		FilePath:      "src/index.js",
		Type:          "js",
	}
}

func TestAssetIDDeterminism(t *testing.T) {
	id1, err := AssetID(testParams())
	require.NoError(t, err)
	id2, err := AssetID(testParams())
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "AssetID must be deterministic")
	assert.Len(t, id1, 32, "truncated BLAKE3 hex is 32 characters")
}

func TestAssetIDChangesWithInput(t *testing.T) {
	base := MustAssetID(testParams())

	mutations := map[string]func(p *AssetIDParams){
		"type":       func(p *AssetIDParams) { p.Type = "css" },
		"file path":  func(p *AssetIDParams) { p.FilePath = "src/other.js" },
		"pipeline":   func(p *AssetIDParams) { p.Pipeline = "url" },
		"query":      func(p *AssetIDParams) { p.Query = "inline" },
		"unique key": func(p *AssetIDParams) { p.UniqueKey = "k1" },
		"env":        func(p *AssetIDParams) { p.EnvironmentID = "other" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := testParams()
			mutate(&p)
			assert.NotEqual(t, base, MustAssetID(p))
		})
	}
}

func TestEnvironmentIDIgnoresEngineOrder(t *testing.T) {
	a := MustEnvironmentID(Environment{Engines: map[string]string{"node": ">=18", "browsers": "last 1 chrome"}})
	b := MustEnvironmentID(Environment{Engines: map[string]string{"browsers": "last 1 chrome", "node": ">=18"}})
	assert.Equal(t, a, b)
}

func TestDependencyIDDistinguishesSpecifierType(t *testing.T) {
	p := DependencyIDParams{SourceAssetID: "a1", Specifier: "./x.png", SpecifierType: SpecifierESM}
	esm, err := DependencyID(p)
	require.NoError(t, err)

	p.SpecifierType = SpecifierURL
	url, err := DependencyID(p)
	require.NoError(t, err)

	assert.NotEqual(t, esm, url)
}

func TestContentKeyPerKind(t *testing.T) {
	assert.NotEqual(t, ContentKey("a1", "content"), ContentKey("a1", "map"))
	assert.Equal(t, ContentKey("a1", "ast"), ContentKey("a1", "ast"))
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte("same input")
	assert.NotEqual(t, hashWithDomain(DomainAsset, data), hashWithDomain(DomainDependency, data))
}
