package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bundlecore/internal/ir"
)

const chunkManifest = `
bundles: {
	entry: {
		name: "index.js"
		contents: "import('PLACEHOLDER_1')"
		dependencies: [{
			id:        "PLACEHOLDER_1"
			specifier: "./chunk.js"
			type:      "url"
			target:    "chunk"
		}]
	}
	chunk: {
		name:     "chunk.js"
		dist_dir: "dist/out"
	}
}
stitch: bundle: "entry"
`

func TestCompile_AppliesDefaults(t *testing.T) {
	m, err := Compile([]byte(chunkManifest), "chunk.cue")
	require.NoError(t, err)

	require.Len(t, m.Bundles, 2)
	entry := m.Bundles[0]
	assert.Equal(t, "entry", entry.ID)
	assert.Equal(t, "index.js", entry.Name)
	assert.Equal(t, "dist", entry.DistDir)
	assert.Equal(t, "/", entry.PublicURL)
	assert.Equal(t, ir.BundleBehaviorNone, entry.Behavior)
	require.Len(t, entry.Dependencies, 1)
	assert.Equal(t, ir.SpecifierURL, entry.Dependencies[0].SpecifierType)
	assert.Equal(t, "chunk", entry.Dependencies[0].Target)

	assert.Equal(t, "chunk", m.Bundles[1].ID)
	assert.Equal(t, "dist/out", m.Bundles[1].DistDir)

	assert.Equal(t, StitchSpec{Bundle: "entry", Relative: true, Escape: "none", Inline: "raw"}, m.Stitch)
	assert.Empty(t, Validate(m))
}

func TestCompile_DefaultSpecifierType(t *testing.T) {
	m, err := Compile([]byte(`
bundles: a: {
	name: "a.js"
	dependencies: [{id: "D", specifier: "./b.js"}]
}
`), "a.cue")
	require.NoError(t, err)
	assert.Equal(t, ir.SpecifierESM, m.Bundles[0].Dependencies[0].SpecifierType)
}

func TestCompile_SchemaErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"missing name", `bundles: a: {contents: "x"}`},
		{"empty name", `bundles: a: {name: ""}`},
		{"bad behavior", `bundles: a: {name: "a.js", behavior: "lazy"}`},
		{"unknown field", `bundles: a: {name: "a.js", chunk_size: 4}`},
		{"bad specifier type", `bundles: a: {name: "a.js", dependencies: [{id: "D", specifier: "x", type: "amd"}]}`},
		{"bad escape", `stitch: escape: "html"`},
		{"syntax", `bundles: a: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]byte(tt.source), "bad.cue")
			require.Error(t, err)
		})
	}
}

func TestCompile_ErrorHasPosition(t *testing.T) {
	_, err := Compile([]byte("bundles: a: {\n\tname: 42\n}\n"), "pos.cue")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, ce.Message, "bundles.a.name")
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	write("entry.cue", `package site

bundles: entry: {
	name:     "index.js"
	contents: "load('URL')"
	dependencies: [{id: "URL", specifier: "./chunk.js", type: "url", target: "chunk"}]
}
stitch: bundle: "entry"
`)
	write("chunk.cue", `package site

bundles: chunk: name: "chunk.js"
`)

	m, err := Load(dir)
	require.NoError(t, err)
	_, ok := m.Bundle("entry")
	assert.True(t, ok)
	_, ok = m.Bundle("chunk")
	assert.True(t, ok)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.cue")
	require.NoError(t, os.WriteFile(path, []byte(chunkManifest), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Bundles, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}

func TestValidate_CrossReferences(t *testing.T) {
	m, err := Compile([]byte(`
bundles: {
	a: {
		name: "a.js"
		map:  "{\"version\": 2}"
		dependencies: [
			{id: "D1", specifier: "./x.js", target: "nope"},
			{id: "D1", specifier: "./y.js"},
			{id: "D2", specifier: "./z.js", placeholder: "D1"},
		]
	}
}
stitch: bundle: "b"
`), "bad.cue")
	require.NoError(t, err)

	codes := map[string]bool{}
	for _, e := range Validate(m) {
		codes[e.Code] = true
		assert.NotEmpty(t, e.Error())
	}
	assert.True(t, codes[ErrUnknownTarget])
	assert.True(t, codes[ErrDuplicateDependency])
	assert.True(t, codes[ErrDuplicatePlaceholder])
	assert.True(t, codes[ErrInvalidMap])
	assert.True(t, codes[ErrUnknownStitchBundle])
}

func TestAnalyzeInlineCycles(t *testing.T) {
	m, err := Compile([]byte(`
bundles: {
	entry: {
		name: "index.js"
		dependencies: [{id: "A", specifier: "./a.css", target: "a"}]
	}
	a: {
		name: "a.css", behavior: "inline"
		dependencies: [{id: "B", specifier: "./b.css", target: "b"}]
	}
	b: {
		name: "b.css", behavior: "inline"
		dependencies: [{id: "A2", specifier: "./a.css", target: "a"}]
	}
	self: {
		name: "self.svg", behavior: "inline"
		dependencies: [{id: "S", specifier: "./self.svg", target: "self"}]
	}
}
`), "cycle.cue")
	require.NoError(t, err)

	cycles := AnalyzeInlineCycles(m)
	require.Len(t, cycles, 2)
	assert.Equal(t, []string{"a", "b", "a"}, cycles[0].Path)
	assert.Equal(t, []string{"self", "self"}, cycles[1].Path)

	var found bool
	for _, e := range Validate(m) {
		found = found || e.Code == ErrInlineCycle
	}
	assert.True(t, found)
}

func TestAnalyzeInlineCycles_URLReferencesAreNotCycles(t *testing.T) {
	m, err := Compile([]byte(`
bundles: {
	a: {name: "a.js", dependencies: [{id: "B", specifier: "./b.js", type: "url", target: "b"}]}
	b: {name: "b.js", dependencies: [{id: "A", specifier: "./a.js", type: "url", target: "a"}]}
}
`), "ok.cue")
	require.NoError(t, err)
	assert.Empty(t, AnalyzeInlineCycles(m))
}

func TestStitch_EndToEnd(t *testing.T) {
	m, err := Compile([]byte(chunkManifest), "chunk.cue")
	require.NoError(t, err)
	g, err := m.Graph()
	require.NoError(t, err)
	entry, ok := g.Bundle("entry")
	require.True(t, ok)

	res, err := g.Stitch(context.Background(), entry, m.Stitch.Options())
	require.NoError(t, err)
	assert.Equal(t, "import('./out/chunk.js')", res.Contents)
	assert.Equal(t, 1, len(res.URLCorrections))
	assert.Empty(t, res.InlineCorrections)
}

func TestStitch_NestedInline(t *testing.T) {
	m, err := Compile([]byte(`
bundles: {
	entry: {
		name:     "index.js"
		contents: "css(STYLE); img(LOGO)"
		dependencies: [
			{id: "STYLE", specifier: "./style.css", target: "style"},
			{id: "LOGO", specifier: "https://cdn.example.com/logo.png", type: "url"},
		]
	}
	style: {
		name:     "style.css"
		behavior: "inline"
		contents: "a{background:url(BG)}"
		dependencies: [{id: "BG", specifier: "./bg.png", type: "url", target: "bg"}]
	}
	bg: {name: "bg.7f3a.png", dist_dir: "dist/img"}
}
stitch: {bundle: "entry", inline: "json", relative: false}
`), "nested.cue")
	require.NoError(t, err)
	require.Empty(t, Validate(m))
	g, err := m.Graph()
	require.NoError(t, err)
	entry, _ := g.Bundle("entry")

	res, err := g.Stitch(context.Background(), entry, m.Stitch.Options())
	require.NoError(t, err)
	assert.Equal(t, `css("a{background:url(/bg.7f3a.png)}"); img(https://cdn.example.com/logo.png)`, res.Contents)
}

func TestStitch_Placeholder(t *testing.T) {
	m, err := Compile([]byte(`
bundles: {
	entry: {
		name:     "index.js"
		contents: "fetch($URL$)"
		dependencies: [{id: "d1", specifier: "./data.json", type: "url", placeholder: "$URL$", target: "data"}]
	}
	data: {name: "data.json"}
}
stitch: {bundle: "entry", escape: "json"}
`), "ph.cue")
	require.NoError(t, err)
	g, err := m.Graph()
	require.NoError(t, err)
	entry, _ := g.Bundle("entry")

	res, err := g.Stitch(context.Background(), entry, m.Stitch.Options())
	require.NoError(t, err)
	assert.Equal(t, `fetch("./data.json")`, res.Contents)
}

func TestStitch_CorrectsMap(t *testing.T) {
	m, err := Compile([]byte(`
bundles: {
	entry: {
		name:     "index.js"
		contents: "import('P1');x"
		map:      "{\"version\":3,\"sources\":[\"a.js\"],\"names\":[],\"mappings\":\"AAAA,QAAQ,IAAI\"}"
		dependencies: [{id: "P1", specifier: "./chunk.js", type: "url", target: "chunk"}]
	}
	chunk: {name: "chunk.js", dist_dir: "dist/out"}
}
`), "map.cue")
	require.NoError(t, err)
	g, err := m.Graph()
	require.NoError(t, err)
	entry, _ := g.Bundle("entry")

	res, err := g.Stitch(context.Background(), entry, StitchOptions{Relative: true})
	require.NoError(t, err)
	require.NotNil(t, res.Map)

	var cols []int
	for _, seg := range res.Map.Lines[0] {
		cols = append(cols, seg.GeneratedColumn)
	}
	assert.Equal(t, []int{0, 8, 24}, cols)
}

func TestStitch_InlineCycleFails(t *testing.T) {
	m, err := Compile([]byte(`
bundles: {
	a: {name: "a.svg", behavior: "inline", contents: "B", dependencies: [{id: "B", specifier: "./b.svg", target: "b"}]}
	b: {name: "b.svg", behavior: "inline", contents: "A", dependencies: [{id: "A", specifier: "./a.svg", target: "a"}]}
}
`), "cycle.cue")
	require.NoError(t, err)
	g, err := m.Graph()
	require.NoError(t, err)
	a, _ := g.Bundle("a")

	_, err = g.Stitch(context.Background(), a, StitchOptions{})
	require.Error(t, err)
	assert.True(t, ir.IsInvalidState(err))
}

func TestJSONString(t *testing.T) {
	assert.Equal(t, `"a<b>\"c\"\n"`, JSONString("a<b>\"c\"\n"))
}
