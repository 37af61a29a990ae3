package resolve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/bundlecore/internal/sourcemap"
)

func TestPerformReplacement_LongestMatchWins(t *testing.T) {
	out, _ := PerformReplacement(map[string]string{"abc": "X", "abcdef": "Y"}, "abcdef")
	assert.Equal(t, "Y", out)

	out, _ = PerformReplacement(map[string]string{"abc": "X", "abcdef": "Y"}, "abcde abcdef")
	assert.Equal(t, "Xde Y", out)
}

func TestPerformReplacement_OffsetAccounting(t *testing.T) {
	text := "first\nabcd FOO; FOO"
	out, corrections := PerformReplacement(map[string]string{"FOO": "0123456789"}, text)

	assert.Equal(t, "first\nabcd 0123456789; 0123456789", out)
	assert.Equal(t, []Correction{
		{Line: 2, Column: 5, Length: 3, Delta: 7},
		// Original-text column, not the rewritten one (17).
		{Line: 2, Column: 10, Length: 3, Delta: 7},
	}, corrections)
}

func TestPerformReplacement_SameLengthNoCorrection(t *testing.T) {
	out, corrections := PerformReplacement(map[string]string{"AAA": "bbb"}, "xAAAx\nAAA")
	assert.Equal(t, "xbbbx\nbbb", out)
	assert.Empty(t, corrections)
}

func TestPerformReplacement_ReplacementsAreNotRescanned(t *testing.T) {
	out, _ := PerformReplacement(map[string]string{"A": "B", "B": "C"}, "AB")
	assert.Equal(t, "BC", out)
}

func TestPerformReplacement_RegexpMetacharacters(t *testing.T) {
	out, _ := PerformReplacement(map[string]string{"$dep(1).*": "ok"}, "x $dep(1).* y $dep(1)")
	assert.Equal(t, "x ok y $dep(1)", out)
}

func TestPerformReplacement_Empty(t *testing.T) {
	out, corrections := PerformReplacement(nil, "unchanged\n")
	assert.Equal(t, "unchanged\n", out)
	assert.Nil(t, corrections)

	out, _ = PerformReplacement(map[string]string{"": "never"}, "abc")
	assert.Equal(t, "abc", out)
}

func TestPerformReplacement_UTF16Columns(t *testing.T) {
	// U+00E9 is one UTF-16 unit, U+1F600 is two.
	_, corrections := PerformReplacement(map[string]string{"TOK": "t"}, "\u00e9 TOK\n\U0001F600TOK")
	assert.Equal(t, []Correction{
		{Line: 1, Column: 2, Length: 3, Delta: -2},
		{Line: 2, Column: 2, Length: 3, Delta: -2},
	}, corrections)
}

func TestPerformReplacement_LengthProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(rt, "tokens")
		replacements := make(map[string]string, n)
		var tokens []string
		for i := 0; i < n; i++ {
			tok := "<<" + strings.Repeat("x", i+1) + ">>"
			tokens = append(tokens, tok)
			replacements[tok] = rapid.StringMatching(`[a-z/.]{0,12}`).Draw(rt, "value")
		}

		pieces := rapid.SliceOf(rapid.OneOf(
			rapid.SampledFrom(tokens),
			rapid.StringMatching(`[a-z \n]{0,6}`),
		)).Draw(rt, "pieces")
		text := strings.Join(pieces, "")

		out, corrections := PerformReplacement(replacements, text)

		delta := 0
		for _, c := range corrections {
			delta += c.Delta
		}
		if len(out) != len(text)+delta {
			rt.Fatalf("len(out)=%d, want %d+%d", len(out), len(text), delta)
		}
		if strings.Contains(out, "<<") {
			rt.Fatalf("unreplaced token in %q", out)
		}
		if strings.Count(out, "\n") != strings.Count(text, "\n") {
			rt.Fatalf("newlines changed")
		}
	})
}

func TestApplyCorrections(t *testing.T) {
	m := &sourcemap.Map{
		Version: 3,
		Lines: [][]sourcemap.Segment{
			{{GeneratedColumn: 0, Fields: 1}},
			{
				{GeneratedColumn: 0, Fields: 1},
				{GeneratedColumn: 5, Fields: 1},
				{GeneratedColumn: 8, Fields: 1},
				{GeneratedColumn: 10, Fields: 1},
				{GeneratedColumn: 13, Fields: 1},
			},
		},
	}
	_, corrections := PerformReplacement(map[string]string{"FOO": "0123456789"}, "first\nabcd FOO; FOO!")
	require.Len(t, corrections, 2)

	ApplyCorrections(m, corrections)

	var cols []int
	for _, seg := range m.Lines[1] {
		cols = append(cols, seg.GeneratedColumn)
	}
	// "abcd 0123456789; 0123456789!"
	assert.Equal(t, []int{0, 5, 15, 17, 27}, cols)
	assert.Equal(t, 0, m.Lines[0][0].GeneratedColumn)
}

func TestApplyCorrections_MultiLineReplacementMovesColumnsOnly(t *testing.T) {
	m := &sourcemap.Map{
		Version: 3,
		Lines: [][]sourcemap.Segment{
			{{GeneratedColumn: 0, Fields: 1}, {GeneratedColumn: 2, Fields: 1}, {GeneratedColumn: 6, Fields: 1}},
			{{GeneratedColumn: 0, Fields: 1}},
		},
	}
	out, corrections := PerformReplacement(map[string]string{"FOO": "x\nyz"}, "a FOO b\nc")
	assert.Equal(t, "a x\nyz b\nc", out)
	require.Len(t, corrections, 1)

	ApplyCorrections(m, corrections)

	// The output gained a line; the map did not.
	require.Len(t, m.Lines, 2)
	assert.Equal(t, 7, m.Lines[0][2].GeneratedColumn)
	assert.Equal(t, 0, m.Lines[1][0].GeneratedColumn)
}
