package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", MetaString("hello"), `"hello"`},
		{"empty string", MetaString(""), `""`},
		{"int", MetaInt(42), "42"},
		{"negative int", MetaInt(-100), "-100"},
		{"max int64", MetaInt(9223372036854775807), "9223372036854775807"},
		{"bool true", MetaBool(true), "true"},
		{"null", MetaNull{}, "null"},
		{"empty list", MetaList{}, "[]"},
		{"empty object", Meta{}, "{}"},
		{"list of ints", MetaList{MetaInt(1), MetaInt(2), MetaInt(3)}, "[1,2,3]"},
		{"simple object", Meta{"a": MetaInt(1)}, `{"a":1}`},
		{"plain map", map[string]any{"b": "x", "a": true}, `{"a":true,"b":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := Meta{
		"zebra": MetaInt(1),
		"alpha": MetaInt(2),
		"beta":  Meta{"d": MetaInt(4), "c": MetaInt(3)},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"c":3,"d":4},"zebra":1}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(MetaString("<a href=\"x\">&</a>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a href=\"x\">&</a>"`, string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(MetaString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// A literal backslash followed by u2028 text stays escaped.
	result, err = MarshalCanonical(MetaString(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed form.
	decomposed, err := MarshalCanonical(MetaString("e\u0301"))
	require.NoError(t, err)
	composed, err := MarshalCanonical(MetaString("\u00e9"))
	require.NoError(t, err)
	assert.Equal(t, string(composed), string(decomposed))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(3.14)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": 1.5})
	assert.Error(t, err)
}
