package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string            `json:"name"`
	Count int               `json:"count,omitempty"`
	Tags  map[string]string `json:"tags,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	a := record{Name: "x", Tags: map[string]string{"b": "2", "a": "1", "c": "3"}}

	first, err := Marshal(a)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(a)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestUnmarshalUsesJSONTags(t *testing.T) {
	data, err := Marshal(map[string]any{"name": "bundle", "count": 2})
	require.NoError(t, err)

	var r record
	require.NoError(t, Unmarshal(data, &r))
	assert.Equal(t, record{Name: "bundle", Count: 2}, r)
}

func TestUnmarshalAnyProducesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": "v"}})
	require.NoError(t, err)

	var v any
	require.NoError(t, Unmarshal(data, &v))
	outer, ok := v.(map[string]any)
	require.True(t, ok, "got %T", v)
	_, ok = outer["outer"].(map[string]any)
	assert.True(t, ok)
}

func TestDecoderReadsSequence(t *testing.T) {
	var buf bytes.Buffer
	for _, name := range []string{"a", "b"} {
		data, err := Marshal(record{Name: name})
		require.NoError(t, err)
		buf.Write(data)
	}

	dec := NewDecoder(&buf)
	var r1, r2 record
	require.NoError(t, dec.Decode(&r1))
	require.NoError(t, dec.Decode(&r2))
	assert.Equal(t, "a", r1.Name)
	assert.Equal(t, "b", r2.Name)
	assert.ErrorIs(t, dec.Decode(&r1), io.EOF)
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]int{"a": 1})
	require.NoError(t, err)
	diag, err := Diagnose(data)
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, diag)
}
