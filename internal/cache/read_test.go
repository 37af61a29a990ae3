package cache

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bundlecore/internal/ir"
)

type testRecord struct {
	Name  string            `json:"name"`
	Count int               `json:"count"`
	Tags  []string          `json:"tags,omitempty"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

func TestGetSet_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	in := testRecord{Name: "a", Count: 3, Tags: []string{"x", "y"}, Attrs: map[string]string{"k": "v"}}
	require.NoError(t, s.Set(ctx, "rec", in))

	var out testRecord
	found, err := s.Get(ctx, "rec", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestGet_MissingIsAbsent(t *testing.T) {
	s := createTestStore(t)

	out := testRecord{Name: "untouched"}
	found, err := s.Get(context.Background(), "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "untouched", out.Name)
}

func TestSet_OverwriteReplaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "rec", testRecord{Name: "a", Tags: []string{"x"}}))
	require.NoError(t, s.Set(ctx, "rec", testRecord{Name: "b"}))

	var out testRecord
	_, err := s.Get(ctx, "rec", &out)
	require.NoError(t, err)
	assert.Equal(t, testRecord{Name: "b"}, out)
}

func TestGetBlob_MissingIsNotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetBlob(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, ir.IsNotFound(err))
	assert.ErrorIs(t, err, ir.ErrNotFound)
}

func TestGetBuffer(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetBuffer(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetBlob(ctx, "k", []byte("hello")))
	data, found, err := s.GetBuffer(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), data)
}

func TestSetBlob_Empty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetBlob(ctx, "k", nil))

	ok, err := s.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := s.GetBlob(ctx, "k")
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Empty(t, data)
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetBlob(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "never-set"))

	ok, err := s.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompression(t *testing.T) {
	compressible := bytes.Repeat([]byte("function render() { return null; }\n"), 512)

	tests := []struct {
		name string
		tag  CompressionTag
	}{
		{"zstd", CompressionZstd},
		{"lz4", CompressionLZ4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t, WithCompression(tt.tag))
			ctx := context.Background()

			require.NoError(t, s.SetBlob(ctx, "big", compressible))
			require.NoError(t, s.SetBlob(ctx, "small", []byte("tiny")))

			got, err := s.GetBlob(ctx, "big")
			require.NoError(t, err)
			assert.Equal(t, compressible, got)

			infos, err := s.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, infos, 2)

			assert.Equal(t, "big", infos[0].Key)
			assert.Equal(t, tt.tag, infos[0].Compression)
			assert.Equal(t, len(compressible), infos[0].Size)
			assert.Less(t, infos[0].StoredSize, infos[0].Size)

			assert.Equal(t, "small", infos[1].Key)
			assert.Equal(t, CompressionNone, infos[1].Compression, "below threshold")
		})
	}
}

func TestCompression_IncompressibleFallsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	r := rand.New(rand.NewPCG(1, 2))
	noise := make([]byte, 16<<10)
	for i := range noise {
		noise[i] = byte(r.Uint32())
	}
	require.NoError(t, s.SetBlob(ctx, "noise", noise))

	infos, err := s.List(ctx, "noise")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, CompressionNone, infos[0].Compression)

	got, err := s.GetBlob(ctx, "noise")
	require.NoError(t, err)
	assert.Equal(t, noise, got)
}

func TestList_Prefix(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetBlob(ctx, "asset:b", []byte("1")))
	require.NoError(t, s.SetBlob(ctx, "asset:a", []byte("22")))
	require.NoError(t, s.Set(ctx, "graph", testRecord{Name: "g"}))

	infos, err := s.List(ctx, "asset:")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "asset:a", infos[0].Key)
	assert.Equal(t, "blob", infos[0].Kind)
	assert.Equal(t, 2, infos[0].Size)
	assert.Equal(t, "asset:b", infos[1].Key)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.List(ctx, "zzz")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCompressionTag_Parse(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		got, err := ParseCompressionTag(tag.String())
		require.NoError(t, err)
		assert.Equal(t, tag, got)
	}
	_, err := ParseCompressionTag("gzip")
	assert.Error(t, err)
}
