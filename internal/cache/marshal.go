package cache

import (
	"fmt"

	"github.com/roach88/bundlecore/internal/codec"
)

// Entry kinds stored in entries.kind.
const (
	kindValue = 1
	kindBlob  = 2
)

// entry is one row of the entries table.
type entry struct {
	kind  int
	codec CompressionTag
	size  int
	data  []byte
}

// encodeEntry prepares raw bytes for storage, compressing them when they
// reach the configured threshold.
func (s *Store) encodeEntry(kind int, raw []byte) (entry, error) {
	e := entry{kind: kind, codec: CompressionNone, size: len(raw), data: raw}
	if s.cfg.compression == CompressionNone || len(raw) < s.cfg.compressThreshold {
		return e, nil
	}
	data, tag, err := compressWithFallback(raw, s.cfg.compression)
	if err != nil {
		return entry{}, fmt.Errorf("compress: %w", err)
	}
	e.data, e.codec = data, tag
	return e, nil
}

// raw returns the uncompressed payload of e.
func (e entry) raw() ([]byte, error) {
	return decompress(e.data, e.codec, e.size)
}

// marshalValue serializes a structured value with the deterministic CBOR
// codec.
func marshalValue(v any) ([]byte, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

// unmarshalValue decodes a structured value into v.
func unmarshalValue(data []byte, v any) error {
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}
