package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// MetaValue is a sealed interface over the value shapes allowed in asset
// and dependency metadata. Only MetaNull, MetaString, MetaInt, MetaBool,
// MetaList and Meta implement it. Floats are excluded so that serialized
// meta, and every ID derived from it, is byte-stable.
type MetaValue interface {
	metaValue()
}

// MetaNull represents a JSON null.
type MetaNull struct{}

func (MetaNull) metaValue() {}

// MarshalJSON implements json.Marshaler for MetaNull.
func (MetaNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MetaString is a string metadata value.
type MetaString string

func (MetaString) metaValue() {}

// MetaInt is an integer metadata value.
type MetaInt int64

func (MetaInt) metaValue() {}

// MetaBool is a boolean metadata value.
type MetaBool bool

func (MetaBool) metaValue() {}

// MetaList is an ordered list of metadata values.
type MetaList []MetaValue

func (MetaList) metaValue() {}

// Meta is a string-keyed metadata object. Use SortedKeys for deterministic
// iteration.
type Meta map[string]MetaValue

func (Meta) metaValue() {}

// Well-known meta keys read by the reference resolver.
const (
	// MetaKeyPlaceholder overrides the dependency ID as the token emitted
	// into packaged output.
	MetaKeyPlaceholder = "placeholder"

	// MetaKeyInlineType selects how an inline bundle's contents are
	// embedded ("string" or a binary payload type).
	MetaKeyInlineType = "inlineType"
)

// GetString returns the string stored under key.
func (m Meta) GetString(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(MetaString)
	return string(s), ok
}

// GetBool returns the bool stored under key.
func (m Meta) GetBool(key string) (bool, bool) {
	if m == nil {
		return false, false
	}
	b, ok := m[key].(MetaBool)
	return bool(b), ok
}

// Clone returns a deep copy of m.
func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = cloneMetaValue(v)
	}
	return out
}

func cloneMetaValue(v MetaValue) MetaValue {
	switch val := v.(type) {
	case Meta:
		return val.Clone()
	case MetaList:
		out := make(MetaList, len(val))
		for i, elem := range val {
			out[i] = cloneMetaValue(elem)
		}
		return out
	default:
		return v
	}
}

// Merge copies every key of other into m, replacing existing keys.
func (m Meta) Merge(other Meta) {
	for k, v := range other {
		m[k] = cloneMetaValue(v)
	}
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which orders some keys differently.
func (m Meta) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// MarshalJSON implements json.Marshaler with sorted keys.
// This is not canonical output; use MarshalCanonical for hashing.
func (m Meta) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := marshalMetaValue(m[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for MetaList.
func (l MetaList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalMetaValue(elem)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalMetaValue(v MetaValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, MetaNull:
		return []byte("null"), nil
	case MetaString:
		return json.Marshal(string(val))
	case MetaInt:
		return json.Marshal(int64(val))
	case MetaBool:
		return json.Marshal(bool(val))
	case MetaList:
		return val.MarshalJSON()
	case Meta:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown meta value type: %T", v)
	}
}

// UnmarshalJSON implements json.Unmarshaler for Meta.
func (m *Meta) UnmarshalJSON(data []byte) error {
	v, err := ParseMetaValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Meta)
	if !ok {
		return fmt.Errorf("meta: expected object, got %T", v)
	}
	*m = obj
	return nil
}

// ParseMeta decodes serialized meta. An empty input yields an empty Meta.
func ParseMeta(data []byte) (Meta, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Meta{}, nil
	}
	var m Meta
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseMetaValue decodes a JSON document into a MetaValue.
// Floats are rejected; null decodes to MetaNull.
func ParseMetaValue(data []byte) (MetaValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return ToMetaValue(raw)
}

// ToMetaValue converts plain Go values (as produced by encoding/json, CUE
// or YAML decoding) into a MetaValue.
func ToMetaValue(v any) (MetaValue, error) {
	switch val := v.(type) {
	case nil:
		return MetaNull{}, nil
	case MetaValue:
		return val, nil
	case bool:
		return MetaBool(val), nil
	case string:
		return MetaString(val), nil
	case int:
		return MetaInt(val), nil
	case int64:
		return MetaInt(val), nil
	case uint64:
		return MetaInt(int64(val)), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not allowed in meta: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return MetaInt(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not allowed in meta: %v", val)
	case []any:
		out := make(MetaList, len(val))
		for i, elem := range val {
			mv, err := ToMetaValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = mv
		}
		return out, nil
	case map[string]any:
		out := make(Meta, len(val))
		for k, elem := range val {
			mv, err := ToMetaValue(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			out[k] = mv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported meta type: %T", v)
	}
}

// ToMeta converts a plain Go map into Meta.
func ToMeta(m map[string]any) (Meta, error) {
	if m == nil {
		return Meta{}, nil
	}
	v, err := ToMetaValue(m)
	if err != nil {
		return nil, err
	}
	return v.(Meta), nil
}
