// Package codec provides the deterministic CBOR encoding used for
// structured cache values and the persisted asset graph.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. The same
// logical value always produces identical bytes, so a value written by one
// build compares equal to the value written by the next.
//
// Struct types use json tags; fxamacker/cbor falls back to them when no
// cbor tag is present, so record types serialize the same way in CLI JSON
// output and in the cache.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Cache values decoded into any (AST programs, ad-hoc values)
		// must come back as map[string]any, not map[any]any, so they
		// stay usable with encoding/json and ordinary Go code.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// NewDecoder returns a decoder that reads successive CBOR data items from
// r. The CLI uses it to read structured values from stdin.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for data.
// Used by the CLI to print structured cache values.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
