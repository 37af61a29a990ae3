// Package ir provides the foundational value types for bundlecore.
//
// This package contains record definitions, identity derivation and the
// shared error taxonomy. All other internal packages import ir; ir imports
// nothing internal. This keeps ir the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Identities are content-addressed: an asset ID is a pure function of
//     the parameters that affect its transformation (see hash.go)
//   - Identity hashing uses canonical JSON only (RFC 8785, NFC strings)
//   - Committed records pack boolean properties into Flags; callers test
//     bits, never field order
//   - Metadata values are constrained (no floats) so serialized meta is
//     byte-stable across builds
package ir
