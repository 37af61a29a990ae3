// Package asset maintains the in-memory identity graph of build assets and
// persists committed assets through the artifact cache.
//
// An asset is either uncommitted (mutable, owned by the transform that is
// producing it) or committed (immutable, flattened into the persisted graph
// and addressed by an ir.Address). The Registry guarantees at most one live
// wrapper per identity in each category:
//
//   - *UncommittedAsset, keyed by the value record it wraps
//   - *Asset and *MutableAsset, read-only and mutable views over the same
//     uncommitted state
//   - *CommittedAsset, keyed by address
//   - *Dependency, keyed by dependency record (uncommitted) or address
//
// Identity maps hold weak pointers only. An entry is removed once its
// wrapper is garbage collected, and a later lookup builds an equivalent
// wrapper. Uncommitted identity is the value record itself rather than its
// derived ID, so SetType and SetEnvironment, which regenerate the ID, keep
// the same wrappers.
//
// Content of committed assets is never held in memory; it is fetched from
// the cache on each access.
package asset
