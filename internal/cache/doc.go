// Package cache provides the persistent artifact store used by bundlecore
// to reuse build outputs across builds and processes.
//
// A Store is rooted at one cache directory and exposes two physical value
// shapes under a single key namespace:
//   - Inline values: rows in an SQLite database (cache.db). Structured
//     values are CBOR encoded (internal/codec); raw blobs are stored as is.
//     Rows at or above a size threshold are compressed (zstd or LZ4) with
//     fallback to none when compression does not pay.
//   - File values: streams and large-blob chunks under files/. A large
//     blob occupies key-0, key-1, ... key-(N-1); chunk 0's presence is the
//     existence test. Callers must not pick keys that collide with this
//     suffix convention.
//
// # Read views
//
// Reads go through a long-lived read transaction on a dedicated
// connection. In WAL mode that transaction pins a snapshot, so commits
// made by other handles (other processes, or another Store on the same
// directory) are not visible until Refresh is called. Writes made through
// a Store drop its own read view so they are visible immediately.
//
// # Database Configuration
//
//   - WAL mode: concurrent readers during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - mmap_size: the database file is memory-mapped for reads
//
// # Errors
//
// GetBlob and GetStream return an ir NOT_FOUND error for a missing key,
// while Get, GetBuffer and HasLargeBlob report absence as a normal result.
// A failed SetLargeBlob returns PARTIAL_WRITE: the key must be rewritten
// in full. A failing source reader in SetStream returns UPSTREAM_IO and
// leaves no partial value behind.
package cache
