package ir

// Version constants for persisted records.
const (
	// CacheVersion is mixed into every content key. Bumping it orphans all
	// previously written blobs.
	CacheVersion = "1"

	// GraphVersion is the persisted asset graph schema version.
	GraphVersion = 1
)
