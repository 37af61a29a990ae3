package cache

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Stores opened with OpenShared, keyed by absolute cleaned directory.
var (
	sharedMu     sync.Mutex
	sharedStores = map[string]*Store{}
)

// OpenShared returns the process-wide Store for dir, opening it on first
// use. Every caller in a process that names the same directory gets the
// same handle and therefore sees the same commits without Refresh.
// Options only apply when the store is first opened.
func OpenShared(dir string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory %s: %w", dir, err)
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if s, ok := sharedStores[abs]; ok {
		return s, nil
	}
	s, err := Open(abs, opts...)
	if err != nil {
		return nil, err
	}
	s.shared = true
	sharedStores[abs] = s
	return s, nil
}

// unregisterShared forgets s so the next OpenShared reopens the directory.
func unregisterShared(s *Store) {
	if !s.shared {
		return
	}
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedStores[s.dir] == s {
		delete(sharedStores, s.dir)
	}
}

// Descriptor is the serializable identity of a Store: enough to address the
// same on-disk data from another process or goroutine.
type Descriptor struct {
	Dir       string `json:"dir" cbor:"dir"`
	ChunkSize int    `json:"chunk_size,omitempty" cbor:"chunk_size,omitempty"`
}

// Descriptor returns the descriptor of s.
func (s *Store) Descriptor() Descriptor {
	return Descriptor{Dir: s.dir, ChunkSize: s.cfg.chunkSize}
}

// FromDescriptor reconstructs a Store handle from d. It goes through
// OpenShared, so it is idempotent and succeeds on a populated directory.
func FromDescriptor(d Descriptor, opts ...Option) (*Store, error) {
	if d.Dir == "" {
		return nil, fmt.Errorf("cache descriptor: empty directory")
	}
	if d.ChunkSize > 0 {
		opts = append([]Option{WithChunkSize(d.ChunkSize)}, opts...)
	}
	return OpenShared(d.Dir, opts...)
}
