package asset

import (
	"runtime"
	"sync"
	"weak"
)

// identityMap associates a key with a weakly held wrapper. Neither the
// map nor its cleanup keeps the wrapper alive.
type identityMap[K comparable, V any] struct {
	entries map[K]weak.Pointer[V]
}

func newIdentityMap[K comparable, V any]() identityMap[K, V] {
	return identityMap[K, V]{entries: make(map[K]weak.Pointer[V])}
}

// wrap returns the live wrapper for k or registers the one built by
// build. mu must guard m; it is held for the whole lookup-or-register so
// concurrent callers for the same key get the same wrapper. build runs
// with mu held and may return nil to register nothing.
func wrap[K comparable, V any](mu *sync.Mutex, m *identityMap[K, V], k K, build func() *V) *V {
	mu.Lock()
	defer mu.Unlock()

	if wp, ok := m.entries[k]; ok {
		if v := wp.Value(); v != nil {
			return v
		}
	}

	v := build()
	if v == nil {
		return nil
	}
	wp := weak.Make(v)
	m.entries[k] = wp
	runtime.AddCleanup(v, func(k K) {
		mu.Lock()
		defer mu.Unlock()
		// A newer wrapper may already be registered under k.
		if m.entries[k] == wp {
			delete(m.entries, k)
		}
	}, k)
	return v
}

// lookup returns the live wrapper for k, if any. mu must be held.
func (m *identityMap[K, V]) lookup(k K) *V {
	if wp, ok := m.entries[k]; ok {
		return wp.Value()
	}
	return nil
}

func (m *identityMap[K, V]) size() int {
	return len(m.entries)
}
