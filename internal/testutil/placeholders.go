package testutil

import (
	"fmt"
	"sync"
)

// PlaceholderSequence hands out deterministic placeholder tokens:
// PREFIX_1, PREFIX_2, ...
//
// The same sequence of calls always yields the same tokens, so packaged
// test fixtures compare byte for byte across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type PlaceholderSequence struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewPlaceholderSequence creates a sequence. An empty prefix defaults to
// "PLACEHOLDER".
//
// The first call to Next() returns PREFIX_1.
func NewPlaceholderSequence(prefix string) *PlaceholderSequence {
	if prefix == "" {
		prefix = "PLACEHOLDER"
	}
	return &PlaceholderSequence{prefix: prefix}
}

// Next returns the next token.
func (p *PlaceholderSequence) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return fmt.Sprintf("%s_%d", p.prefix, p.seq)
}

// Reset restarts the sequence. After Reset(), Next() returns PREFIX_1.
func (p *PlaceholderSequence) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq = 0
}
