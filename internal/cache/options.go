package cache

import "log/slog"

// DefaultChunkSize is the size of one large-blob chunk (256 MiB).
const DefaultChunkSize = 256 << 20

// DefaultCompressThreshold is the smallest inline value that is
// considered for compression.
const DefaultCompressThreshold = 4 << 10

// DefaultMmapSize is the memory-mapped window over the database file.
const DefaultMmapSize = 1 << 30

type config struct {
	chunkSize         int
	compression       CompressionTag
	compressThreshold int
	mmapSize          int64
	logger            *slog.Logger
}

func defaultConfig() config {
	return config{
		chunkSize:         DefaultChunkSize,
		compression:       CompressionZstd,
		compressThreshold: DefaultCompressThreshold,
		mmapSize:          DefaultMmapSize,
		logger:            slog.Default(),
	}
}

// Option configures a Store.
type Option func(*config)

// WithChunkSize sets the large-blob chunk size in bytes.
//
// Default: 256 MiB (DefaultChunkSize)
// Use WithChunkSize(4) in tests to exercise multi-chunk paths cheaply.
func WithChunkSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithCompression selects the codec for inline values at or above the
// compression threshold. CompressionNone disables compression.
func WithCompression(tag CompressionTag) Option {
	return func(c *config) {
		c.compression = tag
	}
}

// WithCompressThreshold sets the smallest inline value that is compressed.
func WithCompressThreshold(n int) Option {
	return func(c *config) {
		c.compressThreshold = n
	}
}

// WithMmapSize sets SQLite's mmap_size in bytes. Zero disables mapping.
func WithMmapSize(n int64) Option {
	return func(c *config) {
		c.mmapSize = n
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
