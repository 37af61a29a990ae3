package asset

import "log/slog"

// DefaultLargeContentThreshold is the content size above which Commit
// stores content as a chunked large blob instead of an inline value.
const DefaultLargeContentThreshold = 8 << 20

// GraphKey is the cache key of the persisted asset graph.
const GraphKey = "asset-graph"

type config struct {
	largeThreshold int
	logger         *slog.Logger
}

func defaultConfig() config {
	return config{
		largeThreshold: DefaultLargeContentThreshold,
		logger:         slog.Default(),
	}
}

// Option configures a Registry.
type Option func(*config)

// WithLargeContentThreshold sets the content size (bytes) above which
// committed content goes through the cache's large-blob API.
func WithLargeContentThreshold(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.largeThreshold = n
		}
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
