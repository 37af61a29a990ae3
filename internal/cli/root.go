package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/bundlecore/internal/cache"
)

// CacheDirEnv names the environment variable consulted when --cache-dir
// is not given.
const CacheDirEnv = "BUNDLECORE_CACHE_DIR"

// DefaultCacheDir is used when neither --cache-dir nor CacheDirEnv is set.
const DefaultCacheDir = ".bundlecore-cache"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	CacheDir    string
	Compression string // "none" | "lz4" | "zstd"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the bundlecore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bundlecore",
		Short: "Inspect a build cache and stitch bundles",
		Long: `bundlecore works on the persistent artifact cache of a bundler and
resolves the placeholder references between the bundles of a CUE manifest.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := cache.ParseCompressionTag(opts.Compression); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.CacheDir, "cache-dir", "", "cache directory (default $"+CacheDirEnv+" or "+DefaultCacheDir+")")
	cmd.PersistentFlags().StringVar(&opts.Compression, "compression", "zstd", "compression for new inline values (none|lz4|zstd)")

	cmd.AddCommand(NewCacheCommand(opts))
	cmd.AddCommand(NewStitchCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// ResolveCacheDir returns the cache directory from the flag, then the
// environment, then the default.
func (o *RootOptions) ResolveCacheDir() string {
	if o.CacheDir != "" {
		return o.CacheDir
	}
	if dir := os.Getenv(CacheDirEnv); dir != "" {
		return dir
	}
	return DefaultCacheDir
}

// newFormatter builds the formatter for one command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newLogger logs to w at debug level in verbose mode and warnings
// otherwise.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openCache opens the shared store for the resolved cache directory.
func openCache(opts *RootOptions, logger *slog.Logger) (*cache.Store, error) {
	storeOpts := []cache.Option{cache.WithLogger(logger)}
	if opts.Compression != "" {
		tag, err := cache.ParseCompressionTag(opts.Compression)
		if err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, cache.WithCompression(tag))
	}
	return cache.OpenShared(opts.ResolveCacheDir(), storeOpts...)
}
