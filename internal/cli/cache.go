package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"

	"github.com/roach88/bundlecore/internal/asset"
	"github.com/roach88/bundlecore/internal/cache"
	"github.com/roach88/bundlecore/internal/codec"
	"github.com/roach88/bundlecore/internal/ir"
)

// NewCacheCommand creates the cache command and its subcommands.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and edit the artifact cache",
	}

	cmd.AddCommand(newCacheHasCommand(rootOpts))
	cmd.AddCommand(newCacheGetCommand(rootOpts))
	cmd.AddCommand(newCacheCatCommand(rootOpts))
	cmd.AddCommand(newCachePutCommand(rootOpts))
	cmd.AddCommand(newCacheListCommand(rootOpts))
	cmd.AddCommand(newCacheRemoveCommand(rootOpts))
	cmd.AddCommand(newCacheAssetsCommand(rootOpts))

	return cmd
}

// cacheRun opens the cache for the duration of fn.
func cacheRun(rootOpts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, f *OutputFormatter, s *cache.Store) error) error {
	f := newFormatter(rootOpts, cmd)
	s, err := openCache(rootOpts, newLogger(rootOpts, f.GetErrWriter()))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeCache, fmt.Sprintf("opening cache: %v", err), nil)
	}
	defer s.Close()
	f.VerboseLog("Using cache at %s", s.Dir())
	return fn(cmd.Context(), f, s)
}

// HasResult is the output of cache has.
type HasResult struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
	Large bool   `json:"large"`
}

func newCacheHasCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "has <key>",
		Short:         "Report whether a value or large blob exists",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheRun(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *cache.Store) error {
				key := args[0]
				value, err := s.Has(ctx, key)
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
				}
				large, err := s.HasLargeBlob(ctx, key)
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
				}

				var text string
				switch {
				case value && large:
					text = key + ": value, large blob"
				case value:
					text = key + ": value"
				case large:
					text = key + ": large blob"
				default:
					text = key + ": absent"
				}
				return f.Success(text, HasResult{Key: key, Value: value, Large: large})
			})
		},
	}
}

// GetResult is the output of cache get.
type GetResult struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
	Size int    `json:"size"`
	// Value is CBOR diagnostic notation for structured values and the
	// text of UTF-8 blobs.
	Value string `json:"value"`
}

func newCacheGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print an inline value",
		Long: `Print the inline value stored under a key. Structured values are
shown in CBOR diagnostic notation; text blobs are printed as is.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheRun(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *cache.Store) error {
				key := args[0]
				info, ok, err := lookupEntry(ctx, s, key)
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
				}
				if !ok {
					return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("key not found: %s", key), nil)
				}
				data, err := s.GetBlob(ctx, key)
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
				}

				res := GetResult{Key: key, Kind: info.Kind, Size: len(data)}
				switch {
				case info.Kind == "value":
					if res.Value, err = codec.Diagnose(data); err != nil {
						return f.Fail(ExitFailure, ErrCodeCache, fmt.Sprintf("decoding %s: %v", key, err), nil)
					}
				case utf8.Valid(data):
					res.Value = string(data)
				default:
					res.Value = fmt.Sprintf("<%d bytes of binary data>", len(data))
				}
				return f.Success(res.Value, res)
			})
		},
	}
}

// lookupEntry finds the listing of exactly key.
func lookupEntry(ctx context.Context, s *cache.Store, key string) (cache.EntryInfo, bool, error) {
	infos, err := s.List(ctx, key)
	if err != nil {
		return cache.EntryInfo{}, false, err
	}
	for _, info := range infos {
		if info.Key == key {
			return info, true, nil
		}
	}
	return cache.EntryInfo{}, false, nil
}

func newCacheCatCommand(rootOpts *RootOptions) *cobra.Command {
	var large bool

	cmd := &cobra.Command{
		Use:           "cat <key>",
		Short:         "Write a blob to stdout",
		Long:          `Write the raw bytes of a blob, streamed value or (with --large) chunked large blob to stdout.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheRun(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *cache.Store) error {
				key := args[0]
				if large {
					ok, err := s.HasLargeBlob(ctx, key)
					if err != nil {
						return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
					}
					if !ok {
						return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("large blob not found: %s", key), nil)
					}
					data, err := s.GetLargeBlob(ctx, key)
					if err != nil {
						return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
					}
					_, err = f.Writer.Write(data)
					return err
				}

				rc, err := s.GetStream(ctx, key)
				if ir.IsNotFound(err) {
					return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("key not found: %s", key), nil)
				}
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
				}
				defer rc.Close()
				_, err = io.Copy(f.Writer, rc)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&large, "large", false, "read a chunked large blob")
	return cmd
}

// PutResult is the output of cache put.
type PutResult struct {
	Key   string `json:"key"`
	Mode  string `json:"mode"` // "blob" | "stream" | "large" | "value"
	Bytes int64  `json:"bytes,omitempty"`
}

func newCachePutCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		stream bool
		large  bool
		value  bool
	)

	cmd := &cobra.Command{
		Use:   "put <key> [file]",
		Short: "Store a blob read from a file or stdin",
		Long: `Store a blob under a key. By default the content is stored inline;
--stream writes it as a file-backed value and --large splits it into
chunks. --value reads one CBOR data item and stores it as a structured
value.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if countTrue(stream, large, value) > 1 {
				f := newFormatter(rootOpts, cmd)
				return f.Fail(ExitCommandError, ErrCodeInvalidInput, "--stream, --large and --value are mutually exclusive", nil)
			}
			return cacheRun(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *cache.Store) error {
				key := args[0]
				var in io.Reader = cmd.InOrStdin()
				if len(args) == 2 && args[1] != "-" {
					file, err := os.Open(args[1])
					if err != nil {
						return f.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
					}
					defer file.Close()
					in = file
				}
				counter := &countingReader{r: in}

				res := PutResult{Key: key}
				var err error
				switch {
				case stream:
					res.Mode = "stream"
					err = s.SetStream(ctx, key, counter)
				case large:
					res.Mode = "large"
					err = s.SetLargeBlobFromReader(ctx, key, counter)
				case value:
					res.Mode = "value"
					v, derr := decodeValue(counter)
					if derr != nil {
						return f.Fail(ExitCommandError, ErrCodeInvalidInput, derr.Error(), nil)
					}
					err = s.Set(ctx, key, v)
				default:
					res.Mode = "blob"
					var data []byte
					if data, err = io.ReadAll(counter); err == nil {
						err = s.SetBlob(ctx, key, data)
					}
				}
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
				}
				res.Bytes = counter.n
				return f.Success(fmt.Sprintf("Stored %d bytes under %s (%s)", res.Bytes, key, res.Mode), res)
			})
		},
	}

	cmd.Flags().BoolVar(&stream, "stream", false, "store as a file-backed value")
	cmd.Flags().BoolVar(&large, "large", false, "store as a chunked large blob")
	cmd.Flags().BoolVar(&value, "value", false, "decode the input as one CBOR data item and store it as a structured value")
	return cmd
}

func countTrue(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// decodeValue reads exactly one CBOR data item from r.
func decodeValue(r io.Reader) (any, error) {
	dec := codec.NewDecoder(r)
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding CBOR value: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("decoding CBOR value: trailing data after the first item")
	}
	return v, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ListResult is the output of cache ls.
type ListResult struct {
	Prefix  string            `json:"prefix"`
	Entries []cache.EntryInfo `json:"entries"`
	Summary ListSummary       `json:"summary"`
}

// ListSummary aggregates the sizes of listed entries.
type ListSummary struct {
	Count      int     `json:"count"`
	Size       int64   `json:"size"`
	StoredSize int64   `json:"stored_size"`
	MedianSize float64 `json:"median_size"`
}

func summarize(infos []cache.EntryInfo) ListSummary {
	sum := ListSummary{Count: len(infos)}
	if len(infos) == 0 {
		return sum
	}
	sizes := make(stats.Float64Data, len(infos))
	stored := make(stats.Float64Data, len(infos))
	for i, info := range infos {
		sizes[i] = float64(info.Size)
		stored[i] = float64(info.StoredSize)
	}
	total, _ := stats.Sum(sizes)
	totalStored, _ := stats.Sum(stored)
	sum.Size = int64(total)
	sum.StoredSize = int64(totalStored)
	sum.MedianSize, _ = stats.Median(sizes)
	return sum
}

func newCacheListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "ls [prefix]",
		Short:         "List inline values",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheRun(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *cache.Store) error {
				var prefix string
				if len(args) == 1 {
					prefix = args[0]
				}
				infos, err := s.List(ctx, prefix)
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
				}
				res := ListResult{Prefix: prefix, Entries: infos, Summary: summarize(infos)}
				return f.Success(formatEntries(res), res)
			})
		},
	}
}

func formatEntries(res ListResult) string {
	if len(res.Entries) == 0 {
		return "No entries"
	}
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tKIND\tSIZE\tSTORED\tCODEC")
	for _, info := range res.Entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", info.Key, info.Kind, info.Size, info.StoredSize, info.Compression)
	}
	w.Flush()
	fmt.Fprintf(&buf, "%d entries, %d bytes (%d stored)", res.Summary.Count, res.Summary.Size, res.Summary.StoredSize)
	return buf.String()
}

func newCacheRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	var large bool

	cmd := &cobra.Command{
		Use:           "rm <key>...",
		Short:         "Remove values or large blobs",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheRun(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *cache.Store) error {
				var errs []error
				for _, key := range args {
					if large {
						errs = append(errs, s.DeleteLargeBlob(ctx, key))
					} else {
						errs = append(errs, s.Delete(ctx, key))
					}
				}
				if err := errors.Join(errs...); err != nil {
					return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
				}
				return f.Success(fmt.Sprintf("Removed %d key(s)", len(args)), map[string]any{"removed": args})
			})
		},
	}

	cmd.Flags().BoolVar(&large, "large", false, "remove chunked large blobs")
	return cmd
}

// AssetSummary describes one committed asset in the persisted graph.
type AssetSummary struct {
	Address  ir.Address `json:"address"`
	ID       string     `json:"id"`
	FilePath string     `json:"file_path"`
	Type     string     `json:"type"`
	Size     int64      `json:"size"`
	Flags    ir.Flags   `json:"flags"`
}

func newCacheAssetsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "assets",
		Short:         "List committed assets of the persisted asset graph",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheRun(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, s *cache.Store) error {
				reg := asset.NewRegistry(s, asset.WithLogger(newLogger(rootOpts, f.GetErrWriter())))
				if err := reg.Load(ctx); err != nil {
					return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
				}

				summaries := make([]AssetSummary, 0, reg.Len())
				var buf bytes.Buffer
				w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ADDR\tFILE\tTYPE\tSIZE\tID")
				for i := range reg.Len() {
					c, err := reg.Committed(ir.Address(i))
					if err != nil {
						return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
					}
					sum := AssetSummary{
						Address:  c.Address(),
						ID:       c.ID(),
						FilePath: c.FilePath(),
						Type:     c.Type(),
						Size:     c.Stats().Size,
						Flags:    c.Flags(),
					}
					summaries = append(summaries, sum)
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", sum.Address, sum.FilePath, sum.Type, sum.Size, sum.ID)
				}
				w.Flush()

				text := strings.TrimSuffix(buf.String(), "\n")
				if len(summaries) == 0 {
					text = "No committed assets"
				}
				return f.Success(text, map[string]any{"assets": summaries})
			})
		},
	}
}
