package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/bundlecore/internal/asset"
	"github.com/roach88/bundlecore/internal/manifest"
	"github.com/roach88/bundlecore/internal/resolve"
)

// StitchFlags holds the flags of the stitch command.
type StitchFlags struct {
	Bundle   string
	Absolute bool
	Out      string
	Commit   bool
}

// StitchOutput is the JSON payload of a successful stitch.
type StitchOutput struct {
	Bundle            string               `json:"bundle"`
	FilePath          string               `json:"file_path"`
	Contents          string               `json:"contents,omitempty"`
	Mappings          string               `json:"mappings,omitempty"`
	URLCorrections    []resolve.Correction `json:"url_corrections"`
	InlineCorrections []resolve.Correction `json:"inline_corrections"`
	Written           []string             `json:"written,omitempty"`
	AssetID           string               `json:"asset_id,omitempty"`
}

// NewStitchCommand creates the stitch command.
func NewStitchCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &StitchFlags{}

	cmd := &cobra.Command{
		Use:   "stitch <manifest>",
		Short: "Resolve the references of one bundle in a manifest",
		Long: `Stitch compiles a CUE manifest, validates it and rewrites every
placeholder in the selected bundle: URL references become relative or
absolute URLs and inline bundles are embedded.

The result is printed, or written to --out together with its source map.
With --commit it is also committed to the cache as an asset.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStitch(rootOpts, flags, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&flags.Bundle, "bundle", "b", "", "bundle to stitch (default stitch.bundle)")
	cmd.Flags().BoolVar(&flags.Absolute, "absolute", false, "write absolute URLs from public_url")
	cmd.Flags().StringVarP(&flags.Out, "out", "o", "", "write the stitched bundle to this file")
	cmd.Flags().BoolVar(&flags.Commit, "commit", false, "commit the output to the cache")

	return cmd
}

func runStitch(opts *RootOptions, flags *StitchFlags, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	logger := newLogger(opts, f.GetErrWriter())
	ctx := cmd.Context()

	m, err := manifest.Load(path)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeManifest, err.Error(), nil)
	}
	if flags.Bundle != "" {
		m.Stitch.Bundle = flags.Bundle
	}
	if flags.Absolute {
		m.Stitch.Relative = false
	}
	if m.Stitch.Bundle == "" {
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "no bundle selected: set stitch.bundle or --bundle", nil)
	}
	if errs := manifest.Validate(m); len(errs) > 0 {
		return f.Fail(ExitFailure, ErrCodeInvalid, fmt.Sprintf("manifest has %d error(s)", len(errs)), errs)
	}

	g, err := m.Graph()
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeManifest, err.Error(), nil)
	}
	b, _ := g.Bundle(m.Stitch.Bundle)
	stitchOpts := m.Stitch.Options()
	stitchOpts.Logger = logger

	out, err := g.Stitch(ctx, b, stitchOpts)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeStitch, err.Error(), nil)
	}
	f.VerboseLog("Stitched %s: %d URL and %d inline correction(s)", b.ID, len(out.URLCorrections), len(out.InlineCorrections))

	res := StitchOutput{
		Bundle:            b.ID,
		FilePath:          b.FilePath(),
		URLCorrections:    nonNil(out.URLCorrections),
		InlineCorrections: nonNil(out.InlineCorrections),
	}
	if out.Map != nil {
		res.Mappings = out.Map.Mappings()
	}

	if flags.Out != "" {
		written, err := writeOutput(flags.Out, out)
		res.Written = written
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
	} else {
		res.Contents = out.Contents
	}

	if flags.Commit {
		s, err := openCache(opts, logger)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeCache, fmt.Sprintf("opening cache: %v", err), nil)
		}
		defer s.Close()

		reg := asset.NewRegistry(s, asset.WithLogger(logger))
		if err := reg.Load(ctx); err != nil {
			return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
		}
		committed, err := manifest.CommitOutput(ctx, reg, b, out)
		if err == nil {
			err = reg.Flush(ctx)
		}
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeCache, err.Error(), nil)
		}
		res.AssetID = committed.ID()
		f.VerboseLog("Committed %s as asset %s at address %d", b.FilePath(), committed.ID(), committed.Address())
	}

	text := res.Contents
	if flags.Out != "" {
		text = fmt.Sprintf("Wrote %s", flags.Out)
	}
	return f.Success(text, res)
}

// writeOutput writes the contents to path and its source map, if any, to
// path.map. It returns the files written.
func writeOutput(path string, out *manifest.StitchResult) ([]string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(out.Contents), 0o644); err != nil {
		return nil, err
	}
	written := []string{path}
	if out.Map == nil {
		return written, nil
	}

	data, err := out.Map.MarshalJSON()
	if err != nil {
		return written, fmt.Errorf("encoding source map: %w", err)
	}
	mapPath := path + ".map"
	if err := os.WriteFile(mapPath, data, 0o644); err != nil {
		return written, fmt.Errorf("writing %s: %w", mapPath, err)
	}
	return append(written, mapPath), nil
}

func nonNil(cs []resolve.Correction) []resolve.Correction {
	if cs == nil {
		return []resolve.Correction{}
	}
	return cs
}
