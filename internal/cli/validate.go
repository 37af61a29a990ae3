package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bundlecore/internal/manifest"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Bundles int                        `json:"bundles"`
	Errors  []manifest.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a manifest without stitching",
		Long: `Validate compiles a CUE manifest file or directory against the
manifest schema, then checks dependency targets, placeholders, source
maps and inline bundle cycles.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	m, err := manifest.Load(path)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeManifest, err.Error(), nil)
	}
	f.VerboseLog("Compiled %d bundle(s) from %s", len(m.Bundles), path)

	errs := manifest.Validate(m)
	if len(errs) > 0 {
		if f.Format == "json" {
			if err := f.encode(Response{
				Status: "error",
				Data:   ValidationResult{Valid: false, Bundles: len(m.Bundles), Errors: errs},
				Error:  &ResponseError{Code: ErrCodeInvalid, Message: fmt.Sprintf("%d validation error(s)", len(errs))},
			}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(f.Writer, "Validation failed with %d error(s):\n", len(errs))
			for _, e := range errs {
				fmt.Fprintf(f.Writer, "  %s\n", e.Error())
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d validation error(s)", ErrCodeInvalid, len(errs)))
	}

	return f.Success(fmt.Sprintf("Manifest valid: %d bundle(s)", len(m.Bundles)),
		ValidationResult{Valid: true, Bundles: len(m.Bundles)})
}
