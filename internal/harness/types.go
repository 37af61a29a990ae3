package harness

import "github.com/roach88/bundlecore/internal/resolve"

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if the scenario's expectations all held.
	Pass bool `json:"pass"`

	// Bundle is the ID of the stitched bundle.
	Bundle string `json:"bundle"`

	// Contents is the stitched text as read back from the cache.
	Contents string `json:"contents"`

	// Mappings is the encoded mappings of the corrected source map, if
	// the bundle has one.
	Mappings string `json:"mappings,omitempty"`

	URLCorrections    []resolve.Correction `json:"url_corrections"`
	InlineCorrections []resolve.Correction `json:"inline_corrections"`

	// Err is the stitch error of a scenario that expects one.
	Err string `json:"error,omitempty"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:              true,
		URLCorrections:    []resolve.Correction{},
		InlineCorrections: []resolve.Correction{},
		Errors:            []string{},
	}
}

// AddError records a failed expectation and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// CorrectionCount is the number of corrections across both passes.
func (r *Result) CorrectionCount() int {
	return len(r.URLCorrections) + len(r.InlineCorrections)
}
