package manifest

import (
	"fmt"

	"github.com/roach88/bundlecore/internal/sourcemap"
)

// Validation error codes (E200-E299)
const (
	ErrUnknownTarget        = "E201" // dependency target names no bundle
	ErrDuplicateDependency  = "E202" // dependency ID repeated within a bundle
	ErrDuplicatePlaceholder = "E203" // two dependencies emit the same token
	ErrUnknownStitchBundle  = "E204" // stitch.bundle names no bundle
	ErrInvalidMap           = "E205" // map is not a version 3 source map
	ErrInlineCycle          = "E206" // inline bundles embed each other
)

// ValidationError is one problem found in a compiled manifest.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks cross references a schema can not express. It returns
// every problem found.
func Validate(m *Manifest) []ValidationError {
	var errs []ValidationError

	ids := make(map[string]bool, len(m.Bundles))
	for _, b := range m.Bundles {
		ids[b.ID] = true
	}

	for _, b := range m.Bundles {
		line := 0
		if b.Pos.IsValid() {
			line = b.Pos.Line()
		}
		field := "bundles." + b.ID

		seenID := make(map[string]bool, len(b.Dependencies))
		seenToken := make(map[string]string, len(b.Dependencies))
		for i, d := range b.Dependencies {
			depField := fmt.Sprintf("%s.dependencies[%d]", field, i)
			if d.Target != "" && !ids[d.Target] {
				errs = append(errs, ValidationError{
					Field:   depField,
					Message: fmt.Sprintf("target %q is not a bundle", d.Target),
					Code:    ErrUnknownTarget,
					Line:    line,
				})
			}
			if seenID[d.ID] {
				errs = append(errs, ValidationError{
					Field:   depField,
					Message: fmt.Sprintf("dependency id %q is declared twice", d.ID),
					Code:    ErrDuplicateDependency,
					Line:    line,
				})
			}
			seenID[d.ID] = true

			token := d.Placeholder
			if token == "" {
				token = d.ID
			}
			if prev, ok := seenToken[token]; ok && prev != d.ID {
				errs = append(errs, ValidationError{
					Field:   depField,
					Message: fmt.Sprintf("placeholder %q is also used by %q", token, prev),
					Code:    ErrDuplicatePlaceholder,
					Line:    line,
				})
			}
			seenToken[token] = d.ID
		}

		if b.Map != "" {
			if _, err := sourcemap.Parse([]byte(b.Map)); err != nil {
				errs = append(errs, ValidationError{
					Field:   field + ".map",
					Message: err.Error(),
					Code:    ErrInvalidMap,
					Line:    line,
				})
			}
		}
	}

	if s := m.Stitch.Bundle; s != "" && !ids[s] {
		errs = append(errs, ValidationError{
			Field:   "stitch.bundle",
			Message: fmt.Sprintf("%q is not a bundle", s),
			Code:    ErrUnknownStitchBundle,
		})
	}

	for _, c := range AnalyzeInlineCycles(m) {
		errs = append(errs, ValidationError{
			Field:   "bundles." + c.Path[0],
			Message: c.Message,
			Code:    ErrInlineCycle,
		})
	}

	return errs
}
