package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns
// the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertContentsEqual:
		if result.Contents != a.Expect {
			return &AssertionError{Type: a.Type, Expected: quote(a.Expect), Actual: quote(result.Contents)}
		}
	case AssertContentsContains:
		if !strings.Contains(result.Contents, a.Expect) {
			return &AssertionError{Type: a.Type, Expected: "contents containing " + quote(a.Expect), Actual: quote(result.Contents)}
		}
	case AssertContentsNotContains:
		if strings.Contains(result.Contents, a.Expect) {
			return &AssertionError{Type: a.Type, Expected: "contents without " + quote(a.Expect), Actual: quote(result.Contents)}
		}
	case AssertCorrectionCount:
		if n := result.CorrectionCount(); n != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d corrections", a.Count), Actual: fmt.Sprintf("%d corrections", n)}
		}
	case AssertMappingsEqual:
		if result.Mappings != a.Expect {
			return &AssertionError{Type: a.Type, Expected: quote(a.Expect), Actual: quote(result.Mappings)}
		}
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
	return nil
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
