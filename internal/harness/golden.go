package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/bundlecore/internal/ir"
	"github.com/roach88/bundlecore/internal/resolve"
)

// Snapshot is the part of a result compared against golden files.
type Snapshot struct {
	ScenarioName      string
	Bundle            string
	Contents          string
	Mappings          string
	URLCorrections    []resolve.Correction
	InlineCorrections []resolve.Correction
	Err               string
}

// NewSnapshot captures result for scenario name.
func NewSnapshot(name string, result *Result) Snapshot {
	return Snapshot{
		ScenarioName:      name,
		Bundle:            result.Bundle,
		Contents:          result.Contents,
		Mappings:          result.Mappings,
		URLCorrections:    result.URLCorrections,
		InlineCorrections: result.InlineCorrections,
		Err:               result.Err,
	}
}

// toCanonicalMap converts s for ir.MarshalCanonical, which only handles
// plain values.
func (s Snapshot) toCanonicalMap() map[string]any {
	m := map[string]any{
		"scenario_name":      s.ScenarioName,
		"bundle":             s.Bundle,
		"contents":           s.Contents,
		"url_corrections":    correctionList(s.URLCorrections),
		"inline_corrections": correctionList(s.InlineCorrections),
	}
	if s.Mappings != "" {
		m["mappings"] = s.Mappings
	}
	if s.Err != "" {
		m["error"] = s.Err
	}
	return m
}

func correctionList(cs []resolve.Correction) []any {
	out := make([]any, len(cs))
	for i, c := range cs {
		out[i] = map[string]any{
			"line":   c.Line,
			"column": c.Column,
			"length": c.Length,
			"delta":  c.Delta,
		}
	}
	return out
}

// MarshalCanonical renders s as canonical JSON.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden runs scenario and compares its snapshot against
// testdata/golden/<scenario.Name>.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(name, result).MarshalCanonical()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
