package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one stitch scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Manifest is the path to a CUE manifest file or directory. Relative
	// paths are resolved against the scenario file's directory.
	Manifest string `yaml:"manifest"`

	// Bundle overrides the manifest's stitch.bundle.
	Bundle string `yaml:"bundle,omitempty"`

	// Relative overrides the manifest's stitch.relative.
	Relative *bool `yaml:"relative,omitempty"`

	// ExpectError is a substring of the error stitching must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the stitched output.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Assertion validates stitched output.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Expect is the expected text (contents_*, mappings_equal).
	Expect string `yaml:"expect,omitempty"`

	// Count is the expected number of corrections (correction_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertContentsEqual       = "contents_equal"
	AssertContentsContains    = "contents_contains"
	AssertContentsNotContains = "contents_not_contains"
	AssertCorrectionCount     = "correction_count"
	AssertMappingsEqual       = "mappings_equal"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly. The manifest path is resolved against
// the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Manifest != "" && !filepath.IsAbs(scenario.Manifest) {
		scenario.Manifest = filepath.Join(filepath.Dir(path), scenario.Manifest)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Manifest == "" {
		return fmt.Errorf("manifest is required")
	}
	if _, err := os.Stat(s.Manifest); os.IsNotExist(err) {
		return fmt.Errorf("manifest not found: %s", s.Manifest)
	}

	if s.ExpectError != "" {
		if len(s.Assertions) > 0 {
			return fmt.Errorf("expect_error and assertions are mutually exclusive")
		}
		return nil
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertContentsContains, AssertContentsNotContains:
		if a.Expect == "" {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	case AssertContentsEqual, AssertMappingsEqual:
		// An empty expectation is meaningful.
	case AssertCorrectionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for correction_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
