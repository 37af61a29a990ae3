package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/bundlecore/internal/asset"
	"github.com/roach88/bundlecore/internal/cache"
	"github.com/roach88/bundlecore/internal/manifest"
)

// Harness runs scenarios against one cache.
type Harness struct {
	store  cache.Cache
	logger *slog.Logger
}

// New creates a harness that commits stitched output into store.
func New(store cache.Cache, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{store: store, logger: logger}
}

// Run executes a scenario in a fresh cache under a temporary directory
// that is removed afterwards.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "bundlecore-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	defer os.RemoveAll(dir)

	logger := slog.New(slog.DiscardHandler)
	store, err := cache.Open(dir, cache.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	defer store.Close()

	return New(store, logger).Run(ctx, scenario)
}

// Run executes a scenario and returns its result. An error is returned
// only when the scenario itself can not be executed; failed expectations
// are reported in the result.
//
// Execution flow:
//  1. Compile and validate the manifest
//  2. Stitch the selected bundle
//  3. Commit the output as an asset and read it back from the cache
//  4. Evaluate assertions (or the expected error)
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	m, err := manifest.Load(scenario.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	if scenario.Bundle != "" {
		m.Stitch.Bundle = scenario.Bundle
	}
	if scenario.Relative != nil {
		m.Stitch.Relative = *scenario.Relative
	}

	result := NewResult()
	result.Bundle = m.Stitch.Bundle

	stitchErr := h.stitch(ctx, m, result)
	switch {
	case scenario.ExpectError != "" && stitchErr == nil:
		result.AddError(fmt.Sprintf("expected error containing %q, stitch succeeded", scenario.ExpectError))
	case scenario.ExpectError != "":
		result.Err = stitchErr.Error()
		if !strings.Contains(result.Err, scenario.ExpectError) {
			result.AddError(fmt.Sprintf("expected error containing %q, got %q", scenario.ExpectError, result.Err))
		}
	case stitchErr != nil:
		return nil, stitchErr
	default:
		for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
			result.AddError(msg)
		}
	}

	h.logger.Debug("scenario finished", "scenario", scenario.Name, "pass", result.Pass)
	return result, nil
}

func (h *Harness) stitch(ctx context.Context, m *manifest.Manifest, result *Result) error {
	if errs := manifest.Validate(m); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid manifest: %s", strings.Join(msgs, "; "))
	}
	if m.Stitch.Bundle == "" {
		return fmt.Errorf("no bundle selected")
	}

	g, err := m.Graph()
	if err != nil {
		return err
	}
	b, _ := g.Bundle(m.Stitch.Bundle)
	opts := m.Stitch.Options()
	opts.Logger = h.logger
	out, err := g.Stitch(ctx, b, opts)
	if err != nil {
		return err
	}

	// The output goes through the registry so the scenario observes what a
	// later build would read back.
	reg := asset.NewRegistry(h.store, asset.WithLogger(h.logger))
	committed, err := manifest.CommitOutput(ctx, reg, b, out)
	if err != nil {
		return fmt.Errorf("failed to commit output: %w", err)
	}
	if result.Contents, err = committed.Code(ctx); err != nil {
		return fmt.Errorf("failed to read output: %w", err)
	}
	sm, err := committed.Map(ctx)
	if err != nil {
		return fmt.Errorf("failed to read map: %w", err)
	}
	if sm != nil {
		result.Mappings = sm.Mappings()
	}
	if out.URLCorrections != nil {
		result.URLCorrections = out.URLCorrections
	}
	if out.InlineCorrections != nil {
		result.InlineCorrections = out.InlineCorrections
	}
	return nil
}
