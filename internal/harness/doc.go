// Package harness runs stitch scenarios end to end.
//
// A scenario names a CUE manifest (see package manifest), the bundle to
// stitch, and assertions over the stitched output. The harness compiles
// the manifest, stitches the bundle, commits the result through an asset
// registry backed by a fresh cache, reads it back, and evaluates the
// assertions against what the cache returned.
//
// # Scenario Format
//
//	name: url_relative
//	description: "A URL dependency becomes a bundle-relative path"
//	manifest: ../manifests/chunk.cue
//	bundle: entry            # optional, overrides stitch.bundle
//	relative: true           # optional, overrides stitch.relative
//	assertions:
//	  - type: contents_equal
//	    expect: "import('./out/chunk.js')"
//	  - type: correction_count
//	    count: 1
//
// A scenario that expects stitching to fail sets expect_error to a
// substring of the error instead of listing assertions.
//
// # Assertion Types
//
//   - contents_equal: the stitched text equals expect
//   - contents_contains: the stitched text contains expect
//   - contents_not_contains: the stitched text does not contain expect
//   - correction_count: count length-changing substitutions across passes
//   - mappings_equal: the corrected source map's mappings equal expect
//
// # Golden Files
//
// RunWithGolden compares a canonical JSON snapshot of the result against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
