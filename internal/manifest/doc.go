// Package manifest loads stitch manifests: CUE descriptions of a set of
// packaged bundles, the dependencies between them, and the text each
// bundle was packaged to. A manifest compiles into an in-memory bundle
// graph that the reference resolver can stitch.
//
// # Format
//
//	bundles: {
//		entry: {
//			name:     "index.js"
//			dist_dir: "dist"
//			contents: "import('PLACEHOLDER_1')"
//			dependencies: [{
//				id:        "PLACEHOLDER_1"
//				specifier: "./chunk.js"
//				type:      "url"
//				target:    "chunk"
//			}]
//		}
//		chunk: {
//			name:     "chunk.js"
//			dist_dir: "dist/out"
//		}
//	}
//	stitch: {
//		bundle:   "entry"
//		relative: true
//	}
//
// A dependency without a target is external. Bundles with behavior
// "inline" are packaged recursively and substituted into their parents.
//
// Manifests are unified with an embedded schema (schema.cue) before they
// are decoded, so type errors carry CUE source positions.
package manifest
