// Package sourcemap models version 3 source maps closely enough to shift
// generated columns after text rewriting and re-serialize the result.
//
// Mappings are held decoded, one slice of segments per generated line.
// Segments keep their field count (1, 4 or 5) so encoding reproduces the
// input for any map whose segments are in generated-column order.
package sourcemap
