// Package testutil provides fixtures shared by bundlecore tests: temporary
// cache stores, an in-memory bundle graph and deterministic placeholder
// tokens.
package testutil
