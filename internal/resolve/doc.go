// Package resolve rewrites dependency placeholders in packaged bundle text
// into their final form and keeps an attached source map aligned.
//
// Packagers emit an opaque placeholder per dependency because final URLs
// are not known when a bundle is packaged. Two passes replace them:
//
//   - ReplaceURLReferences substitutes URL dependencies with the
//     referenced bundle's relative path or absolute URL, or with the
//     original specifier when the dependency did not resolve to a bundle.
//   - ReplaceInlineReferences substitutes dependencies on inline bundles
//     with that bundle's packaged contents.
//
// Both passes share PerformReplacement, a single left-to-right scan that
// always prefers the longest placeholder and records one Correction per
// length-changing substitution. ApplyCorrections replays corrections onto
// a source map.
//
// The bundle graph and the packager are collaborators behind the
// BundleGraph interface and the InlineContentsFunc callback.
package resolve
