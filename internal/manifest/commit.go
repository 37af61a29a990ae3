package manifest

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/roach88/bundlecore/internal/asset"
	"github.com/roach88/bundlecore/internal/ir"
	"github.com/roach88/bundlecore/internal/resolve"
)

// OutputEnv is the environment stitched bundles are committed under.
var OutputEnv = ir.Environment{Context: "browser", OutputFormat: "esm"}

// CommitOutput commits a stitched bundle to reg as an asset keyed by the
// bundle's output path. Committing the same bundle again reuses its
// address.
func CommitOutput(ctx context.Context, reg *asset.Registry, b *resolve.Bundle, out *StitchResult) (*asset.CommittedAsset, error) {
	u, err := reg.NewAsset(asset.AssetOptions{
		FilePath:       b.FilePath(),
		Type:           strings.TrimPrefix(path.Ext(b.Name), "."),
		Env:            OutputEnv,
		BundleBehavior: b.BundleBehavior,
	})
	if err != nil {
		return nil, err
	}
	if err := u.SetCode(out.Contents); err != nil {
		return nil, err
	}
	if out.Map != nil {
		if err := u.SetMap(out.Map); err != nil {
			return nil, err
		}
	}
	addr, err := reg.Commit(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", b.ID, err)
	}
	return reg.Committed(addr)
}
