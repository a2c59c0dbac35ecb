package assets

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// LoadAll loads shaders concurrently. The result keeps the order of paths;
// the first failure cancels the remaining loads.
func LoadAll(ctx context.Context, paths []string) ([]*Shader, error) {
	shaders := make([]*Shader, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := LoadSPIRV(path)
			if err != nil {
				return err
			}
			shaders[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shaders, nil
}
