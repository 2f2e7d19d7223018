package cli

import (
	"context"
	"io"

	"github.com/TwigBush/ordergate/internal/config"
	"github.com/TwigBush/ordergate/internal/di"
)

func buildApp(ctx context.Context, logOut io.Writer) (*di.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return di.Build(ctx, cfg, logOut)
}
