package originality

import (
	"go.uber.org/fx"

	"github.com/capstonehub/capstonehub/internal/dispatch"
)

// Module provides the originality provider, producer service, and the
// originality-check worker pool.
var Module = fx.Module("originality",
	fx.Provide(
		NewProvider,
		NewService,
		NewCheckProcessor,
		fx.Annotate(NewPool, fx.ResultTags(dispatch.PoolGroup)),
	),
)
