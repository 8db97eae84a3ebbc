package email

import (
	"go.uber.org/fx"

	"github.com/capstonehub/capstonehub/internal/dispatch"
)

// Module provides the email producer service, sender, templates, and the
// email-dispatch worker pool.
var Module = fx.Module("email",
	fx.Provide(
		NewTemplateService,
		NewSender,
		NewService,
		fx.Annotate(NewPool, fx.ResultTags(dispatch.PoolGroup)),
	),
)
