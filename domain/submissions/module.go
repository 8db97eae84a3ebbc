package submissions

import (
	"go.uber.org/fx"

	"github.com/capstonehub/capstonehub/domain/originality"
)

// Module provides the submissions domain. The service doubles as the
// originality recorder so check results land back on the submission row.
var Module = fx.Module("submissions",
	fx.Provide(
		NewRepository,
		NewService,
		NewHandler,
		func(s *Service) originality.Recorder { return s },
	),
	fx.Invoke(RegisterRoutes),
)
