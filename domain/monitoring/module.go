package monitoring

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/capstonehub/capstonehub/internal/dispatch"
)

// Module contributes the Prometheus event sink to every dispatch pool and
// serves the scrape endpoint.
var Module = fx.Module("monitoring",
	fx.Provide(
		fx.Annotate(
			func() dispatch.EventSink { return NewMetricsSink() },
			fx.ResultTags(dispatch.SinkGroup),
		),
	),
	fx.Invoke(RegisterRoutes),
)

// RegisterRoutes registers the Prometheus scrape endpoint
func RegisterRoutes(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
