package submissions

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers submission routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/submissions")

	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id/decision", h.Decide)
}
