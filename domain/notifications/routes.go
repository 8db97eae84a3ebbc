package notifications

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers notification routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/notifications")

	g.GET("", h.List)
	g.GET("/stats", h.GetStats)
	g.PATCH("/:id/read", h.MarkRead)
	g.POST("/mark-all-read", h.MarkAllRead)
	g.DELETE("/:id", h.Dismiss)
}
