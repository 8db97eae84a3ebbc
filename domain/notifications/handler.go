package notifications

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/capstonehub/capstonehub/pkg/apperror"
)

// Handler handles HTTP requests for notifications
type Handler struct {
	svc *Service
}

// NewHandler creates a new notifications handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// recipient extracts the recipient identity from the request
func recipient(c echo.Context) (string, error) {
	email := c.QueryParam("recipient")
	if email == "" {
		return "", apperror.ErrBadRequest.WithMessage("recipient query parameter is required")
	}
	return email, nil
}

// List handles GET /api/notifications
func (h *Handler) List(c echo.Context) error {
	email, err := recipient(c)
	if err != nil {
		return err
	}

	params := ListParams{
		UnreadOnly: c.QueryParam("unread_only") == "true",
	}

	notifications, err := h.svc.List(c.Request().Context(), email, params)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ListResponse{Data: notifications})
}

// GetStats handles GET /api/notifications/stats
func (h *Handler) GetStats(c echo.Context) error {
	email, err := recipient(c)
	if err != nil {
		return err
	}

	stats, err := h.svc.GetStats(c.Request().Context(), email)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}

// MarkRead handles PATCH /api/notifications/:id/read
func (h *Handler) MarkRead(c echo.Context) error {
	email, err := recipient(c)
	if err != nil {
		return err
	}

	id := c.Param("id")
	if id == "" {
		return apperror.ErrBadRequest.WithMessage("notification id is required")
	}

	if err := h.svc.MarkRead(c.Request().Context(), email, id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "read"})
}

// MarkAllRead handles POST /api/notifications/mark-all-read
func (h *Handler) MarkAllRead(c echo.Context) error {
	email, err := recipient(c)
	if err != nil {
		return err
	}

	count, err := h.svc.MarkAllRead(c.Request().Context(), email)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": "marked_all_read",
		"count":  count,
	})
}

// Dismiss handles DELETE /api/notifications/:id
func (h *Handler) Dismiss(c echo.Context) error {
	email, err := recipient(c)
	if err != nil {
		return err
	}

	id := c.Param("id")
	if id == "" {
		return apperror.ErrBadRequest.WithMessage("notification id is required")
	}

	if err := h.svc.Dismiss(c.Request().Context(), email, id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "dismissed"})
}
