package submissions

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/capstonehub/capstonehub/pkg/apperror"
)

// Handler handles HTTP requests for submissions
type Handler struct {
	svc *Service
}

// NewHandler creates a new submissions handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /api/submissions
func (h *Handler) Create(c echo.Context) error {
	req := &CreateRequest{}
	if err := c.Bind(req); err != nil {
		return apperror.ErrBadRequest.WithInternal(err)
	}

	sub, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, sub)
}

// Get handles GET /api/submissions/:id
func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return apperror.ErrBadRequest.WithMessage("submission id is required")
	}

	sub, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, sub)
}

// List handles GET /api/submissions
func (h *Handler) List(c echo.Context) error {
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	params := ListParams{
		Status:       Status(c.QueryParam("status")),
		StudentEmail: c.QueryParam("student"),
		AdviserEmail: c.QueryParam("adviser"),
		Limit:        limit,
		Offset:       offset,
	}

	submissions, total, err := h.svc.List(c.Request().Context(), params)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ListResponse{Data: submissions, Total: total})
}

// Decide handles PATCH /api/submissions/:id/decision
func (h *Handler) Decide(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return apperror.ErrBadRequest.WithMessage("submission id is required")
	}

	req := &DecisionRequest{}
	if err := c.Bind(req); err != nil {
		return apperror.ErrBadRequest.WithInternal(err)
	}

	sub, err := h.svc.Decide(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, sub)
}
