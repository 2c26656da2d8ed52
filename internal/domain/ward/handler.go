package ward

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse))
	readGroup.GET("/wards/:id/availability", h.GetAvailability)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/wards", h.CreateWard)
	adminGroup.PATCH("/wards/:id/capacity", h.UpdateCapacity, auth.RequireHospital())
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

func (h *Handler) CreateWard(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	var req CreateWardRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	w, err := h.svc.CreateWard(c.Request().Context(), actor, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateCapacity(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateCapacityRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.TotalBeds == nil {
		return apperr.Validation("total_beds is required")
	}
	w, err := h.svc.UpdateCapacity(c.Request().Context(), actor, id, *req.TotalBeds)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}
