package dashboard

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bedlink/bedlink/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dashboard")
	g.GET("/stats", h.Stats,
		auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse), auth.RequireHospital())
	g.GET("/system-stats", h.SystemStats, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Stats(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Stats(c.Request().Context(), actor.HospitalID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) SystemStats(c echo.Context) error {
	st, err := h.svc.SystemStats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
