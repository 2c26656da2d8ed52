package reservation

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/auth"
	"github.com/bedlink/bedlink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/beds",
		auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse),
		auth.RequireHospital())
	g.POST("/reserve", h.Reserve)
	g.GET("/reserved", h.List)
	g.GET("/reserved/:id", h.Get)
	g.DELETE("/reserved/:id", h.Release)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid reservation id")
	}
	return id, nil
}

func (h *Handler) Reserve(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	var body createRequest
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body")
	}
	wardID, err := uuid.Parse(body.WardID)
	if err != nil {
		return apperr.Validation("ward_id must be a valid UUID")
	}
	req := ReserveRequest{
		WardID:   wardID,
		Priority: Priority(body.Priority),
		Notes:    body.Notes,
	}
	if body.ReservationHours != nil {
		if *body.ReservationHours < 1 {
			return apperr.Validation("reservation_hours must be at least 1")
		}
		req.TTL = time.Duration(*body.ReservationHours) * time.Hour
	}

	res, w, err := h.svc.Reserve(c.Request().Context(), actor, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, reserveResponse{Reservation: res, AvailableBeds: w.AvailableBeds})
}

func (h *Handler) List(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	var status *Status
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		status = &st
	}
	var wardID *uuid.UUID
	if v := c.QueryParam("ward_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("ward_id must be a valid UUID")
		}
		wardID = &id
	}

	p := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), actor, status, wardID, p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Reservation{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Release(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	result, err := h.svc.Release(c.Request().Context(), &actor, id, ReasonCancelled)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
