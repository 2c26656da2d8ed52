package referral

import (
	"net/http"

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
	g := api.Group("/referrals", auth.RequireHospital())

	readers := auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse)
	g.GET("", h.List, readers)
	g.GET("/:id", h.Get, readers)

	clinicians := auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor)
	g.POST("", h.Create, clinicians)
	g.PATCH("/:id/accept", h.Accept, clinicians)
	g.PATCH("/:id/reject", h.Reject, clinicians)
	g.PATCH("/:id/cancel", h.Cancel, clinicians)

	g.POST("/:id/complete", h.Complete, readers)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid referral id")
	}
	return id, nil
}

func parseUUIDField(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("%s must be a valid UUID", field)
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	var body createBody
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body")
	}
	req := CreateRequest{Reason: body.Reason}
	if req.PatientID, err = parseUUIDField(body.PatientID, "patient_id"); err != nil {
		return err
	}
	if req.FromWardID, err = parseUUIDField(body.FromWardID, "from_ward_id"); err != nil {
		return err
	}
	if req.ToHospitalID, err = parseUUIDField(body.ToHospitalID, "to_hospital_id"); err != nil {
		return err
	}

	result, err := h.svc.Create(c.Request().Context(), actor, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
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
	p := pagination.FromContext(c)
	items, total, direction, err := h.svc.List(c.Request().Context(), actor, Direction(c.QueryParam("direction")), status, p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Referral{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"referrals":  items,
		"direction":  direction,
		"pagination": pagination.NewResponse(nil, total, p),
	})
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
	ref, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"referral": ref})
}

func (h *Handler) Accept(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body acceptBody
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body")
	}
	wardID, err := parseUUIDField(body.WardID, "ward_id")
	if err != nil {
		return err
	}
	req := AcceptRequest{WardID: wardID}
	if body.ReservationHours != nil {
		if *body.ReservationHours < 1 {
			return apperr.Validation("reservation_hours must be at least 1")
		}
		req.ReservationHours = *body.ReservationHours
	}

	result, err := h.svc.Accept(c.Request().Context(), actor, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Reject(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body rejectBody
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body")
	}
	ref, err := h.svc.Reject(c.Request().Context(), actor, id, body.RejectionReason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"referral": ref,
		"message":  "Referral rejected.",
	})
}

func (h *Handler) Complete(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body completeBody
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body")
	}
	var wardID *uuid.UUID
	if body.WardID != "" {
		w, err := parseUUIDField(body.WardID, "ward_id")
		if err != nil {
			return err
		}
		wardID = &w
	}
	result, err := h.svc.Complete(c.Request().Context(), actor, id, wardID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Cancel(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	result, err := h.svc.Cancel(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
