package admission

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
	g := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse))
	g.POST("/admissions", h.Create, auth.RequireHospital())
	g.POST("/beds/reserved/:id/complete", h.CompleteReservation, auth.RequireHospital())
	g.GET("/admissions/:id", h.Get)
	g.POST("/discharges", h.Discharge, auth.RequireHospital())
}

func parseUUID(raw, field string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("%s must be a valid UUID", field)
	}
	return &id, nil
}

// Create admits directly into a ward, or from a reservation when
// reservation_id is given.
func (h *Handler) Create(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	var body createRequest
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body")
	}
	wardID, err := parseUUID(body.WardID, "ward_id")
	if err != nil {
		return err
	}
	reservationID, err := parseUUID(body.ReservationID, "reservation_id")
	if err != nil {
		return err
	}
	patientID, err := parseUUID(body.PatientID, "patient_id")
	if err != nil {
		return err
	}
	ref := PatientRef{PatientID: patientID, Patient: body.Patient}

	ctx := c.Request().Context()
	var result *Result
	switch {
	case reservationID != nil:
		result, err = h.svc.AdmitFromReservation(ctx, actor, AdmitFromReservationRequest{
			ReservationID: *reservationID,
			PatientRef:    ref,
		})
	case wardID != nil:
		result, err = h.svc.Admit(ctx, actor, AdmitRequest{WardID: *wardID, PatientRef: ref})
	default:
		return apperr.Validation("ward_id or reservation_id is required")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// CompleteReservation turns a held bed into an admission. The reservation is
// only marked completed together with the admission that occupies its bed.
func (h *Handler) CompleteReservation(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	reservationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid reservation id")
	}
	var body completeReservationRequest
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body")
	}
	patientID, err := parseUUID(body.PatientID, "patient_id")
	if err != nil {
		return err
	}
	result, err := h.svc.AdmitFromReservation(c.Request().Context(), actor, AdmitFromReservationRequest{
		ReservationID: reservationID,
		PatientRef:    PatientRef{PatientID: patientID, Patient: body.Patient},
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid admission id")
	}
	result, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Discharge(c echo.Context) error {
	actor, err := auth.ActorFromEcho(c)
	if err != nil {
		return err
	}
	var body dischargeRequest
	if err := c.Bind(&body); err != nil {
		return apperr.Validation("invalid request body")
	}
	id, err := uuid.Parse(body.AdmissionID)
	if err != nil {
		return apperr.Validation("admission_id must be a valid UUID")
	}
	result, err := h.svc.Discharge(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
