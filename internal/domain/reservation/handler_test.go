package reservation_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedlink/bedlink/internal/domain/reservation"
	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/auth"
)

func newContext(f *fixture, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithActor(req.Context(), f.actor))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Reserve(t *testing.T) {
	f := newFixture(t, 2, reservation.DefaultConfig())
	h := reservation.NewHandler(f.svc)

	c, rec := newContext(f, http.MethodPost, "/api/v1/beds/reserve",
		`{"ward_id":"`+f.ward.ID.String()+`","priority":"critical","reservation_hours":3}`)
	require.NoError(t, h.Reserve(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Reservation   reservation.Reservation `json:"reservation"`
		AvailableBeds int                     `json:"available_beds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.AvailableBeds)
	assert.Equal(t, reservation.PriorityCritical, body.Reservation.Priority)
	assert.True(t, f.now.Add(3*time.Hour).Equal(body.Reservation.ExpiresAt))
}

func TestHandler_Reserve_BadInput(t *testing.T) {
	f := newFixture(t, 2, reservation.DefaultConfig())
	h := reservation.NewHandler(f.svc)

	for _, body := range []string{
		`{"ward_id":"nope"}`,
		`{"ward_id":"` + f.ward.ID.String() + `","reservation_hours":0}`,
	} {
		c, _ := newContext(f, http.MethodPost, "/api/v1/beds/reserve", body)
		err := h.Reserve(c)
		require.Error(t, err, body)
		assert.Equal(t, apperr.ReasonValidationFailed, apperr.ReasonOf(err), body)
	}
}

func TestHandler_Release(t *testing.T) {
	f := newFixture(t, 1, reservation.DefaultConfig())
	h := reservation.NewHandler(f.svc)
	res := f.reserve(t)

	for _, want := range []string{reservation.OutcomeReleased, reservation.OutcomeAlreadyReleased} {
		c, rec := newContext(f, http.MethodDelete, "/api/v1/beds/reserved/"+res.ID.String(), "")
		c.SetParamNames("id")
		c.SetParamValues(res.ID.String())
		require.NoError(t, h.Release(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"outcome":"`+want+`"`)
	}
	assert.Equal(t, 1, f.available(t))
}

func TestHandler_List(t *testing.T) {
	f := newFixture(t, 3, reservation.DefaultConfig())
	h := reservation.NewHandler(f.svc)
	f.reserve(t)
	f.reserve(t)

	c, rec := newContext(f, http.MethodGet, "/api/v1/beds/reserved?status=active&limit=1", "")
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data    []reservation.Reservation `json:"data"`
		Total   int                       `json:"total"`
		HasMore bool                      `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, 2, body.Total)
	assert.True(t, body.HasMore)
}

func TestHandler_Get_InvalidID(t *testing.T) {
	f := newFixture(t, 1, reservation.DefaultConfig())
	h := reservation.NewHandler(f.svc)

	c, _ := newContext(f, http.MethodGet, "/api/v1/beds/reserved/x", "")
	c.SetParamNames("id")
	c.SetParamValues("x")
	err := h.Get(c)
	assert.Equal(t, apperr.ReasonValidationFailed, apperr.ReasonOf(err))
}
