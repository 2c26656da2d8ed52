package ward_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedlink/bedlink/internal/domain/ward"
	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/auth"
)

func newContext(actor auth.Actor, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_CreateWard(t *testing.T) {
	f := newFixture(t)
	h := ward.NewHandler(f.svc)

	c, rec := newContext(f.admin, http.MethodPost, "/api/v1/wards", `{"name":"Surgical","type":"surgical","total_beds":6}`)
	require.NoError(t, h.CreateWard(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available_beds":6`)
}

func TestHandler_UpdateCapacity(t *testing.T) {
	f := newFixture(t)
	h := ward.NewHandler(f.svc)
	w := f.ward(t, 2)

	c, rec := newContext(f.admin, http.MethodPatch, "/api/v1/wards/"+w.ID.String()+"/capacity", `{"total_beds":10}`)
	c.SetParamNames("id")
	c.SetParamValues(w.ID.String())
	require.NoError(t, h.UpdateCapacity(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_beds":10`)

	c, _ = newContext(f.admin, http.MethodPatch, "/api/v1/wards/"+w.ID.String()+"/capacity", `{}`)
	c.SetParamNames("id")
	c.SetParamValues(w.ID.String())
	err := h.UpdateCapacity(c)
	assert.Equal(t, apperr.ReasonValidationFailed, apperr.ReasonOf(err))
}

func TestHandler_GetAvailability(t *testing.T) {
	f := newFixture(t)
	h := ward.NewHandler(f.svc)
	w := f.ward(t, 2)

	c, rec := newContext(f.admin, http.MethodGet, "/api/v1/wards/"+w.ID.String()+"/availability", "")
	c.SetParamNames("id")
	c.SetParamValues(w.ID.String())
	require.NoError(t, h.GetAvailability(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reserved_beds":0`)
	assert.Contains(t, rec.Body.String(), `"occupied_beds":0`)
}
