package referral_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedlink/bedlink/internal/domain/referral"
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

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func TestHandler_CreateAndAccept(t *testing.T) {
	f := newFixture(t)
	h := referral.NewHandler(f.svc)

	c, rec := newContext(f.sender, http.MethodPost, "/api/v1/referrals", `{
		"patient_id":"`+f.patientID.String()+`",
		"from_ward_id":"`+f.senderWard.ID.String()+`",
		"to_hospital_id":"`+f.receiver.HospitalID.String()+`",
		"reason":"suspected appendicitis"}`)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var created referral.CreateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, referral.StatusPending, created.Referral.Status)
	id := created.Referral.ID.String()

	c, _ = newContext(f.receiver, http.MethodPatch, "/api/v1/referrals/"+id+"/accept",
		`{"ward_id":"`+f.receiverWard.ID.String()+`","reservation_hours":0}`)
	err := h.Accept(withID(c, id))
	assert.Equal(t, apperr.ReasonValidationFailed, apperr.ReasonOf(err))

	c, rec = newContext(f.receiver, http.MethodPatch, "/api/v1/referrals/"+id+"/accept",
		`{"ward_id":"`+f.receiverWard.ID.String()+`","reservation_hours":4}`)
	require.NoError(t, h.Accept(withID(c, id)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var accepted referral.AcceptResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, referral.StatusAccepted, accepted.Referral.Status)
	assert.Equal(t, 2, accepted.AvailableBeds)
}

func TestHandler_Create_BadIDs(t *testing.T) {
	f := newFixture(t)
	h := referral.NewHandler(f.svc)

	c, _ := newContext(f.sender, http.MethodPost, "/api/v1/referrals",
		`{"patient_id":"nope","from_ward_id":"`+f.senderWard.ID.String()+`","to_hospital_id":"`+f.receiver.HospitalID.String()+`"}`)
	err := h.Create(c)
	assert.Equal(t, apperr.ReasonValidationFailed, apperr.ReasonOf(err))
}

func TestHandler_List(t *testing.T) {
	f := newFixture(t)
	h := referral.NewHandler(f.svc)
	f.create(t)

	c, rec := newContext(f.receiver, http.MethodGet, "/api/v1/referrals?direction=incoming&status=pending", "")
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Referrals  []referral.Referral `json:"referrals"`
		Direction  string              `json:"direction"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Referrals, 1)
	assert.Equal(t, "incoming", body.Direction)
	assert.Equal(t, 1, body.Pagination.Total)
}

func TestHandler_RejectAndCancel(t *testing.T) {
	f := newFixture(t)
	h := referral.NewHandler(f.svc)
	id := f.create(t).ID.String()

	c, rec := newContext(f.receiver, http.MethodPatch, "/api/v1/referrals/"+id+"/reject", `{"rejection_reason":"full"}`)
	require.NoError(t, h.Reject(withID(c, id)))
	assert.Contains(t, rec.Body.String(), `"status":"rejected"`)

	c, rec = newContext(f.sender, http.MethodPatch, "/api/v1/referrals/"+id+"/cancel", "")
	require.NoError(t, h.Cancel(withID(c, id)))
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)
}
