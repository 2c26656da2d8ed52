package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedlink/bedlink/internal/config"
	"github.com/bedlink/bedlink/internal/domain/ward"
	"github.com/bedlink/bedlink/internal/platform/auth"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Env:                   "development",
		StoreBackend:          config.BackendMemory,
		AuditBackend:          "log",
		NotifyBackend:         "log",
		CORSOrigins:           []string{"*"},
		ReservationDefaultTTL: 2 * time.Hour,
		ReservationMaxTTL:     48 * time.Hour,
		SweepInterval:         time.Minute,
	}
}

func newTestApp(t *testing.T) (*app, *echo.Echo) {
	t.Helper()
	a, err := newApp(context.Background(), memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, a.newServer()
}

type caller struct {
	e        *echo.Echo
	hospital uuid.UUID
	roles    string
}

func (c caller) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-User-ID", "user-"+c.roles)
	req.Header.Set("X-Hospital-ID", c.hospital.String())
	req.Header.Set("X-Roles", c.roles)
	rec := httptest.NewRecorder()
	c.e.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func field(t *testing.T, m map[string]interface{}, path ...string) interface{} {
	t.Helper()
	var cur interface{} = m
	for _, p := range path {
		obj, ok := cur.(map[string]interface{})
		require.True(t, ok, "no object at %s", p)
		cur = obj[p]
	}
	return cur
}

func TestHealth_MemoryStore(t *testing.T) {
	_, e := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"memory"`)
}

func TestServer_RequiresHospitalForReferrals(t *testing.T) {
	_, e := newTestApp(t)
	code, body := caller{e: e, hospital: uuid.Nil, roles: "doctor"}.do(t, http.MethodGet, "/api/v1/referrals", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ForbiddenActor", body["reason"])
}

func TestServer_ReferralFlow(t *testing.T) {
	a, e := newTestApp(t)
	ctx := context.Background()

	sender := &ward.Hospital{Name: "District Hospital"}
	receiver := &ward.Hospital{Name: "Regional Referral Hospital"}
	require.NoError(t, a.wards.CreateHospital(ctx, sender))
	require.NoError(t, a.wards.CreateHospital(ctx, receiver))

	senderAdmin := caller{e: e, hospital: sender.ID, roles: auth.RoleAdmin}
	senderDoctor := caller{e: e, hospital: sender.ID, roles: auth.RoleDoctor}
	receiverAdmin := caller{e: e, hospital: receiver.ID, roles: auth.RoleAdmin}
	receiverDoctor := caller{e: e, hospital: receiver.ID, roles: auth.RoleDoctor}

	code, body := senderAdmin.do(t, http.MethodPost, "/api/v1/wards", map[string]interface{}{
		"name": "Emergency", "type": "emergency", "total_beds": 1,
	})
	require.Equal(t, http.StatusCreated, code, body)
	fromWard := body["id"].(string)

	code, body = receiverAdmin.do(t, http.MethodPost, "/api/v1/wards", map[string]interface{}{
		"name": "ICU", "type": "icu", "total_beds": 3,
	})
	require.Equal(t, http.StatusCreated, code, body)
	toWard := body["id"].(string)

	// Fill the sender's only bed.
	code, body = senderDoctor.do(t, http.MethodPost, "/api/v1/admissions", map[string]interface{}{
		"ward_id": fromWard,
		"patient": map[string]interface{}{"full_name": "Amina Juma", "sex": "F"},
	})
	require.Equal(t, http.StatusCreated, code, body)
	patientID := field(t, body, "patient", "id").(string)

	code, body = senderDoctor.do(t, http.MethodPost, "/api/v1/referrals", map[string]interface{}{
		"patient_id":     patientID,
		"from_ward_id":   fromWard,
		"to_hospital_id": receiver.ID.String(),
		"reason":         "needs ventilation",
	})
	require.Equal(t, http.StatusCreated, code, body)
	referralID := field(t, body, "referral", "id").(string)
	assert.Equal(t, "pending", field(t, body, "referral", "status"))
	assert.EqualValues(t, 0, body["hospital_available_beds"])

	// Only the receiving hospital may accept.
	code, body = senderDoctor.do(t, http.MethodPatch, "/api/v1/referrals/"+referralID+"/accept", map[string]interface{}{
		"ward_id": toWard,
	})
	assert.Equal(t, http.StatusForbidden, code, body)

	code, body = receiverDoctor.do(t, http.MethodPatch, "/api/v1/referrals/"+referralID+"/accept", map[string]interface{}{
		"ward_id": toWard,
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "accepted", field(t, body, "referral", "status"))
	assert.EqualValues(t, 2, body["available_beds"])

	code, body = receiverDoctor.do(t, http.MethodPatch, "/api/v1/referrals/"+referralID+"/accept", map[string]interface{}{
		"ward_id": toWard,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "InvalidTransition", body["reason"])
	assert.Equal(t, "accepted", body["current_status"])

	code, body = receiverDoctor.do(t, http.MethodPost, "/api/v1/referrals/"+referralID+"/complete", map[string]interface{}{})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "completed", field(t, body, "referral", "status"))
	assert.Equal(t, patientID, field(t, body, "admission", "patient_id"))

	code, body = receiverAdmin.do(t, http.MethodGet, "/api/v1/wards/"+toWard+"/availability", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 2, body["available_beds"])
	assert.EqualValues(t, 0, body["reserved_beds"])
	assert.EqualValues(t, 1, body["occupied_beds"])

	code, body = receiverDoctor.do(t, http.MethodGet, "/api/v1/dashboard/stats", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 3, field(t, body, "summary", "total_beds"))
	assert.EqualValues(t, 1, field(t, body, "today", "admissions"))
}

func TestTokenActor(t *testing.T) {
	hospital := uuid.New()

	a, err := tokenActor("dr-1", hospital.String(), "doctor, nurse")
	require.NoError(t, err)
	assert.Equal(t, "dr-1", a.UserID)
	assert.Equal(t, hospital, a.HospitalID)
	assert.Equal(t, []string{auth.RoleDoctor, auth.RoleNurse}, a.Roles)

	_, err = tokenActor("", hospital.String(), "doctor")
	assert.Error(t, err)
	_, err = tokenActor("dr-1", "not-a-uuid", "doctor")
	assert.Error(t, err)
	_, err = tokenActor("dr-1", hospital.String(), "surgeon")
	assert.Error(t, err)
}

func TestServer_RateLimitsPerActor(t *testing.T) {
	cfg := memoryConfig()
	cfg.RateLimitRPS = 0.5
	cfg.RateLimitBurst = 2
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	e := a.newServer()

	hospital := &ward.Hospital{Name: "District Hospital"}
	require.NoError(t, a.wards.CreateHospital(context.Background(), hospital))

	nurse := caller{e: e, hospital: hospital.ID, roles: auth.RoleNurse}
	doctor := caller{e: e, hospital: hospital.ID, roles: auth.RoleDoctor}

	for i := 0; i < 2; i++ {
		code, body := nurse.do(t, http.MethodGet, "/api/v1/dashboard/stats", nil)
		require.Equal(t, http.StatusOK, code, body)
	}

	code, body := nurse.do(t, http.MethodGet, "/api/v1/dashboard/stats", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RateLimited", body["reason"])

	// Another user behind the same address keeps its own budget.
	code, body = doctor.do(t, http.MethodGet, "/api/v1/dashboard/stats", nil)
	assert.Equal(t, http.StatusOK, code, body)
}

func TestServer_CompleteReservationAdmits(t *testing.T) {
	a, e := newTestApp(t)
	hospital := &ward.Hospital{Name: "District Hospital"}
	require.NoError(t, a.wards.CreateHospital(context.Background(), hospital))

	admin := caller{e: e, hospital: hospital.ID, roles: auth.RoleAdmin}
	nurse := caller{e: e, hospital: hospital.ID, roles: auth.RoleNurse}

	code, body := admin.do(t, http.MethodPost, "/api/v1/wards", map[string]interface{}{
		"name": "Maternity", "type": "maternity", "total_beds": 2,
	})
	require.Equal(t, http.StatusCreated, code, body)
	wardID := body["id"].(string)

	code, body = nurse.do(t, http.MethodPost, "/api/v1/beds/reserve", map[string]interface{}{"ward_id": wardID})
	require.Equal(t, http.StatusCreated, code, body)
	reservationID := field(t, body, "reservation", "id").(string)
	assert.EqualValues(t, 1, body["available_beds"])

	code, body = nurse.do(t, http.MethodPost, "/api/v1/beds/reserved/"+reservationID+"/complete", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, body = nurse.do(t, http.MethodPost, "/api/v1/beds/reserved/"+reservationID+"/complete", map[string]interface{}{
		"patient": map[string]interface{}{"full_name": "Neema Mollel", "sex": "F"},
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "admitted", field(t, body, "admission", "status"))
	assert.Equal(t, reservationID, field(t, body, "admission", "reservation_id"))
	assert.EqualValues(t, 1, field(t, body, "ward", "available_beds"))

	code, body = nurse.do(t, http.MethodGet, "/api/v1/beds/reserved/"+reservationID, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "completed", body["status"])
}
