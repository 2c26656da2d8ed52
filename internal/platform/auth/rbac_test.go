package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func contextWithActor(a Actor) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithActor(req.Context(), a))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := contextWithActor(Actor{UserID: "u1", Roles: []string{RoleNurse}})

	if err := RequireRole(RoleDoctor, RoleNurse)(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := contextWithActor(Actor{UserID: "u1", Roles: []string{RoleNurse}})

	err := RequireRole(RoleDoctor)(okHandler)(c)
	expectHTTPCode(t, err, http.StatusForbidden)
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c, _ := contextWithActor(Actor{UserID: "u1", Roles: []string{RoleAdmin}})

	if err := RequireRole(RoleDoctor)(okHandler)(c); err != nil {
		t.Error("admin should bypass role checks")
	}
}

func TestRequireRole_NoActor(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := RequireRole(RoleDoctor)(okHandler)(c)
	expectHTTPCode(t, err, http.StatusUnauthorized)
}

func TestRequireHospital(t *testing.T) {
	c, _ := contextWithActor(Actor{UserID: "u1", Roles: []string{RoleDoctor}})
	expectHTTPCode(t, RequireHospital()(okHandler)(c), http.StatusForbidden)

	c, _ = contextWithActor(Actor{UserID: "u1", HospitalID: uuid.New(), Roles: []string{RoleDoctor}})
	if err := RequireHospital()(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	handler := func(c echo.Context) error {
		uid := UserIDFromContext(c.Request().Context())
		roles := RolesFromContext(c.Request().Context())
		if uid != "dev-user" {
			t.Errorf("expected dev-user, got %s", uid)
		}
		if len(roles) != 1 || roles[0] != RoleAdmin {
			t.Errorf("expected [admin] roles, got %v", roles)
		}
		return nil
	}

	if err := DevAuthMiddleware(JWTConfig{})(handler)(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_Headers(t *testing.T) {
	hospitalID := uuid.New()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "nurse-7")
	req.Header.Set("X-Hospital-ID", hospitalID.String())
	req.Header.Set("X-Roles", "nurse, doctor")
	c := e.NewContext(req, httptest.NewRecorder())

	handler := func(c echo.Context) error {
		actor, _ := ActorFromContext(c.Request().Context())
		if actor.UserID != "nurse-7" || actor.HospitalID != hospitalID {
			t.Errorf("unexpected actor %+v", actor)
		}
		if len(actor.Roles) != 2 || actor.Roles[1] != RoleDoctor {
			t.Errorf("unexpected roles %v", actor.Roles)
		}
		return nil
	}

	if err := DevAuthMiddleware(JWTConfig{})(handler)(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_BadHospitalHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Hospital-ID", "not-a-uuid")
	c := e.NewContext(req, httptest.NewRecorder())

	expectHTTPCode(t, DevAuthMiddleware(JWTConfig{})(okHandler)(c), http.StatusBadRequest)
}

func TestUserIDFromContext(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{UserID: "user-123"})
	if uid := UserIDFromContext(ctx); uid != "user-123" {
		t.Errorf("expected user-123, got %s", uid)
	}
	if empty := UserIDFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string, got %s", empty)
	}
}
