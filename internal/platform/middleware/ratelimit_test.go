package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bedlink/bedlink/internal/platform/apperr"
	"github.com/bedlink/bedlink/internal/platform/auth"
)

func limitedHandler(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func requestAs(e *echo.Echo, userID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil)
	req.RemoteAddr = "10.0.0.7:41000"
	if userID != "" {
		actor := auth.Actor{UserID: userID, HospitalID: uuid.New(), Roles: []string{auth.RoleNurse}}
		req = req.WithContext(auth.WithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRateLimit_WithinBurst(t *testing.T) {
	e := echo.New()
	handler := limitedHandler(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		c, rec := requestAs(e, "nurse-1")
		if err := handler(c); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: X-RateLimit-Limit = %q, want 10", i+1, got)
		}
	}
}

func TestRateLimit_DeniesWithRateLimited(t *testing.T) {
	e := echo.New()
	handler := limitedHandler(RateLimitConfig{RequestsPerSecond: 0.5, BurstSize: 1})

	c, _ := requestAs(e, "nurse-1")
	if err := handler(c); err != nil {
		t.Fatalf("first request: unexpected error %v", err)
	}

	c, rec := requestAs(e, "nurse-1")
	err := handler(c)
	if !errors.Is(err, apperr.ErrRateLimited) {
		t.Fatalf("expected RateLimited, got %v", err)
	}
	ae, _ := apperr.As(err)
	if ae.Status() != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", ae.Status())
	}
	if ae.Details["caller"] != "user:nurse-1" {
		t.Errorf("caller detail = %v", ae.Details["caller"])
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
}

func TestRateLimit_ChargesEachActorSeparately(t *testing.T) {
	e := echo.New()
	handler := limitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	c, _ := requestAs(e, "nurse-1")
	if err := handler(c); err != nil {
		t.Fatalf("nurse-1 first request: %v", err)
	}
	c, _ = requestAs(e, "nurse-1")
	if err := handler(c); !errors.Is(err, apperr.ErrRateLimited) {
		t.Fatalf("nurse-1 second request: expected RateLimited, got %v", err)
	}

	// Same address, different actor.
	c, _ = requestAs(e, "doctor-1")
	if err := handler(c); err != nil {
		t.Fatalf("doctor-1 first request: %v", err)
	}
}

func TestRateLimitKey(t *testing.T) {
	e := echo.New()

	c, _ := requestAs(e, "doctor-1")
	if key, _ := RateLimitKey(c); key != "user:doctor-1" {
		t.Errorf("authenticated key = %q", key)
	}

	c, _ = requestAs(e, "")
	if key, _ := RateLimitKey(c); key != "ip:10.0.0.7" {
		t.Errorf("anonymous key = %q", key)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 || cfg.BurstSize != 200 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}
