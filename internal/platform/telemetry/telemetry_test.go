package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "bedlink", "test", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.Reservation(context.Background(), "created")
	m.Transition(context.Background(), "accept")
	m.LedgerRejection(context.Background(), "NoBedsAvailable")
}

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	m.Reservation(context.Background(), "created")
	m.Transition(context.Background(), "accept")
	m.LedgerRejection(context.Background(), "NoBedsAvailable")
}

func TestStartSpanAndEnd(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "ledger.decrement")
	assert.NotNil(t, ctx)
	EndSpan(span, errors.New("no beds"))
}

func TestMiddleware_PassesThrough(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wards/x/availability", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := Middleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}
