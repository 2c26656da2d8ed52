package db

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestStaticHealthHandler(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := StaticHealthHandler("memory")(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected status healthy, got %v", body["status"])
	}
	if body["store"] != "memory" {
		t.Errorf("expected store memory, got %v", body["store"])
	}
}

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected no transaction, got %v", tx)
	}
}

func TestAfterCommit_RunsImmediatelyOutsideUnitOfWork(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func() { ran = true })
	if !ran {
		t.Error("expected hook to run immediately")
	}
}

func TestAfterCommit_DeferredUntilRun(t *testing.T) {
	ctx, run := WithCommitHooks(context.Background())
	var order []int
	AfterCommit(ctx, func() { order = append(order, 1) })
	AfterCommit(ctx, func() { order = append(order, 2) })
	if len(order) != 0 {
		t.Fatalf("hooks ran before commit: %v", order)
	}
	run()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected hooks in registration order, got %v", order)
	}
	run()
	if len(order) != 2 {
		t.Errorf("hooks must run once, got %v", order)
	}
}
