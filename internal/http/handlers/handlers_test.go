package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/compustore/backend/internal/models"
	"github.com/compustore/backend/internal/service"
	"github.com/compustore/backend/internal/store"
)

func newTestRouter(st store.Store, now func() time.Time) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zerolog.Nop()
	h := &Handler{
		Store:      st,
		Reconciler: &service.Reconciler{Store: st, Logger: logger},
		Sessions:   &service.Sessions{Store: st},
		Tasks:      &service.Tasks{Store: st},
		Staff:      &service.Staff{Store: st, Logger: logger},
		Orders:     &service.Orders{Store: st, Now: now},
		Accounts:   &service.Accounts{Store: st},
		Validator:  validator.New(),
		Logger:     logger,
	}

	r := gin.New()
	r.GET("/healthz", h.Healthz)
	api := r.Group("/api")
	api.POST("/events", h.IngestEvent)
	api.POST("/reconcile", h.Reconcile)
	api.GET("/sessions/:user_id", h.SessionGet)
	api.POST("/sessions/:user_id/interactions", h.MergeInteractions)
	api.POST("/sessions/:user_id/tasks", h.TaskAdd)
	api.DELETE("/sessions/:user_id/tasks", h.TaskRemove)
	api.GET("/sessions/:user_id/tasks/next", h.TaskNext)
	api.POST("/sessions/:user_id/orders", h.Purchase)
	api.POST("/sessions/:user_id/orders/:order_id/cancel", h.OrderCancel)
	api.POST("/sessions/:user_id/orders/:order_id/return", h.OrderReturn)
	api.POST("/sessions/:user_id/account", h.AccountSetup)
	api.POST("/sessions/:user_id/staff", h.StaffAssign)
	api.GET("/users", h.UsersList)
	api.POST("/users/:user_id/history/clear", h.ClearHistory)
	api.POST("/users/:user_id/orders/:order_id/status", h.OrderUpdateStatus)
	api.GET("/staff", h.StaffList)
	api.POST("/staff", h.StaffAdd)
	api.DELETE("/staff/:name", h.StaffDelete)
	api.POST("/staff/:name/release", h.StaffRelease)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %q", w.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(store.NewMemory(), nil)
	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestEventIngestAndReconcileFlow(t *testing.T) {
	r := newTestRouter(store.NewMemory(), nil)

	w := doJSON(t, r, http.MethodPost, "/api/events", gin.H{
		"user_id":   "a@x.com",
		"timestamp": "2025-01-01T10:00:00Z",
		"actor":     "user",
		"payload":   gin.H{"parts": []gin.H{{"text": "Hi"}}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("ingest: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/reconcile", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reconcile: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	merged, _ := decode(t, w)["merged"].(map[string]any)
	if merged["a@x.com"] != float64(1) {
		t.Fatalf("expected 1 merged interaction, got %v", merged)
	}

	w = doJSON(t, r, http.MethodGet, "/api/sessions/a@x.com", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("session get: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var state models.SessionState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.InteractionHistory) != 1 || state.InteractionHistory[0].Query != "Hi" {
		t.Fatalf("unexpected history: %+v", state.InteractionHistory)
	}
}

func TestIngestEventValidation(t *testing.T) {
	r := newTestRouter(store.NewMemory(), nil)
	w := doJSON(t, r, http.MethodPost, "/api/events", gin.H{"user_id": "a@x.com"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestSessionNotFound(t *testing.T) {
	r := newTestRouter(store.NewMemory(), nil)
	w := doJSON(t, r, http.MethodGet, "/api/sessions/ghost@x.com", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != service.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestPurchaseFlowOverHTTP(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRouter(store.NewMemory(), func() time.Time { return now })

	w := doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/interactions", gin.H{
		"interactions": []gin.H{{"action": models.ActionUserQuery, "timestamp": "t1", "query": "hello"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("merge: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/orders", gin.H{"product_id": "laptop-15"})
	if w.Code != http.StatusOK {
		t.Fatalf("purchase: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	order, _ := decode(t, w)["order"].(map[string]any)
	orderID, _ := order["order_id"].(string)
	if orderID == "" {
		t.Fatalf("expected an order id, got %v", order)
	}

	w = doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/orders", gin.H{"product_id": "laptop-15"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate purchase: expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != service.CodeInvalidState {
		t.Fatalf("expected INVALID_STATE, got %s", code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/orders/"+orderID+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTaskNextFilterOverHTTP(t *testing.T) {
	r := newTestRouter(store.NewMemory(), nil)

	w := doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/interactions", gin.H{
		"interactions": []gin.H{{"action": models.ActionUserQuery, "timestamp": "t1", "query": "hello"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("merge: expected 200, got %d", w.Code)
	}

	for _, task := range []gin.H{
		{"description": "finish warranty claim", "target_agent": "order_agent", "type": "warranty", "context": gin.H{"product_id": "p1"}},
		{"description": "finish purchase", "target_agent": "order_agent", "type": "purchase", "context": gin.H{"product_id": "p2"}},
	} {
		w = doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/tasks", task)
		if w.Code != http.StatusOK {
			t.Fatalf("task add: expected 200, got %d: %s", w.Code, w.Body.String())
		}
	}

	w = doJSON(t, r, http.MethodGet, "/api/sessions/a@x.com/tasks/next?type=purchase", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("task next: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	task, _ := decode(t, w)["task"].(map[string]any)
	if task["type"] != "purchase" {
		t.Fatalf("expected the purchase task, got %v", task)
	}

	w = doJSON(t, r, http.MethodGet, "/api/sessions/a@x.com/tasks/next?type=refund", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("task next: expected 200, got %d", w.Code)
	}
	if got := decode(t, w)["task"]; got != nil {
		t.Fatalf("expected no refund task, got %v", got)
	}
}

func TestStaffAssignOverHTTP(t *testing.T) {
	r := newTestRouter(store.NewMemory(), nil)

	w := doJSON(t, r, http.MethodPost, "/api/staff", gin.H{"name": "Alice", "phone_number": "555-0100"})
	if w.Code != http.StatusOK {
		t.Fatalf("staff add: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/interactions", gin.H{
		"interactions": []gin.H{{"action": models.ActionUserQuery, "timestamp": "t1", "query": "help"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("merge: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/staff", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("assign: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	assignment, _ := decode(t, w)["assignment"].(map[string]any)
	if assignment["name"] != "Alice" || assignment["status"] != models.StaffStatusAvailable {
		t.Fatalf("unexpected assignment: %v", assignment)
	}

	w = doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/staff", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("repeat assign: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if status := decode(t, w)["status"]; status != "skipped" {
		t.Fatalf("expected skipped status, got %v", status)
	}

	w = doJSON(t, r, http.MethodDelete, "/api/staff/Alice", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("delete busy: expected 409, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/staff/Alice/release", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("release: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodDelete, "/api/staff/Alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete after release: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminHistoryClearAndStatusOverride(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRouter(store.NewMemory(), func() time.Time { return now })

	w := doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/interactions", gin.H{
		"interactions": []gin.H{{"action": models.ActionUserQuery, "timestamp": "t1", "query": "hello"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("merge: expected 200, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/users/a@x.com/history/clear", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/orders", gin.H{"product_id": "laptop-15"})
	if w.Code != http.StatusOK {
		t.Fatalf("purchase: expected 200, got %d", w.Code)
	}
	order, _ := decode(t, w)["order"].(map[string]any)
	orderID, _ := order["order_id"].(string)

	w = doJSON(t, r, http.MethodPost, "/api/users/a@x.com/orders/"+orderID+"/status", gin.H{"status": "delivered"})
	if w.Code != http.StatusOK {
		t.Fatalf("status override: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/sessions/a@x.com/orders/"+orderID+"/cancel", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("cancel delivered: expected 409, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/users", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("users list: expected 200, got %d", w.Code)
	}
	ids, _ := decode(t, w)["user_ids"].([]any)
	if len(ids) != 1 {
		t.Fatalf("expected 1 user, got %v", ids)
	}
}
