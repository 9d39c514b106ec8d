package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/notify"
	"hotelpos/backend/internal/service"
	"hotelpos/backend/internal/store/memory"
)

const testSecret = "test-secret-key-0123456789abcdef"

// newTestAPI wires the real service and auth manager over a seeded in-memory
// store so handler tests walk the whole request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, &notify.Recorder{}, service.Options{InvoicePrefix: "INV"})
	auth := NewAuthManager(testSecret, time.Hour, svc)
	return New(svc, auth, Options{AllowedOrigin: "*"})
}

// tokenFor signs a token for a seeded staff member without a password round.
func tokenFor(t *testing.T, api *API, id int64, username string, role string) string {
	t.Helper()
	token, _, err := api.auth.Issue(domain.StaffMember{ID: id, Username: username, Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.8:41000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["ok"] != true || body["kitchen_broadcast"] != "ok" {
		t.Fatalf("expected healthy body, got %v", body)
	}
}

type downBroadcaster struct{ notify.Recorder }

func (*downBroadcaster) Ping(context.Context) error { return errors.New("redis: connection refused") }

func TestHandleHealthReportsBroadcastOutageWithoutFailing(t *testing.T) {
	repo := memory.NewSeeded()
	svc := service.New(repo, &downBroadcaster{}, service.Options{InvoicePrefix: "INV"})
	handler := New(svc, NewAuthManager(testSecret, time.Hour, svc), Options{AllowedOrigin: "*"}).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 while only the broadcast is down, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["kitchen_broadcast"] != "unavailable" {
		t.Fatalf("expected broadcast outage to be reported, got %v", body)
	}
}

func TestHandleLogin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: "admin", Password: "admin123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	actor, err := api.auth.ParseToken(resp.AccessToken)
	if err != nil || actor.Username != "admin" || actor.Role != domain.RoleAdmin || actor.StaffID != 1 {
		t.Fatalf("unexpected actor %+v (%v)", actor, err)
	}
	if resp.StaffName != "Administrator" {
		t.Fatalf("expected staff name, got %q", resp.StaffName)
	}
}

func TestHandleLoginFailuresLookAlike(t *testing.T) {
	handler := newTestAPI(t).Handler()

	wrong := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: "admin", Password: "nope"})
	unknown := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: "ghost", Password: "nope"})
	if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401s, got %d and %d", wrong.Code, unknown.Code)
	}
	if wrong.Body.String() != unknown.Body.String() {
		t.Fatalf("expected identical bodies, got %s and %s", wrong.Body.String(), unknown.Body.String())
	}
}

func TestCreateBarSaleWithoutIdentity(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/orders", "", `{
		"order_type": "bar_sale",
		"payment_method": "cash",
		"items": [{"product_id": 1, "quantity": 3, "unit_price": "4.00"}]
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.CreateOrderResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StaffName != "Bar Staff" || resp.OrderID == 0 || !strings.HasPrefix(resp.OrderNumber, "ORD-") || resp.Message == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCreateOrderIdentityErrors(t *testing.T) {
	handler := newTestAPI(t).Handler()
	items := []map[string]any{{"product_id": 90, "quantity": 1, "unit_price": 12}}

	missing := doJSON(t, handler, http.MethodPost, "/api/orders", "", map[string]any{"order_type": "dine_in", "items": items})
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without identity, got %d", missing.Code)
	}
	if body := decodeBody(t, missing); body["error"] != "validation_error" || body["message"] == "" {
		t.Fatalf("unexpected body %v", body)
	}

	wrong := doJSON(t, handler, http.MethodPost, "/api/orders", "", map[string]any{"order_type": "dine_in", "items": items, "staff_username": "rina", "pin": 9999})
	if wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong pin, got %d", wrong.Code)
	}

	good := doJSON(t, handler, http.MethodPost, "/api/orders", "", map[string]any{"order_type": "dine_in", "items": items, "staff_username": "rina", "pin": 2580})
	if good.Code != http.StatusCreated {
		t.Fatalf("expected 201 with numeric pin, got %d: %s", good.Code, good.Body.String())
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/orders", "", map[string]any{
		"order_type": "bar_sale",
		"items":      []map[string]any{{"product_id": 1, "quantity": 60, "unit_price": 4}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "Insufficient stock for House Lager 330ml. Available: 48" || body["error"] != "insufficient_stock" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCreateOrderRejectsUnknownFields(t *testing.T) {
	handler := newTestAPI(t).Handler()
	rec := doJSON(t, handler, http.MethodPost, "/api/orders", "", `{"order_type":"bar_sale","items":[],"coupon":"FREE"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOrderStatusFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	created := doJSON(t, handler, http.MethodPost, "/api/orders", "", map[string]any{
		"order_type": "self_service", "table_number": "9",
		"items": []map[string]any{{"product_id": 70, "quantity": 1, "unit_price": 5}},
	})
	var resp domain.CreateOrderResponse
	_ = json.NewDecoder(created.Body).Decode(&resp)
	path := "/api/orders/" + itoa(resp.OrderID) + "/status"

	waiter := tokenFor(t, api, 3, "rina", domain.RoleWaiter)
	if rec := doJSON(t, handler, http.MethodPatch, path, waiter, domain.OrderStatusRequest{Status: "preparing"}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for waiter, got %d", rec.Code)
	}
	kitchen := tokenFor(t, api, 4, "dapur", domain.RoleKitchenStaff)
	if rec := doJSON(t, handler, http.MethodPatch, path, kitchen, domain.OrderStatusRequest{Status: "preparing"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, handler, http.MethodPatch, path, kitchen, domain.OrderStatusRequest{Status: "completed"}); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 skipping ready, got %d", rec.Code)
	}

	list := doJSON(t, handler, http.MethodGet, "/api/orders?status=preparing", waiter, nil)
	body := decodeBody(t, list)
	if orders, _ := body["orders"].([]any); len(orders) != 1 {
		t.Fatalf("expected one preparing order, got %v", body)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/api/orders/999", waiter, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/api/orders/abc", waiter, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestUpdateStockRoleScopes(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	kitchen := tokenFor(t, api, 4, "dapur", domain.RoleKitchenStaff)
	waiter := tokenFor(t, api, 3, "rina", domain.RoleWaiter)

	if rec := doJSON(t, handler, http.MethodPut, "/api/inventory/3/stock", "", `{"current_stock": 5}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPut, "/api/inventory/3/stock", waiter, `{"current_stock": 5}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for waiter, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPut, "/api/inventory/1/stock", kitchen, `{"current_stock": 5}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for kitchen on bar stock, got %d", rec.Code)
	}
	rec := doJSON(t, handler, http.MethodPut, "/api/inventory/3/stock", kitchen, `{"current_stock": "12.5"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, handler, http.MethodPut, "/api/inventory/3/stock", kitchen, `{"current_stock": -1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative stock, got %d", rec.Code)
	}

	logs := decodeBody(t, doJSON(t, handler, http.MethodGet, "/api/inventory/3/logs", waiter, nil))
	if entries, _ := logs["logs"].([]any); len(entries) != 1 {
		t.Fatalf("expected one stock_adjusted log, got %v", logs)
	}
}

func TestPurchaseOrderEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	manager := tokenFor(t, api, 2, "manager", domain.RoleManager)

	created := doJSON(t, handler, http.MethodPost, "/api/purchase-orders", manager, `{
		"supplier_id": 4,
		"order_date": "2026-10-01",
		"expected_delivery_date": "2026-10-05",
		"items": [{"inventory_item_id": 3, "quantity_ordered": 10, "unit_cost": "1.10"}],
		"notes": "weekly rice"
	}`)
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", created.Code, created.Body.String())
	}
	var resp domain.PurchaseOrderCreateResponse
	_ = json.NewDecoder(created.Body).Decode(&resp)
	if resp.PONumber != "PO0001" || resp.Message == "" {
		t.Fatalf("unexpected create response %+v", resp)
	}

	po := decodeBody(t, doJSON(t, handler, http.MethodGet, "/api/purchase-orders/"+itoa(resp.ID), manager, nil))
	items := po["purchase_order"].(map[string]any)["items"].([]any)
	lineID := int64(items[0].(map[string]any)["id"].(float64))

	receivePath := "/api/purchase-orders/" + itoa(resp.ID) + "/receive"
	rec := doJSON(t, handler, http.MethodPost, receivePath, manager, map[string]any{
		"items":         []map[string]any{{"id": lineID, "quantity_received": 15}},
		"received_date": "2026-10-15",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["message"] != "Purchase order received successfully" {
		t.Fatalf("unexpected body %v", body)
	}

	received := decodeBody(t, doJSON(t, handler, http.MethodGet, "/api/purchase-orders/"+itoa(resp.ID), manager, nil))["purchase_order"].(map[string]any)
	if delivered, _ := received["actual_delivery_date"].(string); !strings.HasPrefix(delivered, "2026-10-15") {
		t.Fatalf("expected delivery date 2026-10-15, got %v", received["actual_delivery_date"])
	}
	if ordered, _ := received["order_date"].(string); !strings.HasPrefix(ordered, "2026-10-01") {
		t.Fatalf("expected order date 2026-10-01, got %v", received["order_date"])
	}

	item := decodeBody(t, doJSON(t, handler, http.MethodGet, "/api/inventory/3", manager, nil))
	if stock := item["inventory_item"].(map[string]any)["current_stock"]; stock != "60" {
		t.Fatalf("expected rice stock 60 after clamped receive, got %v", stock)
	}

	missing := doJSON(t, handler, http.MethodPost, "/api/purchase-orders/999/receive", manager, map[string]any{
		"items": []map[string]any{{"id": 1, "quantity_received": 1}},
	})
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
	if rec := doJSON(t, handler, http.MethodPost, "/api/purchase-orders/"+itoa(resp.ID)+"/cancel", manager, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 cancelling a received order, got %d", rec.Code)
	}
}

func TestPurchaseOrderRejectsBadDates(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	manager := tokenFor(t, api, 2, "manager", domain.RoleManager)

	garbled := doJSON(t, handler, http.MethodPost, "/api/purchase-orders", manager, `{
		"supplier_id": 4, "order_date": "01/10/2026",
		"items": [{"inventory_item_id": 3, "quantity_ordered": 1, "unit_cost": 1}]
	}`)
	if garbled.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unparseable date, got %d", garbled.Code)
	}
	early := doJSON(t, handler, http.MethodPost, "/api/purchase-orders", manager, `{
		"supplier_id": 4, "order_date": "2026-10-10", "expected_delivery_date": "2026-10-09",
		"items": [{"inventory_item_id": 3, "quantity_ordered": 1, "unit_cost": 1}]
	}`)
	if early.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a delivery date before the order date, got %d", early.Code)
	}
}

func TestInvoiceEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	reception := tokenFor(t, api, 5, "frontdesk", domain.RoleReceptionist)

	created := doJSON(t, handler, http.MethodPost, "/api/orders", "", map[string]any{
		"order_type": "bar_sale",
		"items":      []map[string]any{{"product_id": 2, "quantity": 1, "unit_price": "30"}},
	})
	var order domain.CreateOrderResponse
	_ = json.NewDecoder(created.Body).Decode(&order)

	rec := doJSON(t, handler, http.MethodPost, "/api/invoices", reception, domain.InvoiceCreateRequest{OrderID: order.OrderID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	invoice := decodeBody(t, rec)["invoice"].(map[string]any)
	if number, _ := invoice["invoice_number"].(string); !strings.HasPrefix(number, "INV-") {
		t.Fatalf("unexpected invoice number %v", invoice["invoice_number"])
	}
	id := int64(invoice["id"].(float64))

	if rec := doJSON(t, handler, http.MethodPost, "/api/invoices", reception, domain.InvoiceCreateRequest{OrderID: order.OrderID}); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate invoice, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPatch, "/api/invoices/"+itoa(id)+"/status", reception, domain.InvoiceStatusRequest{Status: "paid"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 paying invoice, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPatch, "/api/invoices/"+itoa(id)+"/status", reception, domain.InvoiceStatusRequest{Status: "refunded"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestStaffAndShiftEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := tokenFor(t, api, 1, "admin", domain.RoleAdmin)
	manager := tokenFor(t, api, 2, "manager", domain.RoleManager)

	if rec := doJSON(t, handler, http.MethodPost, "/api/staff", manager, `{"username":"ayu","name":"Ayu","role":"bar","pin":"0427"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for manager creating staff, got %d", rec.Code)
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/staff", admin, `{"username":"ayu","name":"Ayu","role":"bar","pin":"0427"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "0427") {
		t.Fatalf("staff response leaked the pin: %s", rec.Body.String())
	}

	pin := doJSON(t, handler, http.MethodPost, "/api/staff/validate-pin", "", `{"username":"ayu","pin":427}`)
	if body := decodeBody(t, pin); body["valid"] != false {
		t.Fatalf("expected numeric 427 not to match 0427, got %v", body)
	}
	pin = doJSON(t, handler, http.MethodPost, "/api/staff/validate-pin", "", `{"username":"ayu","pin":"0427"}`)
	if body := decodeBody(t, pin); body["valid"] != true || body["staff_name"] != "Ayu" {
		t.Fatalf("expected valid pin, got %v", body)
	}

	if rec := doJSON(t, handler, http.MethodGet, "/api/shifts/active", manager, nil); rec.Code != http.StatusOK || decodeBody(t, rec)["shift"] != nil {
		t.Fatalf("expected no active shift")
	}
	if rec := doJSON(t, handler, http.MethodPost, "/api/shifts/open", manager, `{"opening_float": 150}`); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 opening shift, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPost, "/api/shifts/open", manager, `{"opening_float": 150}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 opening twice, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPost, "/api/shifts/close", manager, `{"closing_cash": "410.25"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 closing shift, got %d", rec.Code)
	}

	if rec := doJSON(t, handler, http.MethodGet, "/api/audit-logs", manager, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for manager reading audit logs, got %d", rec.Code)
	}
	audit := decodeBody(t, doJSON(t, handler, http.MethodGet, "/api/audit-logs?limit=5", admin, nil))
	if entries, _ := audit["audit_logs"].([]any); len(entries) == 0 {
		t.Fatalf("expected audit entries, got %v", audit)
	}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
