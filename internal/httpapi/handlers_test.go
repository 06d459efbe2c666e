package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/metrics"
	"riceledger/backend/internal/service"
	"riceledger/backend/internal/store/memory"
)

type enqueuerStub struct {
	requestedBy string
	err         error
}

func (e *enqueuerStub) EnqueueReconcileBalances(_ context.Context, requestedBy string) (string, error) {
	e.requestedBy = requestedBy
	if e.err != nil {
		return "", e.err
	}
	return "task-1", nil
}

type testServer struct {
	handler http.Handler
	jobs    *enqueuerStub
	metrics *metrics.Metrics
}

// newTestServer builds the full API over a seeded in-memory store so handler
// tests exercise the complete request path.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewSeeded(true)
	m := metrics.New()
	svc := service.New(repo, nil, time.Minute, m, logger)
	auth := NewAuthManager(context.Background(), testSecret, time.Hour, repo)
	jobs := &enqueuerStub{}
	api := New(svc, auth, Config{AllowedOrigin: "*", Metrics: m, Jobs: jobs, Logger: logger})
	return &testServer{handler: api.Handler(), jobs: jobs, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed, status %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	decodeBody(t, rec, &resp)
	return resp.AccessToken
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin(t *testing.T) {
	srv := newTestServer(t)
	if token := srv.login(t, "admin", "admin123"); token == "" {
		t.Fatalf("expected access token")
	}

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	staff := srv.login(t, "staff", "staff123")
	admin := srv.login(t, "admin", "admin123")

	rec := srv.do(t, http.MethodPost, "/api/v1/sales", staff, domain.NewSaleRequest{
		CustomerName: "행복식당",
		ProductName:  "삼광쌀",
		Quantity:     3,
		UnitPrice:    45000,
		Status:       domain.SaleStatusUnpaid,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.SaleResult
	decodeBody(t, rec, &created)
	if created.Sale.TotalAmount != 135000 {
		t.Fatalf("unexpected total %d", created.Sale.TotalAmount)
	}

	quantity := 1
	rec = srv.do(t, http.MethodPatch, "/api/v1/sales/"+created.ID, staff, domain.SaleUpdate{Quantity: &quantity})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/customers", staff, nil)
	var customers struct {
		Customers []domain.Customer `json:"customers"`
	}
	decodeBody(t, rec, &customers)
	if len(customers.Customers) != 1 || customers.Customers[0].Balance != 45000 {
		t.Fatalf("unexpected customers %+v", customers.Customers)
	}

	rec = srv.do(t, http.MethodDelete, "/api/v1/sales/"+created.ID, staff, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected staff delete to be forbidden, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodDelete, "/api/v1/sales/"+created.ID, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin delete to succeed, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodGet, "/api/v1/sales/"+created.ID, staff, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestAddSaleErrorStatuses(t *testing.T) {
	srv := newTestServer(t)
	staff := srv.login(t, "staff", "staff123")

	rec := srv.do(t, http.MethodPost, "/api/v1/sales", staff, domain.NewSaleRequest{
		CustomerName: "A", ProductName: "현미", Quantity: 999, UnitPrice: 48000, Status: domain.SaleStatusPaid,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/sales", staff, domain.NewSaleRequest{
		CustomerName: "A", ProductName: "현미", Quantity: 0, Status: domain.SaleStatusPaid,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero quantity, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/sales", staff, map[string]any{"customer_name": "A", "surprise": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPatch, "/api/v1/sales/sale-missing", staff, map[string]any{"notes": "x"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sale, got %d", rec.Code)
	}
}

func TestMultiItemSaleAndInventoryOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	staff := srv.login(t, "staff", "staff123")

	rec := srv.do(t, http.MethodGet, "/api/v1/products", staff, nil)
	var listed struct {
		Products []domain.Product `json:"products"`
	}
	decodeBody(t, rec, &listed)
	if len(listed.Products) != len(memory.SeedProducts()) {
		t.Fatalf("expected seeded catalogue, got %d products", len(listed.Products))
	}
	var brown domain.Product
	for _, p := range listed.Products {
		if p.Name == "현미" {
			brown = p
		}
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/sales/multi", staff, domain.NewSaleRequest{
		CustomerName: "B",
		Status:       domain.SaleStatusPaid,
		Items: []domain.SaleItemInput{
			{ProductName: "현미", Quantity: 25, UnitPrice: 48000},
			{ProductName: "안남미", Quantity: 1, UnitPrice: 40000},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var result domain.SaleResult
	decodeBody(t, rec, &result)
	if result.Warning == "" {
		t.Fatalf("expected low-stock warning for 현미")
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/inventory/transactions", staff, domain.InventoryTransactionRequest{
		ProductID: brown.ID, Quantity: 10, UnitPrice: 42000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on inbound row, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/products/"+brown.ID+"/inventory", staff, nil)
	var inventory domain.ProductInventory
	decodeBody(t, rec, &inventory)
	if inventory.Product.Stock != 15 || inventory.Summary.TotalIn != 10 || inventory.Summary.TotalOut != 25 {
		t.Fatalf("unexpected inventory %+v", inventory)
	}

	var outRow domain.InventoryTransaction
	for _, row := range inventory.Transactions {
		if row.Type == domain.LedgerOut {
			outRow = row
		}
	}
	rec = srv.do(t, http.MethodDelete, "/api/v1/inventory/transactions/"+outRow.ID, staff, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for sale-owned row, got %d", rec.Code)
	}
}

func TestResetBalancesInlineAndQueued(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin123")
	staff := srv.login(t, "staff", "staff123")

	rec := srv.do(t, http.MethodPost, "/api/v1/balances/reset", staff, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected staff to be forbidden, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/balances/reset", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result domain.ReconcileResult
	decodeBody(t, rec, &result)
	if !result.Success || result.Message == "" {
		t.Fatalf("unexpected reconcile result %+v", result)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/balances/reset?async=true", admin, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if srv.jobs.requestedBy != "admin" {
		t.Fatalf("expected job requested by admin, got %q", srv.jobs.requestedBy)
	}

	srv.jobs.err = errors.New("redis down")
	rec = srv.do(t, http.MethodPost, "/api/v1/balances/reset?async=true", admin, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when enqueue fails, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "internal server error" {
		t.Fatalf("expected generic error body, got %q", body["error"])
	}
}

func TestReportsAndBackup(t *testing.T) {
	srv := newTestServer(t)
	staff := srv.login(t, "staff", "staff123")
	admin := srv.login(t, "admin", "admin123")

	rec := srv.do(t, http.MethodPost, "/api/v1/sales", staff, domain.NewSaleRequest{
		CustomerName: "A", ProductName: "오대쌀", Quantity: 2, UnitPrice: 44000, Status: domain.SaleStatusUnpaid,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add sale: %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/reports/dashboard", staff, nil)
	var stats domain.DashboardStats
	decodeBody(t, rec, &stats)
	if stats.TodaySales != 88000 || stats.TotalUnpaid != 88000 {
		t.Fatalf("unexpected dashboard %+v", stats)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/reports/top-customers?limit=3", staff, nil)
	var top struct {
		Customers []domain.TopCustomer `json:"customers"`
	}
	decodeBody(t, rec, &top)
	if len(top.Customers) != 1 || top.Customers[0].TotalSales != 88000 {
		t.Fatalf("unexpected top customers %+v", top.Customers)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/reports/weekly", staff, nil)
	var weekly struct {
		Days []domain.DailySales `json:"days"`
	}
	decodeBody(t, rec, &weekly)
	if len(weekly.Days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(weekly.Days))
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/backup", staff, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected backup to be admin only, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodGet, "/api/v1/backup", admin, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Disposition") == "" {
		t.Fatalf("expected backup attachment, got %d", rec.Code)
	}
	var backup domain.Backup
	decodeBody(t, rec, &backup)
	if len(backup.Sales) != 1 || len(backup.InventoryTransactions) != 1 {
		t.Fatalf("unexpected backup %+v", backup)
	}
}

func TestProductAndCustomerAdministration(t *testing.T) {
	srv := newTestServer(t)
	staff := srv.login(t, "staff", "staff123")
	admin := srv.login(t, "admin", "admin123")

	rec := srv.do(t, http.MethodPost, "/api/v1/products", staff, domain.ProductCreateRequest{
		Name: "흑미", Category: "잡곡", Unit: "kg", Stock: 12, UnitPrice: 9000, SafetyStock: 3,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var product domain.Product
	decodeBody(t, rec, &product)

	price := int64(9500)
	rec = srv.do(t, http.MethodPatch, "/api/v1/products/"+product.ID, staff, domain.ProductUpdateRequest{UnitPrice: &price})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected staff product update to be forbidden, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodPatch, "/api/v1/products/"+product.ID, admin, domain.ProductUpdateRequest{UnitPrice: &price})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/products", admin, domain.ProductCreateRequest{Name: "흑미"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected duplicate product name to conflict, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodDelete, "/api/v1/products/"+product.ID, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}

	srv.do(t, http.MethodPost, "/api/v1/sales", staff, domain.NewSaleRequest{
		CustomerName: "C", ProductName: "현미", Quantity: 1, UnitPrice: 48000, Status: domain.SaleStatusPaid,
	})
	rec = srv.do(t, http.MethodGet, "/api/v1/customers", staff, nil)
	var customers struct {
		Customers []domain.Customer `json:"customers"`
	}
	decodeBody(t, rec, &customers)
	contact := "010-1234-5678"
	rec = srv.do(t, http.MethodPatch, "/api/v1/customers/"+customers.Customers[0].ID, admin, domain.CustomerUpdateRequest{Contact: &contact})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on customer update, got %d", rec.Code)
	}
	var customer domain.Customer
	decodeBody(t, rec, &customer)
	if customer.Contact != contact {
		t.Fatalf("expected contact to be updated, got %q", customer.Contact)
	}
}

func TestStaffAccountsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin123")

	rec := srv.do(t, http.MethodPost, "/api/v1/users/staff", admin, domain.StaffCreateRequest{Username: "counter2", Password: "counter-pass"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = srv.do(t, http.MethodPost, "/api/v1/users/staff", admin, domain.StaffCreateRequest{Username: "counter2", Password: "counter-pass"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}
	if token := srv.login(t, "counter2", "counter-pass"); token == "" {
		t.Fatalf("expected new staff to log in")
	}
}
