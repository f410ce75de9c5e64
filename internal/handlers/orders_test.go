package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/artfolio/exchange/internal/domain"
	"github.com/artfolio/exchange/internal/services"
)

func TestCreateOrderReturnsCreated(t *testing.T) {
	creator := &stubOrderCreator{created: sampleOrder()}
	router := newOrdersRouter(t, creator, &stubOrderService{}, nil)

	body := strings.NewReader(`{"mode":"buy","artwork_id":"artwork-1","quantity":1}`)
	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/", body), mintToken(t, "user-1", "user", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload struct {
		Order struct {
			ID     string `json:"id"`
			Code   string `json:"code"`
			Mode   string `json:"mode"`
			State  string `json:"state"`
			Totals struct {
				Items          int64 `json:"items"`
				CommissionFee  int64 `json:"commission_fee"`
				TransactionFee int64 `json:"transaction_fee"`
			} `json:"totals"`
			LineItems []struct {
				ArtworkID string `json:"artwork_id"`
			} `json:"line_items"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload.Order.ID != "ord_01HZX4" || payload.Order.Code != "EX-2026-000042" {
		t.Fatalf("unexpected order identity %+v", payload.Order)
	}
	if payload.Order.Totals.Items != 540_012 || payload.Order.Totals.CommissionFee != 43_201 {
		t.Fatalf("unexpected totals %+v", payload.Order.Totals)
	}
	if len(payload.Order.LineItems) != 1 || payload.Order.LineItems[0].ArtworkID != "artwork-1" {
		t.Fatalf("unexpected line items %+v", payload.Order.LineItems)
	}

	if creator.lastCommand.BuyerID != "user-1" || creator.lastCommand.BuyerType != "user" {
		t.Fatalf("expected buyer from token, got %+v", creator.lastCommand)
	}
	if creator.lastCommand.Mode != "buy" || creator.lastCommand.ArtworkID != "artwork-1" {
		t.Fatalf("unexpected command %+v", creator.lastCommand)
	}
}

func TestCreateOrderRequiresAuth(t *testing.T) {
	router := newOrdersRouter(t, &stubOrderCreator{}, &stubOrderService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/", strings.NewReader(`{"mode":"buy"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCreateOrderSurfacesAllValidationCodes(t *testing.T) {
	creator := &stubOrderCreator{
		createErr: domain.NewValidationErrors(domain.CodeNotAcquireable, domain.CodeMissingEditionSetID),
	}
	router := newOrdersRouter(t, creator, &stubOrderService{}, nil)

	body := strings.NewReader(`{"mode":"buy","artwork_id":"artwork-1"}`)
	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/", body), mintToken(t, "user-1", "user", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload struct {
		Error string   `json:"error"`
		Codes []string `json:"codes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload.Error != "not_acquireable" {
		t.Fatalf("expected primary code not_acquireable, got %s", payload.Error)
	}
	if len(payload.Codes) != 2 || payload.Codes[1] != "missing_edition_set_id" {
		t.Fatalf("expected full code set, got %v", payload.Codes)
	}
}

func TestValidateOrderReportsCodes(t *testing.T) {
	creator := &stubOrderCreator{validateCodes: []domain.ErrorCode{domain.CodeMissingPrice}}
	router := newOrdersRouter(t, creator, &stubOrderService{}, nil)

	body := strings.NewReader(`{"mode":"buy","artwork_id":"artwork-1"}`)
	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/validate", body), mintToken(t, "user-1", "user", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload validateOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload.Valid || len(payload.Codes) != 1 || payload.Codes[0] != "missing_price" {
		t.Fatalf("unexpected validation payload %+v", payload)
	}
}

func TestFindOrCreateReturnsExistingOrder(t *testing.T) {
	existing := sampleOrder()
	creator := &stubOrderCreator{found: existing}
	router := newOrdersRouter(t, creator, &stubOrderService{}, nil)

	body := strings.NewReader(`{"mode":"buy","artwork_id":"artwork-1"}`)
	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/find-or-create", body), mintToken(t, "user-1", "user", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload.Order.ID != existing.ID {
		t.Fatalf("expected existing order %s, got %s", existing.ID, payload.Order.ID)
	}
}

func TestCreateOrderRateLimited(t *testing.T) {
	creator := &stubOrderCreator{created: sampleOrder()}
	router := newOrdersRouter(t, creator, &stubOrderService{}, nil,
		WithCreateRateLimit(1, time.Minute, func() time.Time { return handlerTestNow }))

	token := mintToken(t, "user-1", "user", nil)
	for i, want := range []int{http.StatusCreated, http.StatusTooManyRequests} {
		body := strings.NewReader(`{"mode":"buy","artwork_id":"artwork-1"}`)
		req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/", body), token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rr.Code)
		}
	}
	if creator.createCalls != 1 {
		t.Fatalf("expected one create call, got %d", creator.createCalls)
	}
}

func TestListOrdersScopesToBuyer(t *testing.T) {
	orders := &stubOrderService{page: domain.CursorPage[services.Order]{
		Items:         []services.Order{sampleOrder()},
		NextPageToken: "next-token",
	}}
	router := newOrdersRouter(t, &stubOrderCreator{}, orders, nil)

	req := authorize(httptest.NewRequest(http.MethodGet, "/api/v1/orders/?state=pending,submitted&page_size=5", nil), mintToken(t, "user-1", "user", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if orders.listFilter.BuyerID != "user-1" || orders.listFilter.SellerID != "" {
		t.Fatalf("expected buyer scope, got %+v", orders.listFilter)
	}
	if len(orders.listFilter.States) != 2 || orders.listFilter.Pagination.PageSize != 5 {
		t.Fatalf("unexpected filter %+v", orders.listFilter)
	}

	var payload orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(payload.Items) != 1 || payload.NextPageToken != "next-token" {
		t.Fatalf("unexpected page %+v", payload)
	}
}

func TestListOrdersRejectsMalformedPageParams(t *testing.T) {
	orders := &stubOrderService{}
	router := newOrdersRouter(t, &stubOrderCreator{}, orders, nil)

	for _, target := range []string{
		"/api/v1/orders/?page_token=!!not-a-cursor!!",
		"/api/v1/orders/?page_size=nope",
		"/api/v1/orders/?page_size=0",
	} {
		req := authorize(httptest.NewRequest(http.MethodGet, target, nil), mintToken(t, "user-1", "user", nil))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", target, rr.Code, rr.Body.String())
		}
	}
	if orders.listFilter.Pagination.PageSize != 0 {
		t.Fatalf("expected list to be skipped, got filter %+v", orders.listFilter)
	}
}

func TestListOrdersScopesToSellerForPartner(t *testing.T) {
	orders := &stubOrderService{}
	router := newOrdersRouter(t, &stubOrderCreator{}, orders, nil)

	req := authorize(httptest.NewRequest(http.MethodGet, "/api/v1/orders/", nil), mintToken(t, "partner-1", "partner", []string{"partner"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if orders.listFilter.SellerID != "partner-1" || orders.listFilter.BuyerID != "" {
		t.Fatalf("expected seller scope, got %+v", orders.listFilter)
	}
}

func TestGetOrderHiddenFromStrangers(t *testing.T) {
	orders := &stubOrderService{order: sampleOrder()}
	router := newOrdersRouter(t, &stubOrderCreator{}, orders, nil)

	req := authorize(httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_01HZX4", nil), mintToken(t, "user-999", "user", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign order, got %d", rr.Code)
	}
}

func TestSubmitOrderPassesExpectedState(t *testing.T) {
	order := sampleOrder()
	submitted := order
	submitted.State = domain.OrderStateSubmitted
	orders := &stubOrderService{order: order, transition: submitted}
	router := newOrdersRouter(t, &stubOrderCreator{}, orders, nil)

	body := strings.NewReader(`{"expected_state":"pending"}`)
	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_01HZX4:submit", body), mintToken(t, "user-1", "user", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if orders.lastSubmit.OrderID != "ord_01HZX4" || orders.lastSubmit.ActorID != "user-1" {
		t.Fatalf("unexpected submit command %+v", orders.lastSubmit)
	}
	if orders.lastSubmit.ExpectedState == nil || *orders.lastSubmit.ExpectedState != domain.OrderStatePending {
		t.Fatalf("expected state guard, got %+v", orders.lastSubmit.ExpectedState)
	}

	var payload struct {
		Order struct {
			State string `json:"state"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload.Order.State != "submitted" {
		t.Fatalf("expected submitted state, got %s", payload.Order.State)
	}
}

func TestApproveOrderForbiddenForBuyer(t *testing.T) {
	orders := &stubOrderService{order: sampleOrder()}
	router := newOrdersRouter(t, &stubOrderCreator{}, orders, nil)

	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_01HZX4:approve", nil), mintToken(t, "user-1", "user", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRefundOrderBySeller(t *testing.T) {
	order := sampleOrder()
	order.State = domain.OrderStateApproved
	refunded := order
	refunded.State = domain.OrderStateRefunded
	orders := &stubOrderService{order: order, transition: refunded}
	router := newOrdersRouter(t, &stubOrderCreator{}, orders, nil)

	body := strings.NewReader(`{"amount_cents":100000,"reason":"damaged in transit"}`)
	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_01HZX4:refund", body), mintToken(t, "partner-1", "partner", []string{"partner"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if orders.lastRefund.AmountCents == nil || *orders.lastRefund.AmountCents != 100_000 {
		t.Fatalf("unexpected refund amount %+v", orders.lastRefund.AmountCents)
	}
	if orders.lastRefund.Reason != "damaged in transit" {
		t.Fatalf("unexpected refund reason %q", orders.lastRefund.Reason)
	}
}

func TestAbandonOrderProcessingFailureMapsTo422(t *testing.T) {
	orders := &stubOrderService{
		order:    sampleOrder(),
		transErr: domain.NewError(domain.CodeUndeductInventoryFailure, "inventory release failed"),
	}
	router := newOrdersRouter(t, &stubOrderCreator{}, orders, nil)

	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_01HZX4:abandon", nil), mintToken(t, "user-1", "user", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminSweepEndpoint(t *testing.T) {
	orders := &stubOrderService{swept: 3}
	authn := testAuthenticator(t)
	admin := NewAdminHandlers(orders, func() time.Time { return handlerTestNow })
	router := NewRouter(
		WithAdminRoutes(admin.Routes),
		WithAdminMiddlewares(authn.RequireAuth("admin")),
	)

	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders:sweep", nil), mintToken(t, "ops-1", "user", []string{"admin"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload map[string]int
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["abandoned"] != 3 {
		t.Fatalf("expected 3 abandoned, got %d", payload["abandoned"])
	}

	denied := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders:sweep", nil), mintToken(t, "user-1", "user", nil))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, denied)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rr.Code)
	}
}
