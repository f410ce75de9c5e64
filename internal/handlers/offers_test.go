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

func sampleOffer() services.Offer {
	submitted := handlerTestNow.Add(-time.Minute)
	return services.Offer{
		ID:          "off_01HZX4",
		OrderID:     "ord_01HZX4",
		From:        domain.Party{ID: "user-1", Type: domain.PartyTypeUser},
		AmountCents: 400_000,
		SubmittedAt: &submitted,
		CreatedAt:   handlerTestNow.Add(-time.Minute),
	}
}

func TestProposeOffer(t *testing.T) {
	offers := &stubOfferService{offer: sampleOffer()}
	router := newOrdersRouter(t, &stubOrderCreator{}, &stubOrderService{}, offers)

	body := strings.NewReader(`{"amount_cents":400000,"note":"best I can do"}`)
	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_01HZX4/offers", body), mintToken(t, "user-1", "user", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if offers.lastPropose.OrderID != "ord_01HZX4" || offers.lastPropose.AmountCents != 400_000 {
		t.Fatalf("unexpected propose command %+v", offers.lastPropose)
	}
	if offers.lastPropose.FromID != "user-1" || offers.lastPropose.FromType != "user" {
		t.Fatalf("expected proposer from token, got %+v", offers.lastPropose)
	}
	if offers.lastPropose.Note != "best I can do" {
		t.Fatalf("unexpected note %q", offers.lastPropose.Note)
	}

	var payload offerResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload.Offer.ID != "off_01HZX4" || payload.Offer.AmountCents != 400_000 {
		t.Fatalf("unexpected offer payload %+v", payload.Offer)
	}
}

func TestCounterOfferTargetsChainHead(t *testing.T) {
	offers := &stubOfferService{offer: sampleOffer()}
	router := newOrdersRouter(t, &stubOrderCreator{}, &stubOrderService{}, offers)

	body := strings.NewReader(`{"amount_cents":450000}`)
	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_01HZX4/offers/off_01HZX4:counter", body), mintToken(t, "partner-1", "partner", []string{"partner"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if offers.lastCounter.OfferID != "off_01HZX4" || offers.lastCounter.AmountCents != 450_000 {
		t.Fatalf("unexpected counter command %+v", offers.lastCounter)
	}
}

func TestAcceptOfferReturnsOrder(t *testing.T) {
	approved := sampleOrder()
	approved.State = domain.OrderStateApproved
	offers := &stubOfferService{order: approved}
	router := newOrdersRouter(t, &stubOrderCreator{}, &stubOrderService{}, offers)

	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_01HZX4/offers/off_01HZX4:accept", nil), mintToken(t, "partner-1", "partner", []string{"partner"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if offers.lastAccept.OfferID != "off_01HZX4" || offers.lastAccept.FromID != "partner-1" {
		t.Fatalf("unexpected accept command %+v", offers.lastAccept)
	}

	var payload struct {
		Order struct {
			State string `json:"state"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload.Order.State != "approved" {
		t.Fatalf("expected approved order, got %s", payload.Order.State)
	}
}

func TestRejectStaleOfferMapsToConflict(t *testing.T) {
	offers := &stubOfferService{
		orderErr: domain.NewError(domain.CodeNotLastOffer, "offer is not the chain head"),
	}
	router := newOrdersRouter(t, &stubOrderCreator{}, &stubOrderService{}, offers)

	body := strings.NewReader(`{"reason":"too low"}`)
	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_01HZX4/offers/off_stale:reject", body), mintToken(t, "partner-1", "partner", []string{"partner"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["error"] != "not_last_offer" {
		t.Fatalf("expected not_last_offer code, got %v", payload["error"])
	}
}

func TestProposeOfferRequiresBody(t *testing.T) {
	router := newOrdersRouter(t, &stubOrderCreator{}, &stubOrderService{}, &stubOfferService{})

	req := authorize(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_01HZX4/offers", nil), mintToken(t, "user-1", "user", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
