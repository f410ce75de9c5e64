package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	domain "github.com/artfolio/exchange/internal/domain"
	"github.com/artfolio/exchange/internal/platform/auth"
	"github.com/artfolio/exchange/internal/repositories"
	"github.com/artfolio/exchange/internal/services"
)

const handlerTestSecret = "handler-test-secret"

var handlerTestNow = time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)

func testAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	authn, err := auth.NewAuthenticator(handlerTestSecret, auth.WithClock(func() time.Time { return handlerTestNow }))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return authn
}

func mintToken(t *testing.T, subject string, partyType string, roles []string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": handlerTestNow.Add(time.Hour).Unix(),
	}
	if partyType != "" {
		claims["partyType"] = partyType
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(handlerTestSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authorize(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func sampleOrder() services.Order {
	submitted := handlerTestNow.Add(-time.Hour)
	return services.Order{
		ID:                  "ord_01HZX4",
		Code:                "EX-2026-000042",
		Mode:                domain.OrderModeBuy,
		Buyer:               domain.Party{ID: "user-1", Type: domain.PartyTypeUser},
		Seller:              domain.Party{ID: "partner-1", Type: domain.PartyTypePartner},
		CurrencyCode:        "USD",
		State:               domain.OrderStatePending,
		ItemsTotalCents:     540_012,
		TaxTotalCents:       43_201,
		CommissionFeeCents:  43_201,
		TransactionFeeCents: 17_233,
		TotalListPriceCents: 540_012,
		CommissionRate:      0.08,
		LastSubmittedAt:     &submitted,
		StateUpdatedAt:      handlerTestNow.Add(-2 * time.Hour),
		Version:             1,
		CreatedAt:           handlerTestNow.Add(-3 * time.Hour),
		UpdatedAt:           handlerTestNow.Add(-2 * time.Hour),
		LineItems: []services.LineItem{{
			ID:             "li_01HZX4",
			OrderID:        "ord_01HZX4",
			ArtworkID:      "artwork-1",
			ListPriceCents: 540_012,
			Quantity:       1,
			CreatedAt:      handlerTestNow.Add(-3 * time.Hour),
		}},
	}
}

type stubOrderCreator struct {
	validateCodes []domain.ErrorCode
	validateErr   error
	created       services.Order
	createErr     error
	found         services.Order
	foundErr      error
	lastCommand   services.CreateOrderCommand
	createCalls   int
	hookRuns      int
}

func (s *stubOrderCreator) Validate(_ context.Context, cmd services.CreateOrderCommand) ([]domain.ErrorCode, error) {
	s.lastCommand = cmd
	return s.validateCodes, s.validateErr
}

func (s *stubOrderCreator) Create(ctx context.Context, cmd services.CreateOrderCommand, hook services.CreationHook) (services.Order, error) {
	s.lastCommand = cmd
	s.createCalls++
	if s.createErr != nil {
		return services.Order{}, s.createErr
	}
	if hook != nil {
		s.hookRuns++
		_ = hook(ctx, s.created)
	}
	return s.created, nil
}

func (s *stubOrderCreator) FindOrCreate(_ context.Context, cmd services.CreateOrderCommand, _ services.CreationHook) (services.Order, error) {
	s.lastCommand = cmd
	return s.found, s.foundErr
}

type stubOrderService struct {
	order       services.Order
	getErr      error
	page        domain.CursorPage[services.Order]
	listErr     error
	listFilter  repositories.OrderListFilter
	transition  services.Order
	transErr    error
	lastSubmit  services.SubmitOrderCommand
	lastRefund  services.RefundOrderCommand
	lastAbandon services.AbandonOrderCommand
	swept       int
	sweepErr    error
}

func (s *stubOrderService) GetOrder(context.Context, string) (services.Order, error) {
	return s.order, s.getErr
}

func (s *stubOrderService) ListOrders(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[services.Order], error) {
	s.listFilter = filter
	return s.page, s.listErr
}

func (s *stubOrderService) Submit(_ context.Context, cmd services.SubmitOrderCommand) (services.Order, error) {
	s.lastSubmit = cmd
	return s.transition, s.transErr
}

func (s *stubOrderService) Approve(context.Context, services.ApproveOrderCommand) (services.Order, error) {
	return s.transition, s.transErr
}

func (s *stubOrderService) Fulfill(context.Context, services.FulfillOrderCommand) (services.Order, error) {
	return s.transition, s.transErr
}

func (s *stubOrderService) Refund(_ context.Context, cmd services.RefundOrderCommand) (services.Order, error) {
	s.lastRefund = cmd
	return s.transition, s.transErr
}

func (s *stubOrderService) Abandon(_ context.Context, cmd services.AbandonOrderCommand) (services.Order, error) {
	s.lastAbandon = cmd
	return s.transition, s.transErr
}

func (s *stubOrderService) AbandonExpired(context.Context, time.Time) (int, error) {
	return s.swept, s.sweepErr
}

type stubOfferService struct {
	offer       services.Offer
	offerErr    error
	order       services.Order
	orderErr    error
	lastPropose services.ProposeOfferCommand
	lastCounter services.CounterOfferCommand
	lastAccept  services.AcceptOfferCommand
	lastReject  services.RejectOfferCommand
}

func (s *stubOfferService) ProposeOffer(_ context.Context, cmd services.ProposeOfferCommand) (services.Offer, error) {
	s.lastPropose = cmd
	return s.offer, s.offerErr
}

func (s *stubOfferService) CounterOffer(_ context.Context, cmd services.CounterOfferCommand) (services.Offer, error) {
	s.lastCounter = cmd
	return s.offer, s.offerErr
}

func (s *stubOfferService) AcceptOffer(_ context.Context, cmd services.AcceptOfferCommand) (services.Order, error) {
	s.lastAccept = cmd
	return s.order, s.orderErr
}

func (s *stubOfferService) RejectOffer(_ context.Context, cmd services.RejectOfferCommand) (services.Order, error) {
	s.lastReject = cmd
	return s.order, s.orderErr
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) Health(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func newOrdersRouter(t *testing.T, creator services.OrderCreator, orders services.OrderService, offers services.OfferService, opts ...OrderHandlersOption) chi.Router {
	t.Helper()
	authn := testAuthenticator(t)
	orderHandlers := NewOrderHandlers(authn, creator, orders, opts...)
	offerHandlers := NewOfferHandlers(offers)
	return NewRouter(WithOrderRoutes(func(r chi.Router) {
		orderHandlers.Routes(r)
		offerHandlers.Routes(r)
	}))
}
