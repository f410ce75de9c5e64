package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/artfolio/exchange/internal/domain"
	"github.com/artfolio/exchange/internal/platform/auth"
	"github.com/artfolio/exchange/internal/platform/httpx"
	"github.com/artfolio/exchange/internal/platform/pagination"
	"github.com/artfolio/exchange/internal/repositories"
	"github.com/artfolio/exchange/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 8 * 1024
)

// OrderHandlers exposes the order lifecycle endpoints for authenticated parties.
type OrderHandlers struct {
	authn   *auth.Authenticator
	creator services.OrderCreator
	orders  services.OrderService
	hook    services.CreationHook
	limiter rateLimiter
}

// OrderHandlersOption customises order handler behaviour.
type OrderHandlersOption func(*OrderHandlers)

// WithCreationHook wires the hook fired exactly once per real order creation.
func WithCreationHook(hook services.CreationHook) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.hook = hook
	}
}

// WithCreateRateLimit throttles order creation per buyer.
func WithCreateRateLimit(limit int, window time.Duration, clock func() time.Time) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, clock)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, creator services.OrderCreator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:   authn,
		creator: creator,
		orders:  orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createOrder)
	r.Post("/validate", h.validateOrder)
	r.Post("/find-or-create", h.findOrCreateOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:submit", h.submitOrder)
	r.Post("/{orderID}:approve", h.approveOrder)
	r.Post("/{orderID}:fulfill", h.fulfillOrder)
	r.Post("/{orderID}:refund", h.refundOrder)
	r.Post("/{orderID}:abandon", h.abandonOrder)
}

type createOrderRequest struct {
	Mode         string  `json:"mode"`
	ArtworkID    string  `json:"artwork_id"`
	EditionSetID *string `json:"edition_set_id"`
	Quantity     int     `json:"quantity"`
}

type submitOrderRequest struct {
	ExpectedState string `json:"expected_state"`
}

type fulfillOrderRequest struct {
	Fulfillment *fulfillmentRequest `json:"fulfillment"`
}

type fulfillmentRequest struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	AddressLine string `json:"address_line"`
	City        string `json:"city"`
	Region      string `json:"region"`
	Country     string `json:"country"`
	PostalCode  string `json:"postal_code"`
	PhoneNumber string `json:"phone_number"`
}

type refundOrderRequest struct {
	AmountCents *int64 `json:"amount_cents"`
	Reason      string `json:"reason"`
}

type abandonOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.creator == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.SubjectID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order creation attempts", http.StatusTooManyRequests))
		return
	}

	cmd, ok := h.decodeCreateCommand(w, r, identity)
	if !ok {
		return
	}

	order, err := h.creator.Create(ctx, cmd, h.hook)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) validateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.creator == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	cmd, ok := h.decodeCreateCommand(w, r, identity)
	if !ok {
		return
	}

	codes, err := h.creator.Validate(ctx, cmd)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	values := make([]string, 0, len(codes))
	for _, code := range codes {
		values = append(values, string(code))
	}
	writeJSONResponse(w, http.StatusOK, validateOrderResponse{Valid: len(values) == 0, Codes: values})
}

func (h *OrderHandlers) findOrCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.creator == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.SubjectID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order creation attempts", http.StatusTooManyRequests))
		return
	}

	cmd, ok := h.decodeCreateCommand(w, r, identity)
	if !ok {
		return
	}

	order, err := h.creator.FindOrCreate(ctx, cmd, h.hook)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) decodeCreateCommand(w http.ResponseWriter, r *http.Request, identity *auth.Identity) (services.CreateOrderCommand, bool) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return services.CreateOrderCommand{}, false
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return services.CreateOrderCommand{}, false
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	return services.CreateOrderCommand{
		Mode:         strings.TrimSpace(req.Mode),
		BuyerID:      identity.SubjectID,
		BuyerType:    string(identity.PartyType),
		ArtworkID:    strings.TrimSpace(req.ArtworkID),
		EditionSetID: req.EditionSetID,
		Quantity:     quantity,
		UserAgent:    strings.TrimSpace(r.UserAgent()),
		UserIP:       strings.TrimSpace(r.RemoteAddr),
	}, true
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	var states []domain.OrderState
	for _, raw := range parseFilterValues(query["state"]) {
		states = append(states, domain.OrderState(raw))
	}

	var mode *domain.OrderMode
	if raw := strings.TrimSpace(query.Get("mode")); raw != "" {
		parsed, ok := domain.ParseOrderMode(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "mode must be buy or offer", http.StatusBadRequest))
			return
		}
		mode = &parsed
	}

	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.To = &ts
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		message := "page_size must be a positive integer"
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			message = "page_token is not a valid cursor"
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
		return
	}

	filter := repositories.OrderListFilter{
		Mode:      mode,
		States:    states,
		DateRange: dateRange,
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}

	// Admins may scope by explicit party, partners see their sales, everyone
	// else sees their own purchases.
	switch {
	case identity.HasRole(auth.RoleAdmin):
		filter.BuyerID = strings.TrimSpace(query.Get("buyer_id"))
		filter.SellerID = strings.TrimSpace(query.Get("seller_id"))
	case identity.HasRole(auth.RolePartner):
		filter.SellerID = identity.SubjectID
	default:
		filter.BuyerID = identity.SubjectID
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) submitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}
	if !actorIsBuyer(order, identity) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the buyer may submit the order", http.StatusForbidden))
		return
	}

	var req submitOrderRequest
	if ok := decodeOptionalBody(ctx, w, r, &req); !ok {
		return
	}

	cmd := services.SubmitOrderCommand{OrderID: order.ID, ActorID: identity.SubjectID}
	if raw := strings.TrimSpace(req.ExpectedState); raw != "" {
		state := domain.OrderState(strings.ToLower(raw))
		cmd.ExpectedState = &state
	}

	updated, err := h.orders.Submit(ctx, cmd)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrderHandlers) approveOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}
	if !actorIsSeller(order, identity) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the seller may approve the order", http.StatusForbidden))
		return
	}

	updated, err := h.orders.Approve(ctx, services.ApproveOrderCommand{OrderID: order.ID, ActorID: identity.SubjectID})
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrderHandlers) fulfillOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}
	if !actorIsSeller(order, identity) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the seller may fulfill the order", http.StatusForbidden))
		return
	}

	var req fulfillOrderRequest
	if ok := decodeOptionalBody(ctx, w, r, &req); !ok {
		return
	}

	cmd := services.FulfillOrderCommand{OrderID: order.ID, ActorID: identity.SubjectID}
	if req.Fulfillment != nil {
		fulfillmentType, ok := domain.ParseFulfillmentType(strings.ToLower(strings.TrimSpace(req.Fulfillment.Type)))
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "fulfillment type must be ship or pickup", http.StatusBadRequest))
			return
		}
		cmd.Fulfillment = &domain.Fulfillment{
			Type:        fulfillmentType,
			Name:        strings.TrimSpace(req.Fulfillment.Name),
			AddressLine: strings.TrimSpace(req.Fulfillment.AddressLine),
			City:        strings.TrimSpace(req.Fulfillment.City),
			Region:      strings.TrimSpace(req.Fulfillment.Region),
			Country:     strings.TrimSpace(req.Fulfillment.Country),
			PostalCode:  strings.TrimSpace(req.Fulfillment.PostalCode),
			PhoneNumber: strings.TrimSpace(req.Fulfillment.PhoneNumber),
		}
	}

	updated, err := h.orders.Fulfill(ctx, cmd)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrderHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}
	if !actorIsSeller(order, identity) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the seller may refund the order", http.StatusForbidden))
		return
	}

	var req refundOrderRequest
	if ok := decodeOptionalBody(ctx, w, r, &req); !ok {
		return
	}

	updated, err := h.orders.Refund(ctx, services.RefundOrderCommand{
		OrderID:     order.ID,
		ActorID:     identity.SubjectID,
		AmountCents: req.AmountCents,
		Reason:      strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrderHandlers) abandonOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}
	if !actorIsBuyer(order, identity) && !actorIsSeller(order, identity) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only a participant may abandon the order", http.StatusForbidden))
		return
	}

	var req abandonOrderRequest
	if ok := decodeOptionalBody(ctx, w, r, &req); !ok {
		return
	}

	updated, err := h.orders.Abandon(ctx, services.AbandonOrderCommand{
		OrderID: order.ID,
		ActorID: identity.SubjectID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

// loadVisibleOrder fetches the order and hides its existence from parties that
// are neither buyer, seller, nor admin.
func (h *OrderHandlers) loadVisibleOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, identity *auth.Identity) (services.Order, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return services.Order{}, false
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return services.Order{}, false
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return services.Order{}, false
	}

	if !identity.HasRole(auth.RoleAdmin) && !actorIsBuyer(order, identity) && !actorIsSeller(order, identity) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return services.Order{}, false
	}
	return order, true
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.SubjectID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func actorIsBuyer(order services.Order, identity *auth.Identity) bool {
	return strings.EqualFold(strings.TrimSpace(order.Buyer.ID), strings.TrimSpace(identity.SubjectID))
}

func actorIsSeller(order services.Order, identity *auth.Identity) bool {
	if strings.EqualFold(strings.TrimSpace(order.Seller.ID), strings.TrimSpace(identity.SubjectID)) {
		return true
	}
	return identity.HasRole(auth.RoleAdmin)
}

func decodeOptionalBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		if errors.Is(err, errEmptyBody) {
			return true
		}
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type validateOrderResponse struct {
	Valid bool     `json:"valid"`
	Codes []string `json:"codes"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderSummaryPayload struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Mode       string `json:"mode"`
	State      string `json:"state"`
	Currency   string `json:"currency"`
	BuyerTotal int64  `json:"buyer_total"`
	CreatedAt  string `json:"created_at"`
}

type partyPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type orderTotalsPayload struct {
	Items          int64 `json:"items"`
	Shipping       int64 `json:"shipping"`
	Tax            int64 `json:"tax"`
	CommissionFee  int64 `json:"commission_fee"`
	TransactionFee int64 `json:"transaction_fee"`
	BuyerTotal     int64 `json:"buyer_total"`
	SellerTotal    int64 `json:"seller_total"`
	TotalListPrice int64 `json:"total_list_price"`
}

type fulfillmentPayload struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	AddressLine string `json:"address_line,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	Country     string `json:"country,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type lineItemPayload struct {
	ID           string  `json:"id"`
	ArtworkID    string  `json:"artwork_id"`
	EditionSetID *string `json:"edition_set_id,omitempty"`
	ListPrice    int64   `json:"list_price"`
	Quantity     int     `json:"quantity"`
	CreatedAt    string  `json:"created_at"`
}

type offerPayload struct {
	ID          string       `json:"id"`
	OrderID     string       `json:"order_id"`
	From        partyPayload `json:"from"`
	AmountCents int64        `json:"amount_cents"`
	TaxTotal    *int64       `json:"tax_total_cents,omitempty"`
	Note        string       `json:"note,omitempty"`
	RespondsTo  *string      `json:"responds_to,omitempty"`
	SubmittedAt string       `json:"submitted_at,omitempty"`
	CreatedAt   string       `json:"created_at"`
}

type orderPayload struct {
	ID                    string              `json:"id"`
	Code                  string              `json:"code"`
	Mode                  string              `json:"mode"`
	State                 string              `json:"state"`
	StateReason           string              `json:"state_reason,omitempty"`
	Buyer                 partyPayload        `json:"buyer"`
	Seller                partyPayload        `json:"seller"`
	Currency              string              `json:"currency"`
	Totals                orderTotalsPayload  `json:"totals"`
	CommissionRate        float64             `json:"commission_rate"`
	CommissionRateDisplay string              `json:"commission_rate_display,omitempty"`
	Fulfillment           *fulfillmentPayload `json:"fulfillment,omitempty"`
	LastOfferID           *string             `json:"last_offer_id,omitempty"`
	StateUpdatedAt        string              `json:"state_updated_at,omitempty"`
	StateExpiresAt        string              `json:"state_expires_at,omitempty"`
	LastSubmittedAt       string              `json:"last_submitted_at,omitempty"`
	LastApprovedAt        string              `json:"last_approved_at,omitempty"`
	Version               int64               `json:"version"`
	CreatedAt             string              `json:"created_at"`
	UpdatedAt             string              `json:"updated_at,omitempty"`
	LineItems             []lineItemPayload   `json:"line_items"`
	Offers                []offerPayload      `json:"offers,omitempty"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:         strings.TrimSpace(order.ID),
		Code:       strings.TrimSpace(order.Code),
		Mode:       string(order.Mode),
		State:      string(order.State),
		Currency:   strings.ToUpper(strings.TrimSpace(order.CurrencyCode)),
		BuyerTotal: order.BuyerTotalCents,
		CreatedAt:  formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          strings.TrimSpace(order.ID),
		Code:        strings.TrimSpace(order.Code),
		Mode:        string(order.Mode),
		State:       string(order.State),
		StateReason: strings.TrimSpace(order.StateReason),
		Buyer:       partyPayload{ID: order.Buyer.ID, Type: string(order.Buyer.Type)},
		Seller:      partyPayload{ID: order.Seller.ID, Type: string(order.Seller.Type)},
		Currency:    strings.ToUpper(strings.TrimSpace(order.CurrencyCode)),
		Totals: orderTotalsPayload{
			Items:          order.ItemsTotalCents,
			Shipping:       order.ShippingTotalCents,
			Tax:            order.TaxTotalCents,
			CommissionFee:  order.CommissionFeeCents,
			TransactionFee: order.TransactionFeeCents,
			BuyerTotal:     order.BuyerTotalCents,
			SellerTotal:    order.SellerTotalCents,
			TotalListPrice: order.TotalListPriceCents,
		},
		CommissionRate:        order.CommissionRate,
		CommissionRateDisplay: domain.DisplayCommissionRate(order.CommissionRate),
		LastOfferID:           order.LastOfferID,
		StateUpdatedAt:        formatTime(order.StateUpdatedAt),
		StateExpiresAt:        formatTime(pointerTime(order.StateExpiresAt)),
		LastSubmittedAt:       formatTime(pointerTime(order.LastSubmittedAt)),
		LastApprovedAt:        formatTime(pointerTime(order.LastApprovedAt)),
		Version:               order.Version,
		CreatedAt:             formatTime(order.CreatedAt),
		UpdatedAt:             formatTime(order.UpdatedAt),
		LineItems:             make([]lineItemPayload, 0, len(order.LineItems)),
	}

	if order.Fulfillment != nil {
		payload.Fulfillment = &fulfillmentPayload{
			Type:        string(order.Fulfillment.Type),
			Name:        order.Fulfillment.Name,
			AddressLine: order.Fulfillment.AddressLine,
			City:        order.Fulfillment.City,
			Region:      order.Fulfillment.Region,
			Country:     order.Fulfillment.Country,
			PostalCode:  order.Fulfillment.PostalCode,
			PhoneNumber: order.Fulfillment.PhoneNumber,
		}
	}

	for _, item := range order.LineItems {
		payload.LineItems = append(payload.LineItems, lineItemPayload{
			ID:           item.ID,
			ArtworkID:    item.ArtworkID,
			EditionSetID: item.EditionSetID,
			ListPrice:    item.ListPriceCents,
			Quantity:     item.Quantity,
			CreatedAt:    formatTime(item.CreatedAt),
		})
	}

	for _, offer := range order.Offers {
		payload.Offers = append(payload.Offers, buildOfferPayload(offer))
	}

	return payload
}

func buildOfferPayload(offer services.Offer) offerPayload {
	return offerPayload{
		ID:          offer.ID,
		OrderID:     offer.OrderID,
		From:        partyPayload{ID: offer.From.ID, Type: string(offer.From.Type)},
		AmountCents: offer.AmountCents,
		TaxTotal:    offer.TaxTotalCents,
		Note:        offer.Note,
		RespondsTo:  offer.RespondsTo,
		SubmittedAt: formatTime(pointerTime(offer.SubmittedAt)),
		CreatedAt:   formatTime(offer.CreatedAt),
	}
}
