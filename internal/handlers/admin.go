package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artfolio/exchange/internal/platform/httpx"
	"github.com/artfolio/exchange/internal/services"
)

// AdminHandlers exposes operational endpoints gated to admin identities.
type AdminHandlers struct {
	orders services.OrderService
	clock  func() time.Time
}

// NewAdminHandlers constructs admin endpoints. A nil clock defaults to time.Now.
func NewAdminHandlers(orders services.OrderService, clock func() time.Time) *AdminHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &AdminHandlers{orders: orders, clock: clock}
}

// Routes registers the /admin endpoints. Role enforcement is expected from the
// group middleware.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders:sweep", h.sweepExpiredOrders)
}

// sweepExpiredOrders abandons claimable orders whose state deadline passed.
// The background sweeper runs the same operation on an interval; this endpoint
// exists for manual triggering.
func (h *AdminHandlers) sweepExpiredOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	abandoned, err := h.orders.AbandonExpired(ctx, h.clock().UTC())
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"abandoned": abandoned})
}
