package services

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	domain "github.com/artfolio/exchange/internal/domain"
	"github.com/artfolio/exchange/internal/repositories"
)

const (
	defaultSubmittedTTL = 7 * 24 * time.Hour

	// Default card-network fee model applied when none is configured.
	defaultTransactionFeeBasisPoints = 290
	defaultTransactionFeeFlatCents   = 30

	expiredSweepBatchSize = 100
	stateReasonExpired    = "order_expired"
)

var orderStateTransitions = map[domain.OrderState][]domain.OrderState{
	domain.OrderStatePending:   {domain.OrderStateSubmitted, domain.OrderStateAbandoned},
	domain.OrderStateSubmitted: {domain.OrderStateApproved, domain.OrderStateAbandoned},
	domain.OrderStateApproved:  {domain.OrderStateFulfilled, domain.OrderStateRefunded},
	domain.OrderStateFulfilled: {domain.OrderStateRefunded},
}

func canTransition(from, to domain.OrderState) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Offers       repositories.OfferRepository
	UnitOfWork   repositories.UnitOfWork
	Tax          TaxCalculator
	Payments     PaymentProvider
	Catalog      ArtworkCatalog
	SubmittedTTL time.Duration
	// TransactionFeeBasisPoints and TransactionFeeFlatCents model the card
	// network fee frozen into the order on submit.
	TransactionFeeBasisPoints int
	TransactionFeeFlatCents   int64
	Clock                     func() time.Time
	Events                    OrderEventPublisher
	Logger                    func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	offers       repositories.OfferRepository
	unitOfWork   repositories.UnitOfWork
	tax          TaxCalculator
	payments     PaymentProvider
	catalog      ArtworkCatalog
	submittedTTL time.Duration
	feeBPS       int
	feeFlat      int64
	clock        func() time.Time
	events       OrderEventPublisher
	logger       func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Tax == nil {
		return nil, errors.New("order service: tax calculator is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment provider is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	ttl := deps.SubmittedTTL
	if ttl <= 0 {
		ttl = defaultSubmittedTTL
	}

	feeBPS := deps.TransactionFeeBasisPoints
	if feeBPS <= 0 {
		feeBPS = defaultTransactionFeeBasisPoints
	}
	feeFlat := deps.TransactionFeeFlatCents
	if feeFlat <= 0 {
		feeFlat = defaultTransactionFeeFlatCents
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:       deps.Orders,
		offers:       deps.Offers,
		unitOfWork:   unit,
		tax:          deps.Tax,
		payments:     deps.Payments,
		catalog:      deps.Catalog,
		submittedTTL: ttl,
		feeBPS:       feeBPS,
		feeFlat:      feeFlat,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, domain.NewError(domain.CodeMissingRequiredParam, "order id is required")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if s.offers != nil && order.Mode == domain.OrderModeOffer {
		offers, err := s.offers.ListByOrder(ctx, orderID)
		if err != nil {
			return Order{}, mapOrderRepositoryError(err)
		}
		order.Offers = offers
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapOrderRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) Submit(ctx context.Context, cmd SubmitOrderCommand) (Order, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if cmd.ExpectedState != nil && order.State != *cmd.ExpectedState {
		return Order{}, domain.NewError(domain.CodeInvalidState, "order state moved since read")
	}
	if order.State != domain.OrderStatePending {
		return Order{}, domain.NewError(domain.CodeCantSubmit, "order can only be submitted from pending")
	}
	if order.Mode == domain.OrderModeOffer && order.LastOfferID == nil {
		return Order{}, domain.NewError(domain.CodeCantSubmit, "offer-mode order needs an accepted offer before submit")
	}
	if len(order.LineItems) == 0 {
		return Order{}, domain.NewError(domain.CodeInvalidOrder, "order has no line items")
	}

	taxCents, err := s.tax.ComputeTax(ctx, order)
	if err != nil {
		return Order{}, domain.WrapError(domain.CodeTaxCalculatorFailure, "compute tax for order "+order.ID, err)
	}
	if taxCents < 0 {
		return Order{}, domain.NewError(domain.CodeTaxCalculatorFailure, "tax collaborator returned a negative amount")
	}

	if s.catalog != nil {
		if err := s.catalog.DeductInventory(ctx, order); err != nil {
			return Order{}, domain.WrapError(domain.CodeInsufficientInventory, "deduct inventory for order "+order.ID, err)
		}
	}

	now := s.clock()
	expectedVersion := order.Version
	order.TaxTotalCents = taxCents
	order.TransactionFeeCents = s.transactionFee(order.ItemsTotalCents + order.ShippingTotalCents + taxCents)
	order.RecomputeTotals()
	order.LastSubmittedAt = &now
	expiry := now.Add(s.submittedTTL)
	order.StateExpiresAt = &expiry
	applyTransition(&order, domain.OrderStateSubmitted, "", now)

	if err := s.persist(ctx, &order, expectedVersion); err != nil {
		// The order never left pending, so the hold taken above must not
		// survive; otherwise a retry deducts the same line items twice.
		if s.catalog != nil {
			if undeductErr := s.catalog.UndeductInventory(ctx, order); undeductErr != nil {
				s.logger(ctx, "order.inventory.undeduct.failed", map[string]any{
					"order": order.ID,
					"code":  string(domain.CodeUndeductInventoryFailure),
					"error": undeductErr.Error(),
				})
			}
		}
		return Order{}, err
	}
	s.publishStateChange(ctx, order, domain.OrderStatePending, cmd.ActorID, now, nil)
	return order, nil
}

func (s *orderService) Approve(ctx context.Context, cmd ApproveOrderCommand) (Order, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.State != domain.OrderStateSubmitted {
		return Order{}, domain.NewError(domain.CodeOrderNotSubmitted, "order can only be approved from submitted")
	}
	actor := strings.TrimSpace(cmd.ActorID)
	if actor != "" && actor != order.Seller.ID {
		return Order{}, domain.NewError(domain.CodeInvalidState, "only the seller may approve the order")
	}

	auth, err := s.payments.Authorize(ctx, order)
	if err != nil {
		return Order{}, domain.WrapError(domain.CodeChargeAuthorizationFailed, "authorize charge for order "+order.ID, err)
	}
	order.ExternalChargeID = auth.ChargeID
	if err := s.payments.Capture(ctx, order); err != nil {
		if releaser, ok := s.payments.(ChargeReleaser); ok {
			if releaseErr := releaser.Release(ctx, order); releaseErr != nil {
				s.logger(ctx, "order.charge.release.failed", map[string]any{
					"order":  order.ID,
					"charge": auth.ChargeID,
					"error":  releaseErr.Error(),
				})
			}
		}
		return Order{}, domain.WrapError(domain.CodeCaptureFailed, "capture charge "+auth.ChargeID, err)
	}

	now := s.clock()
	expectedVersion := order.Version
	order.LastApprovedAt = &now
	order.StateExpiresAt = nil
	applyTransition(&order, domain.OrderStateApproved, "", now)

	if err := s.persist(ctx, &order, expectedVersion); err != nil {
		return Order{}, err
	}
	s.publishStateChange(ctx, order, domain.OrderStateSubmitted, actor, now, map[string]any{
		"chargeId": order.ExternalChargeID,
	})
	return order, nil
}

func (s *orderService) Fulfill(ctx context.Context, cmd FulfillOrderCommand) (Order, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.State != domain.OrderStateApproved {
		return Order{}, domain.NewError(domain.CodeInvalidState, "order can only be fulfilled from approved")
	}
	if cmd.Fulfillment != nil {
		if _, ok := domain.ParseFulfillmentType(string(cmd.Fulfillment.Type)); !ok {
			return Order{}, domain.NewError(domain.CodeWrongFulfillmentType, "fulfillment type must be ship or pickup")
		}
		fulfillment := *cmd.Fulfillment
		order.Fulfillment = &fulfillment
	}

	now := s.clock()
	expectedVersion := order.Version
	applyTransition(&order, domain.OrderStateFulfilled, "", now)

	if err := s.persist(ctx, &order, expectedVersion); err != nil {
		return Order{}, err
	}
	s.publishStateChange(ctx, order, domain.OrderStateApproved, cmd.ActorID, now, nil)
	return order, nil
}

func (s *orderService) Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.State != domain.OrderStateApproved && order.State != domain.OrderStateFulfilled {
		return Order{}, domain.NewError(domain.CodeInvalidState, "order can only be refunded from approved or fulfilled")
	}

	result, err := s.payments.Refund(ctx, order, cmd.AmountCents)
	if err != nil {
		return Order{}, domain.WrapError(domain.CodeRefundFailed, "refund charge "+order.ExternalChargeID, err)
	}

	now := s.clock()
	expectedVersion := order.Version
	prev := order.State
	order.StateReason = strings.TrimSpace(cmd.Reason)
	applyTransition(&order, domain.OrderStateRefunded, order.StateReason, now)

	if err := s.persist(ctx, &order, expectedVersion); err != nil {
		return Order{}, err
	}
	s.publishStateChange(ctx, order, prev, cmd.ActorID, now, map[string]any{
		"refundId": result.RefundID,
		"amount":   result.AmountCents,
		"partial":  result.Partial,
	})

	// A partial refund still closes the order; the caller is told so it can
	// escalate to an operator.
	if result.Partial {
		return order, domain.NewError(domain.CodeReceivedPartialRefund, "gateway refunded less than the charged amount")
	}
	return order, nil
}

func (s *orderService) Abandon(ctx context.Context, cmd AbandonOrderCommand) (Order, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	return s.abandon(ctx, order, cmd.ActorID, cmd.Reason)
}

func (s *orderService) AbandonExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.orders.ListExpired(ctx, now.UTC(), expiredSweepBatchSize)
	if err != nil {
		return 0, mapOrderRepositoryError(err)
	}

	swept := 0
	for _, order := range expired {
		if _, err := s.abandon(ctx, order, "", stateReasonExpired); err != nil {
			// Losing to a concurrent transition is fine; the order moved on.
			if domain.IsCode(err, domain.CodeInvalidState) {
				continue
			}
			s.logger(ctx, "order.sweep.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *orderService) abandon(ctx context.Context, order Order, actorID, reason string) (Order, error) {
	if order.State != domain.OrderStatePending && order.State != domain.OrderStateSubmitted {
		return Order{}, domain.NewError(domain.CodeInvalidState, "order can only be abandoned from pending or submitted")
	}

	if s.catalog != nil && order.State == domain.OrderStateSubmitted {
		// The hold was committed on submit; failure to release it must not
		// block abandonment.
		if err := s.catalog.UndeductInventory(ctx, order); err != nil {
			s.logger(ctx, "order.inventory.undeduct.failed", map[string]any{
				"order": order.ID,
				"code":  string(domain.CodeUndeductInventoryFailure),
				"error": err.Error(),
			})
		}
	}

	now := s.clock()
	expectedVersion := order.Version
	prev := order.State
	order.StateReason = strings.TrimSpace(reason)
	order.StateExpiresAt = nil
	applyTransition(&order, domain.OrderStateAbandoned, order.StateReason, now)

	if err := s.persist(ctx, &order, expectedVersion); err != nil {
		return Order{}, err
	}
	s.publishStateChange(ctx, order, prev, actorID, now, map[string]any{
		"reason": order.StateReason,
	})
	return order, nil
}

// applyTransition stamps the state change. Callers must have verified
// legality; this re-checks the table as a final guard.
func applyTransition(order *Order, target domain.OrderState, reason string, now time.Time) {
	if !canTransition(order.State, target) {
		// Guards above make this unreachable; keep state intact if not.
		return
	}
	order.State = target
	order.StateUpdatedAt = now
	order.UpdatedAt = now
	if reason != "" {
		order.StateReason = reason
	}
	if target.IsTerminal() {
		order.StateExpiresAt = nil
	}
}

func (s *orderService) persist(ctx context.Context, order *Order, expectedVersion int64) error {
	order.Version = expectedVersion + 1
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		return s.orders.Update(txCtx, *order, &expectedVersion)
	})
	if err != nil {
		if isRepoConflict(err) {
			return domain.WrapError(domain.CodeInvalidState, "order was modified concurrently", err)
		}
		return mapOrderRepositoryError(err)
	}
	return nil
}

func (s *orderService) transactionFee(baseCents int64) int64 {
	if baseCents <= 0 {
		return 0
	}
	return int64(math.Round(float64(s.feeBPS)/10_000*float64(baseCents))) + s.feeFlat
}

func (s *orderService) load(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, domain.NewError(domain.CodeMissingRequiredParam, "order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) publishStateChange(ctx context.Context, order Order, prev domain.OrderState, actorID string, now time.Time, metadata map[string]any) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:          orderEventStateChanged,
		OrderID:       order.ID,
		OrderCode:     order.Code,
		PreviousState: string(prev),
		CurrentState:  string(order.State),
		ActorID:       strings.TrimSpace(actorID),
		OccurredAt:    now,
		Metadata:      metadata,
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return domain.WrapError(domain.CodeNotFound, "order not found", err)
		case repoErr.IsConflict():
			return domain.WrapError(domain.CodeInvalidState, "conflicting write", err)
		case repoErr.IsUnavailable():
			return domain.WrapError(domain.CodeGeneric, "order storage unavailable", err)
		}
	}
	return domain.WrapError(domain.CodeGeneric, "order operation failed", err)
}
