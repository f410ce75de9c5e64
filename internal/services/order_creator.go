package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/artfolio/exchange/internal/domain"
	"github.com/artfolio/exchange/internal/repositories"
)

const (
	orderEventCreated      = "order.created"
	orderEventStateChanged = "order.state.changed"

	orderIDPrefix    = "ord_"
	lineItemIDPrefix = "li_"
	offerIDPrefix    = "off_"

	orderCodeCounter = "orders"

	defaultPendingTTL = 48 * time.Hour

	// claimRetryAttempts bounds how often find-or-create re-reads after losing
	// an insert race.
	claimRetryAttempts = 2
)

// OrderCreatorDeps bundles collaborators required to construct the order creator.
type OrderCreatorDeps struct {
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	UnitOfWork  repositories.UnitOfWork
	Catalog     ArtworkCatalog
	Pricing     *PricingEngine
	PendingTTL  time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderCreator struct {
	orders     repositories.OrderRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	catalog    ArtworkCatalog
	pricing    *PricingEngine
	pendingTTL time.Duration
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderCreator wires dependencies into a concrete OrderCreator implementation.
func NewOrderCreator(deps OrderCreatorDeps) (OrderCreator, error) {
	if deps.Orders == nil {
		return nil, errors.New("order creator: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order creator: counter repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order creator: artwork catalog is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order creator: pricing engine is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	ttl := deps.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderCreator{
		orders:     deps.Orders,
		counters:   deps.Counters,
		unitOfWork: unit,
		catalog:    deps.Catalog,
		pricing:    deps.Pricing,
		pendingTTL: ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// creationPlan holds everything resolved during validation so Create never
// re-fetches between validation and persistence.
type creationPlan struct {
	mode    domain.OrderMode
	buyer   Party
	pricing ListPricing
	rate    float64
}

func (c *orderCreator) Validate(ctx context.Context, cmd CreateOrderCommand) ([]domain.ErrorCode, error) {
	codes, _, err := c.resolve(ctx, cmd)
	return codes, err
}

func (c *orderCreator) Create(ctx context.Context, cmd CreateOrderCommand, hook CreationHook) (Order, error) {
	order, err := c.create(ctx, cmd, hook)
	if err != nil {
		return Order{}, c.mapRepositoryError(err)
	}
	return order, nil
}

func (c *orderCreator) FindOrCreate(ctx context.Context, cmd CreateOrderCommand, hook CreationHook) (Order, error) {
	buyerType, ok := domain.ParsePartyType(strings.TrimSpace(cmd.BuyerType))
	if !ok {
		return Order{}, domain.NewError(domain.CodeUnknownParticipantType, "buyer type is not recognised")
	}
	mode, ok := domain.ParseOrderMode(strings.ToLower(strings.TrimSpace(cmd.Mode)))
	if !ok {
		return Order{}, domain.NewError(domain.CodeInvalidOrder, "order mode must be buy or offer")
	}
	buyer := Party{ID: strings.TrimSpace(cmd.BuyerID), Type: buyerType}
	if buyer.ID == "" {
		return Order{}, domain.NewError(domain.CodeMissingParams, "buyer id is required")
	}

	for attempt := 0; ; attempt++ {
		existing, err := c.orders.FindClaimable(ctx, buyer, mode)
		if err == nil {
			return existing, nil
		}
		if !isRepoNotFound(err) {
			return Order{}, c.mapRepositoryError(err)
		}

		order, err := c.create(ctx, cmd, hook)
		if err == nil {
			return order, nil
		}
		// Losing the insert race means another request just opened the
		// claimable order; re-read instead of failing.
		if isRepoConflict(err) && attempt < claimRetryAttempts {
			c.logger(ctx, "order.find_or_create.retry", map[string]any{
				"buyer":   buyer.ID,
				"mode":    string(mode),
				"attempt": attempt + 1,
			})
			continue
		}
		return Order{}, c.mapRepositoryError(err)
	}
}

// create runs validation, persists the order, and fires the hook. Repository
// errors escape unmapped so find-or-create can inspect conflicts.
func (c *orderCreator) create(ctx context.Context, cmd CreateOrderCommand, hook CreationHook) (Order, error) {
	codes, plan, err := c.resolve(ctx, cmd)
	if err != nil {
		return Order{}, err
	}
	if len(codes) > 0 {
		return Order{}, domain.NewValidationErrors(codes...)
	}

	now := c.clock()
	expiry := now.Add(c.pendingTTL)
	itemsTotal := plan.pricing.ListPriceCents * int64(cmd.Quantity)

	code, err := c.generateOrderCode(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:                  orderIDPrefix + c.newID(),
		Code:                code,
		Mode:                plan.mode,
		Buyer:               plan.buyer,
		Seller:              plan.pricing.Seller,
		CurrencyCode:        plan.pricing.CurrencyCode,
		State:               domain.OrderStatePending,
		StateUpdatedAt:      now,
		StateExpiresAt:      &expiry,
		ItemsTotalCents:     itemsTotal,
		TotalListPriceCents: itemsTotal,
		CommissionRate:      plan.rate,
		CommissionFeeCents:  CommissionFee(plan.rate, itemsTotal),
		OriginalUserAgent:   strings.TrimSpace(cmd.UserAgent),
		OriginalUserIP:      strings.TrimSpace(cmd.UserIP),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	order.RecomputeTotals()
	order.LineItems = []LineItem{{
		ID:             lineItemIDPrefix + c.newID(),
		OrderID:        order.ID,
		ArtworkID:      strings.TrimSpace(cmd.ArtworkID),
		EditionSetID:   plan.pricing.EditionSetID,
		ListPriceCents: plan.pricing.ListPriceCents,
		Quantity:       cmd.Quantity,
		CreatedAt:      now,
	}}

	err = c.runInTx(ctx, func(txCtx context.Context) error {
		if err := c.orders.Insert(txCtx, order); err != nil {
			return err
		}
		if hook != nil {
			if err := hook(txCtx, order); err != nil {
				return domain.WrapError(domain.CodeGeneric, "creation hook failed", err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	c.publishEvent(ctx, OrderEvent{
		Type:         orderEventCreated,
		OrderID:      order.ID,
		OrderCode:    order.Code,
		CurrentState: string(order.State),
		ActorID:      order.Buyer.ID,
		OccurredAt:   now,
		Metadata: map[string]any{
			"mode":     string(order.Mode),
			"artwork":  strings.TrimSpace(cmd.ArtworkID),
			"currency": order.CurrencyCode,
		},
	})

	return order, nil
}

// resolve runs the request-shape checks and the pricing engine, accumulating
// every applicable validation code. The error return is reserved for catalog
// and internal faults.
func (c *orderCreator) resolve(ctx context.Context, cmd CreateOrderCommand) ([]domain.ErrorCode, creationPlan, error) {
	var codes []domain.ErrorCode
	plan := creationPlan{}

	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		codes = append(codes, domain.CodeMissingParams)
	}
	buyerType, ok := domain.ParsePartyType(strings.TrimSpace(cmd.BuyerType))
	if !ok {
		codes = append(codes, domain.CodeUnknownParticipantType)
	}
	mode, ok := domain.ParseOrderMode(strings.ToLower(strings.TrimSpace(cmd.Mode)))
	if !ok {
		codes = append(codes, domain.CodeInvalidOrder)
	}
	if cmd.Quantity < 1 {
		codes = append(codes, domain.CodeMissingRequiredParam)
	}
	artworkID := strings.TrimSpace(cmd.ArtworkID)
	if artworkID == "" {
		codes = append(codes, domain.CodeUnknownArtwork)
		return codes, plan, nil
	}

	plan.mode = mode
	plan.buyer = Party{ID: buyerID, Type: buyerType}

	snapshot, err := c.catalog.FetchArtwork(ctx, artworkID)
	if err != nil {
		var domainErr *domain.Error
		if errors.As(err, &domainErr) && domainErr.Kind == domain.ErrorKindValidation {
			return append(codes, domainErr.Code), plan, nil
		}
		return nil, plan, domain.WrapError(domain.CodeCatalog, "fetch artwork "+artworkID, err)
	}

	pricing, pricingErr := c.pricing.ResolveListPricing(snapshot, mode, cmd.EditionSetID)
	if pricingErr != nil {
		return append(codes, pricingErr.Code), plan, nil
	}
	rate, rateErr := c.pricing.ResolveCommissionRate(snapshot)
	if rateErr != nil {
		return append(codes, rateErr.Code), plan, nil
	}

	plan.pricing = pricing
	plan.rate = rate
	return codes, plan, nil
}

func (c *orderCreator) generateOrderCode(ctx context.Context, now time.Time) (string, error) {
	seq, err := c.counters.Next(ctx, orderCodeCounter, 1)
	if err != nil {
		return "", domain.WrapError(domain.CodeFailedOrderCodeGeneration, "generate order code", err)
	}
	return fmt.Sprintf("EX-%04d-%06d", now.Year(), seq), nil
}

func (c *orderCreator) mapRepositoryError(err error) error {
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
			return domain.WrapError(domain.CodeInvalidOrder, "buyer already has an open order", err)
		case repoErr.IsUnavailable():
			return domain.WrapError(domain.CodeGeneric, "order storage unavailable", err)
		}
	}
	return domain.WrapError(domain.CodeGeneric, "order creation failed", err)
}

func (c *orderCreator) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if c.unitOfWork == nil {
		return fn(ctx)
	}
	return c.unitOfWork.RunInTx(ctx, fn)
}

func (c *orderCreator) publishEvent(ctx context.Context, event OrderEvent) {
	if c.events == nil {
		return
	}
	if err := c.events.PublishOrderEvent(ctx, event); err != nil {
		c.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func valuePtr[T any](v T) *T {
	return &v
}
