package services

import (
	"context"
	"time"

	domain "github.com/artfolio/exchange/internal/domain"
	"github.com/artfolio/exchange/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderMode          = domain.OrderMode
	OrderState         = domain.OrderState
	LineItem           = domain.LineItem
	Offer              = domain.Offer
	Party              = domain.Party
	Fulfillment        = domain.Fulfillment
	ArtworkSnapshot    = domain.ArtworkSnapshot
	EditionSetSnapshot = domain.EditionSetSnapshot
	SystemHealthReport = domain.SystemHealthReport
)

// OrderCreator owns order creation: validation, atomic create, and the
// idempotent find-or-create entry point.
type OrderCreator interface {
	// Validate reports every applicable validation code for the request
	// without mutating state. An empty slice means the request would create.
	// The error return covers catalog/internal faults only.
	Validate(ctx context.Context, cmd CreateOrderCommand) ([]domain.ErrorCode, error)
	// Create persists one Order and one LineItem atomically and invokes the
	// hook exactly once after the write commits.
	Create(ctx context.Context, cmd CreateOrderCommand, hook CreationHook) (Order, error)
	// FindOrCreate returns the buyer's existing claimable order for the mode
	// when one exists (without firing the hook), creating otherwise.
	FindOrCreate(ctx context.Context, cmd CreateOrderCommand, hook CreationHook) (Order, error)
}

// OrderService drives the order lifecycle state machine.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[Order], error)
	Submit(ctx context.Context, cmd SubmitOrderCommand) (Order, error)
	Approve(ctx context.Context, cmd ApproveOrderCommand) (Order, error)
	Fulfill(ctx context.Context, cmd FulfillOrderCommand) (Order, error)
	Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error)
	Abandon(ctx context.Context, cmd AbandonOrderCommand) (Order, error)
	// AbandonExpired sweeps claimable orders whose state deadline passed and
	// abandons them. Returns the number of orders abandoned.
	AbandonExpired(ctx context.Context, now time.Time) (int, error)
}

// OfferService drives negotiation on OFFER-mode pending orders.
type OfferService interface {
	ProposeOffer(ctx context.Context, cmd ProposeOfferCommand) (Offer, error)
	CounterOffer(ctx context.Context, cmd CounterOfferCommand) (Offer, error)
	AcceptOffer(ctx context.Context, cmd AcceptOfferCommand) (Order, error)
	RejectOffer(ctx context.Context, cmd RejectOfferCommand) (Order, error)
}

// SystemService exposes operational health for probes and dashboards.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}

// Collaborator contracts ------------------------------------------------------

// ArtworkCatalog fetches inventory snapshots and manages inventory holds.
// Implementations translate transport faults into the error taxonomy:
// a missing artwork is (validation, unknown_artwork), anything else is
// (internal, catalog).
type ArtworkCatalog interface {
	FetchArtwork(ctx context.Context, artworkID string) (ArtworkSnapshot, error)
	// DeductInventory commits the inventory hold when an order is submitted.
	DeductInventory(ctx context.Context, order Order) error
	// UndeductInventory releases the hold when an order is abandoned.
	UndeductInventory(ctx context.Context, order Order) error
}

// TaxCalculator computes the tax total for an order about to be submitted.
type TaxCalculator interface {
	ComputeTax(ctx context.Context, order Order) (int64, error)
}

// ChargeAuthorization reports the gateway reference of an authorized charge.
type ChargeAuthorization struct {
	ChargeID string
}

// RefundResult reports the outcome of a refund attempt.
type RefundResult struct {
	RefundID    string
	AmountCents int64
	Partial     bool
}

// PaymentProvider abstracts the payment gateway used on approve and refund.
type PaymentProvider interface {
	Authorize(ctx context.Context, order Order) (ChargeAuthorization, error)
	Capture(ctx context.Context, order Order) error
	Refund(ctx context.Context, order Order, amountCents *int64) (RefundResult, error)
}

// ChargeReleaser is implemented by gateways that can void an uncaptured hold.
// The order service releases the hold when capture fails after authorization.
type ChargeReleaser interface {
	Release(ctx context.Context, order Order) error
}

// CreationHook runs exactly once per real order creation, inside the same
// unit of work as the insert. Hook failure aborts the transaction, so no
// order is left behind without its hook having succeeded.
type CreationHook func(ctx context.Context, order Order) error

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type          string
	OrderID       string
	OrderCode     string
	PreviousState string
	CurrentState  string
	ActorID       string
	OccurredAt    time.Time
	Metadata      map[string]any
}

// Command and DTO definitions ------------------------------------------------

// CreateOrderCommand carries everything needed to open an order.
type CreateOrderCommand struct {
	Mode         string
	BuyerID      string
	BuyerType    string
	ArtworkID    string
	EditionSetID *string
	Quantity     int
	UserAgent    string
	UserIP       string
}

type SubmitOrderCommand struct {
	OrderID       string
	ActorID       string
	ExpectedState *domain.OrderState
}

type ApproveOrderCommand struct {
	OrderID string
	ActorID string
}

type FulfillOrderCommand struct {
	OrderID     string
	ActorID     string
	Fulfillment *Fulfillment
}

type RefundOrderCommand struct {
	OrderID     string
	ActorID     string
	AmountCents *int64
	Reason      string
}

type AbandonOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

type ProposeOfferCommand struct {
	OrderID     string
	FromID      string
	FromType    string
	AmountCents int64
	Note        string
}

type CounterOfferCommand struct {
	OrderID string
	// OfferID is the chain head the caller believes they are countering.
	OfferID     string
	FromID      string
	FromType    string
	AmountCents int64
	Note        string
}

type AcceptOfferCommand struct {
	OrderID  string
	OfferID  string
	FromID   string
	FromType string
}

type RejectOfferCommand struct {
	OrderID  string
	OfferID  string
	FromID   string
	FromType string
	Reason   string
}
