package repositories

import (
	"context"
	"time"

	domain "github.com/artfolio/exchange/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Offers() OfferRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers together with their line items.
//
// Insert must fail with an IsConflict RepositoryError when a claimable order
// for the same (buyer, mode) pair already exists, so that concurrent
// find-or-create races collapse onto a single order.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update replaces the order document. When expectedVersion is non-nil the
	// write only succeeds if the stored version matches, returning an
	// IsConflict RepositoryError otherwise.
	Update(ctx context.Context, order domain.Order, expectedVersion *int64) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindClaimable returns the open order a buyer can reuse for the given
	// mode, or an IsNotFound RepositoryError when none exists.
	FindClaimable(ctx context.Context, buyer domain.Party, mode domain.OrderMode) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// ListExpired returns submitted or pending orders whose state deadline
	// passed before the cutoff, for the abandonment sweep.
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
}

// OfferRepository persists negotiation offers underneath an order.
type OfferRepository interface {
	Insert(ctx context.Context, offer domain.Offer) error
	Update(ctx context.Context, offer domain.Offer) error
	FindByID(ctx context.Context, orderID string, offerID string) (domain.Offer, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Offer, error)
}

// CounterRepository provides transaction-safe sequence numbers for order codes.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows order listings for buyers, sellers and admin views.
type OrderListFilter struct {
	BuyerID    string
	SellerID   string
	Mode       *domain.OrderMode
	States     []domain.OrderState
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
