package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/artfolio/exchange/internal/domain"
	repositories "github.com/artfolio/exchange/internal/repositories"
)

// Registry bundles the in-memory repositories behind the repositories.Registry
// interface. Used in tests and local development.
type Registry struct {
	orders   *OrderRepository
	offers   *OfferRepository
	counters *CounterRepository
	health   repositories.HealthRepository

	// txMu serialises RunInTx blocks so grouped writes observe each other
	// without interleaving, approximating the Firestore transaction guarantee.
	txMu sync.Mutex
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs a registry backed entirely by process memory.
func NewRegistry() *Registry {
	health, _ := repositories.NewProbeHealthRepository([]repositories.HealthProbe{
		{Name: "memory", Check: func(context.Context) error { return nil }},
	}, repositories.BuildInfo{Environment: "memory"}, time.Now)

	return &Registry{
		orders:   NewOrderRepository(),
		offers:   NewOfferRepository(),
		counters: NewCounterRepository(),
		health:   health,
	}
}

func (r *Registry) Close(ctx context.Context) error { return nil }

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Offers() repositories.OfferRepository     { return r.offers }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// RunInTx serialises the callback against other transactions. Writes are not
// rolled back on failure; callers must treat a failed block as partial.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(ctx)
}

// Seed inserts fixture orders directly, bypassing claimability checks. Test helper.
func (r *Registry) Seed(orders ...domain.Order) {
	for _, order := range orders {
		r.orders.mu.Lock()
		r.orders.orders[order.ID] = cloneOrder(order)
		if order.State.IsClaimable() {
			r.orders.claimable[claimKeyFor(order)] = order.ID
		}
		r.orders.mu.Unlock()
	}
}
