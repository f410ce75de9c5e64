package firestore

import (
	"context"
	"errors"
	"time"

	pfirestore "github.com/artfolio/exchange/internal/platform/firestore"
	repositories "github.com/artfolio/exchange/internal/repositories"
)

// RegistryConfig assembles the Firestore registry with its health reporting
// inputs. ExtraProbes lets the caller add checks for dependencies the registry
// does not own (payment gateway, catalog service, pubsub).
type RegistryConfig struct {
	Provider    *pfirestore.Provider
	Build       repositories.BuildInfo
	ExtraProbes []repositories.HealthProbe
	Clock       func() time.Time
}

// Registry bundles the Firestore repositories behind the
// repositories.Registry interface.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	offers   *OfferRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the Firestore-backed repository registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(cfg.Provider)
	if err != nil {
		return nil, err
	}
	offers, err := NewOfferRepository(cfg.Provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(cfg.Provider)
	if err != nil {
		return nil, err
	}

	probes := append([]repositories.HealthProbe{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := cfg.Provider.Client(ctx)
				return err
			},
		},
	}, cfg.ExtraProbes...)

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	health, err := repositories.NewProbeHealthRepository(probes, cfg.Build, clock)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: cfg.Provider,
		orders:   orders,
		offers:   offers,
		counters: counters,
		health:   health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Offers() repositories.OfferRepository     { return r.offers }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// RunInTx executes the callback directly. Every repository mutation already
// runs inside its own Firestore transaction, and the claim document keeps the
// one-claimable-order guarantee across concurrent writers, so grouped blocks
// need no additional serialisation here.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
