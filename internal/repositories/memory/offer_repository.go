package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/artfolio/exchange/internal/domain"
	repositories "github.com/artfolio/exchange/internal/repositories"
)

// OfferRepository keeps negotiation offers in process memory, keyed per order.
type OfferRepository struct {
	mu     sync.RWMutex
	offers map[string]map[string]domain.Offer
}

var _ repositories.OfferRepository = (*OfferRepository)(nil)

// NewOfferRepository constructs an empty in-memory offer store.
func NewOfferRepository() *OfferRepository {
	return &OfferRepository{offers: make(map[string]map[string]domain.Offer)}
}

// Insert stores a new offer under its order.
func (r *OfferRepository) Insert(ctx context.Context, offer domain.Offer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byOrder, exists := r.offers[offer.OrderID]
	if !exists {
		byOrder = make(map[string]domain.Offer)
		r.offers[offer.OrderID] = byOrder
	}
	if _, exists := byOrder[offer.ID]; exists {
		return conflictError("offers.insert", "offer %s already exists", offer.ID)
	}
	byOrder[offer.ID] = offer
	return nil
}

// Update replaces an existing offer.
func (r *OfferRepository) Update(ctx context.Context, offer domain.Offer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byOrder, exists := r.offers[offer.OrderID]
	if !exists {
		return notFoundError("offers.update", "offer %s not found", offer.ID)
	}
	if _, exists := byOrder[offer.ID]; !exists {
		return notFoundError("offers.update", "offer %s not found", offer.ID)
	}
	byOrder[offer.ID] = offer
	return nil
}

// FindByID returns an offer scoped to its order.
func (r *OfferRepository) FindByID(ctx context.Context, orderID string, offerID string) (domain.Offer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Offer{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	byOrder, exists := r.offers[orderID]
	if !exists {
		return domain.Offer{}, notFoundError("offers.find", "offer %s not found on order %s", offerID, orderID)
	}
	offer, exists := byOrder[offerID]
	if !exists {
		return domain.Offer{}, notFoundError("offers.find", "offer %s not found on order %s", offerID, orderID)
	}
	return offer, nil
}

// ListByOrder returns all offers for an order, oldest first.
func (r *OfferRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	byOrder := r.offers[orderID]
	offers := make([]domain.Offer, 0, len(byOrder))
	for _, offer := range byOrder {
		offers = append(offers, offer)
	}
	sort.Slice(offers, func(i, j int) bool {
		if !offers[i].CreatedAt.Equal(offers[j].CreatedAt) {
			return offers[i].CreatedAt.Before(offers[j].CreatedAt)
		}
		return offers[i].ID < offers[j].ID
	})
	return offers, nil
}
