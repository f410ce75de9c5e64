package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	domain "github.com/artfolio/exchange/internal/domain"
	"github.com/artfolio/exchange/internal/platform/pagination"
	repositories "github.com/artfolio/exchange/internal/repositories"
)

type claimKey struct {
	buyerID   string
	buyerType domain.PartyType
	mode      domain.OrderMode
}

// OrderRepository keeps orders in process memory. It mirrors the uniqueness
// guarantee of the Firestore backend: at most one claimable order per
// (buyer, mode) pair.
type OrderRepository struct {
	mu        sync.RWMutex
	orders    map[string]domain.Order
	claimable map[claimKey]string
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs an empty in-memory order store.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:    make(map[string]domain.Order),
		claimable: make(map[claimKey]string),
	}
}

func claimKeyFor(order domain.Order) claimKey {
	return claimKey{
		buyerID:   order.Buyer.ID,
		buyerType: order.Buyer.Type,
		mode:      order.Mode,
	}
}

// Insert stores a new order. Fails with a conflict when the ID is taken or
// another claimable order exists for the same buyer and mode.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return conflictError("orders.insert", "order %s already exists", order.ID)
	}
	key := claimKeyFor(order)
	if order.State.IsClaimable() {
		if existingID, taken := r.claimable[key]; taken {
			return conflictError("orders.insert", "claimable order %s already open for buyer %s", existingID, order.Buyer.ID)
		}
		r.claimable[key] = order.ID
	}

	r.orders[order.ID] = cloneOrder(order)
	return nil
}

// Update replaces the stored order, enforcing the optimistic version guard.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedVersion *int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.orders[order.ID]
	if !exists {
		return notFoundError("orders.update", "order %s not found", order.ID)
	}
	if expectedVersion != nil && stored.Version != *expectedVersion {
		return conflictError("orders.update", "order %s version %d does not match expected %d", order.ID, stored.Version, *expectedVersion)
	}

	key := claimKeyFor(stored)
	if stored.State.IsClaimable() && !order.State.IsClaimable() {
		if r.claimable[key] == order.ID {
			delete(r.claimable, key)
		}
	}
	if !stored.State.IsClaimable() && order.State.IsClaimable() {
		if existingID, taken := r.claimable[key]; taken && existingID != order.ID {
			return conflictError("orders.update", "claimable order %s already open for buyer %s", existingID, order.Buyer.ID)
		}
		r.claimable[key] = order.ID
	}

	r.orders[order.ID] = cloneOrder(order)
	return nil
}

// FindByID returns the order or a not-found error.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.orders[orderID]
	if !exists {
		return domain.Order{}, notFoundError("orders.find", "order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

// FindClaimable returns the single open order for the buyer and mode.
func (r *OrderRepository) FindClaimable(ctx context.Context, buyer domain.Party, mode domain.OrderMode) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key := claimKey{buyerID: buyer.ID, buyerType: buyer.Type, mode: mode}
	orderID, exists := r.claimable[key]
	if !exists {
		return domain.Order{}, notFoundError("orders.claimable", "no claimable %s order for buyer %s", mode, buyer.ID)
	}
	order, exists := r.orders[orderID]
	if !exists || !order.State.IsClaimable() {
		return domain.Order{}, notFoundError("orders.claimable", "no claimable %s order for buyer %s", mode, buyer.ID)
	}
	return cloneOrder(order), nil
}

// List returns orders matching the filter, newest first, with cursor paging.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if err := ctx.Err(); err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	r.mu.RLock()
	matched := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if matchesFilter(order, filter) {
			matched = append(matched, cloneOrder(order))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	start := 0
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, conflictError("orders.list", "invalid page token: %v", err)
	}
	if len(cursor.StartAfter) == 2 {
		afterID, _ := cursor.StartAfter[1].(string)
		for i, order := range matched {
			if order.ID == afterID {
				start = i + 1
				break
			}
		}
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	items := matched[start:end]

	page := domain.CursorPage[domain.Order]{Items: items}
	if end < len(matched) && len(items) > 0 {
		last := items[len(items)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{strconv.FormatInt(last.CreatedAt.UnixNano(), 10), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// ListExpired returns claimable orders whose state deadline passed the cutoff.
func (r *OrderRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	expired := make([]domain.Order, 0)
	for _, order := range r.orders {
		if !order.State.IsClaimable() {
			continue
		}
		if order.StateExpiresAt == nil || !order.StateExpiresAt.Before(cutoff) {
			continue
		}
		expired = append(expired, cloneOrder(order))
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].StateExpiresAt.Before(*expired[j].StateExpiresAt)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func matchesFilter(order domain.Order, filter repositories.OrderListFilter) bool {
	if filter.BuyerID != "" && order.Buyer.ID != filter.BuyerID {
		return false
	}
	if filter.SellerID != "" && order.Seller.ID != filter.SellerID {
		return false
	}
	if filter.Mode != nil && order.Mode != *filter.Mode {
		return false
	}
	if len(filter.States) > 0 {
		found := false
		for _, state := range filter.States {
			if order.State == state {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.DateRange.From != nil && order.CreatedAt.Before(*filter.DateRange.From) {
		return false
	}
	if filter.DateRange.To != nil && order.CreatedAt.After(*filter.DateRange.To) {
		return false
	}
	return true
}

func cloneOrder(order domain.Order) domain.Order {
	cloned := order
	if order.LineItems != nil {
		cloned.LineItems = append([]domain.LineItem(nil), order.LineItems...)
	}
	if order.Offers != nil {
		cloned.Offers = append([]domain.Offer(nil), order.Offers...)
	}
	return cloned
}
