package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/artfolio/exchange/internal/domain"
	pfirestore "github.com/artfolio/exchange/internal/platform/firestore"
	"github.com/artfolio/exchange/internal/platform/pagination"
	repositories "github.com/artfolio/exchange/internal/repositories"
)

const (
	ordersCollection      = "orders"
	orderClaimsCollection = "order_claims"
	defaultListPageSize   = 20
)

// OrderRepository persists orders in Firestore. A companion claim document per
// (buyer, mode) pair enforces the at-most-one-claimable-order uniqueness
// guarantee: claim creation inside the insert transaction makes concurrent
// find-or-create races lose with an IsConflict error.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	claims   *pfirestore.BaseRepository[orderClaimDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		claims:   pfirestore.NewBaseRepository[orderClaimDocument](provider, orderClaimsCollection, nil, nil),
	}, nil
}

func claimDocID(buyer domain.Party, mode domain.OrderMode) string {
	return fmt.Sprintf("%s_%s_%s", buyer.Type, buyer.ID, mode)
}

// Insert creates the order document. For claimable orders the claim document
// is created in the same transaction, so a second claimable order for the
// same buyer and mode aborts with AlreadyExists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}

	doc := fromDomainOrder(order)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		if !order.State.IsClaimable() {
			return nil
		}
		claimRef, err := r.claims.DocumentRef(ctx, claimDocID(order.Buyer, order.Mode))
		if err != nil {
			return err
		}
		return tx.Create(claimRef, orderClaimDocument{
			OrderID:   order.ID,
			BuyerID:   order.Buyer.ID,
			BuyerType: string(order.Buyer.Type),
			Mode:      string(order.Mode),
			UpdatedAt: order.CreatedAt,
		})
	})
	if err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the order document, enforcing the optimistic version guard
// and keeping the claim document in step with claimability transitions.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedVersion *int64) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}

	doc := fromDomainOrder(order)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var stored orderDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", order.ID, err)
		}
		if expectedVersion != nil && stored.Version != *expectedVersion {
			return status.Errorf(codes.Aborted, "order %s version %d does not match expected %d", order.ID, stored.Version, *expectedVersion)
		}

		wasClaimable := domain.OrderState(stored.State).IsClaimable()
		isClaimable := order.State.IsClaimable()
		if wasClaimable != isClaimable {
			claimRef, err := r.claims.DocumentRef(ctx, claimDocID(order.Buyer, order.Mode))
			if err != nil {
				return err
			}
			if wasClaimable && !isClaimable {
				if err := tx.Delete(claimRef); err != nil {
					return err
				}
			} else {
				if err := tx.Create(claimRef, orderClaimDocument{
					OrderID:   order.ID,
					BuyerID:   order.Buyer.ID,
					BuyerType: string(order.Buyer.Type),
					Mode:      string(order.Mode),
					UpdatedAt: order.UpdatedAt,
				}); err != nil {
					return err
				}
			}
		}

		return tx.Set(orderRef, doc)
	})
	if err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID loads the order by its identifier.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// FindClaimable resolves the open order for the buyer and mode via the claim
// document. A stale claim pointing at a no-longer-claimable order reads as
// not found.
func (r *OrderRepository) FindClaimable(ctx context.Context, buyer domain.Party, mode domain.OrderMode) (domain.Order, error) {
	if r == nil || r.claims == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	claim, err := r.claims.Get(ctx, claimDocID(buyer, mode))
	if err != nil {
		return domain.Order{}, err
	}
	order, err := r.FindByID(ctx, claim.Data.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.State.IsClaimable() {
		return domain.Order{}, pfirestore.WrapError("orders.claimable",
			status.Errorf(codes.NotFound, "no claimable %s order for buyer %s", mode, buyer.ID))
	}
	return order, nil
}

// List returns orders matching the filter, newest first, with cursor paging.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultListPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list",
			status.Errorf(codes.InvalidArgument, "invalid page token: %v", err))
	}

	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.BuyerID != "" {
			query = query.Where("buyer.id", "==", filter.BuyerID)
		}
		if filter.SellerID != "" {
			query = query.Where("seller.id", "==", filter.SellerID)
		}
		if filter.Mode != nil {
			query = query.Where("mode", "==", string(*filter.Mode))
		}
		if len(filter.States) > 0 {
			states := make([]string, 0, len(filter.States))
			for _, state := range filter.States {
				states = append(states, string(state))
			}
			query = query.Where("state", "in", states)
		}
		if filter.DateRange.From != nil {
			query = query.Where("createdAt", ">=", *filter.DateRange.From)
		}
		if filter.DateRange.To != nil {
			query = query.Where("createdAt", "<=", *filter.DateRange.To)
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if after, ok := decodeOrderCursor(cursor); ok {
			query = query.StartAfter(after.createdAt, after.id)
		}
		// Fetch one extra row to detect whether another page exists.
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainOrder(doc.ID, doc.Data))
	}

	page := domain.CursorPage[domain.Order]{Items: items}
	if hasMore && len(items) > 0 {
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

// ListExpired returns claimable orders whose state deadline passed the cutoff,
// oldest deadline first.
func (r *OrderRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}

	states := make([]string, 0, len(domain.ClaimableStates))
	for _, state := range domain.ClaimableStates {
		states = append(states, string(state))
	}

	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("state", "in", states).
			Where("stateExpiresAt", "<", cutoff).
			OrderBy("stateExpiresAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

type orderCursor struct {
	createdAt time.Time
	id        string
}

func decodeOrderCursor(cursor pagination.Cursor) (orderCursor, bool) {
	if len(cursor.StartAfter) != 2 {
		return orderCursor{}, false
	}
	rawNanos, _ := cursor.StartAfter[0].(string)
	id, _ := cursor.StartAfter[1].(string)
	nanos, err := strconv.ParseInt(rawNanos, 10, 64)
	if err != nil || id == "" {
		return orderCursor{}, false
	}
	return orderCursor{createdAt: time.Unix(0, nanos).UTC(), id: id}, true
}

type orderClaimDocument struct {
	OrderID   string    `firestore:"orderId"`
	BuyerID   string    `firestore:"buyerId"`
	BuyerType string    `firestore:"buyerType"`
	Mode      string    `firestore:"mode"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type orderDocument struct {
	Code   string        `firestore:"code"`
	Mode   string        `firestore:"mode"`
	Buyer  partyDocument `firestore:"buyer"`
	Seller partyDocument `firestore:"seller"`

	CurrencyCode string `firestore:"currencyCode"`
	State        string `firestore:"state"`
	StateReason  string `firestore:"stateReason,omitempty"`

	ItemsTotalCents     int64   `firestore:"itemsTotalCents"`
	ShippingTotalCents  int64   `firestore:"shippingTotalCents"`
	TaxTotalCents       int64   `firestore:"taxTotalCents"`
	CommissionFeeCents  int64   `firestore:"commissionFeeCents"`
	TransactionFeeCents int64   `firestore:"transactionFeeCents"`
	BuyerTotalCents     int64   `firestore:"buyerTotalCents"`
	SellerTotalCents    int64   `firestore:"sellerTotalCents"`
	TotalListPriceCents int64   `firestore:"totalListPriceCents"`
	CommissionRate      float64 `firestore:"commissionRate"`

	Fulfillment *fulfillmentDocument `firestore:"fulfillment,omitempty"`

	LastOfferID      *string `firestore:"lastOfferId,omitempty"`
	ExternalChargeID string  `firestore:"externalChargeId,omitempty"`

	StateUpdatedAt  time.Time  `firestore:"stateUpdatedAt"`
	StateExpiresAt  *time.Time `firestore:"stateExpiresAt,omitempty"`
	LastSubmittedAt *time.Time `firestore:"lastSubmittedAt,omitempty"`
	LastApprovedAt  *time.Time `firestore:"lastApprovedAt,omitempty"`

	OriginalUserAgent string `firestore:"originalUserAgent,omitempty"`
	OriginalUserIP    string `firestore:"originalUserIp,omitempty"`

	Version   int64     `firestore:"version"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`

	LineItems []lineItemDocument `firestore:"lineItems"`
}

type partyDocument struct {
	ID   string `firestore:"id"`
	Type string `firestore:"type"`
}

type fulfillmentDocument struct {
	Type        string `firestore:"type"`
	Name        string `firestore:"name,omitempty"`
	AddressLine string `firestore:"addressLine,omitempty"`
	City        string `firestore:"city,omitempty"`
	Region      string `firestore:"region,omitempty"`
	Country     string `firestore:"country,omitempty"`
	PostalCode  string `firestore:"postalCode,omitempty"`
	PhoneNumber string `firestore:"phoneNumber,omitempty"`
}

type lineItemDocument struct {
	ID             string    `firestore:"id"`
	ArtworkID      string    `firestore:"artworkId"`
	EditionSetID   *string   `firestore:"editionSetId,omitempty"`
	ListPriceCents int64     `firestore:"listPriceCents"`
	Quantity       int       `firestore:"quantity"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		Code:                order.Code,
		Mode:                string(order.Mode),
		Buyer:               partyDocument{ID: order.Buyer.ID, Type: string(order.Buyer.Type)},
		Seller:              partyDocument{ID: order.Seller.ID, Type: string(order.Seller.Type)},
		CurrencyCode:        order.CurrencyCode,
		State:               string(order.State),
		StateReason:         order.StateReason,
		ItemsTotalCents:     order.ItemsTotalCents,
		ShippingTotalCents:  order.ShippingTotalCents,
		TaxTotalCents:       order.TaxTotalCents,
		CommissionFeeCents:  order.CommissionFeeCents,
		TransactionFeeCents: order.TransactionFeeCents,
		BuyerTotalCents:     order.BuyerTotalCents,
		SellerTotalCents:    order.SellerTotalCents,
		TotalListPriceCents: order.TotalListPriceCents,
		CommissionRate:      order.CommissionRate,
		LastOfferID:         order.LastOfferID,
		ExternalChargeID:    order.ExternalChargeID,
		StateUpdatedAt:      order.StateUpdatedAt,
		StateExpiresAt:      order.StateExpiresAt,
		LastSubmittedAt:     order.LastSubmittedAt,
		LastApprovedAt:      order.LastApprovedAt,
		OriginalUserAgent:   order.OriginalUserAgent,
		OriginalUserIP:      order.OriginalUserIP,
		Version:             order.Version,
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}
	if order.Fulfillment != nil {
		doc.Fulfillment = &fulfillmentDocument{
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
	doc.LineItems = make([]lineItemDocument, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		doc.LineItems = append(doc.LineItems, lineItemDocument{
			ID:             item.ID,
			ArtworkID:      item.ArtworkID,
			EditionSetID:   item.EditionSetID,
			ListPriceCents: item.ListPriceCents,
			Quantity:       item.Quantity,
			CreatedAt:      item.CreatedAt,
		})
	}
	return doc
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                  id,
		Code:                doc.Code,
		Mode:                domain.OrderMode(doc.Mode),
		Buyer:               domain.Party{ID: doc.Buyer.ID, Type: domain.PartyType(doc.Buyer.Type)},
		Seller:              domain.Party{ID: doc.Seller.ID, Type: domain.PartyType(doc.Seller.Type)},
		CurrencyCode:        doc.CurrencyCode,
		State:               domain.OrderState(doc.State),
		StateReason:         doc.StateReason,
		ItemsTotalCents:     doc.ItemsTotalCents,
		ShippingTotalCents:  doc.ShippingTotalCents,
		TaxTotalCents:       doc.TaxTotalCents,
		CommissionFeeCents:  doc.CommissionFeeCents,
		TransactionFeeCents: doc.TransactionFeeCents,
		BuyerTotalCents:     doc.BuyerTotalCents,
		SellerTotalCents:    doc.SellerTotalCents,
		TotalListPriceCents: doc.TotalListPriceCents,
		CommissionRate:      doc.CommissionRate,
		LastOfferID:         doc.LastOfferID,
		ExternalChargeID:    doc.ExternalChargeID,
		StateUpdatedAt:      doc.StateUpdatedAt,
		StateExpiresAt:      doc.StateExpiresAt,
		LastSubmittedAt:     doc.LastSubmittedAt,
		LastApprovedAt:      doc.LastApprovedAt,
		OriginalUserAgent:   doc.OriginalUserAgent,
		OriginalUserIP:      doc.OriginalUserIP,
		Version:             doc.Version,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
	}
	if doc.Fulfillment != nil {
		order.Fulfillment = &domain.Fulfillment{
			Type:        domain.FulfillmentType(doc.Fulfillment.Type),
			Name:        doc.Fulfillment.Name,
			AddressLine: doc.Fulfillment.AddressLine,
			City:        doc.Fulfillment.City,
			Region:      doc.Fulfillment.Region,
			Country:     doc.Fulfillment.Country,
			PostalCode:  doc.Fulfillment.PostalCode,
			PhoneNumber: doc.Fulfillment.PhoneNumber,
		}
	}
	order.LineItems = make([]domain.LineItem, 0, len(doc.LineItems))
	for _, item := range doc.LineItems {
		order.LineItems = append(order.LineItems, domain.LineItem{
			ID:             item.ID,
			OrderID:        id,
			ArtworkID:      item.ArtworkID,
			EditionSetID:   item.EditionSetID,
			ListPriceCents: item.ListPriceCents,
			Quantity:       item.Quantity,
			CreatedAt:      item.CreatedAt,
		})
	}
	return order
}
