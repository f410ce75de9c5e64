package domain

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderMode distinguishes direct purchases from negotiated purchases.
// The mode is fixed at creation and never changes afterwards.
type OrderMode string

const (
	// OrderModeBuy is a direct purchase at list price.
	OrderModeBuy OrderMode = "buy"
	// OrderModeOffer is a negotiated purchase driven by an offer chain.
	OrderModeOffer OrderMode = "offer"
)

// ParseOrderMode validates a raw mode string.
func ParseOrderMode(raw string) (OrderMode, bool) {
	switch OrderMode(raw) {
	case OrderModeBuy, OrderModeOffer:
		return OrderMode(raw), true
	}
	return "", false
}

// OrderState enumerates the lifecycle states for orders.
type OrderState string

const (
	// OrderStatePending indicates the order was created but not yet submitted for payment.
	OrderStatePending OrderState = "pending"
	// OrderStateSubmitted indicates the buyer committed and the order awaits seller approval.
	OrderStateSubmitted OrderState = "submitted"
	// OrderStateApproved indicates the seller approved and the charge was captured.
	OrderStateApproved OrderState = "approved"
	// OrderStateFulfilled indicates the order was fulfilled. Terminal.
	OrderStateFulfilled OrderState = "fulfilled"
	// OrderStateRefunded indicates the order was refunded after approval. Terminal.
	OrderStateRefunded OrderState = "refunded"
	// OrderStateAbandoned indicates the order was abandoned before approval. Terminal.
	OrderStateAbandoned OrderState = "abandoned"
)

// ClaimableStates lists the states in which an existing order satisfies an
// idempotent find-or-create for the same buyer and mode.
var ClaimableStates = []OrderState{OrderStatePending, OrderStateSubmitted}

// IsClaimable reports whether an order in this state should be returned by
// find-or-create instead of creating a new order.
func (s OrderState) IsClaimable() bool {
	for _, claimable := range ClaimableStates {
		if s == claimable {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state permits no further transitions.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFulfilled, OrderStateRefunded, OrderStateAbandoned:
		return true
	}
	return false
}

// PartyType identifies the kind of participant referenced by a Party.
type PartyType string

const (
	// PartyTypeUser is an individual collector account.
	PartyTypeUser PartyType = "user"
	// PartyTypePartner is a partner account acting as seller.
	PartyTypePartner PartyType = "partner"
	// PartyTypeGallery is a gallery seller as reported by the catalog service.
	PartyTypeGallery PartyType = "gallery"
)

// ParsePartyType validates a raw participant type string.
func ParsePartyType(raw string) (PartyType, bool) {
	switch PartyType(raw) {
	case PartyTypeUser, PartyTypePartner, PartyTypeGallery:
		return PartyType(raw), true
	}
	return "", false
}

// Party references a buyer or seller without owning the full account record.
// Resolution of the underlying account is delegated to external identity services.
type Party struct {
	ID   string
	Type PartyType
}

// IsZero reports whether the party reference is empty.
func (p Party) IsZero() bool {
	return p.ID == "" && p.Type == ""
}

// FulfillmentType enumerates supported fulfillment variants.
type FulfillmentType string

const (
	// FulfillmentTypeShip indicates carrier delivery to the buyer's address.
	FulfillmentTypeShip FulfillmentType = "ship"
	// FulfillmentTypePickup indicates the buyer collects from the seller.
	FulfillmentTypePickup FulfillmentType = "pickup"
)

// ParseFulfillmentType validates a raw fulfillment type string.
func ParseFulfillmentType(raw string) (FulfillmentType, bool) {
	switch FulfillmentType(raw) {
	case FulfillmentTypeShip, FulfillmentTypePickup:
		return FulfillmentType(raw), true
	}
	return "", false
}

// Fulfillment is the tagged variant describing how the order will be fulfilled.
// Nil on an order until the buyer requests fulfillment details.
type Fulfillment struct {
	Type        FulfillmentType
	Name        string
	AddressLine string
	City        string
	Region      string
	Country     string
	PostalCode  string
	PhoneNumber string
}

// Order is the transaction root driven through the lifecycle state machine.
type Order struct {
	ID     string
	Code   string
	Mode   OrderMode
	Buyer  Party
	Seller Party

	CurrencyCode string
	State        OrderState
	StateReason  string

	ItemsTotalCents     int64
	ShippingTotalCents  int64
	TaxTotalCents       int64
	CommissionFeeCents  int64
	TransactionFeeCents int64
	BuyerTotalCents     int64
	SellerTotalCents    int64
	TotalListPriceCents int64
	CommissionRate      float64

	Fulfillment *Fulfillment

	LastOfferID      *string
	ExternalChargeID string

	StateUpdatedAt  time.Time
	StateExpiresAt  *time.Time
	LastSubmittedAt *time.Time
	LastApprovedAt  *time.Time

	OriginalUserAgent string
	OriginalUserIP    string

	// Version supports optimistic concurrency across state transitions.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	LineItems []LineItem
	Offers    []Offer
}

// RecomputeTotals derives the rolled-up buyer and seller totals from the
// component amounts. Component amounts themselves are only set through the
// creator and the state machine.
func (o *Order) RecomputeTotals() {
	o.BuyerTotalCents = o.ItemsTotalCents + o.ShippingTotalCents + o.TaxTotalCents
	o.SellerTotalCents = o.BuyerTotalCents - o.CommissionFeeCents - o.TransactionFeeCents
}

// LineItem is a single purchasable unit inside an order. Price and currency are
// frozen at creation; offer acceptance is the only gated price adjustment.
type LineItem struct {
	ID             string
	OrderID        string
	ArtworkID      string
	EditionSetID   *string
	ListPriceCents int64
	Quantity       int
	CreatedAt      time.Time
}

// Offer is one proposal in an order's negotiation chain. Offers are immutable
// once submitted; the chain is append-only.
type Offer struct {
	ID            string
	OrderID       string
	From          Party
	AmountCents   int64
	TaxTotalCents *int64
	Note          string
	// RespondsTo links to the predecessor offer, nil for the chain's first offer.
	RespondsTo  *string
	SubmittedAt *time.Time
	CreatedAt   time.Time
}

// Submitted reports whether the offer has been submitted into the chain.
func (of Offer) Submitted() bool {
	return of.SubmittedAt != nil
}

// DisplayCommissionRate renders the commission rate as a human readable
// percentage, e.g. "12.5%". Empty when no rate is set.
func DisplayCommissionRate(rate float64) string {
	if rate <= 0 {
		return ""
	}
	printer := message.NewPrinter(language.English)
	return printer.Sprint(number.Percent(rate, number.MaxFractionDigits(2)))
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck captures a single dependency probe result.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// EditionSetSnapshot is one purchasable variant of an artwork as reported by
// the catalog collaborator.
type EditionSetSnapshot struct {
	ID               string
	PriceListedCents *int64
	PriceCurrency    string
}

// ArtworkSnapshot is the point-in-time inventory view an order is priced from.
// Prices and flags are frozen into the order at creation; the snapshot itself
// is never stored.
type ArtworkSnapshot struct {
	ID               string
	Published        bool
	Acquireable      bool
	Offerable        bool
	PriceListedCents *int64
	PriceCurrency    string
	Partner          Party
	CommissionRate   float64
	EditionSets      []EditionSetSnapshot
}

// EditionSet returns the edition set with the given id, if present.
func (s ArtworkSnapshot) EditionSet(id string) (EditionSetSnapshot, bool) {
	for _, es := range s.EditionSets {
		if es.ID == id {
			return es, true
		}
	}
	return EditionSetSnapshot{}, false
}
