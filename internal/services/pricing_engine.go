package services

import (
	"errors"
	"math"
	"strings"

	domain "github.com/artfolio/exchange/internal/domain"
)

// ListPricing is the resolved price tuple frozen into a new order.
type ListPricing struct {
	ListPriceCents int64
	CurrencyCode   string
	Seller         Party
	EditionSetID   *string
}

// PricingEngine resolves list pricing and commission from catalog snapshots.
// Resolution is pure: no side effects, deterministic for identical input.
type PricingEngine struct {
	defaultCommissionRate float64
}

// PricingEngineDeps configures the pricing engine.
type PricingEngineDeps struct {
	// DefaultCommissionRate applies when the partner record carries no rate.
	DefaultCommissionRate float64
}

// NewPricingEngine validates configuration and constructs the engine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.DefaultCommissionRate < 0 || deps.DefaultCommissionRate > 1 {
		return nil, errors.New("pricing engine: default commission rate must be within [0, 1]")
	}
	return &PricingEngine{defaultCommissionRate: deps.DefaultCommissionRate}, nil
}

// ResolveListPricing applies the pricing rules in order, first failure wins.
func (e *PricingEngine) ResolveListPricing(snapshot ArtworkSnapshot, mode domain.OrderMode, editionSetID *string) (ListPricing, *domain.Error) {
	if strings.TrimSpace(snapshot.ID) == "" {
		return ListPricing{}, domain.NewError(domain.CodeUnknownArtwork, "artwork snapshot is absent")
	}
	if !snapshot.Published {
		return ListPricing{}, domain.NewError(domain.CodeUnpublishedArtwork, "artwork is not published")
	}
	switch mode {
	case domain.OrderModeOffer:
		if !snapshot.Offerable {
			return ListPricing{}, domain.NewError(domain.CodeNotOfferable, "artwork does not accept offers")
		}
	default:
		if !snapshot.Acquireable {
			return ListPricing{}, domain.NewError(domain.CodeNotAcquireable, "artwork is not acquireable")
		}
	}

	var (
		priceCents *int64
		currency   string
		resolvedID *string
	)
	switch {
	case editionSetID != nil:
		id := strings.TrimSpace(*editionSetID)
		editionSet, found := snapshot.EditionSet(id)
		if !found {
			return ListPricing{}, domain.NewError(domain.CodeUnknownEditionSet, "edition set "+id+" is not part of the artwork")
		}
		priceCents = editionSet.PriceListedCents
		currency = editionSet.PriceCurrency
		resolvedID = &editionSet.ID
	case len(snapshot.EditionSets) > 1:
		return ListPricing{}, domain.NewError(domain.CodeMissingEditionSetID, "artwork has multiple edition sets; edition_set_id is required")
	case len(snapshot.EditionSets) == 1:
		editionSet := snapshot.EditionSets[0]
		priceCents = editionSet.PriceListedCents
		currency = editionSet.PriceCurrency
		resolvedID = &editionSet.ID
	default:
		priceCents = snapshot.PriceListedCents
		currency = snapshot.PriceCurrency
	}

	if priceCents == nil {
		return ListPricing{}, domain.NewError(domain.CodeMissingPrice, "price source has no list price")
	}
	if strings.TrimSpace(currency) == "" {
		return ListPricing{}, domain.NewError(domain.CodeMissingCurrency, "price source has no currency")
	}

	return ListPricing{
		ListPriceCents: *priceCents,
		CurrencyCode:   strings.ToUpper(strings.TrimSpace(currency)),
		Seller:         snapshot.Partner,
		EditionSetID:   resolvedID,
	}, nil
}

// ResolveCommissionRate picks the partner rate, falling back to the default.
func (e *PricingEngine) ResolveCommissionRate(snapshot ArtworkSnapshot) (float64, *domain.Error) {
	rate := snapshot.CommissionRate
	if rate == 0 {
		rate = e.defaultCommissionRate
	}
	if rate < 0 || rate > 1 {
		return 0, domain.NewError(domain.CodeInvalidCommissionRate, "commission rate must be within [0, 1]")
	}
	return rate, nil
}

// CommissionFee computes the seller commission, rounded half away from zero.
func CommissionFee(rate float64, itemsTotalCents int64) int64 {
	return int64(math.Round(rate * float64(itemsTotalCents)))
}
