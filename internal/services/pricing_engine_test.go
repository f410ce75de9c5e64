package services

import (
	"testing"

	domain "github.com/artfolio/exchange/internal/domain"
)

func snapshotFixture() ArtworkSnapshot {
	price := int64(540_012)
	return ArtworkSnapshot{
		ID:               "artwork-1",
		Published:        true,
		Acquireable:      true,
		Offerable:        true,
		PriceListedCents: &price,
		PriceCurrency:    "USD",
		Partner:          Party{ID: "partner-1", Type: domain.PartyTypePartner},
		CommissionRate:   0.08,
	}
}

func mustPricingEngine(t *testing.T) *PricingEngine {
	t.Helper()
	engine, err := NewPricingEngine(PricingEngineDeps{DefaultCommissionRate: 0.1})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	return engine
}

func TestResolveListPricingArtworkPrice(t *testing.T) {
	engine := mustPricingEngine(t)

	pricing, resolveErr := engine.ResolveListPricing(snapshotFixture(), domain.OrderModeBuy, nil)
	if resolveErr != nil {
		t.Fatalf("resolve: %v", resolveErr)
	}
	if pricing.ListPriceCents != 540_012 {
		t.Fatalf("list price = %d", pricing.ListPriceCents)
	}
	if pricing.CurrencyCode != "USD" {
		t.Fatalf("currency = %s", pricing.CurrencyCode)
	}
	if pricing.Seller.ID != "partner-1" {
		t.Fatalf("seller = %+v", pricing.Seller)
	}
	if pricing.EditionSetID != nil {
		t.Fatalf("expected nil edition set id, got %v", *pricing.EditionSetID)
	}
}

func TestResolveListPricingEditionSet(t *testing.T) {
	engine := mustPricingEngine(t)
	snapshot := snapshotFixture()
	price := int64(420_042)
	snapshot.EditionSets = []EditionSetSnapshot{{ID: "ed1", PriceListedCents: &price, PriceCurrency: "USD"}}

	requested := "ed1"
	pricing, resolveErr := engine.ResolveListPricing(snapshot, domain.OrderModeBuy, &requested)
	if resolveErr != nil {
		t.Fatalf("resolve: %v", resolveErr)
	}
	if pricing.ListPriceCents != 420_042 {
		t.Fatalf("list price = %d", pricing.ListPriceCents)
	}
	if pricing.EditionSetID == nil || *pricing.EditionSetID != "ed1" {
		t.Fatalf("edition set id = %v", pricing.EditionSetID)
	}
}

func TestResolveListPricingSingleEditionSetWithoutID(t *testing.T) {
	engine := mustPricingEngine(t)
	snapshot := snapshotFixture()
	price := int64(420_042)
	snapshot.EditionSets = []EditionSetSnapshot{{ID: "ed1", PriceListedCents: &price, PriceCurrency: "USD"}}

	pricing, resolveErr := engine.ResolveListPricing(snapshot, domain.OrderModeBuy, nil)
	if resolveErr != nil {
		t.Fatalf("resolve: %v", resolveErr)
	}
	if pricing.ListPriceCents != 420_042 || pricing.EditionSetID == nil || *pricing.EditionSetID != "ed1" {
		t.Fatalf("unexpected pricing: %+v", pricing)
	}
}

func TestResolveListPricingFailures(t *testing.T) {
	engine := mustPricingEngine(t)
	edPrice := int64(100)

	cases := []struct {
		name         string
		mutate       func(*ArtworkSnapshot)
		mode         domain.OrderMode
		editionSetID *string
		wantCode     domain.ErrorCode
	}{
		{
			name:     "absent snapshot",
			mutate:   func(s *ArtworkSnapshot) { s.ID = "" },
			mode:     domain.OrderModeBuy,
			wantCode: domain.CodeUnknownArtwork,
		},
		{
			name:     "unpublished",
			mutate:   func(s *ArtworkSnapshot) { s.Published = false },
			mode:     domain.OrderModeBuy,
			wantCode: domain.CodeUnpublishedArtwork,
		},
		{
			name:     "not offerable",
			mutate:   func(s *ArtworkSnapshot) { s.Offerable = false },
			mode:     domain.OrderModeOffer,
			wantCode: domain.CodeNotOfferable,
		},
		{
			name:     "not acquireable",
			mutate:   func(s *ArtworkSnapshot) { s.Acquireable = false },
			mode:     domain.OrderModeBuy,
			wantCode: domain.CodeNotAcquireable,
		},
		{
			name: "multiple edition sets no id",
			mutate: func(s *ArtworkSnapshot) {
				s.EditionSets = []EditionSetSnapshot{
					{ID: "ed1", PriceListedCents: &edPrice, PriceCurrency: "USD"},
					{ID: "ed2", PriceListedCents: &edPrice, PriceCurrency: "USD"},
				}
			},
			mode:     domain.OrderModeBuy,
			wantCode: domain.CodeMissingEditionSetID,
		},
		{
			name: "unknown edition set",
			mutate: func(s *ArtworkSnapshot) {
				s.EditionSets = []EditionSetSnapshot{{ID: "ed1", PriceListedCents: &edPrice, PriceCurrency: "USD"}}
			},
			mode:         domain.OrderModeBuy,
			editionSetID: valuePtr("ed9"),
			wantCode:     domain.CodeUnknownEditionSet,
		},
		{
			name:     "missing price",
			mutate:   func(s *ArtworkSnapshot) { s.PriceListedCents = nil },
			mode:     domain.OrderModeBuy,
			wantCode: domain.CodeMissingPrice,
		},
		{
			name: "missing currency",
			mutate: func(s *ArtworkSnapshot) {
				s.PriceCurrency = ""
			},
			mode:     domain.OrderModeBuy,
			wantCode: domain.CodeMissingCurrency,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snapshot := snapshotFixture()
			tc.mutate(&snapshot)
			_, resolveErr := engine.ResolveListPricing(snapshot, tc.mode, tc.editionSetID)
			if resolveErr == nil {
				t.Fatalf("expected failure")
			}
			if resolveErr.Code != tc.wantCode {
				t.Fatalf("code = %s, want %s", resolveErr.Code, tc.wantCode)
			}
			if resolveErr.Kind != domain.ErrorKindValidation {
				t.Fatalf("kind = %s", resolveErr.Kind)
			}
		})
	}
}

func TestResolveCommissionRate(t *testing.T) {
	engine := mustPricingEngine(t)

	rate, rateErr := engine.ResolveCommissionRate(snapshotFixture())
	if rateErr != nil || rate != 0.08 {
		t.Fatalf("rate = %v err = %v", rate, rateErr)
	}

	snapshot := snapshotFixture()
	snapshot.CommissionRate = 0
	rate, rateErr = engine.ResolveCommissionRate(snapshot)
	if rateErr != nil || rate != 0.1 {
		t.Fatalf("fallback rate = %v err = %v", rate, rateErr)
	}

	snapshot.CommissionRate = 1.5
	if _, rateErr = engine.ResolveCommissionRate(snapshot); rateErr == nil || rateErr.Code != domain.CodeInvalidCommissionRate {
		t.Fatalf("expected invalid_commission_rate, got %v", rateErr)
	}
}

func TestCommissionFeeRounding(t *testing.T) {
	if fee := CommissionFee(0.08, 540_012); fee != 43_201 {
		t.Fatalf("fee = %d", fee)
	}
	if fee := CommissionFee(0, 540_012); fee != 0 {
		t.Fatalf("zero rate fee = %d", fee)
	}
	if fee := CommissionFee(0.125, 1_000); fee != 125 {
		t.Fatalf("fee = %d", fee)
	}
}
