package memory

import (
	"context"
	"testing"
	"time"

	domain "github.com/artfolio/exchange/internal/domain"
)

func TestOfferRepositoryChainOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewOfferRepository()
	base := time.Date(2026, time.February, 1, 10, 0, 0, 0, time.UTC)

	buyer := domain.Party{ID: "buyer-1", Type: domain.PartyTypeUser}
	seller := domain.Party{ID: "partner-1", Type: domain.PartyTypePartner}

	first := domain.Offer{ID: "off_1", OrderID: "ord_1", From: buyer, AmountCents: 400_000, CreatedAt: base}
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("insert first: %v", err)
	}
	counterID := "off_1"
	second := domain.Offer{ID: "off_2", OrderID: "ord_1", From: seller, AmountCents: 450_000, RespondsTo: &counterID, CreatedAt: base.Add(time.Minute)}
	if err := repo.Insert(ctx, second); err != nil {
		t.Fatalf("insert second: %v", err)
	}

	offers, err := repo.ListByOrder(ctx, "ord_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(offers) != 2 || offers[0].ID != "off_1" || offers[1].ID != "off_2" {
		t.Fatalf("unexpected chain ordering: %+v", offers)
	}
	if offers[1].RespondsTo == nil || *offers[1].RespondsTo != "off_1" {
		t.Fatalf("counter link lost: %+v", offers[1])
	}

	if _, err := repo.FindByID(ctx, "ord_1", "off_9"); !repoErr(t, err).IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := repo.Insert(ctx, first); !repoErr(t, err).IsConflict() {
		t.Fatalf("expected duplicate conflict")
	}
}
