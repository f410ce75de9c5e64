package domain

import "testing"

func TestParseOrderMode(t *testing.T) {
	mode, ok := ParseOrderMode("buy")
	if !ok || mode != OrderModeBuy {
		t.Fatalf("expected buy mode, got %q ok=%v", mode, ok)
	}

	if _, ok := ParseOrderMode("auction"); ok {
		t.Fatalf("expected unknown mode to be rejected")
	}
}

func TestOrderStateClassification(t *testing.T) {
	if !OrderStatePending.IsClaimable() || !OrderStateSubmitted.IsClaimable() {
		t.Fatalf("pending and submitted must be claimable")
	}
	if OrderStateApproved.IsClaimable() {
		t.Fatalf("approved must not be claimable")
	}
	for _, state := range []OrderState{OrderStateFulfilled, OrderStateRefunded, OrderStateAbandoned} {
		if !state.IsTerminal() {
			t.Fatalf("%s must be terminal", state)
		}
	}
	if OrderStateSubmitted.IsTerminal() {
		t.Fatalf("submitted must not be terminal")
	}
}

func TestRecomputeTotals(t *testing.T) {
	order := Order{
		ItemsTotalCents:     540_012,
		ShippingTotalCents:  10_000,
		TaxTotalCents:       43_201,
		CommissionFeeCents:  43_200,
		TransactionFeeCents: 1_500,
	}
	order.RecomputeTotals()

	if order.BuyerTotalCents != 593_213 {
		t.Fatalf("buyer total = %d", order.BuyerTotalCents)
	}
	if order.SellerTotalCents != 548_513 {
		t.Fatalf("seller total = %d", order.SellerTotalCents)
	}
}

func TestDisplayCommissionRate(t *testing.T) {
	got := DisplayCommissionRate(0.08)
	if got != "8%" {
		t.Fatalf("display rate = %q", got)
	}
	if DisplayCommissionRate(-0.1) != "" {
		t.Fatalf("negative rate must render empty")
	}
}

func TestOfferSubmitted(t *testing.T) {
	offer := Offer{}
	if offer.Submitted() {
		t.Fatalf("offer without timestamp must not be submitted")
	}
}
