package tax

import (
	"context"
	"testing"

	"github.com/artfolio/exchange/internal/services"
)

func TestComputeTaxDefaultRate(t *testing.T) {
	calc, err := NewFlatRateCalculator(FlatRateConfig{DefaultRate: 0.0785})
	if err != nil {
		t.Fatalf("NewFlatRateCalculator: %v", err)
	}

	order := services.Order{
		CurrencyCode:       "USD",
		ItemsTotalCents:    540_012,
		ShippingTotalCents: 10_000,
	}
	tax, err := calc.ComputeTax(context.Background(), order)
	if err != nil {
		t.Fatalf("ComputeTax: %v", err)
	}
	// round(0.0785 * 550_012)
	if tax != 43_176 {
		t.Fatalf("tax = %d", tax)
	}
}

func TestComputeTaxCurrencyOverride(t *testing.T) {
	calc, err := NewFlatRateCalculator(FlatRateConfig{
		DefaultRate:   0.08,
		CurrencyRates: map[string]float64{"jpy": 0.1},
	})
	if err != nil {
		t.Fatalf("NewFlatRateCalculator: %v", err)
	}

	tax, err := calc.ComputeTax(context.Background(), services.Order{CurrencyCode: "JPY", ItemsTotalCents: 100_000})
	if err != nil {
		t.Fatalf("ComputeTax: %v", err)
	}
	if tax != 10_000 {
		t.Fatalf("tax = %d", tax)
	}
}

func TestComputeTaxZeroBase(t *testing.T) {
	calc, err := NewFlatRateCalculator(FlatRateConfig{DefaultRate: 0.08})
	if err != nil {
		t.Fatalf("NewFlatRateCalculator: %v", err)
	}

	tax, err := calc.ComputeTax(context.Background(), services.Order{})
	if err != nil || tax != 0 {
		t.Fatalf("tax = %d err = %v", tax, err)
	}
}

func TestNewFlatRateCalculatorRejectsBadRates(t *testing.T) {
	if _, err := NewFlatRateCalculator(FlatRateConfig{DefaultRate: 1.2}); err == nil {
		t.Fatalf("expected error for rate above 1")
	}
	if _, err := NewFlatRateCalculator(FlatRateConfig{
		CurrencyRates: map[string]float64{"USD": -0.1},
	}); err == nil {
		t.Fatalf("expected error for negative currency rate")
	}
}
