package tax

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/artfolio/exchange/internal/services"
)

// FlatRateCalculator computes sales tax as a flat fraction of the taxable
// amount (items plus shipping), with optional per-currency overrides. It
// stands in for a full tax service; the contract matches what the order
// service expects on submit.
type FlatRateCalculator struct {
	defaultRate   float64
	currencyRates map[string]float64
}

var _ services.TaxCalculator = (*FlatRateCalculator)(nil)

// FlatRateConfig configures the calculator.
type FlatRateConfig struct {
	// DefaultRate applies when no currency-specific rate matches, e.g. 0.08.
	DefaultRate float64
	// CurrencyRates overrides the rate per ISO currency code.
	CurrencyRates map[string]float64
}

// NewFlatRateCalculator validates rates and constructs the calculator.
func NewFlatRateCalculator(cfg FlatRateConfig) (*FlatRateCalculator, error) {
	if cfg.DefaultRate < 0 || cfg.DefaultRate >= 1 {
		return nil, errors.New("tax: default rate must be within [0, 1)")
	}
	rates := make(map[string]float64, len(cfg.CurrencyRates))
	for currency, rate := range cfg.CurrencyRates {
		if rate < 0 || rate >= 1 {
			return nil, fmt.Errorf("tax: rate %v for currency %s out of range", rate, currency)
		}
		rates[strings.ToUpper(strings.TrimSpace(currency))] = rate
	}
	return &FlatRateCalculator{defaultRate: cfg.DefaultRate, currencyRates: rates}, nil
}

// ComputeTax returns the tax total in cents for the order's taxable amount.
func (c *FlatRateCalculator) ComputeTax(ctx context.Context, order services.Order) (int64, error) {
	base := order.ItemsTotalCents + order.ShippingTotalCents
	if base <= 0 {
		return 0, nil
	}

	rate := c.defaultRate
	if override, ok := c.currencyRates[strings.ToUpper(strings.TrimSpace(order.CurrencyCode))]; ok {
		rate = override
	}
	return int64(math.Round(rate * float64(base))), nil
}
