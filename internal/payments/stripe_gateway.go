package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/artfolio/exchange/internal/services"
)

// Logger defines the logging contract for gateway operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeGatewayConfig configures a Stripe-backed payment gateway.
type StripeGatewayConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Clock     func() time.Time
	Logger    Logger
	Clients   *stripeClients
}

// StripeGateway authorizes, captures and refunds order charges through Stripe
// Payment Intents. Authorization uses manual capture so the hold placed on
// seller approval is only settled by an explicit capture call.
type StripeGateway struct {
	api     stripeClients
	account string
	clock   func() time.Time
	logger  Logger
}

var _ services.PaymentProvider = (*StripeGateway)(nil)

// NewStripeGateway constructs a gateway using the given configuration.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}

	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Authorize places a manual-capture hold for the order's buyer total.
func (g *StripeGateway) Authorize(ctx context.Context, order services.Order) (services.ChargeAuthorization, error) {
	if g == nil {
		return services.ChargeAuthorization{}, errors.New("stripe: gateway is nil")
	}
	if order.BuyerTotalCents <= 0 {
		return services.ChargeAuthorization{}, fmt.Errorf("stripe: order %s has non-positive buyer total", order.ID)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(order.BuyerTotalCents),
		Currency:      stripe.String(strings.ToLower(order.CurrencyCode)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String("order " + order.Code),
		Metadata: map[string]string{
			"orderId":   order.ID,
			"orderCode": order.Code,
			"buyerId":   order.Buyer.ID,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(fmt.Sprintf("authorize-%s-v%d", order.ID, order.Version))
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}

	intent, err := g.api.intents.New(params)
	if err != nil {
		return services.ChargeAuthorization{}, fmt.Errorf("stripe: authorize order %s: %w", order.ID, err)
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusProcessing:
	default:
		return services.ChargeAuthorization{}, fmt.Errorf("stripe: payment intent %s in state %s after authorize", intent.ID, intent.Status)
	}

	g.logger(ctx, "payments.stripe.authorized", map[string]any{
		"order":         order.ID,
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
	})
	return services.ChargeAuthorization{ChargeID: intent.ID}, nil
}

// Capture settles the hold referenced by the order's external charge id.
func (g *StripeGateway) Capture(ctx context.Context, order services.Order) error {
	if g == nil {
		return errors.New("stripe: gateway is nil")
	}
	intentID := strings.TrimSpace(order.ExternalChargeID)
	if intentID == "" {
		return fmt.Errorf("stripe: order %s carries no charge to capture", order.ID)
	}

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(fmt.Sprintf("capture-%s-v%d", order.ID, order.Version))
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}

	intent, err := g.api.intents.Capture(intentID, params)
	if err != nil {
		return fmt.Errorf("stripe: capture payment intent %s: %w", intentID, err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return fmt.Errorf("stripe: payment intent %s in state %s after capture", intent.ID, intent.Status)
	}

	g.logger(ctx, "payments.stripe.captured", map[string]any{
		"order":          order.ID,
		"paymentIntent":  intent.ID,
		"amountReceived": intent.AmountReceived,
	})
	return nil
}

// Refund returns funds for the order's charge. A nil amount refunds the full
// buyer total; the result reports whether the gateway settled less than asked.
func (g *StripeGateway) Refund(ctx context.Context, order services.Order, amountCents *int64) (services.RefundResult, error) {
	if g == nil {
		return services.RefundResult{}, errors.New("stripe: gateway is nil")
	}
	intentID := strings.TrimSpace(order.ExternalChargeID)
	if intentID == "" {
		return services.RefundResult{}, fmt.Errorf("stripe: order %s carries no charge to refund", order.ID)
	}

	requested := order.BuyerTotalCents
	if amountCents != nil {
		requested = *amountCents
	}
	if requested <= 0 {
		return services.RefundResult{}, fmt.Errorf("stripe: refund amount %d is not positive", requested)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Metadata: map[string]string{
			"orderId":   order.ID,
			"orderCode": order.Code,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(fmt.Sprintf("refund-%s-v%d", order.ID, order.Version))
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if amountCents != nil {
		params.Amount = stripe.Int64(*amountCents)
	}

	refund, err := g.api.refunds.New(params)
	if err != nil {
		return services.RefundResult{}, fmt.Errorf("stripe: refund payment intent %s: %w", intentID, err)
	}

	result := services.RefundResult{
		RefundID:    refund.ID,
		AmountCents: refund.Amount,
		Partial:     refund.Amount < requested,
	}
	g.logger(ctx, "payments.stripe.refunded", map[string]any{
		"order":         order.ID,
		"paymentIntent": intentID,
		"refund":        refund.ID,
		"amount":        refund.Amount,
		"partial":       result.Partial,
	})
	return result, nil
}

// Release cancels an uncaptured hold, for operational cleanup when an approved
// order fails between authorize and capture.
func (g *StripeGateway) Release(ctx context.Context, order services.Order) error {
	if g == nil {
		return errors.New("stripe: gateway is nil")
	}
	intentID := strings.TrimSpace(order.ExternalChargeID)
	if intentID == "" {
		return nil
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if _, err := g.api.intents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("stripe: cancel payment intent %s: %w", intentID, err)
	}
	g.logger(ctx, "payments.stripe.released", map[string]any{
		"order":         order.ID,
		"paymentIntent": intentID,
	})
	return nil
}
