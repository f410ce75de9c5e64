package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/artfolio/exchange/internal/catalog"
	"github.com/artfolio/exchange/internal/handlers"
	"github.com/artfolio/exchange/internal/payments"
	"github.com/artfolio/exchange/internal/platform/auth"
	"github.com/artfolio/exchange/internal/platform/config"
	pfirestore "github.com/artfolio/exchange/internal/platform/firestore"
	"github.com/artfolio/exchange/internal/platform/idempotency"
	"github.com/artfolio/exchange/internal/platform/jobs"
	"github.com/artfolio/exchange/internal/platform/observability"
	"github.com/artfolio/exchange/internal/repositories"
	fsrepo "github.com/artfolio/exchange/internal/repositories/firestore"
	"github.com/artfolio/exchange/internal/repositories/memory"
	"github.com/artfolio/exchange/internal/services"
	"github.com/artfolio/exchange/internal/tax"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Creator services.OrderCreator
	Orders  services.OrderService
	Offers  services.OfferService
	System  services.SystemService
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	build     repositories.BuildInfo
	startedAt time.Time
}

// WithBuildInfo records release metadata surfaced by the health endpoints.
func WithBuildInfo(info repositories.BuildInfo) Option {
	return func(o *containerOptions) { o.build = info }
}

// WithStartedAt records the process start time used for uptime reporting.
func WithStartedAt(ts time.Time) Option {
	return func(o *containerOptions) { o.startedAt = ts }
}

// Container wires repositories, services, transport and background
// infrastructure for runtime use.
type Container struct {
	Config        config.Config
	Logger        *zap.Logger
	Repositories  repositories.Registry
	Services      Services
	Authenticator *auth.Authenticator
	Router        chi.Router
	Sweeper       *jobs.Sweeper

	pubsubClient *pubsub.Client
}

// NewContainer constructs the runtime dependencies from configuration.
// Firestore, Pub/Sub and the catalog client are only dialed when configured;
// local development falls back to in-memory repositories and the stub catalog.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	options := containerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.build.Environment == "" {
		options.build.Environment = cfg.Security.Environment
	}

	logger, err := observability.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	c := &Container{Config: cfg, Logger: logger}
	eventLog := zapEventLogger(logger)

	// Event publishing is optional so the API can run without a broker.
	var events services.OrderEventPublisher
	if cfg.PubSub.ProjectID != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("dial pubsub: %w", err)
		}
		publisher, err := jobs.NewPubSubOrderEventPublisher(psClient.Topic(cfg.PubSub.OrderEventsTopic))
		if err != nil {
			_ = psClient.Close()
			return nil, fmt.Errorf("build order event publisher: %w", err)
		}
		c.pubsubClient = psClient
		events = publisher
	}

	reg, idemStore, err := buildRegistry(ctx, cfg, c.pubsubClient, options.build)
	if err != nil {
		return nil, err
	}
	c.Repositories = reg

	var artworks services.ArtworkCatalog
	if cfg.Catalog.BaseURL != "" {
		catalogClient, err := catalog.NewClient(catalog.ClientConfig{
			BaseURL:  cfg.Catalog.BaseURL,
			APIToken: cfg.Catalog.APIToken,
			Logger:   catalog.Logger(eventLog),
		})
		if err != nil {
			return nil, fmt.Errorf("build catalog client: %w", err)
		}
		artworks = catalogClient
	} else {
		artworks = catalog.NewStubCatalog()
	}

	taxes, err := tax.NewFlatRateCalculator(tax.FlatRateConfig{
		DefaultRate:   cfg.Tax.DefaultRate,
		CurrencyRates: cfg.Tax.CurrencyRates,
	})
	if err != nil {
		return nil, fmt.Errorf("build tax calculator: %w", err)
	}

	gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey:    cfg.Stripe.APIKey,
		AccountID: cfg.Stripe.AccountID,
		Logger:    payments.Logger(eventLog),
	})
	if err != nil {
		return nil, fmt.Errorf("build payment gateway: %w", err)
	}

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		DefaultCommissionRate: cfg.Pricing.DefaultCommissionRate,
	})
	if err != nil {
		return nil, fmt.Errorf("build pricing engine: %w", err)
	}

	creator, err := services.NewOrderCreator(services.OrderCreatorDeps{
		Orders:     reg.Orders(),
		Counters:   reg.Counters(),
		UnitOfWork: reg,
		Catalog:    artworks,
		Pricing:    pricing,
		PendingTTL: cfg.Orders.PendingTTL,
		Events:     events,
		Logger:     eventLog,
	})
	if err != nil {
		return nil, fmt.Errorf("build order creator: %w", err)
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:                    reg.Orders(),
		Offers:                    reg.Offers(),
		UnitOfWork:                reg,
		Tax:                       taxes,
		Payments:                  gateway,
		Catalog:                   artworks,
		SubmittedTTL:              cfg.Orders.SubmittedTTL,
		TransactionFeeBasisPoints: cfg.Pricing.TransactionFeeBasisPoints,
		TransactionFeeFlatCents:   cfg.Pricing.TransactionFeeFlatCents,
		Events:                    events,
		Logger:                    eventLog,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	offers, err := services.NewOfferService(services.OfferServiceDeps{
		Orders:     reg.Orders(),
		Offers:     reg.Offers(),
		UnitOfWork: reg,
		Submitter:  orders,
		Events:     events,
		Logger:     eventLog,
	})
	if err != nil {
		return nil, fmt.Errorf("build offer service: %w", err)
	}

	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
	})
	if err != nil {
		return nil, fmt.Errorf("build system service: %w", err)
	}

	c.Services = Services{Creator: creator, Orders: orders, Offers: offers, System: system}

	if cfg.Security.JWTSecret != "" {
		authn, err := auth.NewAuthenticator(cfg.Security.JWTSecret,
			auth.WithIssuer(cfg.Security.JWTIssuer),
			auth.WithAudience(cfg.Security.JWTAudience),
		)
		if err != nil {
			return nil, fmt.Errorf("build authenticator: %w", err)
		}
		c.Authenticator = authn
	} else {
		logger.Warn("jwt secret not configured, api requests will be rejected")
	}

	c.Router = buildRouter(c, idemStore, eventLog, options)

	sweeper, err := jobs.NewSweeper(jobs.SweeperConfig{
		Orders:   orders,
		Interval: cfg.Orders.SweepInterval,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build sweeper: %w", err)
	}
	c.Sweeper = sweeper

	return c, nil
}

// buildRegistry selects the storage backend. Without a Firestore project the
// API runs on in-memory repositories, which only suits tests and local runs.
func buildRegistry(ctx context.Context, cfg config.Config, psClient *pubsub.Client, build repositories.BuildInfo) (repositories.Registry, idempotency.Store, error) {
	if cfg.Firestore.ProjectID == "" {
		return memory.NewRegistry(), idempotency.NewMemoryStore(), nil
	}

	provider := pfirestore.NewProvider(cfg.Firestore)

	var extraProbes []repositories.HealthProbe
	if psClient != nil {
		topic := psClient.Topic(cfg.PubSub.OrderEventsTopic)
		extraProbes = append(extraProbes, repositories.HealthProbe{
			Name: "pubsub",
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("order events topic does not exist")
				}
				return nil
			},
		})
	}

	reg, err := fsrepo.NewRegistry(fsrepo.RegistryConfig{
		Provider:    provider,
		Build:       build,
		ExtraProbes: extraProbes,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build firestore registry: %w", err)
	}

	client, err := provider.Client(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("dial firestore: %w", err)
	}
	return reg, idempotency.NewFirestoreStore(client), nil
}

func buildRouter(c *Container, idemStore idempotency.Store, eventLog func(context.Context, string, map[string]any), options containerOptions) chi.Router {
	cfg := c.Config

	orderHandlers := handlers.NewOrderHandlers(nil, c.Services.Creator, c.Services.Orders,
		handlers.WithCreateRateLimit(cfg.RateLimits.AuthenticatedPerMinute, time.Minute, nil),
		handlers.WithCreationHook(func(ctx context.Context, order services.Order) error {
			eventLog(ctx, "order.creation.hook", map[string]any{
				"orderId":   order.ID,
				"orderCode": order.Code,
			})
			return nil
		}),
	)
	offerHandlers := handlers.NewOfferHandlers(c.Services.Offers)
	adminHandlers := handlers.NewAdminHandlers(c.Services.Orders, nil)

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthSystemService(c.Services.System),
		handlers.WithHealthBuildInfo(options.build),
	}
	if !options.startedAt.IsZero() {
		healthOpts = append(healthOpts, handlers.WithHealthStartedAt(options.startedAt))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	idemMiddleware := idempotency.Middleware(idemStore,
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(observability.NewPrintfAdapter(c.Logger)),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(c.Logger.Named("http")),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(c.Logger.Named("http")),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(func(r chi.Router) {
			if c.Authenticator != nil {
				r.Use(c.Authenticator.RequireAuth())
			}
			r.Use(idemMiddleware)
			orderHandlers.Routes(r)
			offerHandlers.Routes(r)
		}),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	}
	if c.Authenticator != nil {
		opts = append(opts, handlers.WithAdminMiddlewares(c.Authenticator.RequireAuth(auth.RoleAdmin)))
	}

	return handlers.NewRouter(opts...)
}

// zapEventLogger adapts the zap logger to the event/fields callback the
// services and collaborators accept.
func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}

// Close releases repository clients and the broker connection.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.pubsubClient != nil {
		if err := c.pubsubClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return errors.Join(errs...)
}
