package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/artfolio/exchange/internal/domain"
	"github.com/artfolio/exchange/internal/services"
)

var tracer = otel.Tracer("github.com/artfolio/exchange/internal/catalog")

const (
	defaultRequestTimeout = 5 * time.Second
	maxAttempts           = 3
)

// Doer is the subset of http.Client the catalog client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Logger defines the logging contract for catalog operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// ClientConfig configures the HTTP catalog client.
type ClientConfig struct {
	// BaseURL points at the artwork catalog service, e.g. https://catalog.internal.
	BaseURL  string
	APIToken string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient Doer
	Logger     Logger
}

// Client fetches artwork snapshots and manages inventory holds over HTTP.
// Missing artworks surface as (validation, unknown_artwork); transport and
// server faults as (internal, catalog). Reads retry transient failures with
// exponential backoff; inventory writes do not retry since they are not
// idempotent on the catalog side.
type Client struct {
	baseURL  *url.URL
	apiToken string
	http     Doer
	logger   Logger
}

var _ services.ArtworkCatalog = (*Client)(nil)

// NewClient validates configuration and constructs the catalog client.
func NewClient(cfg ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("catalog: base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("catalog: invalid base url %q", raw)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Client{
		baseURL:  base,
		apiToken: strings.TrimSpace(cfg.APIToken),
		http:     httpClient,
		logger:   logger,
	}, nil
}

type editionSetPayload struct {
	ID               string `json:"id"`
	PriceListedCents *int64 `json:"price_listed_cents"`
	PriceCurrency    string `json:"price_currency"`
}

type artworkPayload struct {
	ID               string              `json:"id"`
	Published        bool                `json:"published"`
	Acquireable      bool                `json:"acquireable"`
	Offerable        bool                `json:"offerable"`
	PriceListedCents *int64              `json:"price_listed_cents"`
	PriceCurrency    string              `json:"price_currency"`
	PartnerID        string              `json:"partner_id"`
	PartnerType      string              `json:"partner_type"`
	CommissionRate   float64             `json:"commission_rate"`
	EditionSets      []editionSetPayload `json:"edition_sets"`
}

type inventoryPayload struct {
	ArtworkID    string  `json:"artwork_id"`
	EditionSetID *string `json:"edition_set_id,omitempty"`
	Quantity     int     `json:"quantity"`
	OrderID      string  `json:"order_id"`
}

// FetchArtwork retrieves the point-in-time snapshot an order is priced from.
func (c *Client) FetchArtwork(ctx context.Context, artworkID string) (services.ArtworkSnapshot, error) {
	artworkID = strings.TrimSpace(artworkID)
	if artworkID == "" {
		return services.ArtworkSnapshot{}, domain.NewError(domain.CodeUnknownArtwork, "artwork id is required")
	}

	ctx, span := tracer.Start(ctx, "catalog.FetchArtwork", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("artwork.id", artworkID))
	defer span.End()

	body, status, err := c.get(ctx, "/api/v1/artworks/"+url.PathEscape(artworkID))
	if err != nil {
		return services.ArtworkSnapshot{}, domain.WrapError(domain.CodeCatalog, "fetch artwork "+artworkID, err)
	}
	switch {
	case status == http.StatusNotFound:
		return services.ArtworkSnapshot{}, domain.NewError(domain.CodeUnknownArtwork, "artwork "+artworkID+" does not exist")
	case status != http.StatusOK:
		return services.ArtworkSnapshot{}, domain.WrapError(domain.CodeCatalog, "fetch artwork "+artworkID,
			fmt.Errorf("catalog responded %d", status))
	}

	var payload artworkPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return services.ArtworkSnapshot{}, domain.WrapError(domain.CodeCatalog, "decode artwork "+artworkID, err)
	}
	return snapshotFromPayload(payload), nil
}

// DeductInventory commits the inventory hold for every line item of the order.
func (c *Client) DeductInventory(ctx context.Context, order services.Order) error {
	return c.adjustInventory(ctx, order, "deduct")
}

// UndeductInventory releases previously committed holds.
func (c *Client) UndeductInventory(ctx context.Context, order services.Order) error {
	return c.adjustInventory(ctx, order, "undeduct")
}

func (c *Client) adjustInventory(ctx context.Context, order services.Order, action string) error {
	ctx, span := tracer.Start(ctx, "catalog."+action, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("order.id", order.ID))
	defer span.End()

	for _, item := range order.LineItems {
		payload := inventoryPayload{
			ArtworkID:    item.ArtworkID,
			EditionSetID: item.EditionSetID,
			Quantity:     item.Quantity,
			OrderID:      order.ID,
		}
		status, err := c.post(ctx, "/api/v1/artworks/"+url.PathEscape(item.ArtworkID)+"/inventory/"+action, payload)
		if err != nil {
			return fmt.Errorf("catalog: %s inventory for artwork %s: %w", action, item.ArtworkID, err)
		}
		if status != http.StatusOK && status != http.StatusNoContent {
			return fmt.Errorf("catalog: %s inventory for artwork %s: catalog responded %d", action, item.ArtworkID, status)
		}
	}

	c.logger(ctx, "catalog.inventory."+action, map[string]any{
		"order": order.ID,
		"items": len(order.LineItems),
	})
	return nil
}

// get performs a GET with bounded retries on transient failures.
func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	backoff := gax.Backoff{
		Initial:    100 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, status, err := c.do(ctx, http.MethodGet, path, nil)
		if err == nil && status < http.StatusInternalServerError {
			return body, status, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("catalog responded %d", status)
		}
		if attempt == maxAttempts {
			break
		}
		c.logger(ctx, "catalog.request.retry", map[string]any{
			"path":    path,
			"attempt": attempt,
			"error":   lastErr.Error(),
		})
		if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
			return nil, 0, err
		}
	}
	return nil, 0, lastErr
}

func (c *Client) post(ctx context.Context, path string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	_, status, err := c.do(ctx, http.MethodPost, path, body)
	return status, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	target := c.baseURL.JoinPath(path)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

func snapshotFromPayload(payload artworkPayload) services.ArtworkSnapshot {
	partnerType, ok := domain.ParsePartyType(payload.PartnerType)
	if !ok {
		partnerType = domain.PartyTypePartner
	}
	snapshot := services.ArtworkSnapshot{
		ID:               payload.ID,
		Published:        payload.Published,
		Acquireable:      payload.Acquireable,
		Offerable:        payload.Offerable,
		PriceListedCents: payload.PriceListedCents,
		PriceCurrency:    payload.PriceCurrency,
		Partner:          domain.Party{ID: payload.PartnerID, Type: partnerType},
		CommissionRate:   payload.CommissionRate,
	}
	for _, es := range payload.EditionSets {
		snapshot.EditionSets = append(snapshot.EditionSets, services.EditionSetSnapshot{
			ID:               es.ID,
			PriceListedCents: es.PriceListedCents,
			PriceCurrency:    es.PriceCurrency,
		})
	}
	return snapshot
}
