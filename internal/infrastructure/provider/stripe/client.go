package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	sclient "github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/mapping"
)

const (
	defaultPageSize   = 100
	maxNetworkRetries = 2
)

// Client implements the provider client port against the Stripe API.
// Credentials travel with each request, so one instance serves every
// tenant; the Stripe SDK handles transient retries with backoff.
type Client struct {
	backends *stripe.Backends
	logger   *zap.Logger
}

// NewClient creates a new Stripe provider client
func NewClient(logger *zap.Logger) *Client {
	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(maxNetworkRetries),
		HTTPClient:        &http.Client{Timeout: 30 * time.Second},
	}
	return &Client{
		backends: &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
		},
		logger: logger,
	}
}

var _ connector.Client = (*Client)(nil)

// Provider returns the provider type this client handles
func (c *Client) Provider() connector.ProviderType {
	return connector.ProviderStripe
}

// SupportedEntities returns the entity types Stripe exposes, in sync order
func (c *Client) SupportedEntities() []connector.EntityType {
	return []connector.EntityType{
		connector.EntityTypeCustomers,
		connector.EntityTypeInvoices,
		connector.EntityTypeSubscriptions,
	}
}

// VerifyCredentials confirms the API key is usable with a balance read
func (c *Client) VerifyCredentials(ctx context.Context, creds connector.Credentials) error {
	if creds.APIKey == "" {
		return connector.ErrMissingCredentials
	}

	sc := c.api(creds)
	params := &stripe.BalanceParams{}
	params.Context = ctx

	if _, err := sc.Balance.Get(params); err != nil {
		c.logger.Warn("Stripe credential verification failed", zap.Error(err))
		return fmt.Errorf("stripe: failed to verify credentials: %w", mapStripeError(err))
	}
	return nil
}

// ListEntities fetches one page of entities from Stripe. Stripe list
// endpoints only filter on creation time, so incremental runs bound the
// listing with created>=UpdatedSince; later modifications to older
// objects arrive through webhook events instead.
func (c *Client) ListEntities(ctx context.Context, req *connector.ListRequest) (*connector.EntityPage, error) {
	sc := c.api(req.Credentials)

	switch req.EntityType {
	case connector.EntityTypeCustomers:
		return c.listCustomers(ctx, sc, req)
	case connector.EntityTypeInvoices:
		return c.listInvoices(ctx, sc, req)
	case connector.EntityTypeSubscriptions:
		return c.listSubscriptions(ctx, sc, req)
	default:
		return nil, fmt.Errorf("stripe: %w: entity type %s", connector.ErrProviderRequestFailed, req.EntityType)
	}
}

func (c *Client) listCustomers(ctx context.Context, sc *sclient.API, req *connector.ListRequest) (*connector.EntityPage, error) {
	params := &stripe.CustomerListParams{}
	applyListParams(ctx, &params.ListParams, req)

	iter := sc.Customers.List(params)
	page := &connector.EntityPage{}
	for iter.Next() {
		cust := iter.Customer()
		entity, err := customerEntity(cust)
		if err != nil {
			return nil, err
		}
		page.Entities = append(page.Entities, *entity)
	}
	if err := iter.Err(); err != nil {
		c.logger.Error("Failed to list Stripe customers", zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to list customers: %w", mapStripeError(err))
	}

	finishPage(page, iter.CustomerList().ListMeta)
	return page, nil
}

func (c *Client) listInvoices(ctx context.Context, sc *sclient.API, req *connector.ListRequest) (*connector.EntityPage, error) {
	params := &stripe.InvoiceListParams{}
	applyListParams(ctx, &params.ListParams, req)

	iter := sc.Invoices.List(params)
	page := &connector.EntityPage{}
	for iter.Next() {
		inv := iter.Invoice()
		entity, err := invoiceEntity(inv)
		if err != nil {
			return nil, err
		}
		page.Entities = append(page.Entities, *entity)
	}
	if err := iter.Err(); err != nil {
		c.logger.Error("Failed to list Stripe invoices", zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to list invoices: %w", mapStripeError(err))
	}

	finishPage(page, iter.InvoiceList().ListMeta)
	return page, nil
}

func (c *Client) listSubscriptions(ctx context.Context, sc *sclient.API, req *connector.ListRequest) (*connector.EntityPage, error) {
	params := &stripe.SubscriptionListParams{}
	applyListParams(ctx, &params.ListParams, req)

	iter := sc.Subscriptions.List(params)
	page := &connector.EntityPage{}
	for iter.Next() {
		sub := iter.Subscription()
		entity, err := subscriptionEntity(sub)
		if err != nil {
			return nil, err
		}
		page.Entities = append(page.Entities, *entity)
	}
	if err := iter.Err(); err != nil {
		c.logger.Error("Failed to list Stripe subscriptions", zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to list subscriptions: %w", mapStripeError(err))
	}

	finishPage(page, iter.SubscriptionList().ListMeta)
	return page, nil
}

func (c *Client) api(creds connector.Credentials) *sclient.API {
	return sclient.New(creds.APIKey, c.backends)
}

func applyListParams(ctx context.Context, lp *stripe.ListParams, req *connector.ListRequest) {
	lp.Context = ctx
	lp.Single = true
	size := req.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	lp.Limit = stripe.Int64(int64(size))
	if req.Cursor != "" {
		lp.StartingAfter = stripe.String(req.Cursor)
	}
	if req.UpdatedSince != nil {
		lp.Filters.AddFilter("created", "gte", strconv.FormatInt(req.UpdatedSince.Unix(), 10))
	}
}

func finishPage(page *connector.EntityPage, meta stripe.ListMeta) {
	page.HasMore = meta.HasMore
	if meta.HasMore && len(page.Entities) > 0 {
		page.NextCursor = page.Entities[len(page.Entities)-1].ExternalID
	}
}

// ---------------------------------------------------------------------------
// Entity conversion
// ---------------------------------------------------------------------------

func customerEntity(cust *stripe.Customer) (*connector.ExternalEntity, error) {
	raw, err := json.Marshal(cust)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to encode customer %s: %w", cust.ID, err)
	}
	data := map[string]any{
		"email": cust.Email,
		"name":  cust.Name,
	}
	if cust.Currency != "" {
		data["currency"] = strings.ToUpper(string(cust.Currency))
	}
	return &connector.ExternalEntity{
		Type:       connector.EntityTypeCustomers,
		ExternalID: cust.ID,
		UpdatedAt:  time.Unix(cust.Created, 0).UTC(),
		Data:       data,
		Raw:        raw,
	}, nil
}

func invoiceEntity(inv *stripe.Invoice) (*connector.ExternalEntity, error) {
	raw, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to encode invoice %s: %w", inv.ID, err)
	}
	currency := strings.ToUpper(string(inv.Currency))
	data := map[string]any{
		"amount":   majorUnits(inv.Total, currency),
		"currency": currency,
		"status":   string(inv.Status),
	}
	if inv.Customer != nil {
		data["customer_external_id"] = inv.Customer.ID
	}
	return &connector.ExternalEntity{
		Type:       connector.EntityTypeInvoices,
		ExternalID: inv.ID,
		UpdatedAt:  time.Unix(inv.Created, 0).UTC(),
		Data:       data,
		Raw:        raw,
	}, nil
}

func subscriptionEntity(sub *stripe.Subscription) (*connector.ExternalEntity, error) {
	raw, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to encode subscription %s: %w", sub.ID, err)
	}
	data := map[string]any{
		"status":             string(sub.Status),
		"current_period_end": time.Unix(sub.CurrentPeriodEnd, 0).UTC().Format(time.RFC3339),
	}
	if sub.Currency != "" {
		data["currency"] = strings.ToUpper(string(sub.Currency))
	}
	if sub.Customer != nil {
		data["customer_external_id"] = sub.Customer.ID
	}
	return &connector.ExternalEntity{
		Type:       connector.EntityTypeSubscriptions,
		ExternalID: sub.ID,
		UpdatedAt:  time.Unix(sub.Created, 0).UTC(),
		Data:       data,
		Raw:        raw,
	}, nil
}

// majorUnits renders a Stripe minor-unit amount as a major-unit decimal
// string, e.g. 1999 USD -> "19.99", 500 JPY -> "500".
func majorUnits(amount int64, currency string) string {
	return decimal.NewFromInt(amount).Shift(-mapping.CurrencyExponent(currency)).String()
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

// mapStripeError folds a Stripe API error into the provider error taxonomy
func mapStripeError(err error) error {
	var sErr *stripe.Error
	if !errors.As(err, &sErr) {
		return fmt.Errorf("%w: %v", connector.ErrProviderUnavailable, err)
	}
	switch {
	case sErr.HTTPStatusCode == http.StatusUnauthorized || sErr.HTTPStatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", connector.ErrProviderAuth, sErr.Msg)
	case sErr.HTTPStatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", connector.ErrProviderRateLimited, sErr.Msg)
	case sErr.HTTPStatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", connector.ErrProviderUnavailable, sErr.Msg)
	default:
		return fmt.Errorf("%w: %s", connector.ErrProviderRequestFailed, sErr.Msg)
	}
}
