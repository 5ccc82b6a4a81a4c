package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pulseboard/backend/internal/domain/connector"
)

// maxResponseSize is the maximum allowed response size from the Shopify API (10MB)
const maxResponseSize = 10 * 1024 * 1024

const (
	apiVersion      = "2024-10"
	defaultPageSize = 100
	maxAttempts     = 3
)

// Client implements the provider client port against the Shopify Admin
// REST API. Shopify enforces a leaky-bucket request budget per shop, so
// calls go through a client-side rate limiter keyed by shop domain and
// 429 responses are retried with the server-provided delay, bounded by
// a maximum attempt count. Keying by shop keeps one tenant's backlog
// from stalling calls for other tenants' shops.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// baseURL overrides the shop domain when set, for tests
	baseURL string
}

// Shopify's standard plan allows 2 requests/second per shop
const (
	requestsPerSecond = 2
	requestBurst      = 4
)

// NewClient creates a new Shopify provider client
func NewClient(logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiters:   make(map[string]*rate.Limiter),
		logger:     logger,
	}
}

// limiter returns the rate limiter for a shop domain, creating it on
// first use
func (c *Client) limiter(shopDomain string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[shopDomain]
	if !ok {
		l = rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst)
		c.limiters[shopDomain] = l
	}
	return l
}

var _ connector.Client = (*Client)(nil)

// Provider returns the provider type this client handles
func (c *Client) Provider() connector.ProviderType {
	return connector.ProviderShopify
}

// SupportedEntities returns the entity types Shopify exposes, in sync order
func (c *Client) SupportedEntities() []connector.EntityType {
	return []connector.EntityType{
		connector.EntityTypeCustomers,
		connector.EntityTypeProducts,
		connector.EntityTypeOrders,
	}
}

// VerifyCredentials confirms the access token works with a shop read
func (c *Client) VerifyCredentials(ctx context.Context, creds connector.Credentials) error {
	if creds.APIKey == "" || creds.ShopDomain == "" {
		return connector.ErrMissingCredentials
	}

	_, err := c.doRequest(ctx, creds, "shop.json", url.Values{})
	if err != nil {
		c.logger.Warn("Shopify credential verification failed",
			zap.String("shop_domain", creds.ShopDomain),
			zap.Error(err))
		return fmt.Errorf("shopify: failed to verify credentials: %w", err)
	}
	return nil
}

// ListEntities fetches one page of entities from Shopify. Pagination is
// cursor-based: the page_info token from the previous response's Link
// header selects the next page, and Shopify rejects filter parameters
// on cursor requests, so updated_at_min only applies to the first page.
func (c *Client) ListEntities(ctx context.Context, req *connector.ListRequest) (*connector.EntityPage, error) {
	resource, root, err := resourceFor(req.EntityType)
	if err != nil {
		return nil, err
	}

	size := req.PageSize
	if size <= 0 {
		size = defaultPageSize
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(size))
	if req.Cursor != "" {
		query.Set("page_info", req.Cursor)
	} else {
		if req.UpdatedSince != nil {
			query.Set("updated_at_min", req.UpdatedSince.UTC().Format(time.RFC3339))
		}
		if req.EntityType == connector.EntityTypeOrders {
			query.Set("status", "any")
		}
	}

	body, next, err := c.doRequestPaged(ctx, req.Credentials, resource, query)
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to list %s: %w", req.EntityType, err)
	}

	var payload map[string][]map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("shopify: failed to list %s: %w: %v", req.EntityType, connector.ErrProviderInvalidResponse, err)
	}

	items := payload[root]
	page := &connector.EntityPage{
		NextCursor: next,
		HasMore:    next != "",
	}
	for _, item := range items {
		entity, err := itemEntity(req.EntityType, item)
		if err != nil {
			return nil, fmt.Errorf("shopify: failed to list %s: %w", req.EntityType, err)
		}
		page.Entities = append(page.Entities, *entity)
	}
	return page, nil
}

func resourceFor(entityType connector.EntityType) (resource, root string, err error) {
	switch entityType {
	case connector.EntityTypeCustomers:
		return "customers.json", "customers", nil
	case connector.EntityTypeProducts:
		return "products.json", "products", nil
	case connector.EntityTypeOrders:
		return "orders.json", "orders", nil
	default:
		return "", "", fmt.Errorf("shopify: %w: entity type %s", connector.ErrProviderRequestFailed, entityType)
	}
}

// ---------------------------------------------------------------------------
// HTTP plumbing
// ---------------------------------------------------------------------------

func (c *Client) doRequest(ctx context.Context, creds connector.Credentials, resource string, query url.Values) ([]byte, error) {
	body, _, err := c.doRequestPaged(ctx, creds, resource, query)
	return body, err
}

// doRequestPaged performs one authenticated GET and returns the body
// plus the next page_info cursor from the Link header, if any
func (c *Client) doRequestPaged(ctx context.Context, creds connector.Credentials, resource string, query url.Values) ([]byte, string, error) {
	endpoint := c.endpoint(creds, resource, query)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter(creds.ShopDomain).Wait(ctx); err != nil {
			return nil, "", fmt.Errorf("shopify: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, "", fmt.Errorf("shopify: failed to create request: %w", err)
		}
		req.Header.Set("X-Shopify-Access-Token", creds.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", connector.ErrProviderUnavailable, err)
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
		if readErr != nil {
			return nil, "", fmt.Errorf("shopify: failed to read response: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nextPageInfo(resp.Header.Get("Link")), nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, "", fmt.Errorf("%w: HTTP %d", connector.ErrProviderAuth, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: HTTP 429", connector.ErrProviderRateLimited)
			if attempt < maxAttempts {
				c.sleep(ctx, retryDelay(resp.Header.Get("Retry-After"), attempt))
			}
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("%w: HTTP %d", connector.ErrProviderUnavailable, resp.StatusCode)
			if attempt < maxAttempts {
				c.sleep(ctx, retryDelay("", attempt))
			}
		default:
			return nil, "", fmt.Errorf("%w: HTTP %d", connector.ErrProviderRequestFailed, resp.StatusCode)
		}
	}
	return nil, "", lastErr
}

func (c *Client) endpoint(creds connector.Credentials, resource string, query url.Values) string {
	base := c.baseURL
	if base == "" {
		base = "https://" + creds.ShopDomain
	}
	endpoint := fmt.Sprintf("%s/admin/api/%s/%s", base, apiVersion, resource)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

func (c *Client) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// retryDelay honors the Retry-After header when present, falling back
// to exponential backoff on the attempt number
func retryDelay(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.ParseFloat(retryAfter, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
}

// nextPageInfo extracts the page_info cursor from a Shopify Link header,
// e.g. `<https://shop.myshopify.com/admin/api/2024-10/orders.json?page_info=abc&limit=100>; rel="next"`
func nextPageInfo(link string) string {
	for _, part := range strings.Split(link, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end <= start {
			continue
		}
		u, err := url.Parse(part[start+1 : end])
		if err != nil {
			continue
		}
		return u.Query().Get("page_info")
	}
	return ""
}

// ---------------------------------------------------------------------------
// Entity conversion
// ---------------------------------------------------------------------------

func itemEntity(entityType connector.EntityType, item map[string]any) (*connector.ExternalEntity, error) {
	id := itemID(item)
	if id == "" {
		return nil, fmt.Errorf("%w: item without id", connector.ErrProviderInvalidResponse)
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item %s: %w", id, err)
	}

	data := map[string]any{}
	switch entityType {
	case connector.EntityTypeCustomers:
		if email, ok := item["email"].(string); ok {
			data["email"] = email
		}
		data["name"] = customerName(item)
	case connector.EntityTypeProducts:
		if title, ok := item["title"].(string); ok {
			data["name"] = title
		}
		if status, ok := item["status"].(string); ok {
			data["status"] = status
		}
	case connector.EntityTypeOrders:
		if total, ok := item["total_price"].(string); ok {
			data["amount"] = total
		}
		if cur, ok := item["currency"].(string); ok {
			data["currency"] = strings.ToUpper(cur)
		}
		if status, ok := item["financial_status"].(string); ok {
			data["status"] = status
		}
	}

	return &connector.ExternalEntity{
		Type:       entityType,
		ExternalID: id,
		UpdatedAt:  itemUpdatedAt(item),
		Data:       data,
		Raw:        raw,
	}, nil
}

// itemID renders Shopify's numeric ids as strings. JSON decoding yields
// float64 for numbers, which is lossless for Shopify id magnitudes.
func itemID(item map[string]any) string {
	switch v := item["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func itemUpdatedAt(item map[string]any) time.Time {
	if s, ok := item["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func customerName(item map[string]any) string {
	first, _ := item["first_name"].(string)
	last, _ := item["last_name"].(string)
	return strings.TrimSpace(first + " " + last)
}
