package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adrecon/backend/internal/domain/integration"
)

// pancakeTimeLayouts are the inserted_at formats seen in responses
var pancakeTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"}

// PancakeConfig configures the Pancake POS adapter
type PancakeConfig struct {
	BaseURL  string
	PageSize int
	MaxPages int
}

// Validate validates the Pancake configuration
func (c *PancakeConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("pancake: base URL is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("pancake: page size must be positive")
	}
	return nil
}

// PancakeAdapter implements integration.OrderClient for Pancake POS
type PancakeAdapter struct {
	config   PancakeConfig
	resolver integration.CredentialResolver
	doer     *retryingDoer
	now      func() time.Time
}

// NewPancakeAdapter creates a new Pancake orders adapter
func NewPancakeAdapter(config PancakeConfig, resolver integration.CredentialResolver, opts ClientOptions) (*PancakeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 1000
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &PancakeAdapter{
		config:   config,
		resolver: resolver,
		doer:     newRetryingDoer(integration.ProviderPancake, opts),
		now:      time.Now,
	}, nil
}

// Provider returns the provider code
func (a *PancakeAdapter) Provider() integration.ProviderCode {
	return integration.ProviderPancake
}

// FetchOrders returns the shop's orders created on date (UTC day), walking page numbers
func (a *PancakeAdapter) FetchOrders(ctx context.Context, shop *integration.Shop, date time.Time) ([]integration.RawOrder, error) {
	creds, err := resolveCredentials(ctx, a.resolver, shop.CredentialRef)
	if err != nil {
		return nil, err
	}

	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Second)
	fetchedAt := a.now().UTC()

	var result []integration.RawOrder
	for page := 1; ; page++ {
		if page > a.config.MaxPages {
			return nil, fmt.Errorf("%w: shop %s has more than %d pages", integration.ErrPageLimitReached, shop.ExternalID, a.config.MaxPages)
		}
		params := url.Values{}
		params.Set("api_key", creds.APIKey)
		params.Set("page_number", strconv.Itoa(page))
		params.Set("page_size", strconv.Itoa(a.config.PageSize))
		params.Set("startDateTime", strconv.FormatInt(start.Unix(), 10))
		params.Set("endDateTime", strconv.FormatInt(end.Unix(), 10))
		u := fmt.Sprintf("%s/shops/%s/orders?%s", a.config.BaseURL, url.PathEscape(shop.ExternalID), params.Encode())

		body, err := a.doer.do(ctx, u, shop.ID.String(), date)
		if err != nil {
			return nil, err
		}
		var resp pancakeOrdersResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", integration.ErrInvalidResponse, err)
		}
		if resp.Success != nil && !*resp.Success {
			return nil, fmt.Errorf("%w: %s", integration.ErrRequestFailed, resp.Message)
		}
		for _, o := range resp.Data {
			result = append(result, convertPancakeOrder(o, start, fetchedAt))
		}

		if len(resp.Data) == 0 || page >= resp.TotalPages {
			break
		}
	}
	return result, nil
}

// convertPancakeOrder attributes by ad_id, falling back to p_utm_content
func convertPancakeOrder(o pancakeOrder, date, fetchedAt time.Time) integration.RawOrder {
	attribution := strings.TrimSpace(o.AdID)
	if attribution == "" {
		attribution = strings.TrimSpace(o.PUtmContent)
	}
	return integration.RawOrder{
		OrderID:      o.ID.String(),
		OrderDate:    date,
		StatusCode:   o.Status,
		Bucket:       PancakeBucket(o.Status),
		CODAmount:    o.COD,
		TotalPrice:   o.TotalPrice,
		Attribution:  attribution,
		ProviderTime: parsePancakeTime(o.InsertedAt),
		FetchedAt:    fetchedAt,
	}
}

func parsePancakeTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range pancakeTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// TestConnection reads the shop to verify the API key
func (a *PancakeAdapter) TestConnection(ctx context.Context, shop *integration.Shop) error {
	creds, err := resolveCredentials(ctx, a.resolver, shop.CredentialRef)
	if err != nil {
		return err
	}
	params := url.Values{}
	params.Set("api_key", creds.APIKey)
	u := fmt.Sprintf("%s/shops/%s?%s", a.config.BaseURL, url.PathEscape(shop.ExternalID), params.Encode())

	body, err := a.doer.do(ctx, u, shop.ID.String(), a.now().UTC())
	if err != nil {
		return err
	}
	var resp pancakeShopResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrInvalidResponse, err)
	}
	if resp.Success != nil && !*resp.Success {
		return fmt.Errorf("%w: %s", integration.ErrAuthFailed, resp.Message)
	}
	return nil
}

var _ integration.OrderClient = (*PancakeAdapter)(nil)
