package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/domain/workflow"
)

const metaInsightFields = "ad_id,ad_name,adset_id,campaign_id,campaign_name,spend,clicks,impressions,actions"

// MetaConfig configures the Meta Graph API adapter
type MetaConfig struct {
	BaseURL    string
	APIVersion string
	PageLimit  int
	// MaxPages bounds cursor paging
	MaxPages int
}

// Validate validates the Meta configuration
func (c *MetaConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("meta: base URL is required")
	}
	if c.APIVersion == "" {
		return fmt.Errorf("meta: API version is required")
	}
	if c.PageLimit <= 0 {
		return fmt.Errorf("meta: page limit must be positive")
	}
	return nil
}

// MetaAdapter implements integration.AdInsightClient for the Meta Marketing API
type MetaAdapter struct {
	config   MetaConfig
	resolver integration.CredentialResolver
	doer     *retryingDoer
	now      func() time.Time
}

// NewMetaAdapter creates a new Meta insights adapter
func NewMetaAdapter(config MetaConfig, resolver integration.CredentialResolver, opts ClientOptions) (*MetaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 1000
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &MetaAdapter{
		config:   config,
		resolver: resolver,
		doer:     newRetryingDoer(integration.ProviderMeta, opts),
		now:      time.Now,
	}, nil
}

// Provider returns the provider code
func (a *MetaAdapter) Provider() integration.ProviderCode {
	return integration.ProviderMeta
}

// FetchInsights returns the per-ad insights of account for date, following cursor paging
func (a *MetaAdapter) FetchInsights(ctx context.Context, account *integration.AdAccount, date time.Time) ([]integration.RawAdInsight, error) {
	creds, err := resolveCredentials(ctx, a.resolver, account.CredentialRef)
	if err != nil {
		return nil, err
	}

	day := date.Format(workflow.DateLayout)
	timeRange, _ := json.Marshal(map[string]string{"since": day, "until": day})
	params := url.Values{}
	params.Set("level", "ad")
	params.Set("fields", metaInsightFields)
	params.Set("time_range", string(timeRange))
	params.Set("limit", strconv.Itoa(a.config.PageLimit))
	params.Set("access_token", creds.AccessToken)
	next := fmt.Sprintf("%s/%s/%s/insights?%s", a.config.BaseURL, a.config.APIVersion, accountPath(account.ExternalID), params.Encode())

	fetchedAt := a.now().UTC()
	var result []integration.RawAdInsight
	for page := 0; next != "" && page < a.config.MaxPages; page++ {
		body, err := a.doer.do(ctx, next, account.ID.String(), date)
		if err != nil {
			return nil, err
		}
		var resp metaInsightsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", integration.ErrInvalidResponse, err)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: %s", integration.ErrRequestFailed, resp.Error.Message)
		}
		for _, item := range resp.Data {
			record, err := a.convertInsight(item, date, fetchedAt)
			if err != nil {
				return nil, err
			}
			result = append(result, record)
		}

		next = ""
		if resp.Paging != nil && resp.Paging.Next != "" && len(resp.Data) > 0 {
			next = resp.Paging.Next
		}
	}
	if next != "" {
		return nil, fmt.Errorf("%w: account %s has more than %d pages", integration.ErrPageLimitReached, account.ExternalID, a.config.MaxPages)
	}
	return result, nil
}

func (a *MetaAdapter) convertInsight(item metaInsight, date, fetchedAt time.Time) (integration.RawAdInsight, error) {
	spend := decimal.Zero
	if item.Spend != "" {
		d, err := decimal.NewFromString(item.Spend)
		if err != nil {
			return integration.RawAdInsight{}, fmt.Errorf("%w: spend %q: %v", integration.ErrInvalidResponse, item.Spend, err)
		}
		spend = d
	}
	return integration.RawAdInsight{
		Date:         date,
		AdID:         item.AdID,
		AdName:       item.AdName,
		AdsetID:      item.AdsetID,
		CampaignID:   item.CampaignID,
		CampaignName: item.CampaignName,
		Spend:        spend,
		Clicks:       parseCount(item.Clicks),
		Impressions:  parseCount(item.Impressions),
		Leads:        leadCount(item.Actions),
		FetchedAt:    fetchedAt,
	}, nil
}

// TestConnection reads the account node to verify the token
func (a *MetaAdapter) TestConnection(ctx context.Context, account *integration.AdAccount) error {
	creds, err := resolveCredentials(ctx, a.resolver, account.CredentialRef)
	if err != nil {
		return err
	}
	params := url.Values{}
	params.Set("fields", "id,name,account_status")
	params.Set("access_token", creds.AccessToken)
	u := fmt.Sprintf("%s/%s/%s?%s", a.config.BaseURL, a.config.APIVersion, accountPath(account.ExternalID), params.Encode())

	body, err := a.doer.do(ctx, u, account.ID.String(), a.now().UTC())
	if err != nil {
		return err
	}
	var resp metaAccountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrInvalidResponse, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%w: %s", integration.ErrAuthFailed, resp.Error.Message)
	}
	return nil
}

// accountPath prefixes the external id with act_ unless already present
func accountPath(externalID string) string {
	if strings.HasPrefix(externalID, "act_") {
		return externalID
	}
	return "act_" + externalID
}

func parseCount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Graph occasionally returns "12.0"
		d, derr := decimal.NewFromString(s)
		if derr != nil {
			return 0
		}
		return d.IntPart()
	}
	return n
}

func leadCount(actions []metaAction) int64 {
	for _, t := range leadActionTypes {
		for _, a := range actions {
			if a.ActionType == t {
				return parseCount(a.Value)
			}
		}
	}
	return 0
}

var _ integration.AdInsightClient = (*MetaAdapter)(nil)
