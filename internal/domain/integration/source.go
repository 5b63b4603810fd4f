package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adrecon/backend/internal/domain/workflow"
)

// ---------------------------------------------------------------------------
// Source Errors
// ---------------------------------------------------------------------------

var (
	ErrProviderNotRegistered = errors.New("integration: provider not registered")
	ErrProviderUnavailable   = errors.New("integration: provider temporarily unavailable")
	ErrProviderRateLimited   = errors.New("integration: provider rate limited")
	ErrRequestFailed         = errors.New("integration: provider request failed")
	ErrInvalidResponse       = errors.New("integration: invalid provider response")
	ErrAuthFailed            = errors.New("integration: provider authentication failed")
	ErrCredentialNotFound    = errors.New("integration: credential not found")
	ErrInvalidCredential     = errors.New("integration: credential cannot be opened")
	// ErrPageLimitReached wraps ErrInvalidResponse: a result cut at the page limit is incomplete
	ErrPageLimitReached = fmt.Errorf("%w: page limit reached", ErrInvalidResponse)
)

// ---------------------------------------------------------------------------
// ProviderCode represents an external data provider
// ---------------------------------------------------------------------------

// ProviderCode represents an external data provider
type ProviderCode string

const (
	// ProviderMeta is the Meta (Facebook) Marketing API
	ProviderMeta ProviderCode = "META"
	// ProviderPancake is the Pancake POS order API
	ProviderPancake ProviderCode = "PANCAKE"
)

// IsValid returns true if the provider code is valid
func (c ProviderCode) IsValid() bool {
	switch c {
	case ProviderMeta, ProviderPancake:
		return true
	default:
		return false
	}
}

// String returns the string representation of ProviderCode
func (c ProviderCode) String() string {
	return string(c)
}

// DisplayName returns a human-readable name for the provider
func (c ProviderCode) DisplayName() string {
	switch c {
	case ProviderMeta:
		return "Meta Ads"
	case ProviderPancake:
		return "Pancake POS"
	default:
		return string(c)
	}
}

// Source returns the data source the provider feeds
func (c ProviderCode) Source() workflow.SourceType {
	if c == ProviderPancake {
		return workflow.SourcePOS
	}
	return workflow.SourceAds
}

// ---------------------------------------------------------------------------
// Source entities
// ---------------------------------------------------------------------------

// Entity is an ad account or shop a source client fetches for
type Entity interface {
	EntityID() uuid.UUID
	EntityProvider() ProviderCode
	EntityCredentialRef() string
}

// AdAccount is a tenant's account on an ads provider
type AdAccount struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	TeamID     *uuid.UUID
	Provider   ProviderCode
	ExternalID string
	Name       string
	// CurrencyMultiplier converts the account's spend currency into the reporting currency
	CurrencyMultiplier decimal.Decimal
	Enabled            bool
	CredentialRef      string
}

func (a *AdAccount) EntityID() uuid.UUID          { return a.ID }
func (a *AdAccount) EntityProvider() ProviderCode { return a.Provider }
func (a *AdAccount) EntityCredentialRef() string  { return a.CredentialRef }

// Multiplier returns the currency multiplier, 1 when unset
func (a *AdAccount) Multiplier() decimal.Decimal {
	if a.CurrencyMultiplier.IsZero() {
		return decimal.NewFromInt(1)
	}
	return a.CurrencyMultiplier
}

// Shop is a tenant's shop on a POS provider
type Shop struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	TeamID        *uuid.UUID
	Provider      ProviderCode
	ExternalID    string
	Name          string
	Enabled       bool
	CredentialRef string
}

func (s *Shop) EntityID() uuid.UUID          { return s.ID }
func (s *Shop) EntityProvider() ProviderCode { return s.Provider }
func (s *Shop) EntityCredentialRef() string  { return s.CredentialRef }

// EntityRepository lists the enabled source entities of a tenant.
// A nil teamID lists entities of every team.
type EntityRepository interface {
	ListAdAccounts(ctx context.Context, tenantID uuid.UUID, teamID *uuid.UUID) ([]AdAccount, error)
	ListShops(ctx context.Context, tenantID uuid.UUID, teamID *uuid.UUID) ([]Shop, error)
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

// Credentials are the opened secrets of one source entity
type Credentials struct {
	AccessToken string
	APIKey      string
}

// CredentialResolver opens the credentials behind an opaque reference
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (*Credentials, error)
}

// ---------------------------------------------------------------------------
// Source client ports
// ---------------------------------------------------------------------------

// AdInsightClient fetches per-ad insights of one ad account for one date
type AdInsightClient interface {
	Provider() ProviderCode
	FetchInsights(ctx context.Context, account *AdAccount, date time.Time) ([]RawAdInsight, error)
	TestConnection(ctx context.Context, account *AdAccount) error
}

// OrderClient fetches the orders of one shop for one date
type OrderClient interface {
	Provider() ProviderCode
	FetchOrders(ctx context.Context, shop *Shop, date time.Time) ([]RawOrder, error)
	TestConnection(ctx context.Context, shop *Shop) error
}

// SourceRegistry selects a client by provider code
type SourceRegistry interface {
	AdInsightClient(code ProviderCode) (AdInsightClient, error)
	OrderClient(code ProviderCode) (OrderClient, error)
}

// ---------------------------------------------------------------------------
// FetchError
// ---------------------------------------------------------------------------

// FetchError is a fetch that failed after its retries were exhausted,
// or failed immediately with a non-retryable status
type FetchError struct {
	Provider   ProviderCode
	EntityID   string
	Date       string
	StatusCode int
	Attempts   int
	Retryable  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s entity %s for %s failed after %d attempt(s) with status %d: %v",
			e.Provider, e.EntityID, e.Date, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s entity %s for %s failed after %d attempt(s): %v",
		e.Provider, e.EntityID, e.Date, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsRetryableStatus reports whether an HTTP status is worth retrying
func IsRetryableStatus(status int) bool {
	return status == 429 || status >= 500
}
