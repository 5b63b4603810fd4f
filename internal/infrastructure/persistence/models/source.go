package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adrecon/backend/internal/domain/integration"
)

// AdAccountModel is the persistence model for an ads provider account
type AdAccountModel struct {
	BaseModel
	TenantID           uuid.UUID                `gorm:"type:uuid;not null;index:idx_ad_account_tenant,priority:1"`
	TeamID             *uuid.UUID               `gorm:"type:uuid;index"`
	Provider           integration.ProviderCode `gorm:"type:varchar(20);not null"`
	ExternalID         string                   `gorm:"type:varchar(100);not null"`
	Name               string                   `gorm:"type:varchar(200)"`
	CurrencyMultiplier decimal.Decimal          `gorm:"type:decimal(20,6);not null;default:1"`
	Enabled            bool                     `gorm:"not null;default:true;index:idx_ad_account_tenant,priority:2"`
	CredentialRef      string                   `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (AdAccountModel) TableName() string {
	return "ad_accounts"
}

// ToDomain converts the persistence model to a domain AdAccount
func (m *AdAccountModel) ToDomain() integration.AdAccount {
	return integration.AdAccount{
		ID:                 m.ID,
		TenantID:           m.TenantID,
		TeamID:             m.TeamID,
		Provider:           m.Provider,
		ExternalID:         m.ExternalID,
		Name:               m.Name,
		CurrencyMultiplier: m.CurrencyMultiplier,
		Enabled:            m.Enabled,
		CredentialRef:      m.CredentialRef,
	}
}

// ShopModel is the persistence model for a POS shop
type ShopModel struct {
	BaseModel
	TenantID      uuid.UUID                `gorm:"type:uuid;not null;index:idx_shop_tenant,priority:1"`
	TeamID        *uuid.UUID               `gorm:"type:uuid;index"`
	Provider      integration.ProviderCode `gorm:"type:varchar(20);not null"`
	ExternalID    string                   `gorm:"type:varchar(100);not null"`
	Name          string                   `gorm:"type:varchar(200)"`
	Enabled       bool                     `gorm:"not null;default:true;index:idx_shop_tenant,priority:2"`
	CredentialRef string                   `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (ShopModel) TableName() string {
	return "shops"
}

// ToDomain converts the persistence model to a domain Shop
func (m *ShopModel) ToDomain() integration.Shop {
	return integration.Shop{
		ID:            m.ID,
		TenantID:      m.TenantID,
		TeamID:        m.TeamID,
		Provider:      m.Provider,
		ExternalID:    m.ExternalID,
		Name:          m.Name,
		Enabled:       m.Enabled,
		CredentialRef: m.CredentialRef,
	}
}

// CredentialModel stores sealed provider secrets.
// Sealed values are nonce-prefixed secretbox ciphertexts.
type CredentialModel struct {
	Ref               string    `gorm:"type:varchar(100);primary_key"`
	TenantID          uuid.UUID `gorm:"type:uuid;not null;index"`
	SealedAccessToken []byte
	SealedAPIKey      []byte
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CredentialModel) TableName() string {
	return "integration_credentials"
}

// RawAdInsightModel is one fetched ad insight, unique per (tenant, account, ad, date)
type RawAdInsightModel struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_raw_ad_insight,priority:1;index:idx_raw_ad_insight_day,priority:1"`
	AdAccountID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_raw_ad_insight,priority:2"`
	AdID               string          `gorm:"type:varchar(100);not null;uniqueIndex:uq_raw_ad_insight,priority:3"`
	Date               time.Time       `gorm:"type:date;not null;uniqueIndex:uq_raw_ad_insight,priority:4;index:idx_raw_ad_insight_day,priority:2"`
	TeamID             *uuid.UUID      `gorm:"type:uuid"`
	AdName             string          `gorm:"type:varchar(255)"`
	AdsetID            string          `gorm:"type:varchar(100)"`
	CampaignID         string          `gorm:"type:varchar(100)"`
	CampaignName       string          `gorm:"type:varchar(255)"`
	Spend              decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	CurrencyMultiplier decimal.Decimal `gorm:"type:decimal(20,6);not null;default:1"`
	Clicks             int64           `gorm:"not null;default:0"`
	Impressions        int64           `gorm:"not null;default:0"`
	Leads              int64           `gorm:"not null;default:0"`
	FetchedAt          time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RawAdInsightModel) TableName() string {
	return "raw_ad_insights"
}

// RawAdInsightModelFromDomain creates a persistence model from a fetched insight
func RawAdInsightModelFromDomain(r *integration.RawAdInsight) *RawAdInsightModel {
	return &RawAdInsightModel{
		ID:                 uuid.New(),
		TenantID:           r.TenantID,
		AdAccountID:        r.AdAccountID,
		AdID:               r.AdID,
		Date:               r.Date,
		TeamID:             r.TeamID,
		AdName:             r.AdName,
		AdsetID:            r.AdsetID,
		CampaignID:         r.CampaignID,
		CampaignName:       r.CampaignName,
		Spend:              r.Spend,
		CurrencyMultiplier: r.CurrencyMultiplier,
		Clicks:             r.Clicks,
		Impressions:        r.Impressions,
		Leads:              r.Leads,
		FetchedAt:          r.FetchedAt,
	}
}

// ToDomain converts the persistence model to a domain RawAdInsight
func (m *RawAdInsightModel) ToDomain() integration.RawAdInsight {
	return integration.RawAdInsight{
		TenantID:           m.TenantID,
		TeamID:             m.TeamID,
		AdAccountID:        m.AdAccountID,
		Date:               m.Date.UTC(),
		AdID:               m.AdID,
		AdName:             m.AdName,
		AdsetID:            m.AdsetID,
		CampaignID:         m.CampaignID,
		CampaignName:       m.CampaignName,
		Spend:              m.Spend,
		CurrencyMultiplier: m.CurrencyMultiplier,
		Clicks:             m.Clicks,
		Impressions:        m.Impressions,
		Leads:              m.Leads,
		FetchedAt:          m.FetchedAt,
	}
}

// RawOrderModel is one fetched POS order, unique per (tenant, shop, order)
type RawOrderModel struct {
	ID           uuid.UUID               `gorm:"type:uuid;primary_key"`
	TenantID     uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:uq_raw_order,priority:1;index:idx_raw_order_day,priority:1"`
	ShopID       uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:uq_raw_order,priority:2"`
	OrderID      string                  `gorm:"type:varchar(100);not null;uniqueIndex:uq_raw_order,priority:3"`
	OrderDate    time.Time               `gorm:"type:date;not null;index:idx_raw_order_day,priority:2"`
	TeamID       *uuid.UUID              `gorm:"type:uuid"`
	StatusCode   int                     `gorm:"not null"`
	Bucket       integration.OrderBucket `gorm:"type:varchar(20);not null"`
	CODAmount    decimal.Decimal         `gorm:"column:cod_amount;type:decimal(20,4);not null;default:0"`
	TotalPrice   decimal.Decimal         `gorm:"type:decimal(20,4);not null;default:0"`
	Attribution  string                  `gorm:"type:varchar(500)"`
	ProviderTime *time.Time
	FetchedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RawOrderModel) TableName() string {
	return "raw_orders"
}

// RawOrderModelFromDomain creates a persistence model from a fetched order
func RawOrderModelFromDomain(r *integration.RawOrder) *RawOrderModel {
	return &RawOrderModel{
		ID:           uuid.New(),
		TenantID:     r.TenantID,
		ShopID:       r.ShopID,
		OrderID:      r.OrderID,
		OrderDate:    r.OrderDate,
		TeamID:       r.TeamID,
		StatusCode:   r.StatusCode,
		Bucket:       r.Bucket,
		CODAmount:    r.CODAmount,
		TotalPrice:   r.TotalPrice,
		Attribution:  r.Attribution,
		ProviderTime: r.ProviderTime,
		FetchedAt:    r.FetchedAt,
	}
}

// ToDomain converts the persistence model to a domain RawOrder
func (m *RawOrderModel) ToDomain() integration.RawOrder {
	return integration.RawOrder{
		TenantID:     m.TenantID,
		TeamID:       m.TeamID,
		ShopID:       m.ShopID,
		OrderID:      m.OrderID,
		OrderDate:    m.OrderDate.UTC(),
		StatusCode:   m.StatusCode,
		Bucket:       m.Bucket,
		CODAmount:    m.CODAmount,
		TotalPrice:   m.TotalPrice,
		Attribution:  m.Attribution,
		ProviderTime: m.ProviderTime,
		FetchedAt:    m.FetchedAt,
	}
}
