package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/domain/reconcile"
)

// MetricsColumns are the numeric columns shared by ad and campaign rows
type MetricsColumns struct {
	Spend       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	Clicks      int64           `gorm:"not null;default:0"`
	Impressions int64           `gorm:"not null;default:0"`
	Leads       int64           `gorm:"not null;default:0"`

	TotalOrders int64           `gorm:"not null;default:0"`
	TotalCOD    decimal.Decimal `gorm:"column:total_cod;type:decimal(20,4);not null;default:0"`

	UnconfirmedCount   int64           `gorm:"not null;default:0"`
	UnconfirmedCOD     decimal.Decimal `gorm:"column:unconfirmed_cod;type:decimal(20,4);not null;default:0"`
	ConfirmedCount     int64           `gorm:"not null;default:0"`
	ConfirmedCOD       decimal.Decimal `gorm:"column:confirmed_cod;type:decimal(20,4);not null;default:0"`
	RestockingCount    int64           `gorm:"not null;default:0"`
	RestockingCOD      decimal.Decimal `gorm:"column:restocking_cod;type:decimal(20,4);not null;default:0"`
	WaitingPickupCount int64           `gorm:"not null;default:0"`
	WaitingPickupCOD   decimal.Decimal `gorm:"column:waiting_pickup_cod;type:decimal(20,4);not null;default:0"`
	ShippedCount       int64           `gorm:"not null;default:0"`
	ShippedCOD         decimal.Decimal `gorm:"column:shipped_cod;type:decimal(20,4);not null;default:0"`
	DeliveredCount     int64           `gorm:"not null;default:0"`
	DeliveredCOD       decimal.Decimal `gorm:"column:delivered_cod;type:decimal(20,4);not null;default:0"`
	CanceledCount      int64           `gorm:"not null;default:0"`
	CanceledCOD        decimal.Decimal `gorm:"column:canceled_cod;type:decimal(20,4);not null;default:0"`
	ReturnedCount      int64           `gorm:"not null;default:0"`
	ReturnedCOD        decimal.Decimal `gorm:"column:returned_cod;type:decimal(20,4);not null;default:0"`

	NetPurchases int64 `gorm:"not null;default:0"`

	ShippingFee              decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	FulfillmentFee           decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	InsuranceFee             decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	SettlementShippingFee    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	SettlementFulfillmentFee decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	SettlementInsuranceFee   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	CODFee                   decimal.Decimal `gorm:"column:cod_fee;type:decimal(20,4);not null;default:0"`
	DeliveredCODFee          decimal.Decimal `gorm:"column:delivered_cod_fee;type:decimal(20,4);not null;default:0"`
}

// MetricColumnNames lists the columns an upsert overwrites
var MetricColumnNames = []string{
	"spend", "clicks", "impressions", "leads",
	"total_orders", "total_cod",
	"unconfirmed_count", "unconfirmed_cod",
	"confirmed_count", "confirmed_cod",
	"restocking_count", "restocking_cod",
	"waiting_pickup_count", "waiting_pickup_cod",
	"shipped_count", "shipped_cod",
	"delivered_count", "delivered_cod",
	"canceled_count", "canceled_cod",
	"returned_count", "returned_cod",
	"net_purchases",
	"shipping_fee", "fulfillment_fee", "insurance_fee",
	"settlement_shipping_fee", "settlement_fulfillment_fee", "settlement_insurance_fee",
	"cod_fee", "delivered_cod_fee",
}

func (c *MetricsColumns) bucketFields() map[integration.OrderBucket]struct {
	count *int64
	cod   *decimal.Decimal
} {
	return map[integration.OrderBucket]struct {
		count *int64
		cod   *decimal.Decimal
	}{
		integration.BucketUnconfirmed:   {&c.UnconfirmedCount, &c.UnconfirmedCOD},
		integration.BucketConfirmed:     {&c.ConfirmedCount, &c.ConfirmedCOD},
		integration.BucketRestocking:    {&c.RestockingCount, &c.RestockingCOD},
		integration.BucketWaitingPickup: {&c.WaitingPickupCount, &c.WaitingPickupCOD},
		integration.BucketShipped:       {&c.ShippedCount, &c.ShippedCOD},
		integration.BucketDelivered:     {&c.DeliveredCount, &c.DeliveredCOD},
		integration.BucketCanceled:      {&c.CanceledCount, &c.CanceledCOD},
		integration.BucketReturned:      {&c.ReturnedCount, &c.ReturnedCOD},
	}
}

// MetricsColumnsFromDomain flattens domain metrics into columns
func MetricsColumnsFromDomain(m reconcile.Metrics) MetricsColumns {
	c := MetricsColumns{
		Spend:                    m.Spend,
		Clicks:                   m.Clicks,
		Impressions:              m.Impressions,
		Leads:                    m.Leads,
		TotalOrders:              m.TotalOrders,
		TotalCOD:                 m.TotalCOD,
		NetPurchases:             m.NetPurchases,
		ShippingFee:              m.ShippingFee,
		FulfillmentFee:           m.FulfillmentFee,
		InsuranceFee:             m.InsuranceFee,
		SettlementShippingFee:    m.SettlementShippingFee,
		SettlementFulfillmentFee: m.SettlementFulfillmentFee,
		SettlementInsuranceFee:   m.SettlementInsuranceFee,
		CODFee:                   m.CODFee,
		DeliveredCODFee:          m.DeliveredCODFee,
	}
	for bucket, f := range c.bucketFields() {
		t := m.Bucket(bucket)
		*f.count = t.Count
		*f.cod = t.COD
	}
	return c
}

// ToDomain expands columns into domain metrics
func (c *MetricsColumns) ToDomain() reconcile.Metrics {
	m := reconcile.NewMetrics()
	m.Spend = c.Spend
	m.Clicks = c.Clicks
	m.Impressions = c.Impressions
	m.Leads = c.Leads
	m.TotalOrders = c.TotalOrders
	m.TotalCOD = c.TotalCOD
	m.NetPurchases = c.NetPurchases
	m.ShippingFee = c.ShippingFee
	m.FulfillmentFee = c.FulfillmentFee
	m.InsuranceFee = c.InsuranceFee
	m.SettlementShippingFee = c.SettlementShippingFee
	m.SettlementFulfillmentFee = c.SettlementFulfillmentFee
	m.SettlementInsuranceFee = c.SettlementInsuranceFee
	m.CODFee = c.CODFee
	m.DeliveredCODFee = c.DeliveredCODFee
	for bucket, f := range c.bucketFields() {
		m.Buckets[bucket] = reconcile.BucketTotals{Count: *f.count, COD: *f.cod}
	}
	return m
}

// ReconciledAdRowModel is the persistence model of a reconciled ad row
type ReconciledAdRowModel struct {
	TenantID     uuid.UUID  `gorm:"type:uuid;primary_key"`
	Date         time.Time  `gorm:"type:date;primary_key"`
	AdID         string     `gorm:"type:varchar(255);primary_key"`
	TeamID       *uuid.UUID `gorm:"type:uuid;index"`
	AccountID    *uuid.UUID `gorm:"type:uuid"`
	CampaignID   string     `gorm:"type:varchar(100)"`
	CampaignName string     `gorm:"type:varchar(255)"`
	AdName       string     `gorm:"type:varchar(255)"`
	IsSynthetic  bool       `gorm:"not null;default:false"`
	MetricsColumns
	OrderRefs datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReconciledAdRowModel) TableName() string {
	return "reconciled_ad_rows"
}

// ReconciledAdRowUpdateColumns are the columns overwritten on conflict
var ReconciledAdRowUpdateColumns = append([]string{
	"team_id", "account_id", "campaign_id", "campaign_name", "ad_name", "is_synthetic",
	"order_refs", "updated_at",
}, MetricColumnNames...)

// ReconciledAdRowModelFromDomain creates a persistence model from a domain row
func ReconciledAdRowModelFromDomain(r *reconcile.ReconciledAdRow, now time.Time) *ReconciledAdRowModel {
	refs := r.OrderRefs
	if refs == nil {
		refs = []string{}
	}
	raw, _ := json.Marshal(refs)
	return &ReconciledAdRowModel{
		TenantID:       r.TenantID,
		Date:           r.Date,
		AdID:           r.AdID,
		TeamID:         r.TeamID,
		AccountID:      r.AccountID,
		CampaignID:     r.CampaignID,
		CampaignName:   r.CampaignName,
		AdName:         r.AdName,
		IsSynthetic:    r.IsSynthetic,
		MetricsColumns: MetricsColumnsFromDomain(r.Metrics),
		OrderRefs:      raw,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ToDomain converts the persistence model to a domain row
func (m *ReconciledAdRowModel) ToDomain() reconcile.ReconciledAdRow {
	refs := make([]string, 0)
	if len(m.OrderRefs) > 0 {
		_ = json.Unmarshal(m.OrderRefs, &refs)
	}
	return reconcile.ReconciledAdRow{
		TenantID:     m.TenantID,
		Date:         m.Date.UTC(),
		AdID:         m.AdID,
		TeamID:       m.TeamID,
		AccountID:    m.AccountID,
		CampaignID:   m.CampaignID,
		CampaignName: m.CampaignName,
		AdName:       m.AdName,
		IsSynthetic:  m.IsSynthetic,
		Metrics:      m.MetricsColumns.ToDomain(),
		OrderRefs:    refs,
	}
}

// ReconciledCampaignRowModel is the persistence model of a campaign roll-up row
type ReconciledCampaignRowModel struct {
	TenantID     uuid.UUID  `gorm:"type:uuid;primary_key"`
	Date         time.Time  `gorm:"type:date;primary_key"`
	CampaignID   string     `gorm:"type:varchar(255);primary_key"`
	TeamID       *uuid.UUID `gorm:"type:uuid;index"`
	CampaignName string     `gorm:"type:varchar(255)"`
	IsUnmatched  bool       `gorm:"primary_key;not null;default:false"`
	AdCount      int        `gorm:"not null;default:0"`
	MetricsColumns
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReconciledCampaignRowModel) TableName() string {
	return "reconciled_campaign_rows"
}

// ReconciledCampaignRowUpdateColumns are the columns overwritten on conflict
var ReconciledCampaignRowUpdateColumns = append([]string{
	"team_id", "campaign_name", "ad_count", "updated_at",
}, MetricColumnNames...)

// ReconciledCampaignRowModelFromDomain creates a persistence model from a domain row
func ReconciledCampaignRowModelFromDomain(r *reconcile.ReconciledCampaignRow, now time.Time) *ReconciledCampaignRowModel {
	return &ReconciledCampaignRowModel{
		TenantID:       r.TenantID,
		Date:           r.Date,
		CampaignID:     r.CampaignID,
		TeamID:         r.TeamID,
		CampaignName:   r.CampaignName,
		IsUnmatched:    r.IsUnmatched,
		AdCount:        r.AdCount,
		MetricsColumns: MetricsColumnsFromDomain(r.Metrics),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ToDomain converts the persistence model to a domain row
func (m *ReconciledCampaignRowModel) ToDomain() reconcile.ReconciledCampaignRow {
	return reconcile.ReconciledCampaignRow{
		TenantID:     m.TenantID,
		Date:         m.Date.UTC(),
		CampaignID:   m.CampaignID,
		TeamID:       m.TeamID,
		CampaignName: m.CampaignName,
		IsUnmatched:  m.IsUnmatched,
		AdCount:      m.AdCount,
		Metrics:      m.MetricsColumns.ToDomain(),
	}
}
