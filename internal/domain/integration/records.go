package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderBucket is the engine's status classification of a POS order
type OrderBucket string

const (
	BucketUnconfirmed   OrderBucket = "unconfirmed"
	BucketConfirmed     OrderBucket = "confirmed"
	BucketRestocking    OrderBucket = "restocking"
	BucketWaitingPickup OrderBucket = "waiting_pickup"
	BucketShipped       OrderBucket = "shipped"
	BucketDelivered     OrderBucket = "delivered"
	BucketCanceled      OrderBucket = "canceled"
	BucketReturned      OrderBucket = "returned"
)

// AllBuckets lists every bucket in reporting order
var AllBuckets = []OrderBucket{
	BucketUnconfirmed,
	BucketConfirmed,
	BucketRestocking,
	BucketWaitingPickup,
	BucketShipped,
	BucketDelivered,
	BucketCanceled,
	BucketReturned,
}

// IsValid returns true if the bucket is known
func (b OrderBucket) IsValid() bool {
	for _, known := range AllBuckets {
		if b == known {
			return true
		}
	}
	return false
}

// RawAdInsight is one ad's insight for one date as fetched from an ads provider.
// Account fields are filled in by the persister.
type RawAdInsight struct {
	TenantID           uuid.UUID
	TeamID             *uuid.UUID
	AdAccountID        uuid.UUID
	Date               time.Time
	AdID               string
	AdName             string
	AdsetID            string
	CampaignID         string
	CampaignName       string
	Spend              decimal.Decimal
	CurrencyMultiplier decimal.Decimal
	Clicks             int64
	Impressions        int64
	Leads              int64
	FetchedAt          time.Time
}

// RawOrder is one POS order as fetched for one date.
// Shop fields are filled in by the persister.
type RawOrder struct {
	TenantID     uuid.UUID
	TeamID       *uuid.UUID
	ShopID       uuid.UUID
	OrderID      string
	OrderDate    time.Time
	StatusCode   int
	Bucket       OrderBucket
	CODAmount    decimal.Decimal
	TotalPrice   decimal.Decimal
	Attribution  string
	ProviderTime *time.Time
	FetchedAt    time.Time
}

// RawRecordRepository stores fetched records by natural key and reads them back per day
type RawRecordRepository interface {
	// UpsertAdInsights writes records in batches within one transaction and returns rows written
	UpsertAdInsights(ctx context.Context, records []RawAdInsight) (int, error)
	UpsertOrders(ctx context.Context, records []RawOrder) (int, error)
	ListAdInsights(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) ([]RawAdInsight, error)
	ListOrders(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) ([]RawOrder, error)
}
