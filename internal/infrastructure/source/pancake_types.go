package source

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/adrecon/backend/internal/domain/integration"
)

type pancakeOrdersResponse struct {
	Success    *bool          `json:"success,omitempty"`
	Message    string         `json:"message,omitempty"`
	Data       []pancakeOrder `json:"data"`
	TotalPages int            `json:"total_pages"`
	PageNumber int            `json:"page_number"`
}

type pancakeOrder struct {
	ID          json.Number     `json:"id"`
	Status      int             `json:"status"`
	COD         decimal.Decimal `json:"cod"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	AdID        string          `json:"ad_id"`
	PUtmContent string          `json:"p_utm_content"`
	InsertedAt  string          `json:"inserted_at"`
}

type pancakeShopResponse struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Shop    *struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	} `json:"shop,omitempty"`
}

// pancakeStatusBuckets maps Pancake order status codes to buckets
var pancakeStatusBuckets = map[int]integration.OrderBucket{
	0:  integration.BucketUnconfirmed,
	1:  integration.BucketConfirmed,
	8:  integration.BucketConfirmed,
	11: integration.BucketRestocking,
	9:  integration.BucketWaitingPickup,
	2:  integration.BucketShipped,
	3:  integration.BucketDelivered,
	6:  integration.BucketCanceled,
	7:  integration.BucketCanceled,
	4:  integration.BucketReturned,
	5:  integration.BucketReturned,
}

// PancakeBucket classifies a Pancake status code; unknown codes are unconfirmed
func PancakeBucket(status int) integration.OrderBucket {
	if b, ok := pancakeStatusBuckets[status]; ok {
		return b
	}
	return integration.BucketUnconfirmed
}
