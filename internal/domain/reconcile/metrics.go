package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/adrecon/backend/internal/domain/integration"
)

var oneDecimal = decimal.NewFromInt(1)

// BucketTotals is the order count and COD sum of one status bucket
type BucketTotals struct {
	Count int64
	COD   decimal.Decimal
}

// Add returns the sum of two bucket totals
func (b BucketTotals) Add(o BucketTotals) BucketTotals {
	return BucketTotals{Count: b.Count + o.Count, COD: b.COD.Add(o.COD)}
}

// Metrics holds every numeric field of a reconciled row
type Metrics struct {
	Spend       decimal.Decimal
	Clicks      int64
	Impressions int64
	Leads       int64

	TotalOrders int64
	TotalCOD    decimal.Decimal
	Buckets     map[integration.OrderBucket]BucketTotals

	NetPurchases int64

	ShippingFee              decimal.Decimal
	FulfillmentFee           decimal.Decimal
	InsuranceFee             decimal.Decimal
	SettlementShippingFee    decimal.Decimal
	SettlementFulfillmentFee decimal.Decimal
	SettlementInsuranceFee   decimal.Decimal
	CODFee                   decimal.Decimal
	DeliveredCODFee          decimal.Decimal
}

// NewMetrics returns zeroed metrics with every bucket present
func NewMetrics() Metrics {
	m := Metrics{Buckets: make(map[integration.OrderBucket]BucketTotals, len(integration.AllBuckets))}
	for _, b := range integration.AllBuckets {
		m.Buckets[b] = BucketTotals{}
	}
	return m
}

// Bucket returns the totals of one bucket
func (m *Metrics) Bucket(b integration.OrderBucket) BucketTotals {
	return m.Buckets[b]
}

// AddOrder counts one order into its bucket
func (m *Metrics) AddOrder(o integration.RawOrder) {
	if m.Buckets == nil {
		*m = mergeInto(NewMetrics(), *m)
	}
	bucket := o.Bucket
	if !bucket.IsValid() {
		bucket = integration.BucketUnconfirmed
	}
	m.TotalOrders++
	m.TotalCOD = m.TotalCOD.Add(o.CODAmount)
	m.Buckets[bucket] = m.Buckets[bucket].Add(BucketTotals{Count: 1, COD: o.CODAmount})
}

// Add sums every numeric field of o into m
func (m *Metrics) Add(o Metrics) {
	*m = mergeInto(*m, o)
}

func mergeInto(a, b Metrics) Metrics {
	out := NewMetrics()
	out.Spend = a.Spend.Add(b.Spend)
	out.Clicks = a.Clicks + b.Clicks
	out.Impressions = a.Impressions + b.Impressions
	out.Leads = a.Leads + b.Leads
	out.TotalOrders = a.TotalOrders + b.TotalOrders
	out.TotalCOD = a.TotalCOD.Add(b.TotalCOD)
	for _, bk := range integration.AllBuckets {
		out.Buckets[bk] = a.Buckets[bk].Add(b.Buckets[bk])
	}
	out.NetPurchases = a.NetPurchases + b.NetPurchases
	out.ShippingFee = a.ShippingFee.Add(b.ShippingFee)
	out.FulfillmentFee = a.FulfillmentFee.Add(b.FulfillmentFee)
	out.InsuranceFee = a.InsuranceFee.Add(b.InsuranceFee)
	out.SettlementShippingFee = a.SettlementShippingFee.Add(b.SettlementShippingFee)
	out.SettlementFulfillmentFee = a.SettlementFulfillmentFee.Add(b.SettlementFulfillmentFee)
	out.SettlementInsuranceFee = a.SettlementInsuranceFee.Add(b.SettlementInsuranceFee)
	out.CODFee = a.CODFee.Add(b.CODFee)
	out.DeliveredCODFee = a.DeliveredCODFee.Add(b.DeliveredCODFee)
	return out
}

// FeeSchedule holds the per-order fee constants and COD fee rates.
// Rates are fractions, 0.01 is one percent.
type FeeSchedule struct {
	ShippingFee              decimal.Decimal
	FulfillmentFee           decimal.Decimal
	InsuranceFee             decimal.Decimal
	SettlementShippingFee    decimal.Decimal
	SettlementFulfillmentFee decimal.Decimal
	SettlementInsuranceFee   decimal.Decimal
	CODFeeRate               decimal.Decimal
	DeliveredCODFeeRate      decimal.Decimal
}

// DefaultFeeSchedule returns the standard fee constants
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		ShippingFee:              decimal.NewFromInt(30000),
		FulfillmentFee:           decimal.NewFromInt(5000),
		InsuranceFee:             decimal.NewFromInt(2000),
		SettlementShippingFee:    decimal.NewFromInt(30000),
		SettlementFulfillmentFee: decimal.NewFromInt(5000),
		SettlementInsuranceFee:   decimal.NewFromInt(2000),
		CODFeeRate:               decimal.NewFromFloat(0.01),
		DeliveredCODFeeRate:      decimal.NewFromFloat(0.01),
	}
}

// ApplyTo derives net purchases and fee estimates from the order buckets of m
func (f FeeSchedule) ApplyTo(m *Metrics) {
	canceled := m.Bucket(integration.BucketCanceled)
	returned := m.Bucket(integration.BucketReturned)
	restocking := m.Bucket(integration.BucketRestocking)
	delivered := m.Bucket(integration.BucketDelivered)
	shipped := m.Bucket(integration.BucketShipped)

	m.NetPurchases = m.TotalOrders - canceled.Count - restocking.Count - returned.Count

	active := decimal.NewFromInt(m.TotalOrders - canceled.Count)
	m.ShippingFee = f.ShippingFee.Mul(active)
	m.FulfillmentFee = f.FulfillmentFee.Mul(active)
	m.InsuranceFee = f.InsuranceFee.Mul(active)

	settled := decimal.NewFromInt(shipped.Count + delivered.Count + returned.Count)
	m.SettlementShippingFee = f.SettlementShippingFee.Mul(settled)
	m.SettlementFulfillmentFee = f.SettlementFulfillmentFee.Mul(settled)
	m.SettlementInsuranceFee = f.SettlementInsuranceFee.Mul(settled)

	collectable := m.TotalCOD.Sub(canceled.COD).Sub(returned.COD)
	m.CODFee = f.CODFeeRate.Mul(collectable).Round(2)
	m.DeliveredCODFee = f.DeliveredCODFeeRate.Mul(delivered.COD).Round(2)
}
