package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/adrecon/backend/internal/domain/integration"
)

type adGroup struct {
	id   string
	rows []integration.RawAdInsight
}

// Match joins a day's ad-spend rows and orders on their normalized ad ids.
//
// Ad rows sharing a normalized id are merged into one row with spend converted by
// each row's currency multiplier. Every order that matches no ad row produces its
// own synthetic row keyed "{shopId}-{orderId}". The result is sorted by AdID and
// depends only on its inputs.
func Match(tenantID uuid.UUID, date time.Time, ads []integration.RawAdInsight, orders []integration.RawOrder, fees FeeSchedule) []ReconciledAdRow {
	groups := groupAds(ads)

	byID := make(map[string][]integration.RawOrder)
	var unmatched []integration.RawOrder
	for _, o := range orders {
		id := NormalizeAdID(o.Attribution)
		if id == "" {
			unmatched = append(unmatched, o)
			continue
		}
		if _, ok := groups[id]; !ok {
			unmatched = append(unmatched, o)
			continue
		}
		byID[id] = append(byID[id], o)
	}

	rows := make([]ReconciledAdRow, 0, len(groups)+len(unmatched))
	for id, g := range groups {
		rows = append(rows, matchedRow(tenantID, date, id, g.rows, byID[id], fees))
	}
	for _, o := range unmatched {
		rows = append(rows, syntheticRow(tenantID, date, o, fees))
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].AdID < rows[j].AdID })
	return rows
}

func groupAds(ads []integration.RawAdInsight) map[string]*adGroup {
	sorted := make([]integration.RawAdInsight, len(ads))
	copy(sorted, ads)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].AdAccountID != sorted[j].AdAccountID {
			return sorted[i].AdAccountID.String() < sorted[j].AdAccountID.String()
		}
		return sorted[i].AdID < sorted[j].AdID
	})

	groups := make(map[string]*adGroup)
	for _, a := range sorted {
		id := NormalizeAdID(a.AdID)
		if id == "" {
			continue
		}
		g, ok := groups[id]
		if !ok {
			g = &adGroup{id: id}
			groups[id] = g
		}
		g.rows = append(g.rows, a)
	}
	return groups
}

func matchedRow(tenantID uuid.UUID, date time.Time, id string, ads []integration.RawAdInsight, orders []integration.RawOrder, fees FeeSchedule) ReconciledAdRow {
	first := ads[0]
	accountID := first.AdAccountID
	row := ReconciledAdRow{
		TenantID:     tenantID,
		Date:         date,
		AdID:         id,
		TeamID:       first.TeamID,
		AccountID:    &accountID,
		CampaignID:   first.CampaignID,
		CampaignName: first.CampaignName,
		AdName:       first.AdName,
		Metrics:      NewMetrics(),
		OrderRefs:    []string{},
	}
	for _, a := range ads {
		multiplier := a.CurrencyMultiplier
		if multiplier.IsZero() {
			multiplier = oneDecimal
		}
		row.Spend = row.Spend.Add(a.Spend.Mul(multiplier))
		row.Clicks += a.Clicks
		row.Impressions += a.Impressions
		row.Leads += a.Leads
	}
	for _, o := range orders {
		row.AddOrder(o)
		row.OrderRefs = append(row.OrderRefs, orderRef(o))
	}
	sort.Strings(row.OrderRefs)
	fees.ApplyTo(&row.Metrics)
	return row
}

func syntheticRow(tenantID uuid.UUID, date time.Time, o integration.RawOrder, fees FeeSchedule) ReconciledAdRow {
	row := ReconciledAdRow{
		TenantID:    tenantID,
		Date:        date,
		AdID:        SyntheticAdID(o.ShopID, o.OrderID),
		TeamID:      o.TeamID,
		IsSynthetic: true,
		Metrics:     NewMetrics(),
		OrderRefs:   []string{orderRef(o)},
	}
	row.AddOrder(o)
	fees.ApplyTo(&row.Metrics)
	return row
}

// SyntheticAdID is the row key of an unmatched order
func SyntheticAdID(shopID uuid.UUID, orderID string) string {
	return fmt.Sprintf("%s-%s", shopID, orderID)
}

func orderRef(o integration.RawOrder) string {
	return fmt.Sprintf("%s:%s", o.ShopID, o.OrderID)
}

// Aggregate rolls a day's ad rows up by campaign id. Rows without a campaign id
// form their own group keyed by ad id and flagged unmatched. The result is sorted
// by CampaignID.
func Aggregate(tenantID uuid.UUID, date time.Time, rows []ReconciledAdRow) []ReconciledCampaignRow {
	// unmatched groups are keyed by ad id in their own map so they never fold into a campaign
	groups := map[bool]map[string]*ReconciledCampaignRow{false: {}, true: {}}
	for _, r := range rows {
		key, unmatched := r.CampaignID, false
		if key == "" {
			key, unmatched = r.AdID, true
		}
		g, ok := groups[unmatched][key]
		if !ok {
			g = &ReconciledCampaignRow{
				TenantID:     tenantID,
				Date:         date,
				CampaignID:   key,
				TeamID:       r.TeamID,
				CampaignName: r.CampaignName,
				IsUnmatched:  unmatched,
				Metrics:      NewMetrics(),
			}
			groups[unmatched][key] = g
		}
		if g.CampaignName == "" {
			g.CampaignName = r.CampaignName
		}
		g.AdCount++
		g.Metrics.Add(r.Metrics)
	}

	out := make([]ReconciledCampaignRow, 0, len(groups[false])+len(groups[true]))
	for _, byKey := range groups {
		for _, g := range byKey {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CampaignID != out[j].CampaignID {
			return out[i].CampaignID < out[j].CampaignID
		}
		return !out[i].IsUnmatched && out[j].IsUnmatched
	})
	return out
}
