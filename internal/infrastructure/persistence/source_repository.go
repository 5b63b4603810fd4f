package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/infrastructure/persistence/models"
)

// RawRecordBatchSize is the number of rows written per INSERT statement
const RawRecordBatchSize = 500

// GormEntityRepository implements integration.EntityRepository using GORM
type GormEntityRepository struct {
	db *gorm.DB
}

// NewGormEntityRepository creates a new GormEntityRepository
func NewGormEntityRepository(db *gorm.DB) *GormEntityRepository {
	return &GormEntityRepository{db: db}
}

// scopeTeam restricts a query to teamID when set
func scopeTeam(teamID *uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if teamID == nil {
			return db
		}
		return db.Where("team_id = ?", *teamID)
	}
}

// ListAdAccounts returns the tenant's enabled ad accounts, optionally narrowed to a team
func (r *GormEntityRepository) ListAdAccounts(ctx context.Context, tenantID uuid.UUID, teamID *uuid.UUID) ([]integration.AdAccount, error) {
	var accountModels []models.AdAccountModel
	if err := r.db.WithContext(ctx).
		Scopes(scopeTeam(teamID)).
		Where("tenant_id = ? AND enabled = ?", tenantID, true).
		Order("id").
		Find(&accountModels).Error; err != nil {
		return nil, err
	}

	accounts := make([]integration.AdAccount, len(accountModels))
	for i := range accountModels {
		accounts[i] = accountModels[i].ToDomain()
	}
	return accounts, nil
}

// ListShops returns the tenant's enabled shops, optionally narrowed to a team
func (r *GormEntityRepository) ListShops(ctx context.Context, tenantID uuid.UUID, teamID *uuid.UUID) ([]integration.Shop, error) {
	var shopModels []models.ShopModel
	if err := r.db.WithContext(ctx).
		Scopes(scopeTeam(teamID)).
		Where("tenant_id = ? AND enabled = ?", tenantID, true).
		Order("id").
		Find(&shopModels).Error; err != nil {
		return nil, err
	}

	shops := make([]integration.Shop, len(shopModels))
	for i := range shopModels {
		shops[i] = shopModels[i].ToDomain()
	}
	return shops, nil
}

// GormRawRecordRepository implements integration.RawRecordRepository using GORM
type GormRawRecordRepository struct {
	db *gorm.DB
}

// NewGormRawRecordRepository creates a new GormRawRecordRepository
func NewGormRawRecordRepository(db *gorm.DB) *GormRawRecordRepository {
	return &GormRawRecordRepository{db: db}
}

var rawAdInsightUpdateColumns = []string{
	"team_id", "ad_name", "adset_id", "campaign_id", "campaign_name",
	"spend", "currency_multiplier", "clicks", "impressions", "leads", "fetched_at",
}

var rawOrderUpdateColumns = []string{
	"order_date", "team_id", "status_code", "bucket", "cod_amount", "total_price",
	"attribution", "provider_time", "fetched_at",
}

// UpsertAdInsights writes insights keyed by (tenant, account, ad, date).
// Duplicates within the input keep the last occurrence.
func (r *GormRawRecordRepository) UpsertAdInsights(ctx context.Context, records []integration.RawAdInsight) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	type key struct {
		tenant, account uuid.UUID
		adID            string
		date            time.Time
	}
	index := make(map[key]int, len(records))
	rows := make([]*models.RawAdInsightModel, 0, len(records))
	for i := range records {
		k := key{records[i].TenantID, records[i].AdAccountID, records[i].AdID, records[i].Date}
		m := models.RawAdInsightModelFromDomain(&records[i])
		if pos, ok := index[k]; ok {
			rows[pos] = m
			continue
		}
		index[k] = len(rows)
		rows = append(rows, m)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "tenant_id"}, {Name: "ad_account_id"}, {Name: "ad_id"}, {Name: "date"},
			},
			DoUpdates: clause.AssignmentColumns(rawAdInsightUpdateColumns),
		}).CreateInBatches(rows, RawRecordBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("upsert raw ad insights: %w", err)
	}
	return len(rows), nil
}

// UpsertOrders writes orders keyed by (tenant, shop, order).
// Duplicates within the input keep the last occurrence.
func (r *GormRawRecordRepository) UpsertOrders(ctx context.Context, records []integration.RawOrder) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	type key struct {
		tenant, shop uuid.UUID
		orderID      string
	}
	index := make(map[key]int, len(records))
	rows := make([]*models.RawOrderModel, 0, len(records))
	for i := range records {
		k := key{records[i].TenantID, records[i].ShopID, records[i].OrderID}
		m := models.RawOrderModelFromDomain(&records[i])
		if pos, ok := index[k]; ok {
			rows[pos] = m
			continue
		}
		index[k] = len(rows)
		rows = append(rows, m)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "shop_id"}, {Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns(rawOrderUpdateColumns),
		}).CreateInBatches(rows, RawRecordBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("upsert raw orders: %w", err)
	}
	return len(rows), nil
}

// ListAdInsights returns the insights stored for one day
func (r *GormRawRecordRepository) ListAdInsights(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) ([]integration.RawAdInsight, error) {
	var insightModels []models.RawAdInsightModel
	if err := r.db.WithContext(ctx).
		Scopes(scopeTeam(teamID)).
		Where("tenant_id = ? AND date = ?", tenantID, date).
		Order("ad_account_id, ad_id").
		Find(&insightModels).Error; err != nil {
		return nil, err
	}

	insights := make([]integration.RawAdInsight, len(insightModels))
	for i := range insightModels {
		insights[i] = insightModels[i].ToDomain()
	}
	return insights, nil
}

// ListOrders returns the orders stored for one day
func (r *GormRawRecordRepository) ListOrders(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) ([]integration.RawOrder, error) {
	var orderModels []models.RawOrderModel
	if err := r.db.WithContext(ctx).
		Scopes(scopeTeam(teamID)).
		Where("tenant_id = ? AND order_date = ?", tenantID, date).
		Order("shop_id, order_id").
		Find(&orderModels).Error; err != nil {
		return nil, err
	}

	orders := make([]integration.RawOrder, len(orderModels))
	for i := range orderModels {
		orders[i] = orderModels[i].ToDomain()
	}
	return orders, nil
}
