package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adrecon/backend/internal/domain/reconcile"
	"github.com/adrecon/backend/internal/infrastructure/persistence/models"
)

// GormReconciledRowRepository implements reconcile.Repository using GORM
type GormReconciledRowRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormReconciledRowRepository creates a new GormReconciledRowRepository
func NewGormReconciledRowRepository(db *gorm.DB) *GormReconciledRowRepository {
	return &GormReconciledRowRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// dayScope selects one tenant day, optionally narrowed to a team
func dayScope(tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ? AND date = ?", tenantID, date).Scopes(scopeTeam(teamID))
	}
}

// deleteUnproduced removes rows in scope whose key column is not in produced.
// Stale keys are found in Go and deleted in batches so no statement binds more
// than RawRecordBatchSize keys, whatever the size of the day.
func deleteUnproduced(tx *gorm.DB, scope func(*gorm.DB) *gorm.DB, model any, column string, produced []string) error {
	var existing []string
	if err := tx.Model(model).Scopes(scope).Pluck(column, &existing).Error; err != nil {
		return err
	}

	keep := make(map[string]struct{}, len(produced))
	for _, k := range produced {
		keep[k] = struct{}{}
	}
	stale := make([]string, 0, len(existing))
	for _, k := range existing {
		if _, ok := keep[k]; !ok {
			stale = append(stale, k)
		}
	}

	for start := 0; start < len(stale); start += RawRecordBatchSize {
		end := min(start+RawRecordBatchSize, len(stale))
		if err := tx.Scopes(scope).Where(column+" IN ?", stale[start:end]).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReplaceAdRows upserts rows and removes the day's ad rows in scope that were not produced
func (r *GormReconciledRowRepository) ReplaceAdRows(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID, rows []reconcile.ReconciledAdRow) error {
	now := r.now()
	adModels := make([]*models.ReconciledAdRowModel, len(rows))
	keys := make([]string, len(rows))
	for i := range rows {
		adModels[i] = models.ReconciledAdRowModelFromDomain(&rows[i], now)
		keys[i] = rows[i].AdID
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(adModels) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "date"}, {Name: "ad_id"}},
				DoUpdates: clause.AssignmentColumns(models.ReconciledAdRowUpdateColumns),
			}).CreateInBatches(adModels, RawRecordBatchSize).Error; err != nil {
				return err
			}
		}

		return deleteUnproduced(tx, dayScope(tenantID, date, teamID), &models.ReconciledAdRowModel{}, "ad_id", keys)
	})
	if err != nil {
		return fmt.Errorf("replace reconciled ad rows: %w", err)
	}
	return nil
}

// ListAdRows returns the day's ad rows ordered by ad id
func (r *GormReconciledRowRepository) ListAdRows(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) ([]reconcile.ReconciledAdRow, error) {
	var adModels []models.ReconciledAdRowModel
	if err := r.db.WithContext(ctx).
		Scopes(dayScope(tenantID, date, teamID)).
		Order("ad_id").
		Find(&adModels).Error; err != nil {
		return nil, err
	}

	rows := make([]reconcile.ReconciledAdRow, len(adModels))
	for i := range adModels {
		rows[i] = adModels[i].ToDomain()
	}
	return rows, nil
}

// ReplaceCampaignRows upserts rows and removes the day's campaign rows in scope that were not produced
func (r *GormReconciledRowRepository) ReplaceCampaignRows(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID, rows []reconcile.ReconciledCampaignRow) error {
	now := r.now()
	campaignModels := make([]*models.ReconciledCampaignRowModel, len(rows))
	// keys by is_unmatched: an unmatched group's ad id may equal a campaign id
	keys := map[bool][]string{false: {}, true: {}}
	for i := range rows {
		campaignModels[i] = models.ReconciledCampaignRowModelFromDomain(&rows[i], now)
		keys[rows[i].IsUnmatched] = append(keys[rows[i].IsUnmatched], rows[i].CampaignID)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(campaignModels) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "date"}, {Name: "campaign_id"}, {Name: "is_unmatched"}},
				DoUpdates: clause.AssignmentColumns(models.ReconciledCampaignRowUpdateColumns),
			}).CreateInBatches(campaignModels, RawRecordBatchSize).Error; err != nil {
				return err
			}
		}

		for unmatched, produced := range keys {
			scope := func(db *gorm.DB) *gorm.DB {
				return db.Scopes(dayScope(tenantID, date, teamID)).Where("is_unmatched = ?", unmatched)
			}
			if err := deleteUnproduced(tx, scope, &models.ReconciledCampaignRowModel{}, "campaign_id", produced); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace reconciled campaign rows: %w", err)
	}
	return nil
}

// ListCampaignRows returns the day's campaign rows ordered by campaign id
func (r *GormReconciledRowRepository) ListCampaignRows(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) ([]reconcile.ReconciledCampaignRow, error) {
	var campaignModels []models.ReconciledCampaignRowModel
	if err := r.db.WithContext(ctx).
		Scopes(dayScope(tenantID, date, teamID)).
		Order("campaign_id").Order("is_unmatched").
		Find(&campaignModels).Error; err != nil {
		return nil, err
	}

	rows := make([]reconcile.ReconciledCampaignRow, len(campaignModels))
	for i := range campaignModels {
		rows[i] = campaignModels[i].ToDomain()
	}
	return rows, nil
}
