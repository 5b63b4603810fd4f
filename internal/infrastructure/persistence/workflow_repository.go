package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/persistence/models"
)

// GormWorkflowRepository implements workflow.WorkflowRepository using GORM
type GormWorkflowRepository struct {
	db *gorm.DB
}

// NewGormWorkflowRepository creates a new GormWorkflowRepository
func NewGormWorkflowRepository(db *gorm.DB) *GormWorkflowRepository {
	return &GormWorkflowRepository{db: db}
}

// FindByIDForTenant finds a workflow by ID within a tenant
func (r *GormWorkflowRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*workflow.Workflow, error) {
	var model models.WorkflowModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrWorkflowNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListScheduled returns enabled workflows with a cron schedule across all tenants
func (r *GormWorkflowRepository) ListScheduled(ctx context.Context) ([]workflow.Workflow, error) {
	var wfModels []models.WorkflowModel
	if err := r.db.WithContext(ctx).
		Where("enabled = ? AND cron_schedule <> ''", true).
		Order("tenant_id, id").
		Find(&wfModels).Error; err != nil {
		return nil, err
	}

	workflows := make([]workflow.Workflow, len(wfModels))
	for i := range wfModels {
		workflows[i] = *wfModels[i].ToDomain()
	}
	return workflows, nil
}

// Save inserts or replaces a workflow configuration
func (r *GormWorkflowRepository) Save(ctx context.Context, wf *workflow.Workflow) error {
	wf.Touch(time.Now())
	model := models.WorkflowModelFromDomain(wf)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "enabled", "cron_schedule", "timezone", "sources", "date_range", "team_id", "updated_at",
			}),
		}).
		Create(model).Error
}

// isUniqueViolation detects unique constraint errors from both translated and raw driver errors
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "sqlstate 23505")
}
