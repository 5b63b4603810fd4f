package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/persistence/models"
)

// GormExecutionRepository implements workflow.ExecutionRepository using GORM.
// Status writes are conditional updates; RowsAffected tells whether the guard held.
type GormExecutionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormExecutionRepository creates a new GormExecutionRepository
func NewGormExecutionRepository(db *gorm.DB) *GormExecutionRepository {
	return &GormExecutionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormExecutionRepository) WithTx(tx *gorm.DB) *GormExecutionRepository {
	return &GormExecutionRepository{db: tx, now: r.now}
}

func (r *GormExecutionRepository) model(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.ExecutionModel{})
}

// Create inserts a new execution
func (r *GormExecutionRepository) Create(ctx context.Context, exec *workflow.Execution) error {
	now := r.now()
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = now
	}
	exec.UpdatedAt = now
	if exec.Errors == nil {
		exec.Errors = []workflow.ExecutionError{}
	}

	if err := r.db.WithContext(ctx).Create(models.ExecutionModelFromDomain(exec)).Error; err != nil {
		if isUniqueViolation(err) {
			return workflow.ErrExecutionDuplicate
		}
		return err
	}
	return nil
}

// FindByID finds an execution by ID
func (r *GormExecutionRepository) FindByID(ctx context.Context, id uuid.UUID) (*workflow.Execution, error) {
	var m models.ExecutionModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrExecutionNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindByIDForTenant finds an execution by ID within a tenant
func (r *GormExecutionRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*workflow.Execution, error) {
	var m models.ExecutionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrExecutionNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// GetStatus reads only the status column
func (r *GormExecutionRepository) GetStatus(ctx context.Context, id uuid.UUID) (workflow.ExecutionStatus, error) {
	var statuses []string
	if err := r.model(ctx).Where("id = ?", id).Limit(1).Pluck("status", &statuses).Error; err != nil {
		return "", err
	}
	if len(statuses) == 0 {
		return "", workflow.ErrExecutionNotFound
	}
	return workflow.ExecutionStatus(statuses[0]), nil
}

// Claim moves a PENDING execution to RUNNING when no other execution of the
// tenant is RUNNING. The partial unique index backs the NOT EXISTS guard.
func (r *GormExecutionRepository) Claim(ctx context.Context, id uuid.UUID, totalUnits int, startedAt time.Time) error {
	result := r.model(ctx).
		Where("id = ? AND status = ?", id, workflow.ExecutionStatusPending).
		Where("NOT EXISTS (SELECT 1 FROM workflow_executions AS other WHERE other.tenant_id = workflow_executions.tenant_id AND other.status = ?)",
			workflow.ExecutionStatusRunning).
		Updates(map[string]any{
			"status":          workflow.ExecutionStatusRunning,
			"total_units":     totalUnits,
			"processed_units": 0,
			"days_processed":  0,
			"ads_fetched":     0,
			"pos_fetched":     0,
			"started_at":      startedAt,
			"updated_at":      r.now(),
		})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return workflow.ErrExecutionAlreadyClaimed
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetStatus(ctx, id); err != nil {
			return err
		}
		return workflow.ErrExecutionAlreadyClaimed
	}
	return nil
}

// SaveProgress writes the authoritative counters and error list
func (r *GormExecutionRepository) SaveProgress(ctx context.Context, id uuid.UUID, p workflow.Progress) error {
	result := r.model(ctx).
		Where("id = ?", id).
		Updates(map[string]any{
			"days_processed":  p.DaysProcessed,
			"processed_units": p.ProcessedUnits,
			"errors":          models.EncodeExecutionErrors(p.Errors),
			"updated_at":      r.now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return workflow.ErrExecutionNotFound
	}
	return nil
}

// Finish writes a terminal state when the current status is one of from
func (r *GormExecutionRepository) Finish(ctx context.Context, id uuid.UUID, from []workflow.ExecutionStatus, f workflow.Finish) (bool, error) {
	completedAt := f.CompletedAt
	result := r.model(ctx).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":          f.Status,
			"days_processed":  f.Progress.DaysProcessed,
			"processed_units": f.Progress.ProcessedUnits,
			"errors":          models.EncodeExecutionErrors(f.Progress.Errors),
			"completed_at":    &completedAt,
			"duration_ms":     f.DurationMs,
			"updated_at":      r.now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// TransitionStatus moves the execution to `to` when its status is one of from
func (r *GormExecutionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []workflow.ExecutionStatus, to workflow.ExecutionStatus, completedAt *time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": r.now(),
	}
	if completedAt != nil {
		updates["completed_at"] = completedAt
	}
	result := r.model(ctx).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkDispatched records the queue job ID of an active execution. An inline
// worker may already have claimed it, so RUNNING rows are updated too; terminal
// rows are left alone.
func (r *GormExecutionRepository) MarkDispatched(ctx context.Context, id uuid.UUID, jobID string, at time.Time) error {
	return r.model(ctx).
		Where("id = ? AND status IN ?", id, workflow.ActiveStatuses).
		Updates(map[string]any{
			"queue_job_id": jobID,
			"enqueued_at":  at,
			"updated_at":   r.now(),
		}).Error
}

// ResetDispatch clears the queue job of a PENDING execution. It is a no-op for
// executions that have already moved on.
func (r *GormExecutionRepository) ResetDispatch(ctx context.Context, id uuid.UUID) error {
	return r.model(ctx).
		Where("id = ? AND status = ?", id, workflow.ExecutionStatusPending).
		Updates(map[string]any{
			"queue_job_id": "",
			"enqueued_at":  nil,
			"updated_at":   r.now(),
		}).Error
}

// IncrementFetched adds n to the fetched counter of source
func (r *GormExecutionRepository) IncrementFetched(ctx context.Context, id uuid.UUID, source workflow.SourceType, n int) error {
	if n == 0 {
		return nil
	}
	column := "ads_fetched"
	if source == workflow.SourcePOS {
		column = "pos_fetched"
	}
	return r.model(ctx).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", n)).Error
}

// HasActive reports whether the tenant has a RUNNING or dispatched PENDING execution other than exclude
func (r *GormExecutionRepository) HasActive(ctx context.Context, tenantID uuid.UUID, exclude uuid.UUID) (bool, error) {
	var count int64
	err := r.model(ctx).
		Where("tenant_id = ? AND id <> ?", tenantID, exclude).
		Where("status = ? OR (status = ? AND queue_job_id <> '')",
			workflow.ExecutionStatusRunning, workflow.ExecutionStatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// NextPending returns the tenant's oldest undispatched PENDING execution, or nil
func (r *GormExecutionRepository) NextPending(ctx context.Context, tenantID uuid.UUID) (*workflow.Execution, error) {
	var m models.ExecutionModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, workflow.ExecutionStatusPending).
		Where("queue_job_id IS NULL OR queue_job_id = ''").
		Order("created_at ASC, id ASC").
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// ListStale returns active executions not updated since olderThan, oldest first
func (r *GormExecutionRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]workflow.Execution, error) {
	var execModels []models.ExecutionModel
	query := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", workflow.ActiveStatuses, olderThan).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&execModels).Error; err != nil {
		return nil, err
	}

	execs := make([]workflow.Execution, len(execModels))
	for i := range execModels {
		execs[i] = *execModels[i].ToDomain()
	}
	return execs, nil
}
