package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/adrecon/backend/internal/domain/workflow"
)

var workflowModelLogger = zap.L().Named("workflow.models")

// WorkflowModel is the persistence model for the Workflow configuration.
// Workflows are written by the configuration API; the engine only reads them.
type WorkflowModel struct {
	BaseModel
	TenantID     uuid.UUID      `gorm:"type:uuid;not null;index"`
	TeamID       *uuid.UUID     `gorm:"type:uuid;index"`
	Name         string         `gorm:"type:varchar(200);not null"`
	Enabled      bool           `gorm:"not null"`
	CronSchedule string         `gorm:"type:varchar(100)"`
	Timezone     string         `gorm:"type:varchar(64);not null;default:'UTC'"`
	Sources      datatypes.JSON `gorm:"not null"`
	DateRange    datatypes.JSON `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WorkflowModel) TableName() string {
	return "workflows"
}

// ToDomain converts the persistence model to a domain Workflow
func (m *WorkflowModel) ToDomain() *workflow.Workflow {
	wf := &workflow.Workflow{
		BaseEntity:   m.BaseModel.ToDomain(),
		TenantID:     m.TenantID,
		TeamID:       m.TeamID,
		Name:         m.Name,
		Enabled:      m.Enabled,
		CronSchedule: m.CronSchedule,
		Timezone:     m.Timezone,
		Sources:      workflow.SourcesConfig{},
	}
	if len(m.Sources) > 0 {
		if err := json.Unmarshal(m.Sources, &wf.Sources); err != nil {
			workflowModelLogger.Warn("failed to parse sources JSON",
				zap.String("workflow_id", m.ID.String()),
				zap.Error(err))
		}
	}
	if len(m.DateRange) > 0 {
		if err := json.Unmarshal(m.DateRange, &wf.DateRange); err != nil {
			workflowModelLogger.Warn("failed to parse date_range JSON",
				zap.String("workflow_id", m.ID.String()),
				zap.Error(err))
		}
	}
	return wf
}

// WorkflowModelFromDomain creates a persistence model from a domain Workflow
func WorkflowModelFromDomain(wf *workflow.Workflow) *WorkflowModel {
	m := &WorkflowModel{
		TenantID:     wf.TenantID,
		TeamID:       wf.TeamID,
		Name:         wf.Name,
		Enabled:      wf.Enabled,
		CronSchedule: wf.CronSchedule,
		Timezone:     wf.Timezone,
	}
	m.FromDomainBaseEntity(wf.BaseEntity)
	if m.Timezone == "" {
		m.Timezone = "UTC"
	}
	m.Sources, _ = json.Marshal(wf.Sources)
	m.DateRange, _ = json.Marshal(wf.DateRange)
	return m
}

// ExecutionModel is the persistence model for a workflow execution.
//
// uq_exec_tenant_running is a partial unique index: a tenant can hold at most one
// RUNNING row. uq_exec_schedule de-duplicates cron fires across replicas.
type ExecutionModel struct {
	ID             uuid.UUID                `gorm:"type:uuid;primary_key"`
	CreatedAt      time.Time                `gorm:"not null"`
	WorkflowID     uuid.UUID                `gorm:"type:uuid;not null;index;uniqueIndex:uq_exec_schedule,priority:1"`
	TenantID       uuid.UUID                `gorm:"type:uuid;not null;index:idx_exec_tenant_status,priority:1;uniqueIndex:uq_exec_tenant_running,where:status = 'RUNNING'"`
	TeamID         *uuid.UUID               `gorm:"type:uuid"`
	TriggerType    workflow.TriggerType     `gorm:"type:varchar(20);not null"`
	ScheduledFor   *time.Time               `gorm:"uniqueIndex:uq_exec_schedule,priority:2"`
	Status         workflow.ExecutionStatus `gorm:"type:varchar(20);not null;index:idx_exec_tenant_status,priority:2;index:idx_exec_status_updated,priority:1"`
	DateRangeSince time.Time                `gorm:"type:date;not null"`
	DateRangeUntil time.Time                `gorm:"type:date;not null"`
	TotalDays      int                      `gorm:"not null;default:0"`
	DaysProcessed  int                      `gorm:"not null;default:0"`
	TotalUnits     int                      `gorm:"not null;default:0"`
	ProcessedUnits int                      `gorm:"not null;default:0"`
	AdsFetched     int                      `gorm:"not null;default:0"`
	PosFetched     int                      `gorm:"not null;default:0"`
	Errors         datatypes.JSON           `gorm:"not null"`
	QueueJobID     string                   `gorm:"type:varchar(100)"`
	EnqueuedAt     *time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	DurationMs     int64 `gorm:"not null;default:0"`
	// UpdatedAt is maintained explicitly and indexed for the stale sweep
	UpdatedAt time.Time `gorm:"not null;index:idx_exec_status_updated,priority:2"`
}

// TableName returns the table name for GORM
func (ExecutionModel) TableName() string {
	return "workflow_executions"
}

// ToDomain converts the persistence model to a domain Execution
func (m *ExecutionModel) ToDomain() *workflow.Execution {
	e := &workflow.Execution{
		WorkflowID:     m.WorkflowID,
		TenantID:       m.TenantID,
		TeamID:         m.TeamID,
		TriggerType:    m.TriggerType,
		ScheduledFor:   m.ScheduledFor,
		Status:         m.Status,
		DateRangeSince: m.DateRangeSince.UTC(),
		DateRangeUntil: m.DateRangeUntil.UTC(),
		TotalDays:      m.TotalDays,
		DaysProcessed:  m.DaysProcessed,
		TotalUnits:     m.TotalUnits,
		ProcessedUnits: m.ProcessedUnits,
		AdsFetched:     m.AdsFetched,
		PosFetched:     m.PosFetched,
		Errors:         DecodeExecutionErrors(m.Errors),
		QueueJobID:     m.QueueJobID,
		EnqueuedAt:     m.EnqueuedAt,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		DurationMs:     m.DurationMs,
	}
	e.ID = m.ID
	e.CreatedAt = m.CreatedAt
	e.UpdatedAt = m.UpdatedAt
	return e
}

// ExecutionModelFromDomain creates a persistence model from a domain Execution
func ExecutionModelFromDomain(e *workflow.Execution) *ExecutionModel {
	m := &ExecutionModel{
		WorkflowID:     e.WorkflowID,
		TenantID:       e.TenantID,
		TeamID:         e.TeamID,
		TriggerType:    e.TriggerType,
		ScheduledFor:   e.ScheduledFor,
		Status:         e.Status,
		DateRangeSince: e.DateRangeSince,
		DateRangeUntil: e.DateRangeUntil,
		TotalDays:      e.TotalDays,
		DaysProcessed:  e.DaysProcessed,
		TotalUnits:     e.TotalUnits,
		ProcessedUnits: e.ProcessedUnits,
		AdsFetched:     e.AdsFetched,
		PosFetched:     e.PosFetched,
		Errors:         EncodeExecutionErrors(e.Errors),
		QueueJobID:     e.QueueJobID,
		EnqueuedAt:     e.EnqueuedAt,
		StartedAt:      e.StartedAt,
		CompletedAt:    e.CompletedAt,
		DurationMs:     e.DurationMs,
		UpdatedAt:      e.UpdatedAt,
	}
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	return m
}

// EncodeExecutionErrors serializes an error list, never producing NULL
func EncodeExecutionErrors(errs []workflow.ExecutionError) datatypes.JSON {
	if len(errs) == 0 {
		return datatypes.JSON("[]")
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return b
}

// DecodeExecutionErrors parses a stored error list
func DecodeExecutionErrors(raw datatypes.JSON) []workflow.ExecutionError {
	errs := make([]workflow.ExecutionError, 0)
	if len(raw) == 0 {
		return errs
	}
	if err := json.Unmarshal(raw, &errs); err != nil {
		workflowModelLogger.Warn("failed to parse errors JSON", zap.Error(err))
		return make([]workflow.ExecutionError, 0)
	}
	return errs
}
