package dto

import (
	"time"

	"github.com/adrecon/backend/internal/domain/workflow"
)

// ExecutionErrorResponse is one recorded failure of an execution
type ExecutionErrorResponse struct {
	Date     string    `json:"date,omitempty"`
	Source   string    `json:"source"`
	EntityID string    `json:"entity_id,omitempty"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// ExecutionResponse represents a workflow execution in API responses
type ExecutionResponse struct {
	ID              string                   `json:"id"`
	WorkflowID      string                   `json:"workflow_id"`
	TenantID        string                   `json:"tenant_id"`
	TriggerType     string                   `json:"trigger_type"`
	Status          string                   `json:"status"`
	ScheduledFor    *time.Time               `json:"scheduled_for,omitempty"`
	DateRangeSince  string                   `json:"date_range_since"`
	DateRangeUntil  string                   `json:"date_range_until"`
	TotalDays       int                      `json:"total_days"`
	DaysProcessed   int                      `json:"days_processed"`
	TotalUnits      int                      `json:"total_units"`
	ProcessedUnits  int                      `json:"processed_units"`
	AdsFetched      int                      `json:"ads_fetched"`
	PosFetched      int                      `json:"pos_fetched"`
	Errors          []ExecutionErrorResponse `json:"errors"`
	CompletedWithErrors bool                 `json:"completed_with_errors"`
	QueueJobID      string                   `json:"queue_job_id,omitempty"`
	EnqueuedAt      *time.Time               `json:"enqueued_at,omitempty"`
	StartedAt       *time.Time               `json:"started_at,omitempty"`
	CompletedAt     *time.Time               `json:"completed_at,omitempty"`
	DurationMs      int64                    `json:"duration_ms"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// ToExecutionResponse converts a domain execution
func ToExecutionResponse(e *workflow.Execution) ExecutionResponse {
	errs := make([]ExecutionErrorResponse, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = ExecutionErrorResponse{
			Date:     err.Date,
			Source:   err.Source,
			EntityID: err.EntityID,
			Message:  err.Message,
			At:       err.At,
		}
	}
	return ExecutionResponse{
		ID:                  e.ID.String(),
		WorkflowID:          e.WorkflowID.String(),
		TenantID:            e.TenantID.String(),
		TriggerType:         string(e.TriggerType),
		Status:              e.Status.String(),
		ScheduledFor:        e.ScheduledFor,
		DateRangeSince:      e.DateRangeSince.Format(workflow.DateLayout),
		DateRangeUntil:      e.DateRangeUntil.Format(workflow.DateLayout),
		TotalDays:           e.TotalDays,
		DaysProcessed:       e.DaysProcessed,
		TotalUnits:          e.TotalUnits,
		ProcessedUnits:      e.ProcessedUnits,
		AdsFetched:          e.AdsFetched,
		PosFetched:          e.PosFetched,
		Errors:              errs,
		CompletedWithErrors: e.Status == workflow.ExecutionStatusCompleted && e.HasErrors(),
		QueueJobID:          e.QueueJobID,
		EnqueuedAt:          e.EnqueuedAt,
		StartedAt:           e.StartedAt,
		CompletedAt:         e.CompletedAt,
		DurationMs:          e.DurationMs,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

// SourceProgressResponse counts the entities of one source on the current date
type SourceProgressResponse struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// ProgressResponse is the live progress of an execution
type ProgressResponse struct {
	ExecutionID    string                            `json:"execution_id"`
	Status         string                            `json:"status"`
	CurrentDate    string                            `json:"current_date,omitempty"`
	TotalUnits     int                               `json:"total_units"`
	ProcessedUnits int                               `json:"processed_units"`
	Percent        float64                           `json:"percent"`
	DaysProcessed  int                               `json:"days_processed"`
	TotalDays      int                               `json:"total_days"`
	Sources        map[string]SourceProgressResponse `json:"sources"`
	UpdatedAt      time.Time                         `json:"updated_at"`
}

// ToProgressResponse converts a progress snapshot
func ToProgressResponse(s *workflow.ProgressSnapshot) ProgressResponse {
	sources := make(map[string]SourceProgressResponse, len(s.Sources))
	for source, p := range s.Sources {
		if p == nil {
			continue
		}
		sources[string(source)] = SourceProgressResponse{Processed: p.Processed, Total: p.Total}
	}
	var percent float64
	if s.TotalUnits > 0 {
		percent = float64(s.ProcessedUnits) * 100 / float64(s.TotalUnits)
	}
	return ProgressResponse{
		ExecutionID:    s.ExecutionID.String(),
		Status:         s.Status.String(),
		CurrentDate:    s.CurrentDate,
		TotalUnits:     s.TotalUnits,
		ProcessedUnits: s.ProcessedUnits,
		Percent:        percent,
		DaysProcessed:  s.DaysProcessed,
		TotalDays:      s.TotalDays,
		Sources:        sources,
		UpdatedAt:      s.UpdatedAt,
	}
}
