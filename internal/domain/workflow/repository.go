package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WorkflowRepository reads workflow configurations
type WorkflowRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Workflow, error)
	// ListScheduled returns enabled workflows of all tenants that carry a cron schedule
	ListScheduled(ctx context.Context) ([]Workflow, error)
	Save(ctx context.Context, wf *Workflow) error
}

// ExecutionRepository persists workflow executions.
// Every status write is guarded so that terminal states are never left.
type ExecutionRepository interface {
	// Create inserts a new execution; ErrExecutionDuplicate if the schedule slot is taken
	Create(ctx context.Context, exec *Execution) error
	FindByID(ctx context.Context, id uuid.UUID) (*Execution, error)
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Execution, error)
	GetStatus(ctx context.Context, id uuid.UUID) (ExecutionStatus, error)

	// Claim moves a PENDING execution to RUNNING unless the tenant already has a
	// RUNNING execution; ErrExecutionAlreadyClaimed otherwise
	Claim(ctx context.Context, id uuid.UUID, totalUnits int, startedAt time.Time) error
	SaveProgress(ctx context.Context, id uuid.UUID, p Progress) error
	// Finish writes a terminal state if the current status is one of from.
	// It returns false when the execution had already moved on.
	Finish(ctx context.Context, id uuid.UUID, from []ExecutionStatus, f Finish) (bool, error)
	// TransitionStatus moves the execution to status `to` if it is currently one of from.
	// completedAt is written when non-nil.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []ExecutionStatus, to ExecutionStatus, completedAt *time.Time) (bool, error)

	MarkDispatched(ctx context.Context, id uuid.UUID, jobID string, at time.Time) error
	// ResetDispatch clears the queue job of a PENDING execution so it can be dispatched again
	ResetDispatch(ctx context.Context, id uuid.UUID) error
	IncrementFetched(ctx context.Context, id uuid.UUID, source SourceType, n int) error

	// HasActive reports whether the tenant has a RUNNING or dispatched PENDING
	// execution other than exclude
	HasActive(ctx context.Context, tenantID uuid.UUID, exclude uuid.UUID) (bool, error)
	// NextPending returns the tenant's oldest PENDING execution that was not yet dispatched, or nil
	NextPending(ctx context.Context, tenantID uuid.UUID) (*Execution, error)
	// ListStale returns PENDING/RUNNING executions not updated since olderThan
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]Execution, error)
}
