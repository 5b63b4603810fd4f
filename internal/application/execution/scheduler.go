package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/logger"
)

// Scheduler creates executions and hands them to the queue, keeping at most one
// dispatched execution per tenant. Later executions wait as undispatched PENDING
// rows until DispatchNext picks them up.
type Scheduler struct {
	workflows  workflow.WorkflowRepository
	executions workflow.ExecutionRepository
	broker     workflow.Broker
	progress   workflow.ProgressStore
	events     workflow.EventSink
	metrics    Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewScheduler creates a Scheduler. A nil Metrics disables measurements.
func NewScheduler(
	workflows workflow.WorkflowRepository,
	executions workflow.ExecutionRepository,
	broker workflow.Broker,
	progress workflow.ProgressStore,
	events workflow.EventSink,
	metrics Metrics,
	logger *zap.Logger,
) *Scheduler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Scheduler{
		workflows:  workflows,
		executions: executions,
		broker:     broker,
		progress:   progress,
		events:     events,
		metrics:    metrics,
		logger:     logger.Named("scheduler"),
		now:        time.Now,
	}
}

// TriggerManual creates a MANUAL execution of the workflow over its date range
// as resolved now, and dispatches it unless the tenant is busy.
func (s *Scheduler) TriggerManual(ctx context.Context, tenantID, workflowID uuid.UUID) (*workflow.Execution, error) {
	wf, err := s.workflows.FindByIDForTenant(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}
	if !wf.Enabled {
		return nil, workflow.ErrWorkflowDisabled
	}
	if len(wf.Sources.EnabledSources()) == 0 {
		return nil, workflow.ErrWorkflowNoEnabledSources
	}

	r, err := wf.DateRange.Resolve(s.now(), wf.Location())
	if err != nil {
		return nil, err
	}
	exec := workflow.NewExecution(wf, workflow.TriggerManual, r)
	if err := s.executions.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	s.log(ctx).Info("manual execution created",
		zap.String("execution_id", exec.ID.String()),
		zap.String("workflow_id", wf.ID.String()),
		zap.String("since", exec.DateRangeSince.Format(workflow.DateLayout)),
		zap.String("until", exec.DateRangeUntil.Format(workflow.DateLayout)))

	if err := s.dispatch(ctx, exec); err != nil {
		return exec, err
	}
	return exec, nil
}

// CreateScheduled creates the SCHEDULED execution of wf for one cron slot. The
// range is resolved at the slot time in the workflow's zone. A slot that already
// has an execution returns workflow.ErrExecutionDuplicate.
func (s *Scheduler) CreateScheduled(ctx context.Context, wf *workflow.Workflow, scheduledFor time.Time) (*workflow.Execution, error) {
	r, err := wf.DateRange.Resolve(scheduledFor, wf.Location())
	if err != nil {
		return nil, err
	}
	slot := scheduledFor.UTC()
	exec := workflow.NewExecution(wf, workflow.TriggerScheduled, r)
	exec.ScheduledFor = &slot
	if err := s.executions.Create(ctx, exec); err != nil {
		return nil, err
	}
	s.log(ctx).Info("scheduled execution created",
		zap.String("execution_id", exec.ID.String()),
		zap.String("workflow_id", wf.ID.String()),
		zap.Time("scheduled_for", slot))

	if err := s.dispatch(ctx, exec); err != nil {
		return exec, err
	}
	return exec, nil
}

// Cancel moves a PENDING or RUNNING execution to CANCELLED. A running execution
// stops at its next checkpoint; a pending one never starts.
func (s *Scheduler) Cancel(ctx context.Context, tenantID, executionID uuid.UUID) (*workflow.Execution, error) {
	exec, err := s.executions.FindByIDForTenant(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}
	if !exec.Status.IsCancellable() {
		return nil, workflow.ErrExecutionNotCancellable
	}

	now := s.now()
	ok, err := s.executions.TransitionStatus(ctx, exec.ID, workflow.ActiveStatuses, workflow.ExecutionStatusCancelled, &now)
	if err != nil {
		return nil, fmt.Errorf("cancel execution: %w", err)
	}
	if !ok {
		return nil, workflow.ErrExecutionNotCancellable
	}
	log := s.log(ctx).With(zap.String("execution_id", exec.ID.String()))
	log.Info("execution cancel requested", zap.String("from_status", exec.Status.String()))

	if exec.Status == workflow.ExecutionStatusPending {
		exec.Status = workflow.ExecutionStatusCancelled
		exec.CompletedAt = &now
		s.events.Emit(ctx, exec.ID, workflow.EventCancelled, FinishedEvent{
			Status:    workflow.ExecutionStatusCancelled,
			TotalDays: exec.TotalDays,
			Errors:    exec.Errors,
		})
		s.metrics.ExecutionFinished(ctx, workflow.ExecutionStatusCancelled.String(), 0)
		if err := s.DispatchNext(ctx, tenantID); err != nil {
			log.Error("failed to dispatch next execution", zap.Error(err))
		}
		return exec, nil
	}
	return s.executions.FindByIDForTenant(ctx, tenantID, executionID)
}

// Execution returns one execution of the tenant
func (s *Scheduler) Execution(ctx context.Context, tenantID, executionID uuid.UUID) (*workflow.Execution, error) {
	return s.executions.FindByIDForTenant(ctx, tenantID, executionID)
}

// Progress returns the cached progress snapshot of an execution, rebuilt from the
// execution row when the cache has no entry
func (s *Scheduler) Progress(ctx context.Context, tenantID, executionID uuid.UUID) (*workflow.ProgressSnapshot, error) {
	exec, err := s.executions.FindByIDForTenant(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}
	snap, err := s.progress.GetProgress(ctx, executionID)
	if err != nil {
		s.log(ctx).Warn("failed to read cached progress", zap.Error(err))
	}
	if snap == nil {
		return workflow.SnapshotFromExecution(exec), nil
	}
	// the row wins on status; the cache can lag behind a cancel
	snap.Status = exec.Status
	return snap, nil
}

// DispatchNext dispatches the tenant's oldest undispatched PENDING execution if
// the tenant has nothing active
func (s *Scheduler) DispatchNext(ctx context.Context, tenantID uuid.UUID) error {
	busy, err := s.executions.HasActive(ctx, tenantID, uuid.Nil)
	if err != nil {
		return fmt.Errorf("check active executions: %w", err)
	}
	if busy {
		return nil
	}
	next, err := s.executions.NextPending(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("find next pending execution: %w", err)
	}
	if next == nil {
		return nil
	}
	return s.enqueue(ctx, next)
}

// dispatch enqueues exec unless another execution of the tenant is active
func (s *Scheduler) dispatch(ctx context.Context, exec *workflow.Execution) error {
	busy, err := s.executions.HasActive(ctx, exec.TenantID, exec.ID)
	if err != nil {
		return fmt.Errorf("check active executions: %w", err)
	}
	if busy {
		s.log(ctx).Info("tenant busy, execution queued behind the active one",
			zap.String("execution_id", exec.ID.String()))
		return nil
	}
	return s.enqueue(ctx, exec)
}

func (s *Scheduler) enqueue(ctx context.Context, exec *workflow.Execution) error {
	job := workflow.Job{ExecutionID: exec.ID, TenantID: exec.TenantID, WorkflowID: exec.WorkflowID}
	jobID, err := s.broker.Enqueue(ctx, job, exec.ID.String())
	if err != nil {
		return fmt.Errorf("enqueue execution %s: %w", exec.ID, err)
	}
	at := s.now()
	if err := s.executions.MarkDispatched(ctx, exec.ID, jobID, at); err != nil {
		return fmt.Errorf("record dispatch of %s: %w", exec.ID, err)
	}
	exec.QueueJobID = jobID
	exec.EnqueuedAt = &at
	s.metrics.Dispatched(ctx, string(exec.TriggerType))
	s.log(ctx).Info("execution dispatched",
		zap.String("execution_id", exec.ID.String()),
		zap.String("job_id", jobID))
	return nil
}

func (s *Scheduler) log(ctx context.Context) *zap.Logger {
	return logger.With(ctx, s.logger)
}

var _ Dispatcher = (*Scheduler)(nil)
