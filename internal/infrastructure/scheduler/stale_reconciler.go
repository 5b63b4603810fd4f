package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/application/execution"
	"github.com/adrecon/backend/internal/domain/workflow"
)

// JobInspector reports the queue's view of a job
type JobInspector interface {
	JobState(ctx context.Context, jobID string) (workflow.JobState, error)
}

// Dispatcher hands a tenant's next pending execution to the queue
type Dispatcher interface {
	DispatchNext(ctx context.Context, tenantID uuid.UUID) error
}

// StaleMetrics records reclassifications
type StaleMetrics interface {
	StaleReclassified(ctx context.Context, status string)
}

// StaleReconcilerConfig holds configuration for the sweep
type StaleReconcilerConfig struct {
	Interval  time.Duration
	Threshold time.Duration
	BatchSize int
}

// DefaultStaleReconcilerConfig returns default sweep configuration
func DefaultStaleReconcilerConfig() StaleReconcilerConfig {
	return StaleReconcilerConfig{
		Interval:  time.Minute,
		Threshold: 10 * time.Minute,
		BatchSize: 100,
	}
}

// Reclassification outcomes reported by Sweep
const (
	OutcomeTouched    = "touched"
	OutcomeRequeued   = "requeued"
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeDispatched = "dispatched"
	OutcomeSkipped    = "skipped"
)

// StaleExecutionReconciler settles active executions whose row has not moved for
// longer than the threshold, using the queue's state of their job
type StaleExecutionReconciler struct {
	config     StaleReconcilerConfig
	executions workflow.ExecutionRepository
	jobs       JobInspector
	dispatcher Dispatcher
	events     workflow.EventSink
	metrics    StaleMetrics
	logger     *zap.Logger
	now        func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewStaleExecutionReconciler creates a new sweep. events and metrics may be nil.
func NewStaleExecutionReconciler(
	config StaleReconcilerConfig,
	executions workflow.ExecutionRepository,
	jobs JobInspector,
	dispatcher Dispatcher,
	events workflow.EventSink,
	metrics StaleMetrics,
	logger *zap.Logger,
) *StaleExecutionReconciler {
	defaults := DefaultStaleReconcilerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	return &StaleExecutionReconciler{
		config:     config,
		executions: executions,
		jobs:       jobs,
		dispatcher: dispatcher,
		events:     events,
		metrics:    metrics,
		logger:     logger.Named("stale_reconciler"),
		now:        time.Now,
	}
}

// Start starts the periodic sweep
func (r *StaleExecutionReconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = true
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.runLoop(ctx)

	r.logger.Info("Stale execution reconciler started",
		zap.Duration("interval", r.config.Interval),
		zap.Duration("threshold", r.config.Threshold),
	)
	return nil
}

// Stop stops the sweep and waits for a running pass to end
func (r *StaleExecutionReconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Stale execution reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *StaleExecutionReconciler) runLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Stale execution sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one pass and returns the outcome per execution
func (r *StaleExecutionReconciler) Sweep(ctx context.Context) (map[uuid.UUID]string, error) {
	stale, err := r.executions.ListStale(ctx, r.now().Add(-r.config.Threshold), r.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list stale executions: %w", err)
	}

	outcomes := make(map[uuid.UUID]string, len(stale))
	for i := range stale {
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		exec := &stale[i]
		outcome, err := r.reconcile(ctx, exec)
		if err != nil {
			r.logger.Error("Failed to reconcile stale execution",
				zap.String("execution_id", exec.ID.String()),
				zap.Error(err))
			outcome = OutcomeSkipped
		}
		outcomes[exec.ID] = outcome
		if outcome != OutcomeSkipped && r.metrics != nil {
			r.metrics.StaleReclassified(ctx, outcome)
		}
	}
	if len(stale) > 0 {
		r.logger.Info("Stale executions reconciled", zap.Int("count", len(stale)))
	}
	return outcomes, nil
}

func (r *StaleExecutionReconciler) reconcile(ctx context.Context, exec *workflow.Execution) (string, error) {
	if !exec.IsDispatched() {
		if exec.Status != workflow.ExecutionStatusPending {
			// claimed before the dispatch was recorded; judged by the next sweep
			return OutcomeSkipped, nil
		}
		if err := r.dispatcher.DispatchNext(ctx, exec.TenantID); err != nil {
			return "", err
		}
		return OutcomeDispatched, nil
	}

	state, err := r.jobs.JobState(ctx, exec.QueueJobID)
	if err != nil && !errors.Is(err, workflow.ErrJobNotFound) {
		return "", fmt.Errorf("job state %s: %w", exec.QueueJobID, err)
	}
	if errors.Is(err, workflow.ErrJobNotFound) {
		state = workflow.JobStateMissing
	}

	switch {
	case state == workflow.JobStateActive:
		// a worker holds the job; only refresh the row so it is not picked again
		_, err := r.executions.TransitionStatus(ctx, exec.ID, []workflow.ExecutionStatus{exec.Status}, exec.Status, nil)
		return OutcomeTouched, err
	case state.IsWaiting():
		// the job will be delivered again and must find the row claimable
		_, err := r.executions.TransitionStatus(ctx, exec.ID, workflow.ActiveStatuses, workflow.ExecutionStatusPending, nil)
		return OutcomeRequeued, err
	case state == workflow.JobStateCompleted:
		return OutcomeCompleted, r.settle(ctx, exec, workflow.ExecutionStatusCompleted, nil)
	default:
		cause := workflow.ExecutionError{
			Source:  workflow.ErrorSourceReconciler,
			Message: fmt.Sprintf("queue job %s is %s", exec.QueueJobID, state),
			At:      r.now().UTC(),
		}
		return OutcomeFailed, r.settle(ctx, exec, workflow.ExecutionStatusFailed, &cause)
	}
}

// settle writes a terminal status and hands the tenant to its next execution
func (r *StaleExecutionReconciler) settle(ctx context.Context, exec *workflow.Execution, status workflow.ExecutionStatus, cause *workflow.ExecutionError) error {
	errs := exec.Errors
	if cause != nil {
		errs = append(append([]workflow.ExecutionError(nil), errs...), *cause)
	}
	now := r.now().UTC()
	var durationMs int64
	if exec.StartedAt != nil {
		durationMs = now.Sub(*exec.StartedAt).Milliseconds()
	}

	ok, err := r.executions.Finish(ctx, exec.ID, workflow.ActiveStatuses, workflow.Finish{
		Status: status,
		Progress: workflow.Progress{
			DaysProcessed:  exec.DaysProcessed,
			ProcessedUnits: exec.ProcessedUnits,
			Errors:         errs,
		},
		CompletedAt: now,
		DurationMs:  durationMs,
	})
	if err != nil {
		return err
	}
	if !ok {
		// finished or cancelled meanwhile
		return nil
	}

	r.logger.Warn("Stale execution settled",
		zap.String("tenant_id", exec.TenantID.String()),
		zap.String("execution_id", exec.ID.String()),
		zap.String("status", status.String()),
		zap.String("job_id", exec.QueueJobID))

	if r.events != nil {
		event := workflow.EventCompleted
		if status == workflow.ExecutionStatusFailed {
			event = workflow.EventFailed
		}
		r.events.Emit(ctx, exec.ID, event, execution.FinishedEvent{
			Status:         status,
			TotalUnits:     exec.TotalUnits,
			ProcessedUnits: exec.ProcessedUnits,
			DaysProcessed:  exec.DaysProcessed,
			TotalDays:      exec.TotalDays,
			DurationMs:     durationMs,
			Errors:         errs,
		})
	}
	return r.dispatcher.DispatchNext(ctx, exec.TenantID)
}
