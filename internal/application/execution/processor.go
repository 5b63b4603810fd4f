// Package execution runs workflow executions: it claims an execution, walks its
// date range fetching every enabled source entity, reconciles and aggregates each
// date, and records progress until the run completes, fails or is cancelled.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/logger"
	"github.com/adrecon/backend/internal/infrastructure/telemetry"
)

// finalWriteTimeout bounds the terminal writes, which run even when the job context is done
const finalWriteTimeout = 10 * time.Second

// ErrExecutionBusy is returned for a delivery whose execution is still marked
// RUNNING; the broker retries it once the stale sweep has settled the row.
var ErrExecutionBusy = errors.New("execution: execution is still running")

// RecordPersister stores fetched records
type RecordPersister interface {
	PersistAdInsights(ctx context.Context, tenantID uuid.UUID, executionID *uuid.UUID, account *integration.AdAccount, records []integration.RawAdInsight) (int, error)
	PersistOrders(ctx context.Context, tenantID uuid.UUID, executionID *uuid.UUID, shop *integration.Shop, records []integration.RawOrder) (int, error)
}

// DayReconciler reconciles and aggregates one tenant day
type DayReconciler interface {
	ReconcileDay(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) (int, error)
	AggregateDay(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) (int, error)
}

// Dispatcher hands the tenant's next pending execution to the queue
type Dispatcher interface {
	DispatchNext(ctx context.Context, tenantID uuid.UUID) error
}

// Metrics receives execution measurements
type Metrics interface {
	ExecutionFinished(ctx context.Context, status string, d time.Duration)
	UnitCompleted(ctx context.Context, source string)
	RecordsFetched(ctx context.Context, source string, n int)
	ErrorRecorded(ctx context.Context, kind string)
	Dispatched(ctx context.Context, trigger string)
	StaleReclassified(ctx context.Context, status string)
}

type nopMetrics struct{}

func (nopMetrics) ExecutionFinished(context.Context, string, time.Duration) {}
func (nopMetrics) UnitCompleted(context.Context, string)                    {}
func (nopMetrics) RecordsFetched(context.Context, string, int)              {}
func (nopMetrics) ErrorRecorded(context.Context, string)                    {}
func (nopMetrics) Dispatched(context.Context, string)                       {}
func (nopMetrics) StaleReclassified(context.Context, string)                {}

// ProcessorConfig holds the processor tunables
type ProcessorConfig struct {
	// CancelPollInterval bounds status reads at checkpoints; 0 reads every time
	CancelPollInterval time.Duration
	// SourceDelays is the default pause between two entity fetches per source.
	// A workflow's own delay for the source takes precedence.
	SourceDelays map[workflow.SourceType]time.Duration
}

// LogEvent is the payload of an execution.log event
type LogEvent struct {
	Level    string `json:"level"`
	Date     string `json:"date,omitempty"`
	Source   string `json:"source,omitempty"`
	EntityID string `json:"entityId,omitempty"`
	Message  string `json:"message"`
}

// FinishedEvent is the payload of the terminal events
type FinishedEvent struct {
	Status         workflow.ExecutionStatus  `json:"status"`
	TotalUnits     int                       `json:"totalUnits"`
	ProcessedUnits int                       `json:"processedUnits"`
	DaysProcessed  int                       `json:"daysProcessed"`
	TotalDays      int                       `json:"totalDays"`
	DurationMs     int64                     `json:"durationMs"`
	Errors         []workflow.ExecutionError `json:"errors"`
}

// Deps groups the collaborators of a Processor
type Deps struct {
	Executions workflow.ExecutionRepository
	Workflows  workflow.WorkflowRepository
	Entities   integration.EntityRepository
	Sources    integration.SourceRegistry
	Persister  RecordPersister
	Reconciler DayReconciler
	Progress   workflow.ProgressStore
	Events     workflow.EventSink
	Dispatcher Dispatcher
	Metrics    Metrics
}

// Processor executes one workflow execution per job
type Processor struct {
	deps   Deps
	cfg    ProcessorConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewProcessor creates a Processor. A nil Metrics disables measurements.
func NewProcessor(deps Deps, cfg ProcessorConfig, logger *zap.Logger) *Processor {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &Processor{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("execution"),
		now:    time.Now,
	}
}

// SetDispatcher sets the dispatcher consulted after a terminal transition.
// The scheduler needs a broker that needs the processor, so it is wired late.
func (p *Processor) SetDispatcher(d Dispatcher) {
	p.deps.Dispatcher = d
}

// HandleJob implements workflow.JobHandler
func (p *Processor) HandleJob(ctx context.Context, job workflow.Job) error {
	ctx = logger.WithTenantID(ctx, job.TenantID.String())
	ctx = logger.WithExecutionID(ctx, job.ExecutionID.String())
	return p.Process(ctx, job.ExecutionID)
}

// run is the mutable state of one execution while it is processed
type run struct {
	exec        *workflow.Execution
	wf          *workflow.Workflow
	sources     []workflow.SourceType
	accounts    []integration.AdAccount
	shops       []integration.Shop
	unitsPerDay int
	startedAt   time.Time

	progress workflow.Progress
	errs     ErrorLog
	snap     *workflow.ProgressSnapshot
	cancel   *CancellationChecker
	limiters map[workflow.SourceType]*rate.Limiter
	log      *zap.Logger
}

func (r *run) currentProgress() workflow.Progress {
	return workflow.Progress{
		DaysProcessed:  r.progress.DaysProcessed,
		ProcessedUnits: r.progress.ProcessedUnits,
		Errors:         r.errs.Entries(),
	}
}

func (r *run) entityCount() int {
	n := 0
	for _, s := range r.sources {
		switch s {
		case workflow.SourceAds:
			n += len(r.accounts)
		case workflow.SourcePOS:
			n += len(r.shops)
		}
	}
	return n
}

// Process runs the execution identified by executionID. It returns nil when the
// job needs no redelivery, including runs that ended FAILED or CANCELLED.
func (p *Processor) Process(ctx context.Context, executionID uuid.UUID) error {
	log := logger.With(ctx, p.logger).With(zap.String("execution_id", executionID.String()))

	exec, err := p.deps.Executions.FindByID(ctx, executionID)
	if errors.Is(err, workflow.ErrExecutionNotFound) {
		log.Warn("execution not found, dropping job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load execution: %w", err)
	}
	switch {
	case exec.Status == workflow.ExecutionStatusRunning:
		return ErrExecutionBusy
	case exec.Status != workflow.ExecutionStatusPending:
		log.Info("execution already finished, dropping job", zap.String("status", exec.Status.String()))
		return nil
	}

	r, err := p.prepare(ctx, exec, log)
	if err != nil {
		return p.failBeforeStart(ctx, exec, err, log)
	}

	r.startedAt = p.now()
	total := len(exec.DateRange().Days()) * r.unitsPerDay
	if err := p.deps.Executions.Claim(ctx, exec.ID, total, r.startedAt); err != nil {
		if errors.Is(err, workflow.ErrExecutionAlreadyClaimed) {
			return p.yield(ctx, exec, log)
		}
		return fmt.Errorf("claim execution: %w", err)
	}
	exec.Status = workflow.ExecutionStatusRunning
	exec.TotalUnits = total
	exec.StartedAt = &r.startedAt
	exec.AdsFetched, exec.PosFetched = 0, 0

	r.snap = &workflow.ProgressSnapshot{
		ExecutionID: exec.ID,
		Status:      workflow.ExecutionStatusRunning,
		TotalUnits:  total,
		TotalDays:   exec.TotalDays,
		Sources:     map[workflow.SourceType]*workflow.SourceProgress{},
		UpdatedAt:   r.startedAt,
	}
	log.Info("execution started",
		zap.Int("total_days", exec.TotalDays),
		zap.Int("units_per_day", r.unitsPerDay),
		zap.Int("total_units", total))
	p.publishSnapshot(ctx, r)
	p.deps.Events.Emit(ctx, exec.ID, workflow.EventStarted, r.snap)

	ctx, span := telemetry.StartSpan(ctx, "execution.process",
		telemetry.String("execution.id", exec.ID.String()),
		telemetry.String("tenant.id", exec.TenantID.String()),
		telemetry.Int("execution.total_units", total))
	defer span.End()

	cancelled, runErr := p.runSafely(ctx, r)
	if runErr != nil {
		telemetry.RecordError(span, runErr)
	}
	return p.finish(ctx, r, cancelled, runErr)
}

// prepare loads the workflow and the entities of its enabled sources
func (p *Processor) prepare(ctx context.Context, exec *workflow.Execution, log *zap.Logger) (*run, error) {
	wf, err := p.deps.Workflows.FindByIDForTenant(ctx, exec.TenantID, exec.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	r := &run{
		exec:     exec,
		wf:       wf,
		sources:  wf.Sources.EnabledSources(),
		errs:     NewErrorLog(nil),
		cancel:   NewCancellationChecker(p.deps.Executions, exec.ID, p.cfg.CancelPollInterval),
		limiters: make(map[workflow.SourceType]*rate.Limiter),
		log:      log,
	}
	for _, source := range r.sources {
		switch source {
		case workflow.SourceAds:
			r.accounts, err = p.deps.Entities.ListAdAccounts(ctx, exec.TenantID, exec.TeamID)
		case workflow.SourcePOS:
			r.shops, err = p.deps.Entities.ListShops(ctx, exec.TenantID, exec.TeamID)
		}
		if err != nil {
			return nil, fmt.Errorf("list %s entities: %w", source, err)
		}
		r.limiters[source] = newLimiter(wf.Sources[source].Delay(p.cfg.SourceDelays[source]))
	}
	r.unitsPerDay = max(1, r.entityCount())
	return r, nil
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// yield handles a refused claim: the tenant is busy, so the execution goes back
// to waiting and is dispatched again when the running one finishes.
func (p *Processor) yield(ctx context.Context, exec *workflow.Execution, log *zap.Logger) error {
	status, err := p.deps.Executions.GetStatus(ctx, exec.ID)
	if err != nil {
		return fmt.Errorf("read status after refused claim: %w", err)
	}
	if status != workflow.ExecutionStatusPending {
		return nil
	}
	if err := p.deps.Executions.ResetDispatch(ctx, exec.ID); err != nil {
		return fmt.Errorf("reset dispatch: %w", err)
	}
	log.Info("tenant has a running execution, execution left pending")
	return nil
}

// failBeforeStart marks an execution FAILED when it could not even be prepared
func (p *Processor) failBeforeStart(ctx context.Context, exec *workflow.Execution, cause error, log *zap.Logger) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()

	now := p.now()
	sysErr := &workflow.SystemError{Err: cause}
	errs := NewErrorLog(nil).Add("", workflow.ErrorSourceSystem, "", sysErr, now)
	ok, err := p.deps.Executions.Finish(wctx, exec.ID, []workflow.ExecutionStatus{workflow.ExecutionStatusPending}, workflow.Finish{
		Status:      workflow.ExecutionStatusFailed,
		Progress:    workflow.Progress{Errors: errs.Entries()},
		CompletedAt: now,
	})
	if err != nil {
		return fmt.Errorf("fail execution: %w", err)
	}
	if ok {
		log.Error("execution failed before start", zap.Error(cause))
		p.deps.Metrics.ErrorRecorded(wctx, workflow.ErrorSourceSystem)
		p.deps.Metrics.ExecutionFinished(wctx, workflow.ExecutionStatusFailed.String(), 0)
		p.deps.Events.Emit(wctx, exec.ID, workflow.EventFailed, FinishedEvent{
			Status:    workflow.ExecutionStatusFailed,
			TotalDays: exec.TotalDays,
			Errors:    errs.Entries(),
		})
	}
	p.dispatchNext(wctx, exec.TenantID, log)
	return nil
}

// runSafely walks the date range, turning a panic into a SystemError
func (p *Processor) runSafely(ctx context.Context, r *run) (cancelled bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("execution panicked", zap.Any("panic", rec), zap.Stack("stack"))
			cancelled = false
			err = &workflow.SystemError{Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return p.runDates(ctx, r)
}

func (p *Processor) runDates(ctx context.Context, r *run) (bool, error) {
	loc := r.wf.Location()
	for _, day := range r.exec.DateRange().Days() {
		if cancelled := p.checkpoint(ctx, r); cancelled {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		date := day.Format(workflow.DateLayout)
		r.snap.CurrentDate = date
		r.snap.Sources = map[workflow.SourceType]*workflow.SourceProgress{}
		r.snap.Sources[workflow.SourceAds] = &workflow.SourceProgress{Total: len(r.accounts)}
		r.snap.Sources[workflow.SourcePOS] = &workflow.SourceProgress{Total: len(r.shops)}
		for _, s := range workflow.SourceOrder {
			if !r.wf.Sources.IsEnabled(s) {
				delete(r.snap.Sources, s)
			}
		}

		if day.After(workflow.DateOf(p.now(), loc)) {
			telemetry.AddEvent(ctx, "date.skipped", "date", date, "reason", "future")
			p.recordError(ctx, r, date, workflow.ErrorSourceValidation, "",
				workflow.NewValidationError("date", date+" is in the future"))
			r.progress.ProcessedUnits += r.unitsPerDay
			r.progress.DaysProcessed++
			if err := p.saveProgress(ctx, r); err != nil {
				return false, err
			}
			continue
		}

		for _, source := range r.sources {
			cancelled, err := p.runSource(ctx, r, source, day)
			if err != nil || cancelled {
				return cancelled, err
			}
			if cancelled := p.checkpoint(ctx, r); cancelled {
				return true, nil
			}
		}

		if err := p.reconcileDate(ctx, r, day); err != nil {
			return false, err
		}
		if r.entityCount() == 0 {
			r.progress.ProcessedUnits++
		}
		r.progress.DaysProcessed++
		if err := p.saveProgress(ctx, r); err != nil {
			return false, err
		}
	}
	return false, nil
}

// runSource fetches every entity of source for day. An entity failure is recorded
// and the loop moves on; only interruption or failing to save progress stops it.
func (p *Processor) runSource(ctx context.Context, r *run, source workflow.SourceType, day time.Time) (bool, error) {
	date := day.Format(workflow.DateLayout)
	limiter := r.limiters[source]

	var count int
	switch source {
	case workflow.SourceAds:
		count = len(r.accounts)
	case workflow.SourcePOS:
		count = len(r.shops)
	}

	for i := 0; i < count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return false, err
		}

		var (
			entityID string
			n        int
			err      error
		)
		switch source {
		case workflow.SourceAds:
			account := &r.accounts[i]
			entityID = account.ID.String()
			n, err = p.fetchAdAccount(ctx, r, account, day)
		case workflow.SourcePOS:
			shop := &r.shops[i]
			entityID = shop.ID.String()
			n, err = p.fetchShop(ctx, r, shop, day)
		}
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			p.recordError(ctx, r, date, source.String(), entityID, err)
		} else {
			p.deps.Metrics.RecordsFetched(ctx, source.String(), n)
		}

		r.progress.ProcessedUnits++
		if sp := r.snap.Sources[source]; sp != nil {
			sp.Processed++
		}
		p.deps.Metrics.UnitCompleted(ctx, source.String())
		if err := p.saveProgress(ctx, r); err != nil {
			return false, err
		}
		if cancelled := p.checkpoint(ctx, r); cancelled {
			return true, nil
		}
	}
	return false, nil
}

func (p *Processor) fetchAdAccount(ctx context.Context, r *run, account *integration.AdAccount, day time.Time) (int, error) {
	client, err := p.deps.Sources.AdInsightClient(account.Provider)
	if err != nil {
		return 0, err
	}
	records, err := client.FetchInsights(ctx, account, day)
	if err != nil {
		return 0, err
	}
	return p.deps.Persister.PersistAdInsights(ctx, r.exec.TenantID, &r.exec.ID, account, records)
}

func (p *Processor) fetchShop(ctx context.Context, r *run, shop *integration.Shop, day time.Time) (int, error) {
	client, err := p.deps.Sources.OrderClient(shop.Provider)
	if err != nil {
		return 0, err
	}
	orders, err := client.FetchOrders(ctx, shop, day)
	if err != nil {
		return 0, err
	}
	return p.deps.Persister.PersistOrders(ctx, r.exec.TenantID, &r.exec.ID, shop, orders)
}

// reconcileDate runs the reconcile and aggregate steps of one date. Step failures
// are recorded; only interruption is returned.
func (p *Processor) reconcileDate(ctx context.Context, r *run, day time.Time) error {
	date := day.Format(workflow.DateLayout)
	if _, err := p.deps.Reconciler.ReconcileDay(ctx, r.exec.TenantID, day, r.exec.TeamID); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.recordError(ctx, r, date, workflow.ErrorSourceReconcile, "", err)
		p.deps.Events.Emit(ctx, r.exec.ID, workflow.EventLog, LogEvent{
			Level:   "warn",
			Date:    date,
			Message: "aggregation skipped: reconcile failed",
		})
		return nil
	}
	if _, err := p.deps.Reconciler.AggregateDay(ctx, r.exec.TenantID, day, r.exec.TeamID); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.recordError(ctx, r, date, workflow.ErrorSourceAggregate, "", err)
	}
	return nil
}

func (p *Processor) recordError(ctx context.Context, r *run, date, source, entityID string, err error) {
	r.errs = r.errs.Add(date, source, entityID, err, p.now())
	p.deps.Metrics.ErrorRecorded(ctx, source)
	r.log.Warn("unit failed",
		zap.String("date", date),
		zap.String("source", source),
		zap.String("entity_id", entityID),
		zap.Error(err))
	p.deps.Events.Emit(ctx, r.exec.ID, workflow.EventLog, LogEvent{
		Level:    "error",
		Date:     date,
		Source:   source,
		EntityID: entityID,
		Message:  err.Error(),
	})
}

// saveProgress persists the counters, refreshes the cached snapshot and emits a
// progress event. Only the authoritative write can fail the run.
func (p *Processor) saveProgress(ctx context.Context, r *run) error {
	if err := p.deps.Executions.SaveProgress(ctx, r.exec.ID, r.currentProgress()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &workflow.SystemError{Err: fmt.Errorf("save progress: %w", err)}
	}
	r.snap.ProcessedUnits = r.progress.ProcessedUnits
	r.snap.DaysProcessed = r.progress.DaysProcessed
	p.publishSnapshot(ctx, r)
	p.deps.Events.Emit(ctx, r.exec.ID, workflow.EventProgress, r.snap)
	return nil
}

func (p *Processor) publishSnapshot(ctx context.Context, r *run) {
	r.snap.UpdatedAt = p.now().UTC()
	if err := p.deps.Progress.SetProgress(ctx, r.snap); err != nil {
		r.log.Warn("failed to cache progress", zap.Error(err))
	}
}

// checkpoint reports whether a cancel was observed. A failed status read is
// logged and the run continues; the next checkpoint reads again.
func (p *Processor) checkpoint(ctx context.Context, r *run) bool {
	cancelled, err := r.cancel.Check(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warn("failed to read execution status", zap.Error(err))
		}
		return false
	}
	return cancelled
}

// finish writes the terminal state of a started run
func (p *Processor) finish(ctx context.Context, r *run, cancelled bool, runErr error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()

	var sysErr *workflow.SystemError
	if runErr != nil && !errors.As(runErr, &sysErr) && ctx.Err() != nil {
		return p.release(wctx, r, runErr)
	}

	completedAt := p.now()
	duration := completedAt.Sub(r.startedAt)
	status := workflow.ExecutionStatusCompleted
	switch {
	case runErr != nil:
		if sysErr == nil {
			sysErr = &workflow.SystemError{Err: runErr}
		}
		r.errs = r.errs.Add("", workflow.ErrorSourceSystem, "", sysErr, completedAt)
		p.deps.Metrics.ErrorRecorded(wctx, workflow.ErrorSourceSystem)
		status = workflow.ExecutionStatusFailed
	case cancelled:
		status = workflow.ExecutionStatusCancelled
	}

	final := workflow.Finish{
		Status:      status,
		Progress:    r.currentProgress(),
		CompletedAt: completedAt,
		DurationMs:  duration.Milliseconds(),
	}
	from := []workflow.ExecutionStatus{workflow.ExecutionStatusRunning}
	if status == workflow.ExecutionStatusCancelled {
		from = []workflow.ExecutionStatus{workflow.ExecutionStatusCancelled}
	}
	ok, err := p.deps.Executions.Finish(wctx, r.exec.ID, from, final)
	if err != nil {
		r.log.Error("failed to write terminal state", zap.String("status", status.String()), zap.Error(err))
		return fmt.Errorf("finish execution: %w", err)
	}
	if !ok && status != workflow.ExecutionStatusCancelled {
		// cancelled after the last checkpoint
		current, err := p.deps.Executions.GetStatus(wctx, r.exec.ID)
		if err != nil {
			return fmt.Errorf("read status after guarded finish: %w", err)
		}
		if current != workflow.ExecutionStatusCancelled {
			r.log.Warn("execution left RUNNING before finish", zap.String("status", current.String()))
			return nil
		}
		status = workflow.ExecutionStatusCancelled
		final.Status = status
		if _, err := p.deps.Executions.Finish(wctx, r.exec.ID, []workflow.ExecutionStatus{workflow.ExecutionStatusCancelled}, final); err != nil {
			return fmt.Errorf("finish cancelled execution: %w", err)
		}
	}

	fields := []zap.Field{
		zap.String("status", status.String()),
		zap.Int("processed_units", final.Progress.ProcessedUnits),
		zap.Int("total_units", r.exec.TotalUnits),
		zap.Int("errors", r.errs.Len()),
		zap.Duration("duration", duration),
	}
	event := workflow.EventCompleted
	switch status {
	case workflow.ExecutionStatusFailed:
		event = workflow.EventFailed
		r.log.Error("execution failed", append(fields, zap.Error(runErr))...)
	case workflow.ExecutionStatusCancelled:
		event = workflow.EventCancelled
		r.log.Info("execution cancelled", fields...)
	default:
		r.log.Info("execution completed", fields...)
	}

	r.snap.Status = status
	r.snap.ProcessedUnits = final.Progress.ProcessedUnits
	r.snap.DaysProcessed = final.Progress.DaysProcessed
	p.publishSnapshot(wctx, r)
	p.deps.Metrics.ExecutionFinished(wctx, status.String(), duration)
	p.deps.Events.Emit(wctx, r.exec.ID, event, FinishedEvent{
		Status:         status,
		TotalUnits:     r.exec.TotalUnits,
		ProcessedUnits: final.Progress.ProcessedUnits,
		DaysProcessed:  final.Progress.DaysProcessed,
		TotalDays:      r.exec.TotalDays,
		DurationMs:     final.DurationMs,
		Errors:         final.Progress.Errors,
	})

	p.dispatchNext(wctx, r.exec.TenantID, r.log)
	return nil
}

// release hands an interrupted run back to the queue: the execution returns to
// PENDING and the job error makes the broker deliver it again.
func (p *Processor) release(ctx context.Context, r *run, cause error) error {
	ok, err := p.deps.Executions.TransitionStatus(ctx, r.exec.ID,
		[]workflow.ExecutionStatus{workflow.ExecutionStatusRunning}, workflow.ExecutionStatusPending, nil)
	if err != nil {
		r.log.Error("failed to release interrupted execution", zap.Error(err))
	} else if ok {
		r.log.Warn("execution interrupted, returned to pending",
			zap.Int("processed_units", r.progress.ProcessedUnits), zap.Error(cause))
	}
	return cause
}

func (p *Processor) dispatchNext(ctx context.Context, tenantID uuid.UUID, log *zap.Logger) {
	if p.deps.Dispatcher == nil {
		return
	}
	if err := p.deps.Dispatcher.DispatchNext(ctx, tenantID); err != nil {
		log.Error("failed to dispatch next execution", zap.Error(err))
	}
}

var _ workflow.JobHandler = (*Processor)(nil)
