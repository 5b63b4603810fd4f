package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/workflow"
)

// InlineConfig configures the in-process broker
type InlineConfig struct {
	Workers    int
	BufferSize int
	MaxRetry   int
	RetryDelay time.Duration
	// Retention is how long finished job states stay queryable
	Retention time.Duration
}

// DefaultInlineConfig returns the defaults used when the queue is not available
func DefaultInlineConfig() InlineConfig {
	return InlineConfig{
		Workers:    2,
		BufferSize: 100,
		MaxRetry:   3,
		RetryDelay: 30 * time.Second,
		Retention:  time.Hour,
	}
}

type inlineJob struct {
	id      string
	job     workflow.Job
	attempt int
}

type jobRecord struct {
	state      workflow.JobState
	finishedAt time.Time
}

// InlineBroker runs jobs on an in-process worker pool. It is the degraded mode
// used without Redis: jobs live in memory and are lost on restart, which the
// stale sweep then reports as missing.
type InlineBroker struct {
	config  InlineConfig
	handler workflow.JobHandler
	logger  *zap.Logger
	now     func() time.Time

	jobs      chan *inlineJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	records   map[string]*jobRecord
}

// NewInlineBroker creates an inline broker; Start launches its workers
func NewInlineBroker(config InlineConfig, handler workflow.JobHandler, logger *zap.Logger) *InlineBroker {
	defaults := DefaultInlineConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	return &InlineBroker{
		config:  config,
		handler: handler,
		logger:  logger.Named("inline_queue"),
		now:     time.Now,
		jobs:    make(chan *inlineJob, config.BufferSize),
		records: make(map[string]*jobRecord),
	}
}

// SetHandler sets the job handler; it must be called before Start
func (b *InlineBroker) SetHandler(handler workflow.JobHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// Start starts the worker pool
func (b *InlineBroker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isRunning {
		return nil
	}
	b.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	for i := 0; i < b.config.Workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx, i)
	}
	b.logger.Info("Inline queue started", zap.Int("workers", b.config.Workers))
	return nil
}

// Stop cancels running jobs and waits for the workers, bounded by ctx
func (b *InlineBroker) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.isRunning {
		b.mu.Unlock()
		return nil
	}
	b.isRunning = false
	b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Inline queue stopped gracefully")
		return nil
	case <-ctx.Done():
		b.logger.Warn("Inline queue stop timed out")
		return ctx.Err()
	}
}

// Enqueue implements workflow.Broker. The idempotency key is the job ID; a key
// that is still queued or running is not enqueued twice.
func (b *InlineBroker) Enqueue(_ context.Context, job workflow.Job, idempotencyKey string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isRunning {
		return "", ErrBrokerNotRunning
	}
	b.prune()

	if rec, ok := b.records[idempotencyKey]; ok && rec.finishedAt.IsZero() {
		return idempotencyKey, nil
	}
	select {
	case b.jobs <- &inlineJob{id: idempotencyKey, job: job}:
		b.records[idempotencyKey] = &jobRecord{state: workflow.JobStatePending}
		b.logger.Debug("Job submitted", zap.String("job_id", idempotencyKey))
		return idempotencyKey, nil
	default:
		return "", ErrQueueFull
	}
}

// JobState implements workflow.Broker
func (b *InlineBroker) JobState(_ context.Context, jobID string) (workflow.JobState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[jobID]
	if !ok {
		return workflow.JobStateMissing, workflow.ErrJobNotFound
	}
	return rec.state, nil
}

func (b *InlineBroker) worker(ctx context.Context, workerID int) {
	defer b.wg.Done()
	b.logger.Debug("Worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			b.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case j := <-b.jobs:
			b.processJob(ctx, j, workerID)
		}
	}
}

func (b *InlineBroker) processJob(ctx context.Context, j *inlineJob, workerID int) {
	b.setState(j.id, workflow.JobStateActive, false)
	j.attempt++

	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()

	err := b.run(ctx, handler, j)
	if err == nil {
		b.setState(j.id, workflow.JobStateCompleted, true)
		b.logger.Debug("Job completed", zap.Int("worker_id", workerID), zap.String("job_id", j.id))
		return
	}

	b.logger.Error("Job failed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", j.id),
		zap.Int("attempt", j.attempt),
		zap.Error(err))
	if ctx.Err() != nil || j.attempt > b.config.MaxRetry {
		b.setState(j.id, workflow.JobStateArchived, true)
		return
	}
	b.setState(j.id, workflow.JobStateRetry, false)
	time.AfterFunc(b.config.RetryDelay, func() { b.requeue(j) })
}

// run calls the handler, turning a panic into an error so the worker survives
func (b *InlineBroker) run(ctx context.Context, handler workflow.JobHandler, j *inlineJob) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("Job panicked", zap.String("job_id", j.id), zap.Any("panic", rec), zap.Stack("stack"))
			err = ErrJobPanicked
		}
	}()
	return handler.HandleJob(ctx, j.job)
}

func (b *InlineBroker) requeue(j *inlineJob) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isRunning {
		return
	}
	select {
	case b.jobs <- j:
		if rec, ok := b.records[j.id]; ok {
			rec.state = workflow.JobStatePending
		}
	default:
		b.logger.Warn("Failed to re-queue job for retry", zap.String("job_id", j.id))
		b.records[j.id] = &jobRecord{state: workflow.JobStateArchived, finishedAt: b.now()}
	}
}

func (b *InlineBroker) setState(id string, state workflow.JobState, finished bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := &jobRecord{state: state}
	if finished {
		rec.finishedAt = b.now()
	}
	b.records[id] = rec
}

// prune drops finished records past retention; callers hold mu
func (b *InlineBroker) prune() {
	cutoff := b.now().Add(-b.config.Retention)
	for id, rec := range b.records {
		if !rec.finishedAt.IsZero() && rec.finishedAt.Before(cutoff) {
			delete(b.records, id)
		}
	}
}

var _ workflow.Broker = (*InlineBroker)(nil)
