package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/workflow"
)

// Worker consumes execution jobs from the asynq queue
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewWorker creates a worker delivering jobs of cfg.Queue to handler
func NewWorker(opt asynq.RedisConnOpt, cfg Config, handler workflow.JobHandler, logger *zap.Logger) *Worker {
	log := logger.Named("asynq_worker")
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          map[string]int{cfg.Queue: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          log.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Warn("Job failed",
				zap.String("type", task.Type()),
				zap.Int("retried", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err))
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeExecution, func(ctx context.Context, task *asynq.Task) error {
		job, err := DecodeJob(task.Payload())
		if err != nil {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return handler.HandleJob(ctx, job)
	})
	return &Worker{server: server, mux: mux, logger: log}
}

// Start begins processing in background goroutines
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq worker: %w", err)
	}
	w.logger.Info("Queue worker started")
	return nil
}

// Stop waits for active jobs up to the shutdown timeout, then stops. Jobs still
// running are handed back to the queue.
func (w *Worker) Stop() {
	w.server.Shutdown()
	w.logger.Info("Queue worker stopped")
}

// DecodeJob parses a task payload
func DecodeJob(payload []byte) (workflow.Job, error) {
	var job workflow.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return job, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if job.ExecutionID == uuid.Nil {
		return job, fmt.Errorf("%w: missing execution id", ErrInvalidPayload)
	}
	return job, nil
}
