// Package queue provides the job brokers that hand execution jobs to workers:
// a Redis-backed asynq broker and an in-process fallback.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/config"
)

// TaskTypeExecution is the asynq task type of an execution job
const TaskTypeExecution = "execution:process"

// Config configures the asynq broker and worker
type Config struct {
	Queue           string
	Concurrency     int
	MaxRetry        int
	ShutdownTimeout time.Duration
	Retention       time.Duration
}

// ConfigFromQueue converts the application queue settings
func ConfigFromQueue(cfg config.QueueConfig) Config {
	c := Config{
		Queue:           cfg.Name,
		Concurrency:     cfg.Concurrency,
		MaxRetry:        cfg.MaxRetry,
		ShutdownTimeout: 30 * time.Second,
		Retention:       cfg.Retention,
	}
	if c.Queue == "" {
		c.Queue = "executions"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// RedisOpt builds the asynq connection option from the Redis settings
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsynqBroker enqueues execution jobs into Redis through asynq. The idempotency
// key becomes the asynq task ID, so a job that is still queued or running is
// never enqueued twice.
type AsynqBroker struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	cfg       Config
	logger    *zap.Logger
}

// NewAsynqBroker creates a broker connected through opt
func NewAsynqBroker(opt asynq.RedisConnOpt, cfg Config, logger *zap.Logger) *AsynqBroker {
	return &AsynqBroker{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		cfg:       cfg,
		logger:    logger.Named("asynq_broker"),
	}
}

// Enqueue implements workflow.Broker. A retained task of the same key that has
// already finished is deleted and the job enqueued again.
func (b *AsynqBroker) Enqueue(ctx context.Context, job workflow.Job, idempotencyKey string) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	opts := []asynq.Option{
		asynq.TaskID(idempotencyKey),
		asynq.Queue(b.cfg.Queue),
		asynq.MaxRetry(b.cfg.MaxRetry),
	}
	if b.cfg.Retention > 0 {
		opts = append(opts, asynq.Retention(b.cfg.Retention))
	}
	task := asynq.NewTask(TaskTypeExecution, payload, opts...)

	info, err := b.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		state, serr := b.JobState(ctx, idempotencyKey)
		if serr != nil || (state != workflow.JobStateCompleted && state != workflow.JobStateArchived) {
			b.logger.Debug("job already queued", zap.String("job_id", idempotencyKey))
			return idempotencyKey, nil
		}
		if derr := b.inspector.DeleteTask(b.cfg.Queue, idempotencyKey); derr != nil {
			return "", fmt.Errorf("delete finished task %s: %w", idempotencyKey, derr)
		}
		info, err = b.client.EnqueueContext(ctx, task)
	}
	if err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return info.ID, nil
}

// JobState implements workflow.Broker
func (b *AsynqBroker) JobState(_ context.Context, jobID string) (workflow.JobState, error) {
	info, err := b.inspector.GetTaskInfo(b.cfg.Queue, jobID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return workflow.JobStateMissing, workflow.ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("inspect task %s: %w", jobID, err)
	}
	return jobStateOf(info.State), nil
}

func jobStateOf(s asynq.TaskState) workflow.JobState {
	switch s {
	case asynq.TaskStateActive:
		return workflow.JobStateActive
	case asynq.TaskStatePending, asynq.TaskStateAggregating:
		return workflow.JobStatePending
	case asynq.TaskStateScheduled:
		return workflow.JobStateScheduled
	case asynq.TaskStateRetry:
		return workflow.JobStateRetry
	case asynq.TaskStateCompleted:
		return workflow.JobStateCompleted
	case asynq.TaskStateArchived:
		return workflow.JobStateArchived
	default:
		return workflow.JobStateMissing
	}
}

// Close releases the Redis connections
func (b *AsynqBroker) Close() error {
	return errors.Join(b.client.Close(), b.inspector.Close())
}

var _ workflow.Broker = (*AsynqBroker)(nil)
