package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned by Broker.JobState when the queue has no record of the job
var ErrJobNotFound = errors.New("workflow: queue job not found")

// Job is the queue payload that asks a worker to process one execution
type Job struct {
	ExecutionID uuid.UUID `json:"executionId"`
	TenantID    uuid.UUID `json:"tenantId"`
	WorkflowID  uuid.UUID `json:"workflowId"`
}

// JobState is the queue's view of a job, used to reclassify stale executions
type JobState string

const (
	JobStateActive    JobState = "active"
	JobStatePending   JobState = "pending"
	JobStateScheduled JobState = "scheduled"
	JobStateRetry     JobState = "retry"
	JobStateCompleted JobState = "completed"
	JobStateArchived  JobState = "archived"
	JobStateFailed    JobState = "failed"
	JobStateMissing   JobState = "missing"
)

// IsWaiting returns true for jobs that are queued but not yet running
func (s JobState) IsWaiting() bool {
	return s == JobStatePending || s == JobStateScheduled || s == JobStateRetry
}

// Broker hands jobs to workers. Enqueue is idempotent on idempotencyKey: enqueuing
// a key that is still queued or running returns the existing job ID.
type Broker interface {
	Enqueue(ctx context.Context, job Job, idempotencyKey string) (jobID string, err error)
	JobState(ctx context.Context, jobID string) (JobState, error)
}

// JobHandler processes one dequeued job
type JobHandler interface {
	HandleJob(ctx context.Context, job Job) error
}

// JobHandlerFunc adapts a function to JobHandler
type JobHandlerFunc func(ctx context.Context, job Job) error

// HandleJob implements JobHandler
func (f JobHandlerFunc) HandleJob(ctx context.Context, job Job) error { return f(ctx, job) }
