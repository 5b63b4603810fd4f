package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/config"
)

func newTestBroker(t *testing.T) *AsynqBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	b := NewAsynqBroker(asynq.RedisClientOpt{Addr: mr.Addr()}, Config{Queue: "executions", MaxRetry: 3}, zap.NewNop())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestAsynqBroker_EnqueueIsIdempotent(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	job := workflow.Job{ExecutionID: uuid.New(), TenantID: uuid.New(), WorkflowID: uuid.New()}
	key := job.ExecutionID.String()

	first, err := b.Enqueue(ctx, job, key)
	require.NoError(t, err)
	assert.Equal(t, key, first)

	second, err := b.Enqueue(ctx, job, key)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	state, err := b.JobState(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, workflow.JobStatePending, state)
	assert.True(t, state.IsWaiting())

	info, err := b.inspector.GetTaskInfo("executions", first)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeExecution, info.Type)
	decoded, err := DecodeJob(info.Payload)
	require.NoError(t, err)
	assert.Equal(t, job, decoded)
}

func TestAsynqBroker_ReenqueuesFinishedTask(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	job := workflow.Job{ExecutionID: uuid.New(), TenantID: uuid.New(), WorkflowID: uuid.New()}
	key := job.ExecutionID.String()

	_, err := b.Enqueue(ctx, job, key)
	require.NoError(t, err)
	require.NoError(t, b.inspector.ArchiveTask("executions", key))

	state, err := b.JobState(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, workflow.JobStateArchived, state)

	id, err := b.Enqueue(ctx, job, key)
	require.NoError(t, err)
	assert.Equal(t, key, id)

	state, err = b.JobState(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, workflow.JobStatePending, state)
}

func TestAsynqBroker_UnknownJobIsMissing(t *testing.T) {
	b := newTestBroker(t)
	state, err := b.JobState(context.Background(), "nope")
	assert.ErrorIs(t, err, workflow.ErrJobNotFound)
	assert.Equal(t, workflow.JobStateMissing, state)
}

func TestJobStateOf(t *testing.T) {
	tests := []struct {
		in   asynq.TaskState
		want workflow.JobState
	}{
		{asynq.TaskStateActive, workflow.JobStateActive},
		{asynq.TaskStatePending, workflow.JobStatePending},
		{asynq.TaskStateAggregating, workflow.JobStatePending},
		{asynq.TaskStateScheduled, workflow.JobStateScheduled},
		{asynq.TaskStateRetry, workflow.JobStateRetry},
		{asynq.TaskStateCompleted, workflow.JobStateCompleted},
		{asynq.TaskStateArchived, workflow.JobStateArchived},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, jobStateOf(tt.in))
		})
	}
}

func TestDecodeJob(t *testing.T) {
	valid, err := json.Marshal(workflow.Job{ExecutionID: uuid.New()})
	require.NoError(t, err)
	_, err = DecodeJob(valid)
	assert.NoError(t, err)

	_, err = DecodeJob([]byte(`{"executionId":""}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = DecodeJob([]byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = DecodeJob([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestConfigFromQueue(t *testing.T) {
	c := ConfigFromQueue(config.QueueConfig{MaxRetry: 5})
	assert.Equal(t, "executions", c.Queue)
	assert.Equal(t, 4, c.Concurrency)
	assert.Equal(t, 5, c.MaxRetry)
	assert.Equal(t, 30*time.Second, c.ShutdownTimeout)
	assert.Zero(t, c.Retention)

	opt := RedisOpt(config.RedisConfig{Host: "redis", Port: 6380, DB: 2})
	assert.Equal(t, "redis:6380", opt.Addr)
	assert.Equal(t, 2, opt.DB)
}
