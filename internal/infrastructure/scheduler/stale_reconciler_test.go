package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/shared"
	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/persistence"
	"github.com/adrecon/backend/tests/testutil"
)

type fakeInspector struct {
	states map[string]workflow.JobState
	err    error
}

func (f *fakeInspector) JobState(_ context.Context, jobID string) (workflow.JobState, error) {
	if f.err != nil {
		return "", f.err
	}
	state, ok := f.states[jobID]
	if !ok {
		return workflow.JobStateMissing, workflow.ErrJobNotFound
	}
	return state, nil
}

type recordingDispatcher struct {
	mu      sync.Mutex
	tenants []uuid.UUID
}

func (d *recordingDispatcher) DispatchNext(_ context.Context, tenantID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants = append(d.tenants, tenantID)
	return nil
}

type countingMetrics struct {
	outcomes map[string]int
}

func (m *countingMetrics) StaleReclassified(_ context.Context, status string) {
	m.outcomes[status]++
}

type sweepFixture struct {
	executions *persistence.GormExecutionRepository
	inspector  *fakeInspector
	dispatcher *recordingDispatcher
	events     *testutil.RecordingSink
	metrics    *countingMetrics
	reconciler *StaleExecutionReconciler
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		executions: persistence.NewGormExecutionRepository(testutil.NewSQLiteDB(t)),
		inspector:  &fakeInspector{states: map[string]workflow.JobState{}},
		dispatcher: &recordingDispatcher{},
		events:     testutil.NewRecordingSink(),
		metrics:    &countingMetrics{outcomes: map[string]int{}},
	}
	f.reconciler = NewStaleExecutionReconciler(
		StaleReconcilerConfig{Threshold: 10 * time.Minute},
		f.executions, f.inspector, f.dispatcher, f.events, f.metrics, zap.NewNop(),
	)
	// every row written during the test is an hour old by the sweeper's clock
	f.reconciler.now = func() time.Time { return time.Now().Add(time.Hour) }
	return f
}

// addExecution stores an execution of a fresh tenant, claimed when running is set
func (f *sweepFixture) addExecution(t *testing.T, jobID string, state workflow.JobState, running bool) *workflow.Execution {
	t.Helper()
	ctx := context.Background()
	wf := &workflow.Workflow{BaseEntity: shared.NewBaseEntity(), TenantID: uuid.New()}
	exec := workflow.NewExecution(wf, workflow.TriggerManual, workflow.DateRange{
		Since: testutil.Date(t, "2024-03-01"),
		Until: testutil.Date(t, "2024-03-02"),
	})
	exec.QueueJobID = jobID
	require.NoError(t, f.executions.Create(ctx, exec))
	if running {
		require.NoError(t, f.executions.Claim(ctx, exec.ID, 4, time.Now().UTC()))
	}
	if jobID != "" && state != "" {
		f.inspector.states[jobID] = state
	}
	return exec
}

func (f *sweepFixture) reload(t *testing.T, id uuid.UUID) *workflow.Execution {
	t.Helper()
	exec, err := f.executions.FindByID(context.Background(), id)
	require.NoError(t, err)
	return exec
}

func TestStaleExecutionReconciler_Sweep(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	active := f.addExecution(t, "job-active", workflow.JobStateActive, true)
	retrying := f.addExecution(t, "job-retry", workflow.JobStateRetry, true)
	completed := f.addExecution(t, "job-done", workflow.JobStateCompleted, true)
	archived := f.addExecution(t, "job-archived", workflow.JobStateArchived, true)
	missing := f.addExecution(t, "job-lost", "", false)
	undispatched := f.addExecution(t, "", "", false)

	outcomes, err := f.reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{
		active.ID:       OutcomeTouched,
		retrying.ID:     OutcomeRequeued,
		completed.ID:    OutcomeCompleted,
		archived.ID:     OutcomeFailed,
		missing.ID:      OutcomeFailed,
		undispatched.ID: OutcomeDispatched,
	}, outcomes)

	assert.Equal(t, workflow.ExecutionStatusRunning, f.reload(t, active.ID).Status)
	assert.Equal(t, workflow.ExecutionStatusPending, f.reload(t, retrying.ID).Status)

	done := f.reload(t, completed.ID)
	assert.Equal(t, workflow.ExecutionStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Errors)

	for _, id := range []uuid.UUID{archived.ID, missing.ID} {
		failed := f.reload(t, id)
		assert.Equal(t, workflow.ExecutionStatusFailed, failed.Status)
		require.Len(t, failed.Errors, 1)
		assert.Equal(t, workflow.ErrorSourceReconciler, failed.Errors[0].Source)
	}
	assert.Contains(t, f.reload(t, archived.ID).Errors[0].Message, "archived")

	assert.ElementsMatch(t,
		[]uuid.UUID{completed.TenantID, archived.TenantID, missing.TenantID, undispatched.TenantID},
		f.dispatcher.tenants)
	assert.Equal(t, 1, f.events.Count(workflow.EventCompleted))
	assert.Equal(t, 2, f.events.Count(workflow.EventFailed))
	assert.Equal(t, 2, f.metrics.outcomes[OutcomeFailed])
	assert.Equal(t, 1, f.metrics.outcomes[OutcomeTouched])
}

func TestStaleExecutionReconciler_FreshRowsAreLeftAlone(t *testing.T) {
	f := newSweepFixture(t)
	f.reconciler.now = time.Now
	exec := f.addExecution(t, "job-lost", "", true)

	outcomes, err := f.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Equal(t, workflow.ExecutionStatusRunning, f.reload(t, exec.ID).Status)
}

func TestStaleExecutionReconciler_InspectorFailureSkips(t *testing.T) {
	f := newSweepFixture(t)
	f.inspector.err = errors.New("redis unavailable")
	exec := f.addExecution(t, "job-1", "", true)

	outcomes, err := f.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcomes[exec.ID])
	assert.Equal(t, workflow.ExecutionStatusRunning, f.reload(t, exec.ID).Status)
	assert.Empty(t, f.metrics.outcomes)
}

func TestStaleExecutionReconciler_CancelledMeanwhileIsKept(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	exec := f.addExecution(t, "job-lost", "", true)

	now := time.Now().UTC()
	ok, err := f.executions.TransitionStatus(ctx, exec.ID, workflow.ActiveStatuses, workflow.ExecutionStatusCancelled, &now)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.reconciler.settle(ctx, exec, workflow.ExecutionStatusFailed, nil))
	assert.Equal(t, workflow.ExecutionStatusCancelled, f.reload(t, exec.ID).Status)
	assert.Empty(t, f.dispatcher.tenants)
}

func TestStaleExecutionReconciler_StartStop(t *testing.T) {
	f := newSweepFixture(t)
	f.reconciler.config.Interval = 10 * time.Millisecond
	exec := f.addExecution(t, "job-lost", "", false)

	ctx := context.Background()
	require.NoError(t, f.reconciler.Start(ctx))
	testutil.RequireEventually(t, func() bool {
		status, err := f.executions.GetStatus(ctx, exec.ID)
		return err == nil && status == workflow.ExecutionStatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.reconciler.Stop(testutil.ContextWithTimeout(t, time.Second)))
}
