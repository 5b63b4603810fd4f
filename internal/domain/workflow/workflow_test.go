package workflow

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrecon/backend/internal/domain/shared"
)

func validWorkflow() *Workflow {
	return &Workflow{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   uuid.New(),
		Name:       "daily pull",
		Enabled:    true,
		Timezone:   "Asia/Ho_Chi_Minh",
		Sources: SourcesConfig{
			SourceAds: {Enabled: true, DelayMs: 500},
			SourcePOS: {Enabled: true},
		},
		DateRange: DateRangeSpec{Type: DateRangeRelative, Preset: PresetYesterday},
	}
}

// ---------------------------------------------------------------------------
// Workflow Tests
// ---------------------------------------------------------------------------

func TestWorkflow_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validWorkflow().Validate())
	})

	t.Run("missing tenant", func(t *testing.T) {
		wf := validWorkflow()
		wf.TenantID = uuid.Nil
		assert.ErrorIs(t, wf.Validate(), ErrWorkflowInvalidTenant)
	})

	t.Run("no enabled source", func(t *testing.T) {
		wf := validWorkflow()
		wf.Sources = SourcesConfig{SourceAds: {Enabled: false}}
		assert.ErrorIs(t, wf.Validate(), ErrWorkflowNoEnabledSources)
	})

	t.Run("unknown source", func(t *testing.T) {
		wf := validWorkflow()
		wf.Sources["crm"] = SourceConfig{Enabled: true}
		assert.True(t, IsValidation(wf.Validate()))
	})

	t.Run("negative delay", func(t *testing.T) {
		wf := validWorkflow()
		wf.Sources[SourcePOS] = SourceConfig{Enabled: true, DelayMs: -1}
		assert.True(t, IsValidation(wf.Validate()))
	})

	t.Run("bad timezone", func(t *testing.T) {
		wf := validWorkflow()
		wf.Timezone = "Mars/Olympus"
		assert.True(t, IsValidation(wf.Validate()))
	})

	t.Run("bad date range", func(t *testing.T) {
		wf := validWorkflow()
		wf.DateRange = DateRangeSpec{Type: DateRangeRolling}
		assert.True(t, IsValidation(wf.Validate()))
	})
}

func TestWorkflow_LocationAndSchedule(t *testing.T) {
	wf := validWorkflow()
	assert.Equal(t, "Asia/Ho_Chi_Minh", wf.Location().String())
	assert.False(t, wf.HasSchedule())

	wf.CronSchedule = "0 6 * * *"
	assert.True(t, wf.HasSchedule())
	wf.Enabled = false
	assert.False(t, wf.HasSchedule())

	wf.Timezone = ""
	assert.Equal(t, time.UTC, wf.Location())
	wf.Timezone = "nowhere"
	assert.Equal(t, time.UTC, wf.Location())
}

func TestSourcesConfig(t *testing.T) {
	cfg := SourcesConfig{
		SourcePOS: {Enabled: true, DelayMs: 250},
		SourceAds: {Enabled: false},
	}
	assert.Equal(t, []SourceType{SourcePOS}, cfg.EnabledSources())
	assert.True(t, cfg.IsEnabled(SourcePOS))
	assert.False(t, cfg.IsEnabled(SourceAds))
	assert.False(t, SourcesConfig{}.IsEnabled(SourceAds))

	assert.Equal(t, 250*time.Millisecond, cfg[SourcePOS].Delay(time.Second))
	assert.Equal(t, time.Second, cfg[SourceAds].Delay(time.Second))

	both := SourcesConfig{SourcePOS: {Enabled: true}, SourceAds: {Enabled: true}}
	assert.Equal(t, []SourceType{SourceAds, SourcePOS}, both.EnabledSources(), "fixed source order")
}

// ---------------------------------------------------------------------------
// Execution Tests
// ---------------------------------------------------------------------------

func TestExecutionStatus(t *testing.T) {
	tests := []struct {
		status      ExecutionStatus
		terminal    bool
		cancellable bool
	}{
		{ExecutionStatusPending, false, true},
		{ExecutionStatusRunning, false, true},
		{ExecutionStatusCompleted, true, false},
		{ExecutionStatusFailed, true, false},
		{ExecutionStatusCancelled, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.True(t, tt.status.IsValid())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.cancellable, tt.status.IsCancellable())
		})
	}
	assert.False(t, ExecutionStatus("PAUSED").IsValid())
}

func TestNewExecution(t *testing.T) {
	wf := validWorkflow()
	team := uuid.New()
	wf.TeamID = &team
	r := DateRange{Since: day("2024-03-01"), Until: day("2024-03-03")}

	exec := NewExecution(wf, TriggerManual, r)
	require.NotNil(t, exec)
	assert.NotEqual(t, uuid.Nil, exec.ID)
	assert.Equal(t, wf.ID, exec.WorkflowID)
	assert.Equal(t, wf.TenantID, exec.TenantID)
	assert.Equal(t, &team, exec.TeamID)
	assert.Equal(t, ExecutionStatusPending, exec.Status)
	assert.Equal(t, 3, exec.TotalDays)
	assert.Equal(t, r, exec.DateRange())
	assert.NotNil(t, exec.Errors)
	assert.False(t, exec.HasErrors())
	assert.False(t, exec.IsDispatched())

	exec.QueueJobID = "job-1"
	exec.Errors = append(exec.Errors, ExecutionError{Source: "pos", Message: "boom"})
	assert.True(t, exec.IsDispatched())
	assert.True(t, exec.HasErrors())
}

func TestSnapshotFromExecution(t *testing.T) {
	exec := NewExecution(validWorkflow(), TriggerScheduled, DateRange{Since: day("2024-03-01"), Until: day("2024-03-02")})
	exec.TotalUnits = 4
	exec.ProcessedUnits = 3
	exec.DaysProcessed = 1

	snap := SnapshotFromExecution(exec)
	assert.Equal(t, exec.ID, snap.ExecutionID)
	assert.Equal(t, 4, snap.TotalUnits)
	assert.Equal(t, 3, snap.ProcessedUnits)
	assert.Equal(t, 2, snap.TotalDays)
	assert.NotNil(t, snap.Sources)
}

func TestErrors(t *testing.T) {
	v := NewValidationError("date", "in the future")
	assert.Equal(t, "validation failed on date: in the future", v.Error())
	assert.True(t, IsValidation(v))

	cause := assert.AnError
	assert.ErrorIs(t, &PersistenceError{Op: "orders", Err: cause}, cause)
	assert.ErrorIs(t, &ReconciliationError{Date: "2024-03-01", Err: cause}, cause)
	assert.ErrorIs(t, &AggregationError{Date: "2024-03-01", Err: cause}, cause)
	assert.ErrorIs(t, &SystemError{Err: cause}, cause)
	assert.True(t, IsValidation(&SystemError{Err: v}), "found through Unwrap")
	assert.False(t, IsValidation(cause))
}

func TestJobState_IsWaiting(t *testing.T) {
	for _, s := range []JobState{JobStatePending, JobStateScheduled, JobStateRetry} {
		assert.True(t, s.IsWaiting(), s)
	}
	for _, s := range []JobState{JobStateActive, JobStateCompleted, JobStateArchived, JobStateFailed, JobStateMissing} {
		assert.False(t, s.IsWaiting(), s)
	}
}
