package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/tests/testutil"
)

func TestProcessor_CancelStopsRemainingUnits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addShops("north", "south")
	wf := h.saveWorkflow(t, workflow.SourcePOS)
	exec := h.newExecution(t, wf, "2024-03-01", "2024-03-03")

	h.orders.fetch = func(ctx context.Context, _ *integration.Shop, _ time.Time) ([]integration.RawOrder, error) {
		if len(h.orders.Calls()) == 4 {
			_, err := h.scheduler.Cancel(ctx, h.tenantID, exec.ID)
			require.NoError(t, err)
		}
		return nil, nil
	}

	require.NoError(t, h.processor.Process(ctx, exec.ID))

	got := h.reload(t, exec.ID)
	assert.Equal(t, workflow.ExecutionStatusCancelled, got.Status)
	assert.Equal(t, 6, got.TotalUnits)
	assert.Equal(t, 4, got.ProcessedUnits)
	assert.Equal(t, 1, got.DaysProcessed)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Errors)
	assert.Equal(t, []string{
		"north@2024-03-01", "south@2024-03-01",
		"north@2024-03-02", "south@2024-03-02",
	}, h.orders.Calls())

	types := h.events.Types()
	require.NotEmpty(t, types)
	assert.Equal(t, workflow.EventStarted, types[0])
	assert.Equal(t, workflow.EventCancelled, types[len(types)-1])
	assert.Zero(t, h.events.Count(workflow.EventCompleted))

	snap, err := h.store.GetProgress(ctx, exec.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, workflow.ExecutionStatusCancelled, snap.Status)
	assert.Equal(t, 4, snap.ProcessedUnits)
}

func TestProcessor_OneFailingShopDoesNotStopTheDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	shops := h.addShops("broken", "healthy")
	wf := h.saveWorkflow(t, workflow.SourcePOS)
	exec := h.newExecution(t, wf, "2024-03-01", "2024-03-01")
	day := testutil.Date(t, "2024-03-01")

	h.orders.fetch = func(_ context.Context, shop *integration.Shop, date time.Time) ([]integration.RawOrder, error) {
		if shop.ExternalID == "broken" {
			return nil, &integration.FetchError{
				Provider: integration.ProviderPancake, EntityID: shop.ExternalID,
				Date: date.Format(workflow.DateLayout), StatusCode: 503, Attempts: 4, Retryable: true,
				Err: errors.New("service unavailable"),
			}
		}
		return []integration.RawOrder{{
			OrderID: "o-1", OrderDate: date, StatusCode: 3, Bucket: integration.BucketDelivered,
			CODAmount: decimal.NewFromInt(250000), TotalPrice: decimal.NewFromInt(250000), FetchedAt: clock,
		}}, nil
	}

	require.NoError(t, h.processor.Process(ctx, exec.ID))

	got := h.reload(t, exec.ID)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	assert.True(t, got.HasErrors())
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "pos", got.Errors[0].Source)
	assert.Equal(t, shops[0].ID.String(), got.Errors[0].EntityID)
	assert.Equal(t, "2024-03-01", got.Errors[0].Date)
	assert.Contains(t, got.Errors[0].Message, "503")
	assert.Equal(t, 2, got.ProcessedUnits)
	assert.Equal(t, 1, got.PosFetched)

	rows, err := h.rows.ListAdRows(ctx, h.tenantID, day, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, shops[1].ID.String()+"-o-1", rows[0].AdID)
	assert.True(t, rows[0].IsSynthetic)
	assert.True(t, rows[0].Spend.IsZero())
	assert.True(t, rows[0].TotalCOD.Equal(decimal.NewFromInt(250000)))
}

func TestProcessor_MergesAdAndOrderSharingNormalizedID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addAccount("act_1")
	// account reports spend in USD, rows are kept in VND
	h.entities.accounts[0].CurrencyMultiplier = decimal.NewFromInt(25000)
	h.addShops("main")
	wf := h.saveWorkflow(t, workflow.SourceAds, workflow.SourcePOS)
	exec := h.newExecution(t, wf, "2024-03-01", "2024-03-01")
	day := testutil.Date(t, "2024-03-01")

	h.ads.fetch = func(_ context.Context, _ *integration.AdAccount, date time.Time) ([]integration.RawAdInsight, error) {
		return []integration.RawAdInsight{{
			Date: date, AdID: "120210000111222333", CampaignID: "c-1", CampaignName: "Spring",
			Spend: decimal.NewFromInt(2), Clicks: 12, FetchedAt: clock,
		}}, nil
	}
	h.orders.fetch = func(_ context.Context, _ *integration.Shop, date time.Time) ([]integration.RawOrder, error) {
		return []integration.RawOrder{{
			OrderID: "o-9", OrderDate: date, StatusCode: 3, Bucket: integration.BucketDelivered,
			CODAmount: decimal.NewFromInt(300), TotalPrice: decimal.NewFromInt(300),
			Attribution: "camp_ad_id=120210000111222333_v2", FetchedAt: clock,
		}}, nil
	}

	require.NoError(t, h.processor.Process(ctx, exec.ID))

	got := h.reload(t, exec.ID)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	assert.False(t, got.HasErrors())
	assert.Equal(t, 2, got.TotalUnits)
	assert.Equal(t, 2, got.ProcessedUnits)
	assert.Equal(t, 1, got.AdsFetched)
	assert.Equal(t, 1, got.PosFetched)

	rows, err := h.rows.ListAdRows(ctx, h.tenantID, day, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "120210000111222333", rows[0].AdID)
	assert.False(t, rows[0].IsSynthetic)
	assert.True(t, rows[0].Spend.Equal(decimal.NewFromInt(50000)), "spend %s", rows[0].Spend)
	assert.True(t, rows[0].TotalCOD.Equal(decimal.NewFromInt(300)))

	campaigns, err := h.rows.ListCampaignRows(ctx, h.tenantID, day, nil)
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "c-1", campaigns[0].CampaignID)
}

func TestProcessor_ZeroEntitiesStillProgress(t *testing.T) {
	h := newHarness(t)
	wf := h.saveWorkflow(t, workflow.SourceAds)
	exec := h.newExecution(t, wf, "2024-03-01", "2024-03-02")

	require.NoError(t, h.processor.Process(context.Background(), exec.ID))

	got := h.reload(t, exec.ID)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	assert.Equal(t, 2, got.TotalUnits)
	assert.Equal(t, 2, got.ProcessedUnits)
	assert.Equal(t, 2, got.DaysProcessed)
}

func TestProcessor_FutureDateIsRecordedAndSkipped(t *testing.T) {
	h := newHarness(t)
	h.addShops("main")
	wf := h.saveWorkflow(t, workflow.SourcePOS)
	exec := h.newExecution(t, wf, "2024-03-10", "2024-03-11")

	require.NoError(t, h.processor.Process(context.Background(), exec.ID))

	got := h.reload(t, exec.ID)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	assert.Equal(t, 2, got.ProcessedUnits)
	assert.Equal(t, 2, got.DaysProcessed)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, workflow.ErrorSourceValidation, got.Errors[0].Source)
	assert.Equal(t, "2024-03-11", got.Errors[0].Date)
	assert.Equal(t, []string{"main@2024-03-10"}, h.orders.Calls())
}

type flakyReconciler struct {
	failOn     string
	aggregated []string
}

func (r *flakyReconciler) ReconcileDay(_ context.Context, _ uuid.UUID, date time.Time, _ *uuid.UUID) (int, error) {
	d := date.Format(workflow.DateLayout)
	if d == r.failOn {
		return 0, &workflow.ReconciliationError{Date: d, Err: errors.New("deadlock detected")}
	}
	return 1, nil
}

func (r *flakyReconciler) AggregateDay(_ context.Context, _ uuid.UUID, date time.Time, _ *uuid.UUID) (int, error) {
	r.aggregated = append(r.aggregated, date.Format(workflow.DateLayout))
	return 1, nil
}

func TestProcessor_ReconcileFailureSkipsAggregationForThatDate(t *testing.T) {
	h := newHarness(t)
	h.addShops("main")
	wf := h.saveWorkflow(t, workflow.SourcePOS)
	exec := h.newExecution(t, wf, "2024-03-01", "2024-03-02")

	rec := &flakyReconciler{failOn: "2024-03-01"}
	h.processor.deps.Reconciler = rec

	require.NoError(t, h.processor.Process(context.Background(), exec.ID))

	got := h.reload(t, exec.ID)
	assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
	assert.Equal(t, 2, got.DaysProcessed)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, workflow.ErrorSourceReconcile, got.Errors[0].Source)
	assert.Equal(t, []string{"2024-03-02"}, rec.aggregated)

	var skipped bool
	for _, e := range h.events.Events() {
		if ev, ok := e.Payload.(LogEvent); ok && e.Type == workflow.EventLog && ev.Date == "2024-03-01" && ev.Level == "warn" {
			skipped = true
		}
	}
	assert.True(t, skipped, "expected a skipped notice for the failed date")
}

func TestProcessor_PanicFailsExecutionAndDispatchesNext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addShops("main")
	wf := h.saveWorkflow(t, workflow.SourcePOS)
	exec := h.newExecution(t, wf, "2024-03-01", "2024-03-02")
	waiting := h.newExecution(t, wf, "2024-03-03", "2024-03-03")

	h.orders.fetch = func(context.Context, *integration.Shop, time.Time) ([]integration.RawOrder, error) {
		if len(h.orders.Calls()) == 2 {
			panic("nil map write")
		}
		return nil, nil
	}

	require.NoError(t, h.processor.Process(ctx, exec.ID))

	got := h.reload(t, exec.ID)
	assert.Equal(t, workflow.ExecutionStatusFailed, got.Status)
	assert.Equal(t, 1, got.ProcessedUnits)
	assert.Equal(t, 1, got.DaysProcessed)
	require.NotEmpty(t, got.Errors)
	last := got.Errors[len(got.Errors)-1]
	assert.Equal(t, workflow.ErrorSourceSystem, last.Source)
	assert.Contains(t, last.Message, "nil map write")
	assert.Equal(t, 1, h.events.Count(workflow.EventFailed))

	assert.Equal(t, []uuid.UUID{waiting.ID}, h.broker.Enqueued())
	assert.True(t, h.reload(t, waiting.ID).IsDispatched())
}

func TestProcessor_RefusedClaimLeavesExecutionPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := h.saveWorkflow(t, workflow.SourcePOS)
	running := h.newExecution(t, wf, "2024-03-01", "2024-03-01")
	second := h.newExecution(t, wf, "2024-03-02", "2024-03-02")

	require.NoError(t, h.executions.Claim(ctx, running.ID, 1, clock))
	require.NoError(t, h.executions.MarkDispatched(ctx, second.ID, "job-2", clock))

	require.NoError(t, h.processor.Process(ctx, second.ID))

	got := h.reload(t, second.ID)
	assert.Equal(t, workflow.ExecutionStatusPending, got.Status)
	assert.False(t, got.IsDispatched())
	assert.Empty(t, h.events.Types())
}

func TestProcessor_Deliveries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := h.saveWorkflow(t, workflow.SourcePOS)

	t.Run("unknown execution is dropped", func(t *testing.T) {
		assert.NoError(t, h.processor.Process(ctx, uuid.New()))
	})

	t.Run("running execution asks for redelivery", func(t *testing.T) {
		exec := h.newExecution(t, wf, "2024-03-01", "2024-03-01")
		require.NoError(t, h.executions.Claim(ctx, exec.ID, 1, clock))
		assert.ErrorIs(t, h.processor.Process(ctx, exec.ID), ErrExecutionBusy)

		_, err := h.executions.TransitionStatus(ctx, exec.ID, workflow.ActiveStatuses, workflow.ExecutionStatusFailed, &clock)
		require.NoError(t, err)
	})

	t.Run("terminal execution is dropped", func(t *testing.T) {
		exec := h.newExecution(t, wf, "2024-03-02", "2024-03-02")
		_, err := h.scheduler.Cancel(ctx, h.tenantID, exec.ID)
		require.NoError(t, err)
		assert.NoError(t, h.processor.Process(ctx, exec.ID))
		assert.Equal(t, workflow.ExecutionStatusCancelled, h.reload(t, exec.ID).Status)
	})

	t.Run("missing workflow fails the execution", func(t *testing.T) {
		other := *wf
		other.ID = uuid.New()
		exec := h.newExecution(t, &other, "2024-03-03", "2024-03-03")

		assert.NoError(t, h.processor.Process(ctx, exec.ID))
		got := h.reload(t, exec.ID)
		assert.Equal(t, workflow.ExecutionStatusFailed, got.Status)
		require.Len(t, got.Errors, 1)
		assert.Equal(t, workflow.ErrorSourceSystem, got.Errors[0].Source)
	})
}

func TestProcessor_ShutdownReturnsExecutionToPending(t *testing.T) {
	h := newHarness(t)
	h.addShops("main", "second")
	wf := h.saveWorkflow(t, workflow.SourcePOS)
	exec := h.newExecution(t, wf, "2024-03-01", "2024-03-01")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.orders.fetch = func(ctx context.Context, _ *integration.Shop, _ time.Time) ([]integration.RawOrder, error) {
		cancel()
		return nil, ctx.Err()
	}

	err := h.processor.Process(ctx, exec.ID)
	assert.ErrorIs(t, err, context.Canceled)

	got := h.reload(t, exec.ID)
	assert.Equal(t, workflow.ExecutionStatusPending, got.Status)
	assert.Empty(t, got.Errors)
	assert.Zero(t, h.events.Count(workflow.EventFailed))
}

func TestProcessor_HandleJob(t *testing.T) {
	h := newHarness(t)
	wf := h.saveWorkflow(t, workflow.SourcePOS)
	exec := h.newExecution(t, wf, "2024-03-01", "2024-03-01")

	var handler workflow.JobHandler = h.processor
	require.NoError(t, handler.HandleJob(context.Background(), workflow.Job{
		ExecutionID: exec.ID, TenantID: h.tenantID, WorkflowID: wf.ID,
	}))
	assert.Equal(t, workflow.ExecutionStatusCompleted, h.reload(t, exec.ID).Status)
}

func TestNewLimiter(t *testing.T) {
	unlimited := newLimiter(0)
	for i := 0; i < 5; i++ {
		assert.True(t, unlimited.Allow())
	}

	limited := newLimiter(time.Hour)
	assert.True(t, limited.Allow())
	assert.False(t, limited.Allow())
}

func TestNewProcessor_DefaultsMetrics(t *testing.T) {
	p := NewProcessor(Deps{}, ProcessorConfig{}, zap.NewNop())
	assert.NotNil(t, p.deps.Metrics)
}
