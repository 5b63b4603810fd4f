package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/application/ingestion"
	"github.com/adrecon/backend/internal/application/reconciliation"
	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/domain/shared"
	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/cache"
	"github.com/adrecon/backend/internal/infrastructure/persistence"
	"github.com/adrecon/backend/internal/infrastructure/source"
	"github.com/adrecon/backend/tests/testutil"
)

// clock is "now" for every test; the fixture dates all lie before it
var clock = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

type stubEntities struct {
	accounts []integration.AdAccount
	shops    []integration.Shop
}

func (s *stubEntities) ListAdAccounts(context.Context, uuid.UUID, *uuid.UUID) ([]integration.AdAccount, error) {
	return s.accounts, nil
}

func (s *stubEntities) ListShops(context.Context, uuid.UUID, *uuid.UUID) ([]integration.Shop, error) {
	return s.shops, nil
}

type stubAds struct {
	fetch func(ctx context.Context, account *integration.AdAccount, date time.Time) ([]integration.RawAdInsight, error)
}

func (s *stubAds) Provider() integration.ProviderCode { return integration.ProviderMeta }

func (s *stubAds) FetchInsights(ctx context.Context, account *integration.AdAccount, date time.Time) ([]integration.RawAdInsight, error) {
	return s.fetch(ctx, account, date)
}

func (s *stubAds) TestConnection(context.Context, *integration.AdAccount) error { return nil }

type stubOrders struct {
	mu    sync.Mutex
	calls []string
	fetch func(ctx context.Context, shop *integration.Shop, date time.Time) ([]integration.RawOrder, error)
}

func (s *stubOrders) Provider() integration.ProviderCode { return integration.ProviderPancake }

func (s *stubOrders) FetchOrders(ctx context.Context, shop *integration.Shop, date time.Time) ([]integration.RawOrder, error) {
	s.mu.Lock()
	s.calls = append(s.calls, shop.ExternalID+"@"+date.Format(workflow.DateLayout))
	s.mu.Unlock()
	return s.fetch(ctx, shop, date)
}

func (s *stubOrders) TestConnection(context.Context, *integration.Shop) error { return nil }

func (s *stubOrders) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// fakeBroker accepts jobs without running them
type fakeBroker struct {
	mu   sync.Mutex
	jobs []workflow.Job
	keys map[string]string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{keys: make(map[string]string)}
}

func (b *fakeBroker) Enqueue(_ context.Context, job workflow.Job, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.keys[key]; ok {
		return id, nil
	}
	id := "job-" + key
	b.keys[key] = id
	b.jobs = append(b.jobs, job)
	return id, nil
}

func (b *fakeBroker) JobState(_ context.Context, jobID string) (workflow.JobState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.keys {
		if id == jobID {
			return workflow.JobStatePending, nil
		}
	}
	return workflow.JobStateMissing, workflow.ErrJobNotFound
}

func (b *fakeBroker) Enqueued() []uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]uuid.UUID, len(b.jobs))
	for i, j := range b.jobs {
		ids[i] = j.ExecutionID
	}
	return ids
}

type harness struct {
	tenantID   uuid.UUID
	executions *persistence.GormExecutionRepository
	workflows  *persistence.GormWorkflowRepository
	records    *persistence.GormRawRecordRepository
	rows       *persistence.GormReconciledRowRepository
	store      *cache.InMemoryProgressStore
	events     *testutil.RecordingSink
	broker     *fakeBroker
	entities   *stubEntities
	ads        *stubAds
	orders     *stubOrders
	scheduler  *Scheduler
	processor  *Processor
	created    int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	h := &harness{
		tenantID:   testutil.TestTenantID(),
		executions: persistence.NewGormExecutionRepository(db),
		workflows:  persistence.NewGormWorkflowRepository(db),
		records:    persistence.NewGormRawRecordRepository(db),
		rows:       persistence.NewGormReconciledRowRepository(db),
		store:      cache.NewInMemoryProgressStore(time.Hour),
		events:     testutil.NewRecordingSink(),
		broker:     newFakeBroker(),
		entities:   &stubEntities{},
		ads: &stubAds{fetch: func(context.Context, *integration.AdAccount, time.Time) ([]integration.RawAdInsight, error) {
			return nil, nil
		}},
		orders: &stubOrders{fetch: func(context.Context, *integration.Shop, time.Time) ([]integration.RawOrder, error) {
			return nil, nil
		}},
	}
	t.Cleanup(func() { _ = h.store.Close() })

	registry := source.NewRegistry()
	registry.RegisterAdInsightClient(h.ads)
	registry.RegisterOrderClient(h.orders)

	h.scheduler = NewScheduler(h.workflows, h.executions, h.broker, h.store, h.events, nil, zap.NewNop())
	h.scheduler.now = func() time.Time { return clock }

	h.processor = NewProcessor(Deps{
		Executions: h.executions,
		Workflows:  h.workflows,
		Entities:   h.entities,
		Sources:    registry,
		Persister:  ingestion.NewPersister(h.records, h.executions, zap.NewNop()),
		Reconciler: reconciliation.NewService(h.records, h.rows, h.store, zap.NewNop()),
		Progress:   h.store,
		Events:     h.events,
		Dispatcher: h.scheduler,
	}, ProcessorConfig{}, zap.NewNop())
	h.processor.now = func() time.Time { return clock }
	return h
}

func (h *harness) addShops(names ...string) []integration.Shop {
	for _, n := range names {
		h.entities.shops = append(h.entities.shops, integration.Shop{
			ID: testutil.NewTestUUID("shop-" + n), TenantID: h.tenantID,
			Provider: integration.ProviderPancake, ExternalID: n, Enabled: true,
		})
	}
	return h.entities.shops
}

func (h *harness) addAccount(name string) integration.AdAccount {
	a := integration.AdAccount{
		ID: testutil.NewTestUUID("account-" + name), TenantID: h.tenantID,
		Provider: integration.ProviderMeta, ExternalID: name, Enabled: true,
	}
	h.entities.accounts = append(h.entities.accounts, a)
	return a
}

func (h *harness) saveWorkflow(t *testing.T, sources ...workflow.SourceType) *workflow.Workflow {
	t.Helper()
	cfg := workflow.SourcesConfig{}
	for _, s := range sources {
		cfg[s] = workflow.SourceConfig{Enabled: true}
	}
	wf := &workflow.Workflow{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   h.tenantID,
		Name:       "daily pull",
		Enabled:    true,
		Sources:    cfg,
		DateRange:  workflow.DateRangeSpec{Type: workflow.DateRangeRelative, Preset: workflow.PresetYesterday},
	}
	require.NoError(t, h.workflows.Save(context.Background(), wf))
	return wf
}

// newExecution stores a PENDING execution of wf covering since..until
func (h *harness) newExecution(t *testing.T, wf *workflow.Workflow, since, until string) *workflow.Execution {
	t.Helper()
	exec := workflow.NewExecution(wf, workflow.TriggerManual, workflow.DateRange{
		Since: testutil.Date(t, since),
		Until: testutil.Date(t, until),
	})
	// creation order decides which pending execution is dispatched next
	h.created++
	exec.CreatedAt = clock.Add(time.Duration(h.created) * time.Second)
	exec.UpdatedAt = exec.CreatedAt
	require.NoError(t, h.executions.Create(context.Background(), exec))
	return exec
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *workflow.Execution {
	t.Helper()
	exec, err := h.executions.FindByID(context.Background(), id)
	require.NoError(t, err)
	return exec
}
