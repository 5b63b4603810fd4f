// Package ingestion stores fetched source records and keeps the owning
// execution's fetched counters in step.
package ingestion

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/domain/workflow"
)

// Persister upserts raw records by natural key
type Persister struct {
	records    integration.RawRecordRepository
	executions workflow.ExecutionRepository
	logger     *zap.Logger
}

// NewPersister creates a Persister
func NewPersister(records integration.RawRecordRepository, executions workflow.ExecutionRepository, logger *zap.Logger) *Persister {
	return &Persister{records: records, executions: executions, logger: logger.Named("ingestion")}
}

// PersistAdInsights stores the insights fetched for one ad account and returns the
// number of rows written. Every row carries the account's currency multiplier so
// spend converts at reconcile time. A nil executionID skips the counter update.
func (p *Persister) PersistAdInsights(ctx context.Context, tenantID uuid.UUID, executionID *uuid.UUID, account *integration.AdAccount, records []integration.RawAdInsight) (int, error) {
	multiplier := account.Multiplier()
	for i := range records {
		records[i].TenantID = tenantID
		records[i].AdAccountID = account.ID
		records[i].CurrencyMultiplier = multiplier
		if records[i].TeamID == nil {
			records[i].TeamID = account.TeamID
		}
	}
	n, err := p.records.UpsertAdInsights(ctx, records)
	if err != nil {
		return 0, &workflow.PersistenceError{Op: "ad insights of account " + account.ID.String(), Err: err}
	}
	return n, p.count(ctx, executionID, workflow.SourceAds, n)
}

// PersistOrders stores the orders fetched for one shop and returns the number of
// rows written. A nil executionID skips the counter update.
func (p *Persister) PersistOrders(ctx context.Context, tenantID uuid.UUID, executionID *uuid.UUID, shop *integration.Shop, records []integration.RawOrder) (int, error) {
	for i := range records {
		records[i].TenantID = tenantID
		records[i].ShopID = shop.ID
		if records[i].TeamID == nil {
			records[i].TeamID = shop.TeamID
		}
	}
	n, err := p.records.UpsertOrders(ctx, records)
	if err != nil {
		return 0, &workflow.PersistenceError{Op: "orders of shop " + shop.ID.String(), Err: err}
	}
	return n, p.count(ctx, executionID, workflow.SourcePOS, n)
}

func (p *Persister) count(ctx context.Context, executionID *uuid.UUID, source workflow.SourceType, n int) error {
	if executionID == nil || n == 0 {
		return nil
	}
	if err := p.executions.IncrementFetched(ctx, *executionID, source, n); err != nil {
		return &workflow.PersistenceError{Op: "fetched counter", Err: err}
	}
	p.logger.Debug("records persisted",
		zap.String("execution_id", executionID.String()),
		zap.String("source", source.String()),
		zap.Int("rows", n))
	return nil
}
