// Package reconciliation turns a day's raw ad insights and orders into reconciled
// ad rows and their campaign roll-ups.
package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/domain/reconcile"
	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/config"
	"github.com/adrecon/backend/internal/infrastructure/telemetry"
)

// Step names reported to the StepObserver
const (
	StepReconcile = "reconcile"
	StepAggregate = "aggregate"
)

// StepObserver receives step timings
type StepObserver interface {
	StepCompleted(ctx context.Context, step string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) StepCompleted(context.Context, string, time.Duration) {}

// Service reconciles and aggregates one tenant day at a time. Both steps replace
// the day's rows in scope, so re-running them with unchanged inputs is a no-op.
type Service struct {
	records  integration.RawRecordRepository
	rows     reconcile.Repository
	versions workflow.VersionBumper
	fees     reconcile.FeeSchedule
	observer StepObserver
	logger   *zap.Logger
}

// Option configures the Service
type Option func(*Service)

// WithFeeSchedule overrides the default fee constants
func WithFeeSchedule(fees reconcile.FeeSchedule) Option {
	return func(s *Service) { s.fees = fees }
}

// WithStepObserver sets the timing observer
func WithStepObserver(o StepObserver) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewService creates a Service
func NewService(records integration.RawRecordRepository, rows reconcile.Repository, versions workflow.VersionBumper, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		records:  records,
		rows:     rows,
		versions: versions,
		fees:     reconcile.DefaultFeeSchedule(),
		observer: nopObserver{},
		logger:   logger.Named("reconciliation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FeeScheduleFromConfig converts configured fee constants, keeping defaults for unset values
func FeeScheduleFromConfig(cfg config.FeesConfig) reconcile.FeeSchedule {
	fees := reconcile.DefaultFeeSchedule()
	set := func(dst *decimal.Decimal, v float64) {
		if v > 0 {
			*dst = decimal.NewFromFloat(v)
		}
	}
	set(&fees.ShippingFee, cfg.ShippingFee)
	set(&fees.FulfillmentFee, cfg.FulfillmentFee)
	set(&fees.InsuranceFee, cfg.InsuranceFee)
	set(&fees.SettlementShippingFee, cfg.SettlementShippingFee)
	set(&fees.SettlementFulfillmentFee, cfg.SettlementFulfillmentFee)
	set(&fees.SettlementInsuranceFee, cfg.SettlementInsuranceFee)
	set(&fees.CODFeeRate, cfg.CODFeeRate)
	set(&fees.DeliveredCODFeeRate, cfg.DeliveredCODFeeRate)
	return fees
}

// ReconcileDay matches the day's orders to ad insights and replaces the day's ad
// rows. It returns the number of rows written; failures are *workflow.ReconciliationError.
func (s *Service) ReconcileDay(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) (int, error) {
	day := date.Format(workflow.DateLayout)
	ctx, span := telemetry.StartSpan(ctx, "reconcile.day",
		telemetry.String("tenant_id", tenantID.String()), telemetry.String("date", day))
	defer span.End()
	start := time.Now()

	fail := func(err error) (int, error) {
		telemetry.RecordError(span, err)
		return 0, &workflow.ReconciliationError{Date: day, Err: err}
	}

	ads, err := s.records.ListAdInsights(ctx, tenantID, date, teamID)
	if err != nil {
		return fail(err)
	}
	orders, err := s.records.ListOrders(ctx, tenantID, date, teamID)
	if err != nil {
		return fail(err)
	}

	rows := reconcile.Match(tenantID, date, ads, orders, s.fees)
	for i := range rows {
		if rows[i].TeamID == nil {
			rows[i].TeamID = teamID
		}
	}
	if err := s.rows.ReplaceAdRows(ctx, tenantID, date, teamID, rows); err != nil {
		return fail(err)
	}

	s.bump(ctx, tenantID)
	s.observer.StepCompleted(ctx, StepReconcile, time.Since(start))
	s.logger.Debug("day reconciled",
		zap.String("tenant_id", tenantID.String()),
		zap.String("date", day),
		zap.Int("ad_insights", len(ads)),
		zap.Int("orders", len(orders)),
		zap.Int("rows", len(rows)))
	return len(rows), nil
}

// AggregateDay rolls the day's ad rows up by campaign and replaces the day's
// campaign rows. Failures are *workflow.AggregationError.
func (s *Service) AggregateDay(ctx context.Context, tenantID uuid.UUID, date time.Time, teamID *uuid.UUID) (int, error) {
	day := date.Format(workflow.DateLayout)
	ctx, span := telemetry.StartSpan(ctx, "aggregate.day",
		telemetry.String("tenant_id", tenantID.String()), telemetry.String("date", day))
	defer span.End()
	start := time.Now()

	adRows, err := s.rows.ListAdRows(ctx, tenantID, date, teamID)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, &workflow.AggregationError{Date: day, Err: err}
	}
	campaigns := reconcile.Aggregate(tenantID, date, adRows)
	if err := s.rows.ReplaceCampaignRows(ctx, tenantID, date, teamID, campaigns); err != nil {
		telemetry.RecordError(span, err)
		return 0, &workflow.AggregationError{Date: day, Err: err}
	}

	s.bump(ctx, tenantID)
	s.observer.StepCompleted(ctx, StepAggregate, time.Since(start))
	return len(campaigns), nil
}

// bump invalidates the tenant's analytics caches. A failed bump leaves caches
// stale until their own TTL and does not fail the step.
func (s *Service) bump(ctx context.Context, tenantID uuid.UUID) {
	if s.versions == nil {
		return
	}
	if _, err := s.versions.BumpVersion(ctx, tenantID); err != nil {
		s.logger.Warn("analytics version bump failed",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
}
