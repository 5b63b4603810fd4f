package telemetry

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/adrecon/backend/internal/domain/integration"
)

const meterName = "adrecon"

// Attribute keys
var (
	AttrStatus    = attribute.Key("status")
	AttrSource    = attribute.Key("source")
	AttrProvider  = attribute.Key("provider")
	AttrErrorKind = attribute.Key("error_kind")
	AttrTrigger   = attribute.Key("trigger")
	AttrHTTPCode  = attribute.Key("http_status")
	AttrDBState   = attribute.Key("state")
	AttrStep      = attribute.Key("step")
)

// ExecutionMetrics records execution lifecycle and source fetch metrics
type ExecutionMetrics struct {
	executions    *Counter
	duration      *Histogram
	units         *Counter
	records       *Counter
	errors        *Counter
	fetchRetries  *Counter
	fetchFailures *Counter
	dispatched    *Counter
	staleSwept    *Counter
	stepDuration  *Histogram
}

// NewExecutionMetrics creates the execution instruments on mp's meter
func NewExecutionMetrics(mp *MeterProvider) (*ExecutionMetrics, error) {
	meter := mp.Meter(meterName)
	m := &ExecutionMetrics{}
	var err error

	if m.executions, err = NewCounter(meter, "recon_executions_total", "Executions reaching a terminal state", "{execution}"); err != nil {
		return nil, err
	}
	if m.duration, err = NewHistogram(meter, HistogramOpts{
		Name:        "recon_execution_duration_seconds",
		Description: "Wall time of finished executions",
		Unit:        "s",
		Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}); err != nil {
		return nil, err
	}
	if m.units, err = NewCounter(meter, "recon_units_completed_total", "Completed (date, entity) fetch units", "{unit}"); err != nil {
		return nil, err
	}
	if m.records, err = NewCounter(meter, "recon_records_fetched_total", "Raw records persisted", "{record}"); err != nil {
		return nil, err
	}
	if m.errors, err = NewCounter(meter, "recon_execution_errors_total", "Errors accumulated by executions", "{error}"); err != nil {
		return nil, err
	}
	if m.fetchRetries, err = NewCounter(meter, "recon_fetch_retries_total", "Provider requests retried", "{request}"); err != nil {
		return nil, err
	}
	if m.fetchFailures, err = NewCounter(meter, "recon_fetch_failures_total", "Provider requests failed after retries", "{request}"); err != nil {
		return nil, err
	}
	if m.dispatched, err = NewCounter(meter, "recon_executions_dispatched_total", "Executions handed to the queue", "{execution}"); err != nil {
		return nil, err
	}
	if m.staleSwept, err = NewCounter(meter, "recon_stale_executions_total", "Stale executions reclassified by the sweeper", "{execution}"); err != nil {
		return nil, err
	}
	if m.stepDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "recon_step_duration_seconds",
		Description: "Duration of per-day reconcile and aggregate steps",
		Unit:        "s",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// StepCompleted records the duration of a reconcile or aggregate step
func (m *ExecutionMetrics) StepCompleted(ctx context.Context, step string, d time.Duration) {
	m.stepDuration.RecordDuration(ctx, d, AttrStep.String(step))
}

// ExecutionFinished records a terminal execution
func (m *ExecutionMetrics) ExecutionFinished(ctx context.Context, status string, d time.Duration) {
	m.executions.Inc(ctx, AttrStatus.String(status))
	m.duration.RecordDuration(ctx, d, AttrStatus.String(status))
}

// UnitCompleted records one finished fetch unit
func (m *ExecutionMetrics) UnitCompleted(ctx context.Context, source string) {
	m.units.Inc(ctx, AttrSource.String(source))
}

// RecordsFetched records persisted raw records
func (m *ExecutionMetrics) RecordsFetched(ctx context.Context, source string, n int) {
	m.records.Add(ctx, int64(n), AttrSource.String(source))
}

// ErrorRecorded records an accumulated execution error
func (m *ExecutionMetrics) ErrorRecorded(ctx context.Context, kind string) {
	m.errors.Inc(ctx, AttrErrorKind.String(kind))
}

// Dispatched records an enqueued execution
func (m *ExecutionMetrics) Dispatched(ctx context.Context, trigger string) {
	m.dispatched.Inc(ctx, AttrTrigger.String(trigger))
}

// StaleReclassified records a sweeper reclassification
func (m *ExecutionMetrics) StaleReclassified(ctx context.Context, status string) {
	m.staleSwept.Inc(ctx, AttrStatus.String(status))
}

// FetchRetried implements source.Observer
func (m *ExecutionMetrics) FetchRetried(ctx context.Context, provider integration.ProviderCode, status int) {
	m.fetchRetries.Inc(ctx, AttrProvider.String(provider.String()), AttrHTTPCode.String(strconv.Itoa(status)))
}

// FetchFailed implements source.Observer
func (m *ExecutionMetrics) FetchFailed(ctx context.Context, provider integration.ProviderCode, status int) {
	m.fetchFailures.Inc(ctx, AttrProvider.String(provider.String()), AttrHTTPCode.String(strconv.Itoa(status)))
}

// RegisterDBPoolMetrics observes sqlDB's pool on every collection
func RegisterDBPoolMetrics(mp *MeterProvider, sqlDB *sql.DB) (metric.Registration, error) {
	meter := mp.Meter(meterName)
	conns, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Database pool connections by state"), metric.WithUnit("{connection}"))
	if err != nil {
		return nil, err
	}
	maxConns, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum open database connections"), metric.WithUnit("{connection}"))
	if err != nil {
		return nil, err
	}
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(maxConns, int64(stats.MaxOpenConnections))
		o.ObserveInt64(conns, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(conns, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(conns, int64(stats.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		return nil
	}, conns, maxConns)
}
