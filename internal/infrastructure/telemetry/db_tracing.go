package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig configures database spans
type DBTracingConfig struct {
	LogFullSQL      bool // include bind variables in spans; never in production
	SlowQueryThresh time.Duration
	DBName          string
}

// DBTracingPlugin is a gorm.Plugin that installs otelgorm and marks slow or failed statements
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates the plugin; pass it to persistence.WithPlugin
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBName == "" {
		cfg.DBName = "postgresql"
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// Name implements gorm.Plugin
func (p *DBTracingPlugin) Name() string {
	return "adrecon:db_tracing"
}

// Initialize implements gorm.Plugin
func (p *DBTracingPlugin) Initialize(db *gorm.DB) error {
	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBName)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := db.Callback()
	for _, reg := range []struct {
		before func(name string) error
		after  func(name string) error
	}{
		{
			before: func(n string) error { return cb.Create().Before("gorm:create").Register(n, markStart) },
			after:  func(n string) error { return cb.Create().After("gorm:create").Register(n, p.annotate) },
		},
		{
			before: func(n string) error { return cb.Query().Before("gorm:query").Register(n, markStart) },
			after:  func(n string) error { return cb.Query().After("gorm:query").Register(n, p.annotate) },
		},
		{
			before: func(n string) error { return cb.Update().Before("gorm:update").Register(n, markStart) },
			after:  func(n string) error { return cb.Update().After("gorm:update").Register(n, p.annotate) },
		},
		{
			before: func(n string) error { return cb.Delete().Before("gorm:delete").Register(n, markStart) },
			after:  func(n string) error { return cb.Delete().After("gorm:delete").Register(n, p.annotate) },
		},
		{
			before: func(n string) error { return cb.Raw().Before("gorm:raw").Register(n, markStart) },
			after:  func(n string) error { return cb.Raw().After("gorm:raw").Register(n, p.annotate) },
		},
	} {
		if err := reg.before("adrecon:query_start"); err != nil {
			return err
		}
		if err := reg.after("adrecon:query_annotate"); err != nil {
			return err
		}
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh))
	return nil
}

type queryStartKey struct{}

func markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (p *DBTracingPlugin) annotate(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}

var _ gorm.Plugin = (*DBTracingPlugin)(nil)
