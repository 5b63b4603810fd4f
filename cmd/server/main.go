package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adrecon/backend/internal/application/execution"
	"github.com/adrecon/backend/internal/application/ingestion"
	"github.com/adrecon/backend/internal/application/reconciliation"
	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/cache"
	"github.com/adrecon/backend/internal/infrastructure/config"
	"github.com/adrecon/backend/internal/infrastructure/credential"
	"github.com/adrecon/backend/internal/infrastructure/event"
	"github.com/adrecon/backend/internal/infrastructure/logger"
	"github.com/adrecon/backend/internal/infrastructure/migration"
	"github.com/adrecon/backend/internal/infrastructure/persistence"
	"github.com/adrecon/backend/internal/infrastructure/queue"
	"github.com/adrecon/backend/internal/infrastructure/scheduler"
	"github.com/adrecon/backend/internal/infrastructure/source"
	"github.com/adrecon/backend/internal/infrastructure/telemetry"
	"github.com/adrecon/backend/internal/interfaces/http/handler"
	"github.com/adrecon/backend/internal/interfaces/http/router"
	"github.com/adrecon/backend/migrations"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Server exited with error: %v\n", err)
		os.Exit(1)
	}
}

// worker is the queue side of the process; asynq and inline modes differ only here
type worker interface {
	start(ctx context.Context) error
	stop(ctx context.Context) error
}

func run(ctx context.Context, cfg *config.Config) error {
	bootLog, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logProvider, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry, bootLog)
	if err != nil {
		return fmt.Errorf("init log exporter: %w", err)
	}
	log := bootLog
	if logProvider.IsEnabled() {
		if log, err = logger.New(&cfg.Log, logProvider.ZapCore(cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting reconciliation engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("queue_mode", cfg.Queue.Mode))

	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init meter provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := errors.Join(
			tracerProvider.Shutdown(shutdownCtx),
			meterProvider.Shutdown(shutdownCtx),
			logProvider.Shutdown(shutdownCtx),
		); err != nil {
			log.Warn("Telemetry shutdown incomplete", zap.Error(err))
		}
	}()

	// Database
	dbOpts := []persistence.Option{
		persistence.WithLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 200*time.Millisecond)),
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbOpts = append(dbOpts, persistence.WithPlugin(telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			LogFullSQL: cfg.Telemetry.DBLogFullSQL,
			DBName:     cfg.Database.DBName,
		}, log)))
	}
	db, err := persistence.NewDatabase(&cfg.Database, dbOpts...)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database connection", zap.Error(err))
		}
	}()
	sqlDB, err := db.SQL()
	if err != nil {
		return err
	}
	log.Info("Database connected", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.DBName))

	migrator, err := migration.NewEmbedded(sqlDB, migrations.FS, log)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	if reg, err := telemetry.RegisterDBPoolMetrics(meterProvider, sqlDB); err != nil {
		log.Warn("DB pool metrics unavailable", zap.Error(err))
	} else {
		defer func() { _ = reg.Unregister() }()
	}
	metrics, err := telemetry.NewExecutionMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("init execution metrics: %w", err)
	}

	// Progress store and analytics versions
	progress, redisClient, err := cache.NewStoreFactory(cfg.Redis, cfg.Execution.ProgressTTL,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.Queue.Mode == config.QueueModeInline),
	).CreateStore(ctx)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var events workflow.EventSink = event.NewLogSink(log)
	if redisClient != nil {
		events = event.MultiSink{event.NewRedisPubSubSink(redisClient, log), events}
	}

	// Sources
	resolver, err := credential.NewSecretboxResolver(db.DB, cfg.Credentials.SecretKey, log)
	if err != nil {
		return fmt.Errorf("init credential resolver: %w", err)
	}
	sources, err := source.NewDefaultRegistry(&cfg.Sources, resolver, metrics, log)
	if err != nil {
		return fmt.Errorf("init source registry: %w", err)
	}

	// Repositories and services
	executions := persistence.NewGormExecutionRepository(db.DB)
	workflows := persistence.NewGormWorkflowRepository(db.DB)
	rawRecords := persistence.NewGormRawRecordRepository(db.DB)
	reconciler := reconciliation.NewService(rawRecords, persistence.NewGormReconciledRowRepository(db.DB), progress, log,
		reconciliation.WithFeeSchedule(reconciliation.FeeScheduleFromConfig(cfg.Fees)),
		reconciliation.WithStepObserver(metrics),
	)

	processor := execution.NewProcessor(execution.Deps{
		Executions: executions,
		Workflows:  workflows,
		Entities:   persistence.NewGormEntityRepository(db.DB),
		Sources:    sources,
		Persister:  ingestion.NewPersister(rawRecords, executions, log),
		Reconciler: reconciler,
		Progress:   progress,
		Events:     events,
		Metrics:    metrics,
	}, execution.ProcessorConfig{
		CancelPollInterval: cfg.Execution.CancelPollInterval,
		SourceDelays: map[workflow.SourceType]time.Duration{
			workflow.SourceAds: cfg.Sources.AdsDelay,
			workflow.SourcePOS: cfg.Sources.POSDelay,
		},
	}, log)

	broker, jobs, err := newQueue(cfg, processor, log)
	if err != nil {
		return err
	}
	sched := execution.NewScheduler(workflows, executions, broker, progress, events, metrics, log)
	processor.SetDispatcher(sched)

	if err := jobs.start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := jobs.stop(stopCtx); err != nil {
			log.Warn("Queue worker stop incomplete", zap.Error(err))
		}
	}()

	if cfg.Scheduler.Enabled {
		trigger := scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
			CheckInterval: cfg.Scheduler.CronCheckInterval,
			MaxCatchUp:    cfg.Scheduler.MaxCatchUpPerCheck,
		}, workflows, sched, log)
		sweeper := scheduler.NewStaleExecutionReconciler(scheduler.StaleReconcilerConfig{
			Interval:  cfg.Scheduler.SweepInterval,
			Threshold: cfg.Scheduler.StaleThreshold,
			BatchSize: cfg.Scheduler.SweepBatchSize,
		}, executions, broker, sched, events, metrics, log)

		if err := trigger.Start(ctx); err != nil {
			return err
		}
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = trigger.Stop(stopCtx)
			_ = sweeper.Stop(stopCtx)
		}()
	} else {
		log.Info("Scheduler disabled; only manual executions run")
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, err := router.NewEngine(router.EngineConfig{
		HTTP:           cfg.HTTP,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: tracerProvider.IsEnabled(),
		MeterProvider:  meterProvider,
	}, router.Handlers{
		Executions: handler.NewExecutionHandler(sched),
		Health:     handler.NewHealthHandler(healthChecks(db.PingContext, redisClient)),
	}, log)
	if err != nil {
		return fmt.Errorf("build http engine: %w", err)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server exited")
	return nil
}

// newQueue builds the broker the scheduler enqueues on and the worker that feeds
// the processor
func newQueue(cfg *config.Config, processor *execution.Processor, log *zap.Logger) (workflow.Broker, worker, error) {
	if cfg.Queue.Mode == config.QueueModeInline {
		inlineCfg := queue.DefaultInlineConfig()
		if cfg.Queue.Concurrency > 0 {
			inlineCfg.Workers = cfg.Queue.Concurrency
		}
		if cfg.Queue.BufferSize > 0 {
			inlineCfg.BufferSize = cfg.Queue.BufferSize
		}
		if cfg.Queue.MaxRetry > 0 {
			inlineCfg.MaxRetry = cfg.Queue.MaxRetry
		}
		b := queue.NewInlineBroker(inlineCfg, processor, log)
		return b, inlineWorker{b}, nil
	}

	if !cfg.Redis.Enabled {
		return nil, nil, fmt.Errorf("queue mode %q requires redis", cfg.Queue.Mode)
	}
	opt := queue.RedisOpt(cfg.Redis)
	qcfg := queue.ConfigFromQueue(cfg.Queue)
	b := queue.NewAsynqBroker(opt, qcfg, log)
	return b, asynqWorker{broker: b, worker: queue.NewWorker(opt, qcfg, processor, log)}, nil
}

type inlineWorker struct{ b *queue.InlineBroker }

func (w inlineWorker) start(ctx context.Context) error { return w.b.Start(ctx) }
func (w inlineWorker) stop(ctx context.Context) error  { return w.b.Stop(ctx) }

type asynqWorker struct {
	broker *queue.AsynqBroker
	worker *queue.Worker
}

func (w asynqWorker) start(context.Context) error { return w.worker.Start() }

func (w asynqWorker) stop(context.Context) error {
	w.worker.Stop()
	return w.broker.Close()
}

func healthChecks(pingDB handler.HealthCheck, client *redis.Client) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{"database": pingDB}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}
