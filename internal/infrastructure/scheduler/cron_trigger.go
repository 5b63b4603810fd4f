// Package scheduler runs the background loops that keep executions moving:
// the cron trigger for scheduled workflows and the stale-execution sweep.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/workflow"
)

// ScheduledWorkflowLister lists the workflows that carry a cron schedule
type ScheduledWorkflowLister interface {
	ListScheduled(ctx context.Context) ([]workflow.Workflow, error)
}

// ScheduledCreator creates and dispatches the execution of one schedule slot
type ScheduledCreator interface {
	CreateScheduled(ctx context.Context, wf *workflow.Workflow, scheduledFor time.Time) (*workflow.Execution, error)
}

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// CheckInterval is how often schedules are evaluated
	CheckInterval time.Duration
	// MaxCatchUp caps the slots fired per workflow in one check, e.g. after downtime
	MaxCatchUp int
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		CheckInterval: time.Minute,
		MaxCatchUp:    1,
	}
}

// CronTrigger creates SCHEDULED executions for workflows whose cron slot has come
type CronTrigger struct {
	config    CronTriggerConfig
	workflows ScheduledWorkflowLister
	creator   ScheduledCreator
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastTick  time.Time
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(
	config CronTriggerConfig,
	workflows ScheduledWorkflowLister,
	creator ScheduledCreator,
	logger *zap.Logger,
) *CronTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.MaxCatchUp <= 0 {
		config.MaxCatchUp = 1
	}
	return &CronTrigger{
		config:    config,
		workflows: workflows,
		creator:   creator,
		logger:    logger.Named("cron_trigger"),
		now:       time.Now,
	}
}

// Start starts the cron trigger. Slots are evaluated from one check interval
// before the start, so a restart inside a slot's minute does not miss it.
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.lastTick = c.now().Add(-c.config.CheckInterval)
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Cron trigger started",
		zap.Duration("check_interval", c.config.CheckInterval),
		zap.Int("max_catch_up", c.config.MaxCatchUp),
	)
	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check fires every slot that fell due since the previous check and returns
// the number of executions created
func (c *CronTrigger) Check(ctx context.Context) int {
	now := c.now()
	c.mu.Lock()
	from := c.lastTick
	if from.IsZero() {
		from = now.Add(-c.config.CheckInterval)
	}
	c.mu.Unlock()

	workflows, err := c.workflows.ListScheduled(ctx)
	if err != nil {
		c.logger.Error("Failed to list scheduled workflows", zap.Error(err))
		return 0
	}

	created := 0
	for i := range workflows {
		if ctx.Err() != nil {
			return created
		}
		created += c.fire(ctx, &workflows[i], from, now)
	}

	c.mu.Lock()
	c.lastTick = now
	c.mu.Unlock()
	return created
}

// fire creates the executions of wf's slots in (from, now]
func (c *CronTrigger) fire(ctx context.Context, wf *workflow.Workflow, from, now time.Time) int {
	if !wf.HasSchedule() {
		return 0
	}
	schedule, err := cron.ParseStandard(wf.CronSchedule)
	if err != nil {
		c.logger.Warn("Invalid cron schedule",
			zap.String("workflow_id", wf.ID.String()),
			zap.String("cron", wf.CronSchedule),
			zap.Error(err))
		return 0
	}

	created := 0
	// Next follows the location of its argument, so slots are in the workflow's zone
	next := schedule.Next(from.In(wf.Location()))
	for fired := 0; !next.After(now) && fired < c.config.MaxCatchUp; fired++ {
		exec, err := c.creator.CreateScheduled(ctx, wf, next)
		switch {
		case errors.Is(err, workflow.ErrExecutionDuplicate):
			c.logger.Debug("Schedule slot already taken",
				zap.String("workflow_id", wf.ID.String()),
				zap.Time("scheduled_for", next))
		case err != nil:
			c.logger.Error("Failed to create scheduled execution",
				zap.String("workflow_id", wf.ID.String()),
				zap.Time("scheduled_for", next),
				zap.Error(err))
		default:
			created++
			c.logger.Info("Scheduled execution created",
				zap.String("tenant_id", wf.TenantID.String()),
				zap.String("workflow_id", wf.ID.String()),
				zap.String("execution_id", exec.ID.String()),
				zap.Time("scheduled_for", next))
		}
		next = schedule.Next(next)
	}
	return created
}
