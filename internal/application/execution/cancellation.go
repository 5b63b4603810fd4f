package execution

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/adrecon/backend/internal/domain/workflow"
)

// StatusReader reads the persisted status of an execution
type StatusReader interface {
	GetStatus(ctx context.Context, id uuid.UUID) (workflow.ExecutionStatus, error)
}

// CancellationChecker polls the persisted status of one execution. With a zero
// interval every Check reads the store; otherwise reads are at least interval
// apart and Checks in between report the last observation. A run therefore
// notices a cancel within interval plus the unit of work in progress.
type CancellationChecker struct {
	reader      StatusReader
	executionID uuid.UUID
	interval    time.Duration
	now         func() time.Time

	lastRead  time.Time
	cancelled bool
}

// NewCancellationChecker creates a checker for executionID
func NewCancellationChecker(reader StatusReader, executionID uuid.UUID, interval time.Duration) *CancellationChecker {
	return &CancellationChecker{
		reader:      reader,
		executionID: executionID,
		interval:    interval,
		now:         time.Now,
	}
}

// Check reports whether the execution has been cancelled. Once a cancel is
// observed it stays observed without further reads.
func (c *CancellationChecker) Check(ctx context.Context) (bool, error) {
	if c.cancelled {
		return true, nil
	}
	now := c.now()
	if c.interval > 0 && !c.lastRead.IsZero() && now.Sub(c.lastRead) < c.interval {
		return false, nil
	}
	status, err := c.reader.GetStatus(ctx, c.executionID)
	if err != nil {
		return false, err
	}
	c.lastRead = now
	c.cancelled = status == workflow.ExecutionStatusCancelled
	return c.cancelled, nil
}
