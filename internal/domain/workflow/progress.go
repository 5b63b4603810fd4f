package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SourceProgress counts processed entities of one source for the current date
type SourceProgress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// ProgressSnapshot is the ephemeral, cache-backed view of a running execution.
// It is not authoritative: the Execution row holds the counters that must survive eviction.
type ProgressSnapshot struct {
	ExecutionID    uuid.UUID                      `json:"executionId"`
	Status         ExecutionStatus                `json:"status"`
	CurrentDate    string                         `json:"currentDate,omitempty"`
	TotalUnits     int                            `json:"totalUnits"`
	ProcessedUnits int                            `json:"processedUnits"`
	DaysProcessed  int                            `json:"daysProcessed"`
	TotalDays      int                            `json:"totalDays"`
	Sources        map[SourceType]*SourceProgress `json:"sources"`
	UpdatedAt      time.Time                      `json:"updatedAt"`
}

// SnapshotFromExecution builds a snapshot from the authoritative row, used when
// the cache entry has expired
func SnapshotFromExecution(e *Execution) *ProgressSnapshot {
	return &ProgressSnapshot{
		ExecutionID:    e.ID,
		Status:         e.Status,
		TotalUnits:     e.TotalUnits,
		ProcessedUnits: e.ProcessedUnits,
		DaysProcessed:  e.DaysProcessed,
		TotalDays:      e.TotalDays,
		Sources:        map[SourceType]*SourceProgress{},
		UpdatedAt:      e.UpdatedAt,
	}
}

// ProgressStore holds progress snapshots with a TTL
type ProgressStore interface {
	SetProgress(ctx context.Context, snap *ProgressSnapshot) error
	// GetProgress returns nil, nil when no snapshot is cached
	GetProgress(ctx context.Context, executionID uuid.UUID) (*ProgressSnapshot, error)
}

// VersionBumper invalidates downstream analytics caches of a tenant
type VersionBumper interface {
	BumpVersion(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// Execution event names
const (
	EventStarted   = "execution.started"
	EventProgress  = "execution.progress"
	EventLog       = "execution.log"
	EventCompleted = "execution.completed"
	EventFailed    = "execution.failed"
	EventCancelled = "execution.cancelled"
)

// EventSink streams execution events outward; delivery is fire-and-forget
type EventSink interface {
	Emit(ctx context.Context, executionID uuid.UUID, event string, payload any)
}
