package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/adrecon/backend/internal/domain/shared"
)

// ExecutionStatus is the state of a workflow execution
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
)

// ActiveStatuses are the non-terminal statuses
var ActiveStatuses = []ExecutionStatus{ExecutionStatusPending, ExecutionStatusRunning}

// IsValid returns true if the status is known
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusCompleted,
		ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses that are never left again
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsCancellable returns true if a cancel request is accepted in this status
func (s ExecutionStatus) IsCancellable() bool {
	return s == ExecutionStatusPending || s == ExecutionStatusRunning
}

// String returns the string representation of ExecutionStatus
func (s ExecutionStatus) String() string {
	return string(s)
}

// TriggerType records what created an execution
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerScheduled TriggerType = "SCHEDULED"
)

// Error sources that are not data sources
const (
	ErrorSourceValidation = "validation"
	ErrorSourceReconcile  = "reconcile"
	ErrorSourceAggregate  = "aggregate"
	ErrorSourceReconciler = "reconciler"
	ErrorSourceSystem     = "system"
)

// ExecutionError is one structured, recorded failure of an execution
type ExecutionError struct {
	Date     string    `json:"date,omitempty"`
	Source   string    `json:"source"`
	EntityID string    `json:"entityId,omitempty"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Execution is one run of a Workflow over a concrete date range
type Execution struct {
	shared.BaseEntity
	WorkflowID   uuid.UUID
	TenantID     uuid.UUID
	TeamID       *uuid.UUID
	TriggerType  TriggerType
	ScheduledFor *time.Time
	Status       ExecutionStatus

	DateRangeSince time.Time
	DateRangeUntil time.Time
	TotalDays      int
	DaysProcessed  int
	TotalUnits     int
	ProcessedUnits int
	// AdsFetched and PosFetched are maintained by the ingestion persister
	AdsFetched int
	PosFetched int
	Errors     []ExecutionError

	QueueJobID  string
	EnqueuedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationMs  int64
}

// NewExecution creates a PENDING execution of wf over r
func NewExecution(wf *Workflow, trigger TriggerType, r DateRange) *Execution {
	return &Execution{
		BaseEntity:     shared.NewBaseEntity(),
		WorkflowID:     wf.ID,
		TenantID:       wf.TenantID,
		TeamID:         wf.TeamID,
		TriggerType:    trigger,
		Status:         ExecutionStatusPending,
		DateRangeSince: r.Since,
		DateRangeUntil: r.Until,
		TotalDays:      len(r.Days()),
		Errors:         []ExecutionError{},
	}
}

// DateRange returns the execution's concrete date range
func (e *Execution) DateRange() DateRange {
	return DateRange{Since: e.DateRangeSince, Until: e.DateRangeUntil}
}

// HasErrors reports a run that completed with recorded partial failures
func (e *Execution) HasErrors() bool {
	return len(e.Errors) > 0
}

// IsDispatched returns true once the execution has been handed to the queue
func (e *Execution) IsDispatched() bool {
	return e.QueueJobID != ""
}

// Progress is the authoritative counter set persisted after each unit of work
type Progress struct {
	DaysProcessed  int
	ProcessedUnits int
	Errors         []ExecutionError
}

// Finish is the data written with a terminal transition
type Finish struct {
	Status      ExecutionStatus
	Progress    Progress
	CompletedAt time.Time
	DurationMs  int64
}
