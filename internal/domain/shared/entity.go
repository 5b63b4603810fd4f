// Package shared holds the identity and timestamp fields common to persisted
// domain records.
package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries the identity and bookkeeping timestamps of a record.
// Timestamps are kept in UTC.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity creates a base entity with a fresh ID, stamped now
func NewBaseEntity() BaseEntity {
	return NewBaseEntityAt(time.Now())
}

// NewBaseEntityAt creates a base entity with a fresh ID, stamped at t
func NewBaseEntityAt(t time.Time) BaseEntity {
	t = t.UTC()
	return BaseEntity{ID: uuid.New(), CreatedAt: t, UpdatedAt: t}
}

// Touch records a modification at t, filling CreatedAt for records built by hand
func (e *BaseEntity) Touch(t time.Time) {
	t = t.UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t
	}
	e.UpdatedAt = t
}
