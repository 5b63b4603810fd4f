package execution

import (
	"time"

	"github.com/adrecon/backend/internal/domain/workflow"
)

// ErrorLog accumulates the structured failures of one run. It is a value: Add
// returns a new log and never mutates the receiver's backing array.
type ErrorLog struct {
	entries []workflow.ExecutionError
}

// NewErrorLog starts a log from previously recorded entries
func NewErrorLog(existing []workflow.ExecutionError) ErrorLog {
	entries := make([]workflow.ExecutionError, len(existing))
	copy(entries, existing)
	return ErrorLog{entries: entries}
}

// Add records err against a date, source and entity. Empty date or entity are omitted.
func (l ErrorLog) Add(date, source, entityID string, err error, at time.Time) ErrorLog {
	n := len(l.entries)
	l.entries = append(l.entries[:n:n], workflow.ExecutionError{
		Date:     date,
		Source:   source,
		EntityID: entityID,
		Message:  err.Error(),
		At:       at.UTC(),
	})
	return l
}

// Entries returns a copy of the recorded errors, never nil
func (l ErrorLog) Entries() []workflow.ExecutionError {
	out := make([]workflow.ExecutionError, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded errors
func (l ErrorLog) Len() int { return len(l.entries) }

// CountSource returns how many errors were recorded for source
func (l ErrorLog) CountSource(source string) int {
	n := 0
	for _, e := range l.entries {
		if e.Source == source {
			n++
		}
	}
	return n
}
