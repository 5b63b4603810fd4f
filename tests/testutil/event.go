package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/adrecon/backend/internal/domain/workflow"
)

// RecordedEvent is one event captured by a RecordingSink.
type RecordedEvent struct {
	ExecutionID uuid.UUID
	Type        string
	Payload     any
}

// RecordingSink is a workflow.EventSink that keeps every emitted event in order.
type RecordingSink struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// NewRecordingSink creates an empty sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Emit implements workflow.EventSink.
func (s *RecordingSink) Emit(_ context.Context, executionID uuid.UUID, eventType string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, RecordedEvent{ExecutionID: executionID, Type: eventType, Payload: payload})
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []RecordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Types returns the recorded event types in emission order.
func (s *RecordingSink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// Count returns how many events of eventType were recorded.
func (s *RecordingSink) Count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// Reset drops every recorded event.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

var _ workflow.EventSink = (*RecordingSink)(nil)
