// Package event streams execution events to observers. Delivery is fire-and-forget:
// sinks log their own failures and never fail the caller.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/workflow"
)

// Envelope is the wire form of an execution event
type Envelope struct {
	ID          uuid.UUID `json:"id"`
	ExecutionID uuid.UUID `json:"executionId"`
	Type        string    `json:"type"`
	Payload     any       `json:"payload,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

func newEnvelope(executionID uuid.UUID, eventType string, payload any) Envelope {
	return Envelope{
		ID:          uuid.New(),
		ExecutionID: executionID,
		Type:        eventType,
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	}
}

// LogSink writes events to a zap logger; it is the fallback when Redis is unavailable
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("events")}
}

// Emit implements workflow.EventSink
func (s *LogSink) Emit(_ context.Context, executionID uuid.UUID, eventType string, payload any) {
	level := zap.DebugLevel
	switch eventType {
	case workflow.EventStarted, workflow.EventCompleted, workflow.EventCancelled, workflow.EventLog:
		level = zap.InfoLevel
	case workflow.EventFailed:
		level = zap.WarnLevel
	}
	s.logger.Log(level, eventType,
		zap.String("execution_id", executionID.String()),
		zap.Any("payload", payload))
}

// MultiSink fans an event out to several sinks
type MultiSink []workflow.EventSink

// Emit implements workflow.EventSink
func (m MultiSink) Emit(ctx context.Context, executionID uuid.UUID, eventType string, payload any) {
	for _, s := range m {
		s.Emit(ctx, executionID, eventType, payload)
	}
}

var (
	_ workflow.EventSink = (*LogSink)(nil)
	_ workflow.EventSink = MultiSink(nil)
)
