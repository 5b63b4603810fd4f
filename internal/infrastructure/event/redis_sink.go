package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/workflow"
)

const channelPrefix = "recon:executions:"

// Channel returns the Pub/Sub channel of an execution
func Channel(executionID uuid.UUID) string {
	return channelPrefix + executionID.String()
}

// RedisPubSubSink publishes events on the execution's channel
type RedisPubSubSink struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewRedisPubSubSink creates a sink on an existing client
func NewRedisPubSubSink(client redis.UniversalClient, logger *zap.Logger) *RedisPubSubSink {
	return &RedisPubSubSink{client: client, logger: logger.Named("events")}
}

// Emit implements workflow.EventSink. Publish failures are logged and dropped.
func (s *RedisPubSubSink) Emit(ctx context.Context, executionID uuid.UUID, eventType string, payload any) {
	data, err := json.Marshal(newEnvelope(executionID, eventType, payload))
	if err != nil {
		s.logger.Warn("event not serializable", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.client.Publish(ctx, Channel(executionID), data).Err(); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("execution_id", executionID.String()),
			zap.String("type", eventType),
			zap.Error(err))
	}
}

// Subscribe streams the execution's events until ctx is done. The returned channel
// is closed when the subscription ends.
func (s *RedisPubSubSink) Subscribe(ctx context.Context, executionID uuid.UUID) (<-chan Envelope, error) {
	sub := s.client.Subscribe(ctx, Channel(executionID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(executionID), err)
	}

	out := make(chan Envelope, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					s.logger.Debug("skipping malformed event", zap.Error(err))
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var _ workflow.EventSink = (*RedisPubSubSink)(nil)
