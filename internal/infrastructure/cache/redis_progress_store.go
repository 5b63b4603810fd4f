// Package cache holds the ephemeral execution progress and the analytics cache version counters.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/config"
)

const (
	progressKeyPrefix = "recon:progress:"
	versionKeyPrefix  = "analytics:version:"

	// DefaultProgressTTL is how long a progress snapshot outlives its last update
	DefaultProgressTTL = 24 * time.Hour
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisProgressStore implements workflow.ProgressStore and workflow.VersionBumper on Redis
type RedisProgressStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisProgressStore creates a store on an existing client
func NewRedisProgressStore(client redis.UniversalClient, ttl time.Duration) *RedisProgressStore {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &RedisProgressStore{client: client, ttl: ttl}
}

// SetProgress writes the snapshot and refreshes its TTL
func (s *RedisProgressStore) SetProgress(ctx context.Context, snap *workflow.ProgressSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := s.client.Set(ctx, progressKey(snap.ExecutionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// GetProgress returns nil, nil when the snapshot has expired or was never written
func (s *RedisProgressStore) GetProgress(ctx context.Context, executionID uuid.UUID) (*workflow.ProgressSnapshot, error) {
	data, err := s.client.Get(ctx, progressKey(executionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	var snap workflow.ProgressSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	return &snap, nil
}

// BumpVersion increments the tenant's analytics cache version
func (s *RedisProgressStore) BumpVersion(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	v, err := s.client.Incr(ctx, versionKeyPrefix+tenantID.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("bump analytics version: %w", err)
	}
	return v, nil
}

func progressKey(id uuid.UUID) string {
	return progressKeyPrefix + id.String()
}

var (
	_ workflow.ProgressStore = (*RedisProgressStore)(nil)
	_ workflow.VersionBumper = (*RedisProgressStore)(nil)
)
