package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/infrastructure/config"
)

// ProgressBackend is a progress store that also bumps analytics versions
type ProgressBackend interface {
	workflow.ProgressStore
	workflow.VersionBumper
}

// StoreFactory creates the progress backend based on configuration
type StoreFactory struct {
	redisConfig           config.RedisConfig
	ttl                   time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// StoreFactoryOption configures the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the factory's logger
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) { f.logger = logger }
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the
// in-memory store. Default true.
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) { f.allowInMemoryFallback = allow }
}

// NewStoreFactory creates a factory
func NewStoreFactory(cfg config.RedisConfig, ttl time.Duration, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		redisConfig:           cfg,
		ttl:                   ttl,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns a Redis-backed store, or the in-memory store when Redis is
// disabled or unreachable and fallback is allowed. The returned client is nil for
// the in-memory store.
func (f *StoreFactory) CreateStore(ctx context.Context) (ProgressBackend, *redis.Client, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory progress store")
		return NewInMemoryProgressStore(f.ttl), nil, nil
	}

	client, err := NewRedisClient(ctx, &f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis progress store", zap.String("addr", f.redisConfig.Addr()))
		return NewRedisProgressStore(client, f.ttl), client, nil
	}
	if !f.allowInMemoryFallback {
		return nil, nil, fmt.Errorf("redis required for progress store but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory progress store. "+
		"Progress and analytics versions are not shared across instances.",
		zap.Error(err))
	return NewInMemoryProgressStore(f.ttl), nil, nil
}
