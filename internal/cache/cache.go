// Package cache provides a Redis-backed result cache keyed by scenario
// content hash, so identical scenarios are not re-simulated.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stochastix/riskd/internal/config"
	"github.com/stochastix/riskd/pkg/metrics"
)

const resultKeyPrefix = "riskd:result:"

// ResultCache caches serialized run results.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*ResultCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	logger.Info("Result cache connected", zap.String("address", cfg.Address))
	return &ResultCache{client: client, ttl: cfg.TTL, logger: logger}, nil
}

// Get returns the cached payload for a scenario hash, or ok=false on a miss.
func (c *ResultCache) Get(ctx context.Context, hash string) ([]byte, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	payload, err := c.client.Get(ctx, resultKeyPrefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get failed: %w", err)
	}
	metrics.CacheHits.Inc()
	return payload, true, nil
}

// Set stores a payload under a scenario hash with the configured TTL.
func (c *ResultCache) Set(ctx context.Context, hash string, payload []byte) error {
	if c == nil {
		return nil
	}
	if err := c.client.Set(ctx, resultKeyPrefix+hash, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set failed: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *ResultCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
