// Package cache provides the active-suggestion cache backing the
// suggestion manager: a Redis adapter for deployments and an in-process
// fallback for single-node and test use.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tasksense/internal/config"
	"tasksense/internal/logging"
	"tasksense/pkg/types"
)

// SuggestionCache stores each user's active suggestion list as a JSON
// blob under a per-user key with a TTL. Cache errors are logged and
// treated as misses; the store remains the source of truth.
type SuggestionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logging.Logger
}

// ErrDisabled reports that the config carries no Redis address. Callers
// match it with errors.Is and run without a cache.
var ErrDisabled = errors.New("suggestion cache disabled: no redis address configured")

// NewSuggestionCache connects to Redis per the config. An empty Addr
// returns ErrDisabled rather than a nil cache, so the result is never a
// typed nil hiding inside an interface.
func NewSuggestionCache(cfg config.RedisConfig, logger logging.Logger) (*SuggestionCache, error) {
	if cfg.Addr == "" {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &SuggestionCache{
		client: client,
		ttl:    time.Duration(cfg.TTLSeconds) * time.Second,
		logger: logger.WithComponent("cache"),
	}, nil
}

func suggestionKey(userID string) string {
	return "tasksense:suggestions:active:" + userID
}

// GetActive returns the cached active list, or a miss on any error.
func (c *SuggestionCache) GetActive(ctx context.Context, userID string) ([]*types.Suggestion, bool) {
	raw, err := c.client.Get(ctx, suggestionKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache read failed", "user_id", userID, "error", err)
		}
		return nil, false
	}

	var suggestions []*types.Suggestion
	if err := json.Unmarshal(raw, &suggestions); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", "user_id", userID, "error", err)
		c.Invalidate(ctx, userID)
		return nil, false
	}
	return suggestions, true
}

// SetActive replaces the cached list. Failures are logged; the caller
// keeps going since the store already holds the data.
func (c *SuggestionCache) SetActive(ctx context.Context, userID string, suggestions []*types.Suggestion) {
	raw, err := json.Marshal(suggestions)
	if err != nil {
		c.logger.Warn("cache encode failed", "user_id", userID, "error", err)
		return
	}
	if err := c.client.Set(ctx, suggestionKey(userID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "user_id", userID, "error", err)
	}
}

// Invalidate drops the user's cached list.
func (c *SuggestionCache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, suggestionKey(userID)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", "user_id", userID, "error", err)
	}
}

// Close releases the underlying connection pool.
func (c *SuggestionCache) Close() error {
	return c.client.Close()
}
