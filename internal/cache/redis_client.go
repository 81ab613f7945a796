package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/logging"
)

// Client wraps Redis with the JSON caching helpers the orchestrator
// uses for investigation progress and session counters
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient creates a Redis client from connection parameters
func NewClient(ctx context.Context, host string, port int, password string) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("redis host missing")
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	// fail fast on startup
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logging.Info("redis client connected", "addr", addr)

	return &Client{
		client: client,
		ttl:    15 * time.Minute,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Get retrieves a cached value by key and unmarshals into target.
// Returns true on a hit; a miss is not an error.
func (c *Client) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		logging.Debug("cache miss", "key", key)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), target); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value for key %s: %w", key, err)
	}

	logging.Debug("cache hit", "key", key)
	return true, nil
}

// Set stores a value with the default TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a JSON-marshaled value with a custom TTL
func (c *Client) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", key, err)
	}

	logging.Debug("cache set", "key", key, "ttl", ttl)
	return nil
}

// Delete removes a key
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed for key %s: %w", key, err)
	}
	return nil
}

// Increment bumps a session counter, setting the TTL on first use. Live
// runs track per-session investigation counts this way.
func (c *Client) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr failed for key %s: %w", key, err)
	}
	if n == 1 && ttl > 0 {
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			return n, fmt.Errorf("redis expire failed for key %s: %w", key, err)
		}
	}
	return n, nil
}

// IncrementCostCents adds to a session cost counter in integer cents,
// avoiding float drift across increments
func (c *Client) IncrementCostCents(ctx context.Context, key string, cents int64, ttl time.Duration) (int64, error) {
	n, err := c.client.IncrBy(ctx, key, cents).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby failed for key %s: %w", key, err)
	}
	if n == cents && ttl > 0 {
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			return n, fmt.Errorf("redis expire failed for key %s: %w", key, err)
		}
	}
	return n, nil
}

// DeletePattern deletes all keys matching a pattern, scanning in batches
func (c *Client) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error
		batch, cursor, err = c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan failed for pattern %s: %w", pattern, err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis delete failed for pattern %s: %w", pattern, err)
	}

	logging.Info("cache pattern delete", "pattern", pattern, "deleted", deleted)
	return deleted, nil
}

// ProgressKey is the cache key for an investigation's live progress
func ProgressKey(investigationID string) string {
	return fmt.Sprintf("investigation:%s:progress", investigationID)
}

// SessionCostKey is the counter key for a session's accumulated spend
func SessionCostKey(sessionID string) string {
	return fmt.Sprintf("session:%s:cost_cents", sessionID)
}

// SessionRunsKey is the counter key for a session's investigation count
func SessionRunsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:runs", sessionID)
}
