package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const dashboardPrefix = "report:dashboard:"

// Client caches computed report payloads. Keys live under a per-tenant
// namespace so invalidation can clear everything a write touched.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client and verifies connectivity.
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, ttl: ttl}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetDashboard loads a cached dashboard payload into dest. It returns false
// on a miss.
func (c *Client) GetDashboard(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, dashboardPrefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached dashboard: %w", err)
	}
	return true, nil
}

// SetDashboard caches a dashboard payload with the configured TTL.
func (c *Client) SetDashboard(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode dashboard: %w", err)
	}
	return c.rdb.Set(ctx, dashboardPrefix+key, raw, c.ttl).Err()
}

// InvalidateDashboard drops every cached dashboard for the tenant. Keys are
// prefixed with the tenant ID, so a SCAN over the namespace finds them all.
func (c *Client) InvalidateDashboard(ctx context.Context, tenantID string) error {
	pattern := fmt.Sprintf("%s%s:*", dashboardPrefix, tenantID)

	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
