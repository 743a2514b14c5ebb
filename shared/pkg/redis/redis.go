// shared/pkg/redis/redis.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrKeyNotFound is returned by Get when the key does not exist or has expired.
var ErrKeyNotFound = errors.New("key not found")

type Client struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client. addr is either host:port or a redis:// URL.
func NewRedisClient(addr, password string) (*Client, error) {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 10

	return &Client{client: redis.NewClient(opts)}, nil
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get retrieves a value from Redis
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	return val, err
}

// Set stores a value in Redis
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// SetNX stores value only if key does not exist yet and reports whether it did.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, expiration).Result()
}

// SetAll writes every key with the same expiration inside one MULTI/EXEC,
// so readers see either none or all of the values.
func (c *Client) SetAll(ctx context.Context, values map[string]interface{}, expiration time.Duration) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range values {
			pipe.Set(ctx, key, value, expiration)
		}
		return nil
	})
	return err
}

// Push prepends a value to a list and caps the list at maxLen entries.
func (c *Client) Push(ctx context.Context, key string, value interface{}, maxLen int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, value)
		pipe.LTrim(ctx, key, 0, maxLen-1)
		return nil
	})
	return err
}

// Delete removes a key from Redis
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
