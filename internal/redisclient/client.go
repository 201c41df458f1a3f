package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/sync_sequence.lua
var syncSequenceScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb          redis.UniversalClient
	syncScript   *redis.Script
	unlockScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
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

	return NewClientFromRedis(rdb), nil
}

// NewClientFromRedis wraps an existing connection.
func NewClientFromRedis(rdb redis.UniversalClient) *Client {
	return &Client{
		rdb:          rdb,
		syncScript:   redis.NewScript(syncSequenceScript),
		unlockScript: redis.NewScript(releaseLockScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func sequenceKey(series string) string {
	return fmt.Sprintf("sequence:%s", series)
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// IncrementSequence atomically advances a series counter and returns the new value
func (c *Client) IncrementSequence(ctx context.Context, series string) (int64, error) {
	n, err := c.rdb.Incr(ctx, sequenceKey(series)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence %s: %w", series, err)
	}
	return n, nil
}

// SyncSequence raises a series counter to at least floor using a Lua script
func (c *Client) SyncSequence(ctx context.Context, series string, floor int64) error {
	_, err := c.syncScript.Run(ctx, c.rdb, []string{sequenceKey(series)}, floor).Result()
	if err != nil {
		return fmt.Errorf("sync sequence script failed: %w", err)
	}
	return nil
}

// GetIdempotentResult returns the stored result for an idempotency key.
// The boolean is false when the key has not been used.
func (c *Client) GetIdempotentResult(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetIdempotentResult stores the result of a request under its idempotency key with TTL
func (c *Client) SetIdempotentResult(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), value, ttl).Err()
}

// AcquireLock acquires a distributed lock. The returned token must be passed
// to ReleaseLock; it is empty when the lock is held by someone else.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	_, err := c.unlockScript.Run(ctx, c.rdb, []string{lockKey(key)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
