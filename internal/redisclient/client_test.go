package redisclient

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "sequence:order", sequenceKey("order"))
	assert.Equal(t, "idempotency:abc", idempotencyKey("abc"))
	assert.Equal(t, "lock:abc", lockKey("abc"))
}

// newTestClient connects to REDIS_TEST_ADDR; tests are skipped without it.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	c, err := NewClient(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func cleanupKeys(t *testing.T, c *Client, keys ...string) {
	t.Cleanup(func() {
		c.rdb.Del(context.Background(), keys...)
	})
}

func TestIncrementSequenceIsUnique(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	series := "test-" + uuid.New().String()
	cleanupKeys(t, c, sequenceKey(series))

	const workers = 50
	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := c.IncrementSequence(ctx, series)
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers)
	for i := int64(1); i <= workers; i++ {
		assert.True(t, seen[i], "missing value %d", i)
	}
}

func TestSyncSequenceNeverLowers(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	series := "test-" + uuid.New().String()
	cleanupKeys(t, c, sequenceKey(series))

	require.NoError(t, c.SyncSequence(ctx, series, 12))
	n, err := c.IncrementSequence(ctx, series)
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)

	require.NoError(t, c.SyncSequence(ctx, series, 5))
	n, err = c.IncrementSequence(ctx, series)
	require.NoError(t, err)
	assert.Equal(t, int64(14), n)
}

func TestIdempotentResult(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := uuid.New().String()
	cleanupKeys(t, c, idempotencyKey(key))

	_, found, err := c.GetIdempotentResult(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetIdempotentResult(ctx, key, "42", time.Minute))

	val, found, err := c.GetIdempotentResult(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42", val)
}

func TestLockIsExclusive(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := uuid.New().String()
	cleanupKeys(t, c, lockKey(key))

	token, err := c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	other, err := c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, other)

	// A stale token must not release someone else's lock.
	require.NoError(t, c.ReleaseLock(ctx, key, "stale"))
	_, err = c.rdb.Get(ctx, lockKey(key)).Result()
	assert.NoError(t, err)

	require.NoError(t, c.ReleaseLock(ctx, key, token))
	_, err = c.rdb.Get(ctx, lockKey(key)).Result()
	assert.ErrorIs(t, err, redis.Nil)
}
