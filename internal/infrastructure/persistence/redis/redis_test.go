package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFromRedis(rdb), mr
}

func TestCache_GetOrLoadSafe(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCache(client)
	ctx := context.Background()

	var loads atomic.Int32
	loader := func() (interface{}, error) {
		loads.Add(1)
		time.Sleep(10 * time.Millisecond)
		return map[string]string{"id": "t1"}, nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := cache.GetOrLoadSafe(ctx, TenantKey("t1"), time.Minute, loader)
			assert.NoError(t, err)
			var got map[string]string
			assert.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, "t1", got["id"])
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.True(t, mr.Exists("tenant:t1"))
	assert.Greater(t, mr.TTL("tenant:t1"), time.Duration(0))

	require.NoError(t, cache.InvalidateTenant(ctx, "t1"))
	assert.False(t, mr.Exists("tenant:t1"))
}

func TestIsNil(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Redis().Get(context.Background(), "missing").Result()
	assert.True(t, IsNil(err))
	assert.True(t, IsNil(fmt.Errorf("load tenant: %w", err)))
	assert.False(t, IsNil(errors.New("connection refused")))
	assert.False(t, IsNil(nil))
}

func TestCache_LoaderErrorNotCached(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCache(client)

	_, err := cache.GetOrLoadSafe(context.Background(), "k", time.Minute, func() (interface{}, error) {
		return nil, errors.New("db down")
	})
	require.EqualError(t, err, "db down")
	assert.False(t, mr.Exists("k"))
}

func TestRateLimiter_Allow(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client)
	now := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()
	key := BuildRateLimitKey("t1", "invoke")

	// 同一毫秒内的请求分别计数
	for i := range 3 {
		ok, err := limiter.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := limiter.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := limiter.Remaining(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	// 窗口滑过后恢复
	now = now.Add(61 * time.Second)
	ok, err = limiter.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, limiter.Reset(ctx, key))
	remaining, err = limiter.Remaining(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}
