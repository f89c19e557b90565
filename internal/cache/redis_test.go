package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

// fakeRedisClient implements RedisClientInterface in memory
type fakeRedisClient struct {
	store   map[string]string
	failing bool
	closed  bool
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{store: make(map[string]string)}
}

func (f *fakeRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.failing {
		return redis.NewStatusResult("", fmt.Errorf("connection refused"))
	}
	f.store[key] = fmt.Sprintf("%v", value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.failing {
		return redis.NewStringResult("", fmt.Errorf("connection refused"))
	}
	value, ok := f.store[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.failing {
		return redis.NewIntResult(0, fmt.Errorf("connection refused"))
	}
	var removed int64
	for _, key := range keys {
		if _, ok := f.store[key]; ok {
			delete(f.store, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	if f.failing {
		return redis.NewStatusResult("", fmt.Errorf("connection refused"))
	}
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedisClient) Close() error {
	f.closed = true
	return nil
}

// TestUnreadCount_RoundTrip tests set then get through the cache
func TestUnreadCount_RoundTrip(t *testing.T) {
	client := newFakeRedisClient()
	service := NewRedisServiceWithClient(client)
	ctx := context.Background()

	service.SetUnreadCount(ctx, "user-1", 7)

	count, hit := service.GetUnreadCount(ctx, "user-1")
	assert.True(t, hit)
	assert.Equal(t, 7, count)
}

// TestUnreadCount_Miss tests a cold cache
func TestUnreadCount_Miss(t *testing.T) {
	service := NewRedisServiceWithClient(newFakeRedisClient())

	count, hit := service.GetUnreadCount(context.Background(), "user-unknown")
	assert.False(t, hit)
	assert.Zero(t, count)
}

// TestUnreadCount_Invalidate tests that invalidation forces the next read
// to miss
func TestUnreadCount_Invalidate(t *testing.T) {
	client := newFakeRedisClient()
	service := NewRedisServiceWithClient(client)
	ctx := context.Background()

	service.SetUnreadCount(ctx, "user-1", 3)
	service.InvalidateUnread(ctx, "user-1")

	_, hit := service.GetUnreadCount(ctx, "user-1")
	assert.False(t, hit)
}

// TestUnreadCount_Degradation tests that cache failures surface as misses,
// never as errors
func TestUnreadCount_Degradation(t *testing.T) {
	client := newFakeRedisClient()
	client.failing = true
	service := NewRedisServiceWithClient(client)
	ctx := context.Background()

	// None of these should panic or block.
	service.SetUnreadCount(ctx, "user-1", 5)
	service.InvalidateUnread(ctx, "user-1")

	count, hit := service.GetUnreadCount(ctx, "user-1")
	assert.False(t, hit)
	assert.Zero(t, count)
}

// TestUnreadCount_MalformedValue tests a corrupted cache entry reads as a
// miss
func TestUnreadCount_MalformedValue(t *testing.T) {
	client := newFakeRedisClient()
	client.store[unreadKey("user-1")] = "not-a-number"
	service := NewRedisServiceWithClient(client)

	_, hit := service.GetUnreadCount(context.Background(), "user-1")
	assert.False(t, hit)
}

// TestHealthCheck tests reachability reporting
func TestHealthCheck(t *testing.T) {
	client := newFakeRedisClient()
	service := NewRedisServiceWithClient(client)

	assert.True(t, service.HealthCheck(context.Background()))

	client.failing = true
	assert.False(t, service.HealthCheck(context.Background()))
}

// TestClose tests the client is released
func TestClose(t *testing.T) {
	client := newFakeRedisClient()
	service := NewRedisServiceWithClient(client)

	assert.NoError(t, service.Close())
	assert.True(t, client.closed)
}
