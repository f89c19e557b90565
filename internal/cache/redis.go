package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/scentmatch/scentmatch/internal/telemetry"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisClientInterface is the subset of the Redis client this package uses,
// extracted so tests can substitute a fake.
type RedisClientInterface interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// unreadTTL bounds staleness if an invalidation is ever lost.
const unreadTTL = 5 * time.Minute

// RedisService caches per-user unread message counts. Every method degrades
// gracefully: a cache failure is reported to the caller as a miss, never as
// an operation failure.
type RedisService struct {
	client RedisClientInterface
}

// NewRedisService connects to Redis and instruments the client.
func NewRedisService(config RedisConfig) (*RedisService, error) {
	poolSize := config.PoolSize
	if poolSize == 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	telemetry.InstrumentRedisClient(client)

	return &RedisService{client: client}, nil
}

// NewRedisServiceWithClient wraps an existing client; used by tests.
func NewRedisServiceWithClient(client RedisClientInterface) *RedisService {
	return &RedisService{client: client}
}

func unreadKey(userID string) string {
	return "unread:" + userID
}

// GetUnreadCount returns the cached unread count for userID and whether the
// cache held a value.
func (s *RedisService) GetUnreadCount(ctx context.Context, userID string) (int, bool) {
	value, err := s.client.Get(ctx, unreadKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
				"operation": "cache_get_unread",
				"user_id":   userID,
			}).WithError(err).Warn("Cache read failed, treating as miss")
		}
		return 0, false
	}

	count, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}

	return count, true
}

// SetUnreadCount caches the unread count for userID.
func (s *RedisService) SetUnreadCount(ctx context.Context, userID string, count int) {
	if err := s.client.Set(ctx, unreadKey(userID), strconv.Itoa(count), unreadTTL).Err(); err != nil {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"operation": "cache_set_unread",
			"user_id":   userID,
		}).WithError(err).Warn("Cache write failed")
	}
}

// InvalidateUnread drops the cached unread count for userID. Called after
// any write that changes what is unread for them.
func (s *RedisService) InvalidateUnread(ctx context.Context, userID string) {
	if err := s.client.Del(ctx, unreadKey(userID)).Err(); err != nil {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"operation": "cache_invalidate_unread",
			"user_id":   userID,
		}).WithError(err).Warn("Cache invalidation failed")
	}
}

// HealthCheck reports whether Redis is reachable.
func (s *RedisService) HealthCheck(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// Close releases the underlying client.
func (s *RedisService) Close() error {
	return s.client.Close()
}
