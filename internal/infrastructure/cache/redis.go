package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"honeyshield/internal/config"
	"honeyshield/pkg/logger"
)

// ErrMiss is returned by typed getters when the key is absent.
var ErrMiss = errors.New("cache miss")

// RedisCache wraps the Redis client with typed operations
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *logger.Logger
}

// NewRedis creates a new Redis client
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	log = log.WithComponent("redis")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().Msg("connected to Redis successfully")

	return NewFromClient(client, cfg.KeyPrefix, log), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, keyPrefix string, log *logger.Logger) *RedisCache {
	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    log,
	}
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

// Ping checks the connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// key prepends the namespace prefix to a key
func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// GetJSON retrieves and unmarshals a JSON value. Missing keys yield ErrMiss.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetJSON marshals and stores a value in cache
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	prefixedKeys := make([]string, len(keys))
	for i, k := range keys {
		prefixedKeys[i] = c.key(k)
	}
	return c.client.Del(ctx, prefixedKeys...).Err()
}

// Cache key constants
const (
	KeySeenPrefix      = "seen:"
	KeyRateLimitPrefix = "rate_limit:"
	KeyLockPrefix      = "lock:"
	KeyQueuePrefix     = "queue:"

	KeyDashboardStats = "cache:dashboard:stats"
	KeyDashboardDist  = "cache:dashboard:distribution"

	// EventsChannel carries dashboard events between instances.
	EventsChannel = "events"
)

// MarkSeen records a message fingerprint. It returns false when the
// fingerprint was already recorded within ttl.
func (c *RedisCache) MarkSeen(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.key(KeySeenPrefix+fingerprint), 1, ttl).Result()
}

// Forget removes a fingerprint so the message can be processed again.
func (c *RedisCache) Forget(ctx context.Context, fingerprint string) error {
	return c.Delete(ctx, KeySeenPrefix+fingerprint)
}

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// AcquireLock attempts to take a distributed lock. The returned release
// function is a no-op when the lock was not acquired.
func (c *RedisCache) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, func(), error) {
	token := uuid.NewString()
	key := c.key(KeyLockPrefix + name)
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return false, func() {}, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, c.client, []string{key}, token).Err(); err != nil {
			c.logger.Warn().Err(err).Str("lock", name).Msg("failed to release lock")
		}
	}
	return true, release, nil
}

// CheckRateLimit checks and increments the rate limit counter
// Returns (allowed, remaining, resetTime, error)
func (c *RedisCache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error) {
	now := time.Now()
	bucket := now.Unix() / int64(window.Seconds())
	windowKey := c.key(fmt.Sprintf("%s%s:%d", KeyRateLimitPrefix, key, bucket))

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	count := incr.Val()
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	resetTime := time.Unix((bucket+1)*int64(window.Seconds()), 0)
	return count <= limit, remaining, resetTime, nil
}

// PopQueue removes up to max payloads from a queue. It blocks up to block
// for the first one and returns an empty slice when none arrived. Once a
// payload has been removed it is always returned, even when topping up the
// batch fails.
func (c *RedisCache) PopQueue(ctx context.Context, queue string, max int, block time.Duration) ([][]byte, error) {
	key := c.key(KeyQueuePrefix + queue)
	res, err := c.client.BLPop(ctx, block, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := [][]byte{[]byte(res[1])}
	if max > 1 {
		more, err := c.client.LPopCount(ctx, key, max-1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("queue", queue).Msg("partial batch popped")
			return out, nil
		}
		for _, m := range more {
			out = append(out, []byte(m))
		}
	}
	return out, nil
}

// PushQueue appends payloads to the tail of a queue.
func (c *RedisCache) PushQueue(ctx context.Context, queue string, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	values := make([]any, len(payloads))
	for i, p := range payloads {
		values[i] = p
	}
	return c.client.RPush(ctx, c.key(KeyQueuePrefix+queue), values...).Err()
}
