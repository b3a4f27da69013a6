package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"oddsline/ingestion/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	keyPrefix       = "oddsline:"
	lockPrefix      = keyPrefix + "lock:"
	eventsKeyPrefix = keyPrefix + "events:"
)

// releaseScript deletes a lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config holds Redis connection settings
type Config struct {
	Addr     string // host:port
	Password string
	DB       int
}

// RedisCache wraps a Redis client for run locks and cached reads
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// AcquireLock takes a named lock for ttl. ok is false when another holder has it.
// release is a no-op when the lock was not acquired or has already expired.
func (c *RedisCache) AcquireLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error) {
	token, err := newToken()
	if err != nil {
		return func() {}, false, err
	}

	key := lockPrefix + name
	ok, err = c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return func() {}, false, nil
	}

	release = func() {
		// The caller's context may already be cancelled at shutdown
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, c.client, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Str("lock", name).Msg("Failed to release lock")
		}
	}
	return release, true, nil
}

// GetJSON loads a cached value into dest. found is false on a miss.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) (found bool, err error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss()
		return false, nil
	}
	if err != nil {
		metrics.RecordCacheMiss()
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		metrics.RecordCacheMiss()
		return false, fmt.Errorf("failed to decode cache key %s: %w", key, err)
	}

	metrics.RecordCacheHit()
	return true, nil
}

// SetJSON stores value under key for ttl
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache key %s: %w", key, err)
	}
	return c.client.Set(ctx, keyPrefix+key, data, ttl).Err()
}

// UpcomingEventsKey is the cache key for one league's upcoming events
func UpcomingEventsKey(league string) string {
	return "events:upcoming:" + strings.ToUpper(league)
}

// EventKey is the cache key for one event page
func EventKey(eventID string) string {
	return "events:detail:" + eventID
}

// InvalidateEvents drops every cached event read
func (c *RedisCache) InvalidateEvents(ctx context.Context) error {
	var cursor uint64
	var deleted int64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, eventsKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cached events: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete cached events: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	log.Debug().Int64("keys", deleted).Msg("Cached events invalidated")
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
