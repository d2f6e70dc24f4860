package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisOpTimeout bounds individual Redis operations so a slow cache never
// stalls a command.
const redisOpTimeout = 2 * time.Second

// RedisStore keeps one cache entry in Redis. TTL enforcement is delegated
// to the server via key expiry.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore connects to the Redis at url (redis:// form) and scopes
// the entry with the same key+server-hash scheme the file store uses.
func NewRedisStore(url, key, baseURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		key:    "ohc:" + cacheFilename(key, baseURL),
		ttl:    ttl,
	}, nil
}

// Get loads the cached value into dst. Returns false on miss or any
// Redis error.
func (s *RedisStore) Get(dst any) bool {
	if Disabled() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// Put writes the value with the store's TTL. Silently no-ops on error.
func (s *RedisStore) Put(value any) {
	if Disabled() {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	_ = s.client.Set(ctx, s.key, data, s.ttl).Err()
}

// Clear removes the entry.
func (s *RedisStore) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	_ = s.client.Del(ctx, s.key).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// ClearAllRedis removes every entry this tool cached in the Redis at
// url, the redis-backend counterpart of ClearAll. Only keys in the
// "ohc:" namespace are touched. Best-effort: connection and scan
// errors are ignored, same as file removal failures in ClearAll.
func ClearAllRedis(url string) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	iter := client.Scan(ctx, 0, "ohc:*", 0).Iterator()
	for iter.Next(ctx) {
		_ = client.Del(ctx, iter.Val()).Err()
	}
}
