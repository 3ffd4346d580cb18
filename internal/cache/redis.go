package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smingko/taxinomitis/internal/models"
)

const (
	// keyPrefix namespaces all probe keys in Redis to avoid collisions.
	keyPrefix = "imgprobe:"
)

func init() {
	Register("redis", newRedisCache)
}

// redisCache implements the Cache interface using Redis/Valkey.
//
// Each probe result is stored as its own key ({prefix}{url}) holding the
// JSON-encoded ImageInfo, with a per-key TTL set at write time. Expired
// entries are removed server-side, so there is no application-level LRU
// bookkeeping and OnEvict callbacks are not supported. Size is ignored;
// capacity is governed by the server's maxmemory policy.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger Logger
}

func newRedisCache(cfg ProviderConfig) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Verify connectivity.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &redisCache{
		client: client,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}, nil
}

func (r *redisCache) key(url string) string {
	return keyPrefix + url
}

func (r *redisCache) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, err)
	}
}

func (r *redisCache) Get(url string) (*models.ImageInfo, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := r.client.Get(ctx, r.key(url)).Bytes()
	if err != nil {
		// redis.Nil means the key doesn't exist, a normal cache miss.
		if !errors.Is(err, redis.Nil) {
			r.logError("redis cache Get failed", err)
		}
		return nil, false
	}

	var info models.ImageInfo
	if err := json.Unmarshal(data, &info); err != nil {
		r.logError("redis cache entry is not valid JSON", err)
		return nil, false
	}
	return &info, true
}

func (r *redisCache) Set(url string, info *models.ImageInfo) {
	data, err := json.Marshal(info)
	if err != nil {
		r.logError("redis cache Set marshal failed", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.client.Set(ctx, r.key(url), data, r.ttl).Err(); err != nil {
		r.logError("redis cache Set failed", err)
	}
}

func (r *redisCache) Contains(url string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := r.client.Exists(ctx, r.key(url)).Result()
	if err != nil {
		r.logError("redis cache Contains failed", err)
	}
	return err == nil && n > 0
}

func (r *redisCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", 512).Result()
		if err != nil {
			r.logError("redis cache Len failed", err)
			return 0
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total
		}
	}
}

func (r *redisCache) Close() error {
	return r.client.Close()
}
