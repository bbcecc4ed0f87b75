package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

// Cache stores rendered fragments and query results. Invalidate drops
// everything written so far; entries also expire on their own.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{})
	Invalidate(ctx context.Context)
}

// generateHash generates an xxHash hash for the given string
func generateHash(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

// RedisCache namespaces keys by a generation counter kept in Redis, so
// invalidation is a single INCR rather than a key scan.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient creates and pings a Redis client.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) generationKey() string {
	return r.prefix + ":gen"
}

func (r *RedisCache) generation(ctx context.Context) (int64, error) {
	gen, err := r.client.Get(ctx, r.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func entryKey(prefix string, gen int64, key string) string {
	return fmt.Sprintf("%s:%d:%s", prefix, gen, generateHash(key))
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) bool {
	gen, err := r.generation(ctx)
	if err != nil {
		log.Printf("cache: read generation: %v", err)
		return false
	}
	data, err := r.client.Get(ctx, entryKey(r.prefix, gen, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("cache: get %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		log.Printf("cache: decode %s: %v", key, err)
		return false
	}
	return true
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}) {
	gen, err := r.generation(ctx)
	if err != nil {
		log.Printf("cache: read generation: %v", err)
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache: encode %s: %v", key, err)
		return
	}
	if err := r.client.Set(ctx, entryKey(r.prefix, gen, key), data, r.ttl).Err(); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
}

func (r *RedisCache) Invalidate(ctx context.Context) {
	if err := r.client.Incr(ctx, r.generationKey()).Err(); err != nil {
		log.Printf("cache: invalidate: %v", err)
	}
}

// NopCache is used when no Redis address is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string, interface{}) bool { return false }
func (NopCache) Set(context.Context, string, interface{})      {}
func (NopCache) Invalidate(context.Context)                    {}
