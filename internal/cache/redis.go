package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scaleserve/scaleserve/internal/entity"
)

const redisKeyPrefix = "scaleserve"

// Identifiers are hex-encoded inside redis keys so that SCAN patterns stay
// unambiguous for identifiers containing ":" or "*".
func redisVariantKey(key Key) string {
	return fmt.Sprintf("%s:variant:%x:%s", redisKeyPrefix, string(key.ID), key.Hash)
}

func redisInfoKey(id entity.Identifier) string {
	return fmt.Sprintf("%s:info:%x", redisKeyPrefix, string(id))
}

// RedisVariantCache stores variants as redis string values with a TTL.
type RedisVariantCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisVariantCache(client *redis.Client, ttl time.Duration) *RedisVariantCache {
	return &RedisVariantCache{client: client, ttl: ttl}
}

func (c *RedisVariantCache) Open(ctx context.Context, key Key) (io.ReadCloser, *entity.StatResult, error) {
	data, err := c.client.Get(ctx, redisVariantKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil, entity.ErrCacheMiss
	}
	if err != nil {
		return nil, nil, err
	}
	size := int64(len(data))
	return io.NopCloser(bytes.NewReader(data)), &entity.StatResult{Size: &size}, nil
}

func (c *RedisVariantCache) Create(ctx context.Context, key Key) (EntryWriter, error) {
	return newBufferWriter(func(data []byte) error {
		return c.client.Set(ctx, redisVariantKey(key), data, c.ttl).Err()
	}), nil
}

func (c *RedisVariantCache) Stat(ctx context.Context, key Key) (*entity.StatResult, error) {
	size, err := c.client.StrLen(ctx, redisVariantKey(key)).Result()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		exists, err := c.client.Exists(ctx, redisVariantKey(key)).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, entity.ErrCacheMiss
		}
	}
	return &entity.StatResult{Size: &size}, nil
}

func (c *RedisVariantCache) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	pattern := fmt.Sprintf("%s:variant:%x:*", redisKeyPrefix, string(id))
	return c.evictPattern(ctx, pattern)
}

func (c *RedisVariantCache) EvictAll(ctx context.Context) error {
	return c.evictPattern(ctx, redisKeyPrefix+":variant:*")
}

func (c *RedisVariantCache) evictPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// RedisInfoCache stores serialized infos as redis string values.
type RedisInfoCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisInfoCache(client *redis.Client, ttl time.Duration) *RedisInfoCache {
	return &RedisInfoCache{client: client, ttl: ttl}
}

func (c *RedisInfoCache) Put(ctx context.Context, id entity.Identifier, info *entity.Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisInfoKey(id), data, c.ttl).Err()
}

func (c *RedisInfoCache) Get(ctx context.Context, id entity.Identifier) (*entity.Info, error) {
	data, err := c.client.Get(ctx, redisInfoKey(id)).Bytes()
	if err == redis.Nil {
		return nil, entity.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var info entity.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *RedisInfoCache) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	return c.client.Del(ctx, redisInfoKey(id)).Err()
}

func (c *RedisInfoCache) EvictAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+":info:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *RedisInfoCache) EvictInvalid(ctx context.Context) (int, error) {
	evicted := 0
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+":info:*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := c.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var info entity.Info
		if err := json.Unmarshal(data, &info); err == nil && info.Valid() {
			continue
		}
		if err := c.client.Del(ctx, iter.Val()).Err(); err == nil {
			evicted++
		}
	}
	return evicted, iter.Err()
}
