package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"rekapin/backend/internal/domain"
)

const scanBatch = 100

type RedisRecapCache struct {
	client *redis.Client
}

func NewRedisRecapCache(addr string, password string, db int) *RedisRecapCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisRecapCache{client: client}
}

func (c *RedisRecapCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRecapCache) Close() error {
	return c.client.Close()
}

func (c *RedisRecapCache) Get(ctx context.Context, key string) (*domain.RecapReport, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.RecapReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisRecapCache) Set(ctx context.Context, key string, value *domain.RecapReport, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisRecapCache) Invalidate(ctx context.Context, date string) error {
	keys := make([]string, 0, 4)
	iter := c.client.Scan(ctx, 0, recapDatePattern(date), scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
