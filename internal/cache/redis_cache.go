package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"pasteleria/backend/internal/domain"
)

// RedisPlanCache stores production plans as msgpack payloads; plans carry
// float quantities and short string fields, so msgpack keeps entries small
// without any schema on the Redis side.
type RedisPlanCache struct {
	client *redis.Client
}

func NewRedisPlanCache(addr string, password string, db int) *RedisPlanCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisPlanCache{client: client}
}

func (c *RedisPlanCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPlanCache) Close() error {
	return c.client.Close()
}

func (c *RedisPlanCache) Get(ctx context.Context, key string) (*domain.ProductionPlan, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var plan domain.ProductionPlan
	if err := msgpack.Unmarshal(val, &plan); err != nil {
		return nil, false, err
	}
	return &plan, true, nil
}

func (c *RedisPlanCache) Set(ctx context.Context, key string, value *domain.ProductionPlan, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisPlanCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisPlanCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, planKeyPrefix+"*", 64).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
