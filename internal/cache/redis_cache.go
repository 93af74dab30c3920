package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisRateCache struct {
	client *redis.Client
}

func NewRedisRateCache(addr string, password string, db int) *RedisRateCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisRateCache{client: client}
}

func (c *RedisRateCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRateCache) Close() error {
	return c.client.Close()
}

func (c *RedisRateCache) GetRates(ctx context.Context, key string) (map[string]float64, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rates map[string]float64
	if err := json.Unmarshal([]byte(val), &rates); err != nil {
		return nil, false, err
	}
	return rates, true, nil
}

func (c *RedisRateCache) SetRates(ctx context.Context, key string, rates map[string]float64, ttl time.Duration) error {
	if len(rates) == 0 {
		return nil
	}
	payload, err := json.Marshal(rates)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
