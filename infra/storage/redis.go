package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ KV = (*RedisKV)(nil)

// RedisKV keeps the namespace in a single redis hash, so Clear is one DEL.
type RedisKV struct {
	client *redis.Client
	key    string
}

// RedisConfig holds connection settings for the redis driver.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings with a bounded timeout.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisKV(client *redis.Client, prefix, namespace string) *RedisKV {
	return &RedisKV{
		client: client,
		key:    prefix + namespace,
	}
}

func (s *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: hget %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, s.key, key, value).Err(); err != nil {
		return fmt.Errorf("storage: hset %s: %w", key, err)
	}
	return nil
}

func (s *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.key, keys...).Err(); err != nil {
		return fmt.Errorf("storage: hdel: %w", err)
	}
	return nil
}

func (s *RedisKV) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("storage: del %s: %w", s.key, err)
	}
	return nil
}
