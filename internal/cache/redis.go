package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	redis  *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.redis.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.redis.Set(ctx, s.prefix+key, val, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ok, err := s.redis.SetNX(ctx, s.prefix+key, val, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotStored
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.redis.Del(ctx, s.prefix+key).Err()
}
