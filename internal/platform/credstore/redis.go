package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultHash is the redis hash holding credentials by store key.
const DefaultHash = "frl:credentials"

// RedisStore keeps credentials in a redis hash, so a fleet of machines can
// share the activations mirrored from their keychains.
type RedisStore struct {
	client *redis.Client
	hash   string
}

func NewRedisStore(addr, password string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	return NewRedisStoreWithClient(rdb, DefaultHash)
}

func NewRedisStoreWithClient(client *redis.Client, hash string) *RedisStore {
	if hash == "" {
		hash = DefaultHash
	}
	return &RedisStore{client: client, hash: hash}
}

func (s *RedisStore) SavedCredential(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis credential lookup: %w", err)
	}
	return v, true, nil
}

// Save stores value under key.
func (s *RedisStore) Save(ctx context.Context, key, value string) error {
	return s.client.HSet(ctx, s.hash, key, value).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
