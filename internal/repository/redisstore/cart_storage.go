// Package redisstore stores serialized carts in Redis with a sliding TTL.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/internal/domain"
)

// DefaultTTL is how long an untouched cart survives in Redis.
const DefaultTTL = 7 * 24 * time.Hour

// CartStorage implements domain.CartStorage on Redis string keys.
type CartStorage struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewCartStorage(client redis.UniversalClient, ttl time.Duration) *CartStorage {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CartStorage{client: client, ttl: ttl}
}

// NewClient parses a redis:// URL and returns a connected client.
func NewClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Load returns the blob and slides its expiry forward.
func (s *CartStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetEx(ctx, key, s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (s *CartStorage) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *CartStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (s *CartStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
