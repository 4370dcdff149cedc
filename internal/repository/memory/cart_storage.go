// Package memory keeps serialized carts in process memory. It is the default
// backend for local development and loses everything on restart.
package memory

import (
	"context"
	"sync"

	"storefront/internal/domain"
)

// CartStorage implements domain.CartStorage on a map.
type CartStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewCartStorage() *CartStorage {
	return &CartStorage{data: make(map[string][]byte)}
}

func (s *CartStorage) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[key]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *CartStorage) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *CartStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *CartStorage) Ping(context.Context) error {
	return nil
}
