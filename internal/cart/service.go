package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/observability"

	"golang.org/x/sync/singleflight"
)

const (
	// How often idle carts are swept from memory
	cleanupInterval = 5 * time.Minute
	// DefaultIdleTTL is how long an untouched cart stays live before it is
	// dropped from memory. Its persisted copy is kept.
	DefaultIdleTTL = 30 * time.Minute
)

type storeEntry struct {
	store      *Store
	lastAccess time.Time
}

// Service hands out one live Store per cart ID so that every request in this
// process mutates the same container. Carts are loaded from storage on first
// use and evicted from memory after being idle for the configured TTL. With
// shared storage the persisted copy is authoritative and live carts are
// re-read on every use.
type Service struct {
	storage domain.CartStorage
	idleTTL time.Duration
	shared  bool

	mu     sync.Mutex
	carts  map[string]*storeEntry
	loads  singleflight.Group
	stopCh chan struct{}
	once   sync.Once
}

// Option customizes a Service.
type Option func(*Service)

// WithSharedStorage declares that other processes write the same storage,
// as with the postgres and redis backends.
func WithSharedStorage() Option {
	return func(s *Service) {
		s.shared = true
	}
}

// NewService creates a Service and starts its background cleanup.
func NewService(storage domain.CartStorage, idleTTL time.Duration, opts ...Option) *Service {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	s := &Service{
		storage: storage,
		idleTTL: idleTTL,
		carts:   make(map[string]*storeEntry),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Open returns the live Store for cartID, rehydrating it from storage when it
// is not already in memory. Concurrent opens of the same cart share one load.
func (s *Service) Open(ctx context.Context, cartID string) (*Store, error) {
	if cartID == "" {
		return nil, fmt.Errorf("open cart: %w", domain.ErrInvalidInput)
	}
	ctx = observability.WithCartID(ctx, cartID)

	s.mu.Lock()
	if entry, ok := s.carts[cartID]; ok {
		entry.lastAccess = time.Now()
		s.mu.Unlock()
		if s.shared {
			if err := entry.store.Load(ctx); err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
			}
		}
		return entry.store, nil
	}
	s.mu.Unlock()

	v, err, _ := s.loads.Do(cartID, func() (interface{}, error) {
		store := NewStore(s.storage, Key(cartID))
		store.shared = s.shared
		if err := store.Load(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		// Another caller may have finished a load between our miss and this point
		if entry, ok := s.carts[cartID]; ok {
			entry.lastAccess = time.Now()
			return entry.store, nil
		}
		s.carts[cartID] = &storeEntry{store: store, lastAccess: time.Now()}
		observability.CartsLive.Set(float64(len(s.carts)))
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// Clear empties the cart identified by cartID after checkout and deletes its
// persisted copy. It goes through Open so a concurrent open of the same cart
// cannot resurrect the old rows.
func (s *Service) Clear(ctx context.Context, cartID string) error {
	store, err := s.Open(ctx, cartID)
	if err != nil {
		return err
	}
	return store.Reset(ctx)
}

// Ping reports whether the backing storage is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// Len returns the number of carts held in memory.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (s *Service) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

func (s *Service) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.evictIdle(time.Now()); n > 0 {
				slog.Debug("evicted idle carts", slog.Int("count", n))
			}
		}
	}
}

// evictIdle drops carts not accessed within idleTTL of now.
func (s *Service) evictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, entry := range s.carts {
		if now.Sub(entry.lastAccess) > s.idleTTL {
			delete(s.carts, id)
			evicted++
		}
	}
	observability.CartsLive.Set(float64(len(s.carts)))
	return evicted
}
