// Package cart holds the shopping cart state container and the registry that
// hands out one live container per cart.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"storefront/internal/domain"
	"storefront/internal/observability"
)

// StorageKey is the fixed key prefix every cart is persisted under.
const StorageKey = "cart-storage"

// Key returns the storage key for a cart.
func Key(cartID string) string {
	return StorageKey + ":" + cartID
}

// Store is the state of one cart. Every mutation is applied to the in-memory
// list and then written through to storage before it returns. A store marked
// shared re-reads storage before each mutation, because other processes write
// the same key.
type Store struct {
	mu      sync.RWMutex
	key     string
	storage domain.CartStorage
	shared  bool
	items   []domain.CartLineItem
}

// NewStore creates an empty store bound to key. Call Load to rehydrate it.
func NewStore(storage domain.CartStorage, key string) *Store {
	return &Store{
		key:     key,
		storage: storage,
		items:   []domain.CartLineItem{},
	}
}

// Load replaces the in-memory state with what is persisted under the store key.
// A missing or undecodable blob leaves the cart empty.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) error {
	data, err := s.storage.Load(ctx, s.key)
	if errors.Is(err, domain.ErrCartNotFound) {
		s.items = []domain.CartLineItem{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load cart %s: %w", s.key, err)
	}

	items, err := decodeSnapshot(data)
	if err != nil {
		observability.FromContext(ctx).Warn("discarding unreadable cart snapshot",
			slog.String("key", s.key),
			slog.String("error", err.Error()))
		items = []domain.CartLineItem{}
	}
	s.items = items
	return nil
}

// syncLocked rehydrates a shared store so a mutation applies to the latest
// persisted cart.
func (s *Store) syncLocked(ctx context.Context) error {
	if !s.shared {
		return nil
	}
	if err := s.loadLocked(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// AddItem increments the quantity of the product's row, or appends a new row
// with quantity 1 holding a snapshot of the product's price and display fields.
func (s *Store) AddItem(ctx context.Context, p domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(ctx); err != nil {
		return err
	}
	if i := s.indexOf(p.ID); i >= 0 {
		s.items[i].Quantity++
	} else {
		s.items = append(s.items, domain.CartLineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.ImageURL,
			UnitPrice: p.Price,
			Quantity:  1,
		})
	}
	return s.persistLocked(ctx)
}

// RemoveItem deletes the product's row. Absent products are a no-op.
func (s *Store) RemoveItem(ctx context.Context, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(ctx); err != nil {
		return err
	}
	s.removeLocked(productID)
	return s.persistLocked(ctx)
}

// UpdateQuantity sets the quantity of the product's row. A quantity of zero or
// less removes the row.
func (s *Store) UpdateQuantity(ctx context.Context, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(ctx); err != nil {
		return err
	}
	if quantity <= 0 {
		s.removeLocked(productID)
	} else if i := s.indexOf(productID); i >= 0 {
		s.items[i].Quantity = quantity
	}
	return s.persistLocked(ctx)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = []domain.CartLineItem{}
	return s.persistLocked(ctx)
}

// Reset empties the cart and deletes its persisted copy, which reads back as
// an empty cart.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = []domain.CartLineItem{}
	if err := s.storage.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("delete cart %s: %w", s.key, err)
	}
	return nil
}

// TotalItems returns the sum of all quantities.
func (s *Store) TotalItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, item := range s.items {
		total += item.Quantity
	}
	return total
}

// TotalPrice returns the sum of unit price times quantity over all rows.
func (s *Store) TotalPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return totalPrice(s.items)
}

// Item looks up the row for productID.
func (s *Store) Item(productID int64) (domain.CartLineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(productID); i >= 0 {
		return s.items[i], true
	}
	return domain.CartLineItem{}, false
}

// Items returns a copy of the rows in insertion order.
func (s *Store) Items() []domain.CartLineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.CartLineItem{}, s.items...)
}

// Summary is a consistent read of the rows and their totals.
type Summary struct {
	Items      []domain.CartLineItem `json:"items"`
	TotalItems int                   `json:"total_items"`
	TotalPrice float64               `json:"total_price"`
}

// Summary returns rows and totals read under a single lock.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		Items:      append([]domain.CartLineItem{}, s.items...),
		TotalPrice: totalPrice(s.items),
	}
	for _, item := range s.items {
		sum.TotalItems += item.Quantity
	}
	return sum
}

func (s *Store) indexOf(productID int64) int {
	for i, item := range s.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(productID int64) {
	if i := s.indexOf(productID); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := encodeSnapshot(s.items)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", s.key, err)
	}
	if err := s.storage.Save(ctx, s.key, data); err != nil {
		return fmt.Errorf("persist cart %s: %w", s.key, err)
	}
	return nil
}

func totalPrice(items []domain.CartLineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}
