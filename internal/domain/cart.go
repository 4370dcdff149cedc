package domain

import (
	"context"
	"errors"
)

var (
	ErrCartNotFound        = errors.New("cart not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrProductUnavailable  = errors.New("product unavailable")
	ErrStorageUnavailable  = errors.New("cart storage unavailable")
	ErrInvalidCartSnapshot = errors.New("invalid cart snapshot")
)

// Product is the catalog view of a sellable item.
type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"reviewCount,omitempty"`
	ImageURL    string  `json:"imgUrl,omitempty"`
	IsActive    bool    `json:"isActive"`
	Type        string  `json:"type"`
}

// CartLineItem is one row of a cart. UnitPrice, Name and Image are copied
// from the product when the row is created and never re-synced.
type CartLineItem struct {
	ProductID int64   `json:"id"`
	Name      string  `json:"name"`
	Image     string  `json:"image,omitempty"`
	UnitPrice float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Subtotal returns UnitPrice * Quantity.
func (i CartLineItem) Subtotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

// CartStorage persists serialized carts under a string key.
// Load returns ErrCartNotFound when nothing is stored under key.
type CartStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
