package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/domain"
)

// TestJWTSecret signs tokens produced by NewTestToken.
var TestJWTSecret = []byte("test-secret-key-at-least-32-characters-long")

// Counter for generating unique IDs
var idCounter atomic.Int64

// ProductOptions allows customizing product fixture creation
type ProductOptions struct {
	ID       int64
	Name     string
	Price    float64
	ImageURL string
	Type     string
	Inactive bool
}

// NewTestProduct creates an active test product with sensible defaults
func NewTestProduct(opts ...func(*ProductOptions)) *domain.Product {
	id := idCounter.Add(1)
	o := &ProductOptions{
		ID:    id,
		Name:  fmt.Sprintf("Test Product %d", id),
		Price: 10,
		Type:  "PHONE",
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.ImageURL == "" {
		o.ImageURL = fmt.Sprintf("/images/product-%d.png", o.ID)
	}

	return &domain.Product{
		ID:       o.ID,
		Name:     o.Name,
		Price:    o.Price,
		ImageURL: o.ImageURL,
		Type:     o.Type,
		IsActive: !o.Inactive,
	}
}

// WithProductID sets the product ID
func WithProductID(id int64) func(*ProductOptions) {
	return func(o *ProductOptions) {
		o.ID = id
	}
}

// WithPrice sets the unit price
func WithPrice(price float64) func(*ProductOptions) {
	return func(o *ProductOptions) {
		o.Price = price
	}
}

// WithProductType sets the catalog type
func WithProductType(t string) func(*ProductOptions) {
	return func(o *ProductOptions) {
		o.Type = t
	}
}

// WithInactive marks the product as unavailable
func WithInactive() func(*ProductOptions) {
	return func(o *ProductOptions) {
		o.Inactive = true
	}
}

// TokenOptions allows customizing access token fixtures
type TokenOptions struct {
	UserID     string
	Email      string
	Role       string
	IsVerified bool
	ExpiresAt  time.Time
	Secret     []byte
}

// NewTestToken signs an HS256 token with TestJWTSecret. Defaults: a verified
// USER whose token expires in 15 minutes.
func NewTestToken(opts ...func(*TokenOptions)) string {
	o := &TokenOptions{
		UserID:     fmt.Sprintf("%d", idCounter.Add(1)),
		Role:       "USER",
		IsVerified: true,
		ExpiresAt:  time.Now().Add(15 * time.Minute),
		Secret:     TestJWTSecret,
	}

	for _, opt := range opts {
		opt(o)
	}

	claims := jwt.MapClaims{
		"userId":     o.UserID,
		"role":       o.Role,
		"isVerified": o.IsVerified,
		"iat":        time.Now().Unix(),
		"exp":        o.ExpiresAt.Unix(),
	}
	if o.Email != "" {
		claims["email"] = o.Email
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(o.Secret)
	if err != nil {
		panic(fmt.Sprintf("testutil: sign token: %v", err))
	}
	return token
}

// WithRole sets the role claim
func WithRole(role string) func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.Role = role
	}
}

// WithUnverified clears the isVerified claim
func WithUnverified() func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.IsVerified = false
	}
}

// WithTokenEmail sets the email claim
func WithTokenEmail(email string) func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.Email = email
	}
}

// WithExpiresAt sets the exp claim
func WithExpiresAt(t time.Time) func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.ExpiresAt = t
	}
}

// WithSigningSecret signs with a different key
func WithSigningSecret(secret []byte) func(*TokenOptions) {
	return func(o *TokenOptions) {
		o.Secret = secret
	}
}
