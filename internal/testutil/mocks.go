// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the storefront service.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"storefront/internal/domain"
	"storefront/internal/upstream"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockUnavailable    = errors.New("mock: backend unavailable")
)

// MockCartStorage implements domain.CartStorage for testing
type MockCartStorage struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	LoadFunc   func(ctx context.Context, key string) ([]byte, error)
	SaveFunc   func(ctx context.Context, key string, data []byte) error
	DeleteFunc func(ctx context.Context, key string) error
	PingFunc   func(ctx context.Context) error

	// In-memory storage for simple tests
	Data map[string][]byte

	LoadCalls atomic.Int32
	SaveCalls atomic.Int32
}

// NewMockCartStorage creates a new MockCartStorage with initialized maps
func NewMockCartStorage() *MockCartStorage {
	return &MockCartStorage{
		Data: make(map[string][]byte),
	}
}

func (m *MockCartStorage) Load(ctx context.Context, key string) ([]byte, error) {
	m.LoadCalls.Add(1)
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.Data[key]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MockCartStorage) Save(ctx context.Context, key string, data []byte) error {
	m.SaveCalls.Add(1)
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, key, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Data == nil {
		m.Data = make(map[string][]byte)
	}
	m.Data[key] = append([]byte(nil), data...)
	return nil
}

func (m *MockCartStorage) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Data, key)
	return nil
}

func (m *MockCartStorage) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Get returns the raw stored blob for key.
func (m *MockCartStorage) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.Data[key]
	return data, ok
}

// MockTokenRefresher implements domain.TokenRefresher for testing
type MockTokenRefresher struct {
	RefreshFunc func(ctx context.Context, refreshToken string) (domain.Credentials, error)

	Calls atomic.Int32
}

func (m *MockTokenRefresher) Refresh(ctx context.Context, refreshToken string) (domain.Credentials, error) {
	m.Calls.Add(1)
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return domain.Credentials{}, ErrMockNotImplemented
}

// MockAuthAPI mirrors the auth endpoints of upstream.Client.
type MockAuthAPI struct {
	MockTokenRefresher

	LoginFunc          func(ctx context.Context, req upstream.LoginRequest) (*upstream.AuthResult, error)
	RegisterFunc       func(ctx context.Context, req upstream.RegisterRequest) (*upstream.AuthResult, error)
	VerifyEmailFunc    func(ctx context.Context, token string, req upstream.VerifyEmailRequest) error
	ForgotPasswordFunc func(ctx context.Context, emailOrPhone string) error
	ResetPasswordFunc  func(ctx context.Context, req upstream.ResetPasswordRequest) error
}

func (m *MockAuthAPI) Login(ctx context.Context, req upstream.LoginRequest) (*upstream.AuthResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthAPI) Register(ctx context.Context, req upstream.RegisterRequest) (*upstream.AuthResult, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return nil, ErrMockNotImplemented
}

func (m *MockAuthAPI) VerifyEmail(ctx context.Context, token string, req upstream.VerifyEmailRequest) error {
	if m.VerifyEmailFunc != nil {
		return m.VerifyEmailFunc(ctx, token, req)
	}
	return ErrMockNotImplemented
}

func (m *MockAuthAPI) ForgotPassword(ctx context.Context, emailOrPhone string) error {
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, emailOrPhone)
	}
	return ErrMockNotImplemented
}

func (m *MockAuthAPI) ResetPassword(ctx context.Context, req upstream.ResetPasswordRequest) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, req)
	}
	return ErrMockNotImplemented
}

// MockCatalog serves products from memory keyed by id.
type MockCatalog struct {
	mu sync.RWMutex

	ListProductsFunc func(ctx context.Context) ([]domain.Product, error)
	GetProductFunc   func(ctx context.Context, productType string, id int64) (*domain.Product, error)

	Products map[int64]*domain.Product
}

// NewMockCatalog creates a catalog holding products.
func NewMockCatalog(products ...*domain.Product) *MockCatalog {
	m := &MockCatalog{Products: make(map[int64]*domain.Product)}
	for _, p := range products {
		m.Products[p.ID] = p
	}
	return m
}

func (m *MockCatalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if m.ListProductsFunc != nil {
		return m.ListProductsFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Product, 0, len(m.Products))
	for _, p := range m.Products {
		out = append(out, *p)
	}
	return out, nil
}

func (m *MockCatalog) GetProduct(ctx context.Context, productType string, id int64) (*domain.Product, error) {
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, productType, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.Products[id]
	if !ok || (productType != "" && p.Type != productType) {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

// MockCartClearer records cleared cart ids.
type MockCartClearer struct {
	mu sync.Mutex

	ClearFunc func(ctx context.Context, cartID string) error

	Cleared []string
}

func (m *MockCartClearer) Clear(ctx context.Context, cartID string) error {
	if m.ClearFunc != nil {
		if err := m.ClearFunc(ctx, cartID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cleared = append(m.Cleared, cartID)
	return nil
}

// ClearedIDs returns a copy of the recorded ids.
func (m *MockCartClearer) ClearedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Cleared...)
}
