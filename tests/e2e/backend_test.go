//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/domain"
)

var jwtSecret = []byte("e2e-secret-key-at-least-32-characters")

type account struct {
	id       string
	email    string
	password string
	role     string
	verified bool
}

// stubBackend plays the storefront API: it issues signed tokens and serves a
// two-product catalog.
type stubBackend struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]account
	refresh  map[string]string // refresh token -> email
	products map[int64]domain.Product

	RefreshCalls atomic.Int32
}

func newStubBackend() *stubBackend {
	b := &stubBackend{
		accounts: map[string]account{
			"alice@example.com":   {id: "1", email: "alice@example.com", password: "Passw0rd", role: "USER", verified: true},
			"pending@example.com": {id: "2", email: "pending@example.com", password: "Passw0rd", role: "USER"},
			"root@example.com":    {id: "3", email: "root@example.com", password: "Passw0rd", role: "ADMIN", verified: true},
		},
		refresh: make(map[string]string),
		products: map[int64]domain.Product{
			1: {ID: 1, Name: "Phone X", Price: 100, IsActive: true, Type: "PHONE"},
			2: {ID: 2, Name: "Retired Phone", Price: 50, IsActive: false, Type: "PHONE"},
		},
	}

	r := chi.NewRouter()
	r.Post("/auth/login", b.login)
	r.Post("/auth/refresh-token", b.refreshToken)
	r.Get("/products", b.listProducts)
	r.Get("/products/{type}/{id}", b.getProduct)
	b.Server = httptest.NewServer(r)
	return b
}

// issue mints an access/refresh pair. accessTTL may be negative to hand out an
// already expired access token.
func (b *stubBackend) issue(email string, accessTTL time.Duration) domain.Credentials {
	b.mu.Lock()
	acc := b.accounts[email]
	b.mu.Unlock()

	now := time.Now()
	access := sign(jwt.MapClaims{
		"userId":     acc.id,
		"email":      acc.email,
		"role":       acc.role,
		"isVerified": acc.verified,
		"iat":        now.Unix(),
		"exp":        now.Add(accessTTL).Unix(),
	})
	refresh := sign(jwt.MapClaims{
		"userId": acc.id,
		"iat":    now.Unix(),
		"exp":    now.Add(7 * 24 * time.Hour).Unix(),
		"jti":    strconv.FormatInt(now.UnixNano(), 10),
	})

	b.mu.Lock()
	b.refresh[refresh] = email
	b.mu.Unlock()
	return domain.Credentials{AccessToken: access, RefreshToken: refresh}
}

func sign(claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	if err != nil {
		panic(err)
	}
	return token
}

func (b *stubBackend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}

	b.mu.Lock()
	acc, ok := b.accounts[req.Email]
	b.mu.Unlock()
	if !ok || acc.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}

	creds := b.issue(acc.email, 15*time.Minute)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": map[string]interface{}{
			"accessToken":  creds.AccessToken,
			"refreshToken": creds.RefreshToken,
			"expiresIn":    900,
			"user":         map[string]string{"id": acc.id, "username": acc.email, "email": acc.email},
		},
	})
}

func (b *stubBackend) refreshToken(w http.ResponseWriter, r *http.Request) {
	b.RefreshCalls.Add(1)
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}

	b.mu.Lock()
	email, ok := b.refresh[req.RefreshToken]
	delete(b.refresh, req.RefreshToken)
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token revoked"})
		return
	}

	writeJSON(w, http.StatusOK, b.issue(email, 15*time.Minute))
}

func (b *stubBackend) listProducts(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Product, 0, len(b.products))
	for _, p := range b.products {
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": out})
}

func (b *stubBackend) getProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	b.mu.Lock()
	p, ok := b.products[id]
	b.mu.Unlock()
	if !ok || p.Type != chi.URLParam(r, "type") {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Product not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
