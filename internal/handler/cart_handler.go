package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storefront/internal/cart"
	"storefront/internal/domain"
	"storefront/internal/observability"
)

const (
	CartCookie    = "cart_id"
	cartCookieAge = 30 * 24 * time.Hour
)

// CatalogAPI looks products up in the backend catalog.
type CatalogAPI interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productType string, id int64) (*domain.Product, error)
}

// CartOpener hands out the live store for a cart id.
type CartOpener interface {
	Open(ctx context.Context, cartID string) (*cart.Store, error)
}

// CartHandler serves the guest cart identified by the cart_id cookie.
type CartHandler struct {
	carts   CartOpener
	catalog CatalogAPI
	secure  bool
}

func NewCartHandler(carts CartOpener, catalog CatalogAPI, secureCookies bool) *CartHandler {
	return &CartHandler{
		carts:   carts,
		catalog: catalog,
		secure:  secureCookies,
	}
}

type addItemRequest struct {
	ProductID   int64  `json:"product_id"`
	ProductType string `json:"product_type"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

// Get returns the cart with totals. A visitor without a cart gets an empty
// one and no cookie until the first write.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(r)
	if !ok {
		writeJSON(w, http.StatusOK, cart.Summary{Items: []domain.CartLineItem{}})
		return
	}

	store, ok := h.open(w, r, cartID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, store.Summary())
}

// AddItem adds one unit of a product, snapshotting its price and display
// fields from the catalog when the row is new.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 || req.ProductType == "" {
		http.Error(w, `{"error":"product_id and product_type are required"}`, http.StatusBadRequest)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), req.ProductType, req.ProductID)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	if !product.IsActive {
		writeError(w, http.StatusConflict, domain.ErrProductUnavailable.Error())
		return
	}

	store, ok := h.open(w, r, h.ensureCartID(w, r))
	if !ok {
		return
	}
	if !h.persisted(w, r, "add", store.AddItem(r.Context(), *product)) {
		return
	}
	writeJSON(w, http.StatusOK, store.Summary())
}

// UpdateQuantity sets a row's quantity; zero or less removes the row.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req updateQuantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		http.Error(w, `{"error":"quantity is required"}`, http.StatusBadRequest)
		return
	}

	store, ok := h.open(w, r, h.ensureCartID(w, r))
	if !ok {
		return
	}
	if !h.persisted(w, r, "update", store.UpdateQuantity(r.Context(), productID, *req.Quantity)) {
		return
	}
	writeJSON(w, http.StatusOK, store.Summary())
}

// RemoveItem deletes a row. Removing an absent product is not an error.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	store, ok := h.open(w, r, h.ensureCartID(w, r))
	if !ok {
		return
	}
	if !h.persisted(w, r, "remove", store.RemoveItem(r.Context(), productID)) {
		return
	}
	writeJSON(w, http.StatusOK, store.Summary())
}

// Clear empties the cart.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(r)
	if !ok {
		writeJSON(w, http.StatusOK, cart.Summary{Items: []domain.CartLineItem{}})
		return
	}

	store, ok := h.open(w, r, cartID)
	if !ok {
		return
	}
	if !h.persisted(w, r, "clear", store.Clear(r.Context())) {
		return
	}
	writeJSON(w, http.StatusOK, store.Summary())
}

// cartID reads a well-formed cart id from the cookie.
func (h *CartHandler) cartID(r *http.Request) (string, bool) {
	ck, err := r.Cookie(CartCookie)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(ck.Value); err != nil {
		return "", false
	}
	return ck.Value, true
}

// ensureCartID returns the visitor's cart id, issuing a new one when the
// cookie is missing or malformed.
func (h *CartHandler) ensureCartID(w http.ResponseWriter, r *http.Request) string {
	if id, ok := h.cartID(r); ok {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CartCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cartCookieAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (h *CartHandler) open(w http.ResponseWriter, r *http.Request, cartID string) (*cart.Store, bool) {
	store, err := h.carts.Open(r.Context(), cartID)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to open cart",
			slog.String("cart_id", cartID),
			slog.String("error", err.Error()))
		if errors.Is(err, domain.ErrStorageUnavailable) {
			http.Error(w, `{"error":"Cart storage unavailable"}`, http.StatusServiceUnavailable)
			return nil, false
		}
		http.Error(w, `{"error":"Failed to load cart"}`, http.StatusInternalServerError)
		return nil, false
	}
	return store, true
}

// persisted records a mutation. A failed write-through leaves the live cart
// updated, so the request still succeeds and the failure is only logged. A
// cart that could not be re-read first was not mutated and fails with 503.
func (h *CartHandler) persisted(w http.ResponseWriter, r *http.Request, op string, err error) bool {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		observability.FromContext(r.Context()).Error("cart reload failed",
			slog.String("operation", op),
			slog.String("error", err.Error()))
		http.Error(w, `{"error":"Cart storage unavailable"}`, http.StatusServiceUnavailable)
		return false
	}

	observability.CartMutationsTotal.WithLabelValues(op).Inc()
	if err == nil {
		return true
	}
	observability.CartPersistErrorsTotal.Inc()
	observability.FromContext(r.Context()).Warn("cart write-through failed",
		slog.String("operation", op),
		slog.String("error", err.Error()))
	return true
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error":"Invalid product id"}`, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
