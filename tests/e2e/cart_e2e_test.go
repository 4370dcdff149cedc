//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"storefront/internal/cart"
	"storefront/internal/handler"
	"storefront/internal/messaging"
)

func addPhone(t *testing.T, tc *TestClient, id int64) *http.Response {
	t.Helper()
	return tc.Do(http.MethodPost, "/api/v1/cart/items", map[string]interface{}{"product_id": id, "product_type": "PHONE"})
}

func TestCart_AddPersistsAndCheckoutClears(t *testing.T) {
	tc := NewTestClient(t)
	tc.FetchCSRF()

	resp := addPhone(t, tc, 1)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()
	resp = addPhone(t, tc, 1)
	resp.Body.Close()

	cartID := tc.Cookie(handler.CartCookie)
	if cartID == "" {
		t.Fatal("expected a cart_id cookie after the first add")
	}

	sum := tc.Cart()
	if len(sum.Items) != 1 || sum.TotalItems != 2 || sum.TotalPrice != 200 {
		t.Fatalf("unexpected cart %+v", sum)
	}

	var payload []byte
	err := testDB.QueryRowContext(testContext,
		"SELECT payload FROM cart_storage WHERE storage_key = $1", cart.Key(cartID)).Scan(&payload)
	if err != nil {
		t.Fatalf("cart was not persisted: %v", err)
	}
	var stored map[string]interface{}
	if err := json.Unmarshal(payload, &stored); err != nil {
		t.Fatalf("persisted payload is not JSON: %v", err)
	}

	ctx, cancel := context.WithTimeout(testContext, 5*time.Second)
	defer cancel()
	if err := rmq.PublishCheckoutCompleted(ctx, &messaging.CheckoutCompleted{CartID: cartID, OrderID: "ord-1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	waitFor(t, 10*time.Second, func() bool {
		return tc.Cart().TotalItems == 0
	}, "cart should be cleared by the checkout event")
}

func TestCart_UpdateAndRemove(t *testing.T) {
	tc := NewTestClient(t)
	tc.FetchCSRF()
	resp := addPhone(t, tc, 1)
	resp.Body.Close()

	resp = tc.Do(http.MethodPut, "/api/v1/cart/items/1", map[string]int{"quantity": 3})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()
	if got := tc.Cart().TotalItems; got != 3 {
		t.Errorf("expected 3 items, got %d", got)
	}

	resp = tc.Do(http.MethodDelete, "/api/v1/cart/items/1", nil)
	resp.Body.Close()
	if got := tc.Cart(); len(got.Items) != 0 {
		t.Errorf("expected empty cart, got %+v", got)
	}
}

func TestCart_RejectsUnavailableProducts(t *testing.T) {
	tc := NewTestClient(t)
	tc.FetchCSRF()

	resp := addPhone(t, tc, 2)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("inactive product: expected 409, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()

	resp = addPhone(t, tc, 99)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown product: expected 404, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()

	if tc.Cookie(handler.CartCookie) != "" {
		t.Error("a rejected add must not create a cart")
	}
}

func TestCart_InvalidBodyRejectedBySchema(t *testing.T) {
	tc := NewTestClient(t)
	tc.FetchCSRF()

	resp := tc.Do(http.MethodPost, "/api/v1/cart/items", map[string]interface{}{"product_id": 0, "product_type": "PHONE"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestReady(t *testing.T) {
	resp, err := http.Get(baseURL + "/health/ready")
	if err != nil {
		t.Fatalf("ready request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "ready" {
		t.Fatalf("expected ready, got %d %+v", resp.StatusCode, body)
	}
	for _, name := range []string{"cart_storage", "rabbitmq"} {
		if body.Checks[name].Status != "up" {
			t.Errorf("%s: expected up, got %q", name, body.Checks[name].Status)
		}
	}
}
