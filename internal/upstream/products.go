package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"storefront/internal/domain"
)

// productList accepts a bare array or an envelope under "result" or "data".
type productList []domain.Product

func (l *productList) UnmarshalJSON(b []byte) error {
	var direct []domain.Product
	if err := json.Unmarshal(b, &direct); err == nil {
		*l = direct
		return nil
	}
	var env struct {
		Result []domain.Product `json:"result"`
		Data   []domain.Product `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	if env.Result != nil {
		*l = env.Result
	} else {
		*l = env.Data
	}
	return nil
}

// ListProducts returns the catalog.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var list productList
	if err := c.doRequest(ctx, call{method: http.MethodGet, path: "products", endpoint: "products_list"}, &list); err != nil {
		return nil, fmt.Errorf("upstream.ListProducts: %w", err)
	}
	if list == nil {
		return []domain.Product{}, nil
	}
	return list, nil
}

// GetProduct fetches one product by type and id. A 404 maps to
// domain.ErrProductNotFound.
func (c *Client) GetProduct(ctx context.Context, productType string, id int64) (*domain.Product, error) {
	var p domain.Product
	path := "products/" + url.PathEscape(productType) + "/" + strconv.FormatInt(id, 10)
	if err := c.doRequest(ctx, call{method: http.MethodGet, path: path, endpoint: "products_get"}, &p); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("upstream.GetProduct: %w", domain.ErrProductNotFound)
		}
		return nil, fmt.Errorf("upstream.GetProduct: %w", err)
	}
	if p.ID == 0 {
		return nil, fmt.Errorf("upstream.GetProduct: %w", domain.ErrProductNotFound)
	}
	return &p, nil
}
