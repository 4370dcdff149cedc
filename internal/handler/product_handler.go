package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ProductHandler passes catalog reads through to the backend.
type ProductHandler struct {
	catalog CatalogAPI
}

func NewProductHandler(catalog CatalogAPI) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error":"Invalid product id"}`, http.StatusBadRequest)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "type"), id)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}
