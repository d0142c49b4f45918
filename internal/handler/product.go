package handler

import (
	"net/http"

	"github.com/islandgrocer/islandgrocer/internal/domain/product"
)

// listProducts returns the catalog, optionally filtered by category or
// availability.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}

	q := r.URL.Query()
	list, err := h.products.List(r.Context(), product.ListFilter{
		Category:    q.Get("category"),
		InStockOnly: q.Get("inStock") == "true",
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]productResponse, len(list))
	for i := range list {
		out[i] = toProductResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// getProduct returns one catalog entry.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}

	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}
