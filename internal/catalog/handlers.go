package catalog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/common"
)

// Listing limits.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Handler exposes the public catalog endpoint.
type Handler struct {
	Provider Provider
}

// Products handles GET /api/v1/products. It supports q (case-insensitive
// title match), page and limit.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Provider == nil {
		common.Fail(w, http.StatusInternalServerError, "catalog not configured", nil)
		return
	}
	products, err := h.Provider.ListProducts(r.Context())
	if err != nil {
		common.Fail(w, http.StatusBadGateway, "catalog unavailable", nil)
		return
	}
	products = filter(products, r.URL.Query().Get("q"))

	page, perPage := common.ParsePagination(r, DefaultPerPage, MaxPerPage)
	p := common.Pagination{Page: page, PerPage: perPage, TotalItems: len(products)}
	start, end := p.Window()
	data := products[start:end]
	if data == nil {
		data = []cart.Product{}
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(len(products)))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       data,
		"pagination": p,
	})
}

func filter(products []cart.Product, q string) []cart.Product {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return products
	}
	out := make([]cart.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Title), q) {
			out = append(out, p)
		}
	}
	return out
}
