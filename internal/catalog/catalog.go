// Package catalog serves the read-only product list the storefront sells from.
package catalog

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

// Provider lists sellable products.
type Provider interface {
	ListProducts(ctx context.Context) ([]cart.Product, error)
}

// Static serves a fixed product list.
type Static []cart.Product

// ListProducts implements Provider.
func (s Static) ListProducts(context.Context) ([]cart.Product, error) {
	return append([]cart.Product(nil), s...), nil
}

func product(id, title, variant, description, price string) cart.Product {
	v := decimal.RequireFromString(price)
	return cart.Product{
		ID:          id,
		Title:       title,
		Variant:     variant,
		Description: description,
		Price:       pricing.Format(v, pricing.DefaultCurrency),
		PriceValue:  v,
	}
}

// DefaultProducts is the built-in candle line used when no catalog platform
// is configured.
func DefaultProducts() Static {
	return Static{
		product("amber-noir", "Amber Noir", "8 oz", "Amber, smoked vanilla and black pepper.", "25"),
		product("copal-dusk", "Copal Dusk", "8 oz", "Copal resin with a hint of orange peel.", "28"),
		product("lavender-field", "Lavender Field", "6 oz", "French lavender and cedar.", "22"),
		product("sea-salt-fig", "Sea Salt & Fig", "12 oz", "Ripe fig, sea salt and driftwood.", "34"),
	}
}
