package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact amount in major currency units (dollars, pesos).
type Money = decimal.Decimal

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Totals aggregates the computed checkout amounts. Total is always
// Subtotal + Shipping + Tax.
type Totals struct {
	Subtotal Money  `json:"subtotal"`
	Shipping Money  `json:"shipping"`
	Tax      Money  `json:"tax"`
	Total    Money  `json:"total"`
	Currency string `json:"currency"`
}

func init() {
	// storefront clients expect JSON numbers for amounts
	decimal.MarshalJSONWithoutQuotes = true
}

// DefaultCurrency is used until a shipping rate fixes the destination currency.
const DefaultCurrency = "USD"

// Subtotal sums quantity times unit price over items, ignoring non-positive quantities.
func Subtotal(items []Item) Money {
	sum := decimal.Zero
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	return sum
}

// Compute assembles Totals from already-derived components.
func Compute(subtotal, shipping, tax Money, currency string) Totals {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
		Currency: currency,
	}
}

// Zero returns empty totals in the default currency.
func Zero() Totals {
	return Compute(decimal.Zero, decimal.Zero, decimal.Zero, DefaultCurrency)
}

// Consistent reports whether Total equals the sum of its parts.
func (t Totals) Consistent() bool {
	return t.Total.Equal(t.Subtotal.Add(t.Shipping).Add(t.Tax))
}

// ToMinorUnits converts a major-unit amount to cents, rounding half away from zero.
func ToMinorUnits(m Money) int64 {
	return m.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts cents to a major-unit amount.
func FromMinorUnits(minor int64) Money {
	return decimal.New(minor, -2)
}

// FromFloat converts a float price, as returned by catalog feeds, to Money.
func FromFloat(v float64) Money {
	return decimal.NewFromFloat(v)
}
