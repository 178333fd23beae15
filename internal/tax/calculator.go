// Package tax computes the tax line for a checkout from the destination
// address and the taxable base (subtotal plus shipping).
package tax

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

// ErrUnsupportedCountry is returned for destinations without a tax table.
var ErrUnsupportedCountry = fmt.Errorf("tax: %w", common.ErrUnsupportedRegion)

// Info is the computed tax line.
type Info struct {
	Rate        decimal.Decimal `json:"rate"`
	Amount      pricing.Money   `json:"amount"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Country     address.Country `json:"country"`
	Region      string          `json:"region,omitempty"`
}

// Calculator computes tax for an address. Implementations must be pure.
type Calculator interface {
	Calculate(ctx context.Context, addr address.Shipping, taxable pricing.Money) (Info, error)
}

// Table computes tax from the built-in country and region tables.
type Table struct{}

// Calculate implements Calculator.
func (Table) Calculate(_ context.Context, addr address.Shipping, taxable pricing.Money) (Info, error) {
	return Calculate(addr, taxable)
}

// Calculate returns the tax line for taxable shipped to addr. The amount is
// taxable*rate, exact, with rounding left to display.
func Calculate(addr address.Shipping, taxable pricing.Money) (Info, error) {
	info, err := Lookup(addr.Country, addr.State)
	if err != nil {
		return Info{}, err
	}
	info.Amount = taxable.Mul(info.Rate)
	return info, nil
}

// Lookup resolves the rate, name and description for a country and optional
// region without computing an amount. Region matching is case-insensitive.
func Lookup(country address.Country, region string) (Info, error) {
	country = country.Normalize()
	base, ok := countryRates[country]
	if !ok {
		return Info{}, fmt.Errorf("country %q: %w", country, ErrUnsupportedCountry)
	}
	region = strings.ToUpper(strings.TrimSpace(region))
	info := Info{
		Rate:        decimal.RequireFromString(base.rate),
		Name:        base.name,
		Description: base.description,
		Country:     country,
	}
	switch country {
	case address.US:
		if rate, found := usStateRates[region]; found {
			info.Rate = decimal.RequireFromString(rate)
			info.Description = fmt.Sprintf("State and Local Sales Tax (%s)", region)
			info.Region = region
		}
	case address.CA:
		if prov, found := caProvinceRates[region]; found {
			info.Rate = decimal.RequireFromString(prov.rate)
			info.Name = prov.name
			info.Description = fmt.Sprintf("%s (%s)", prov.name, region)
			info.Region = region
		}
	}
	return info, nil
}

// Rate returns just the applicable rate.
func Rate(country address.Country, region string) (decimal.Decimal, error) {
	info, err := Lookup(country, region)
	if err != nil {
		return decimal.Zero, err
	}
	return info.Rate, nil
}

// IsSupported reports whether tax can be computed for country.
func IsSupported(country address.Country) bool {
	_, ok := countryRates[country.Normalize()]
	return ok
}

// FormatRate renders a rate as a percentage with two decimals, e.g. "7.25%".
func FormatRate(rate decimal.Decimal) string {
	return rate.Shift(2).StringFixed(2) + "%"
}
