package shipping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

// ErrUnsupportedCountry is returned for destinations outside the rate table.
var ErrUnsupportedCountry = fmt.Errorf("shipping: %w", common.ErrUnsupportedRegion)

// ErrUnknownMethod is returned when a method other than standard or express is requested.
var ErrUnknownMethod = errors.New("shipping: unknown method")

// Method identifies a shipping speed.
type Method string

// Supported methods.
const (
	Standard Method = "standard"
	Express  Method = "express"
)

// Rate describes a returned shipping rate option. Price is in the destination
// country's currency.
type Rate struct {
	Method        Method        `json:"method"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Price         pricing.Money `json:"price"`
	Currency      string        `json:"currency"`
	EstimatedDays string        `json:"estimatedDays"`
}

// Free reports whether the rate costs nothing.
func (r Rate) Free() bool {
	return r.Price.IsZero()
}

// RateReq describes a shipping rate request. Subtotal is optional; without it
// no free-shipping discount applies.
type RateReq struct {
	Address  address.Shipping
	Subtotal *pricing.Money
}

// Client defines the behaviour required to quote shipping rates.
type Client interface {
	Rates(ctx context.Context, r RateReq) ([]Rate, error)
}

// Table quotes rates from the built-in per-country table.
type Table struct{}

// Rates implements Client.
func (Table) Rates(_ context.Context, r RateReq) ([]Rate, error) {
	return Calculate(r.Address, r.Subtotal)
}

type methodRate struct {
	price       int64
	days        string
	description string
}

type countryRates struct {
	currency  string
	threshold int64
	standard  methodRate
	express   methodRate
}

var table = map[address.Country]countryRates{
	address.MX: {
		currency:  "MXN",
		threshold: 1000,
		standard:  methodRate{150, "5-7 business days", "Envío estándar por Correos de México"},
		express:   methodRate{300, "2-3 business days", "Envío express por DHL/FedEx"},
	},
	address.US: {
		currency:  "USD",
		threshold: 75,
		standard:  methodRate{15, "5-7 business days", "Standard shipping via USPS"},
		express:   methodRate{35, "2-3 business days", "Express shipping via FedEx/UPS"},
	},
	address.CA: {
		currency:  "CAD",
		threshold: 100,
		standard:  methodRate{20, "5-7 business days", "Standard shipping via Canada Post"},
		express:   methodRate{40, "2-3 business days", "Express shipping via Purolator/FedEx"},
	},
}

// Calculate returns standard and express rates for the destination. Standard
// is free when subtotal meets the country threshold; express never is.
func Calculate(addr address.Shipping, subtotal *pricing.Money) ([]Rate, error) {
	std, err := RateFor(addr.Country, Standard, subtotal)
	if err != nil {
		return nil, err
	}
	exp, err := RateFor(addr.Country, Express, subtotal)
	if err != nil {
		return nil, err
	}
	return []Rate{std, exp}, nil
}

// RateFor returns a single method's rate for country.
func RateFor(country address.Country, method Method, subtotal *pricing.Money) (Rate, error) {
	rates, ok := table[country.Normalize()]
	if !ok {
		return Rate{}, fmt.Errorf("country %q: %w", country, ErrUnsupportedCountry)
	}
	var (
		m    methodRate
		name string
	)
	switch method {
	case Standard:
		m, name = rates.standard, "Standard Shipping"
	case Express:
		m, name = rates.express, "Express Shipping"
	default:
		return Rate{}, fmt.Errorf("%q: %w", method, ErrUnknownMethod)
	}
	price := decimal.NewFromInt(m.price)
	if method == Standard && subtotal != nil && subtotal.GreaterThanOrEqual(decimal.NewFromInt(rates.threshold)) {
		price = decimal.Zero
	}
	return Rate{
		Method:        method,
		Name:          name,
		Description:   m.description,
		Price:         price,
		Currency:      rates.currency,
		EstimatedDays: m.days,
	}, nil
}

// IsAvailable reports whether rates exist for country.
func IsAvailable(country address.Country) bool {
	_, ok := table[country.Normalize()]
	return ok
}

// FreeShippingThreshold returns the subtotal at which standard shipping becomes free.
func FreeShippingThreshold(country address.Country) (pricing.Money, bool) {
	rates, ok := table[country.Normalize()]
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(rates.threshold), true
}

// QualifiesForFreeShipping reports whether subtotal meets the country threshold.
func QualifiesForFreeShipping(country address.Country, subtotal pricing.Money) bool {
	threshold, ok := FreeShippingThreshold(country)
	return ok && subtotal.GreaterThanOrEqual(threshold)
}

// FormatRate renders the price for display, "FREE" when zero.
func FormatRate(r Rate) string {
	if r.Free() {
		return "FREE"
	}
	return pricing.Format(r.Price, r.Currency)
}

// EstimateDelivery returns the earliest and latest arrival dates for method
// when shipped on from.
func EstimateDelivery(method Method, from time.Time) (earliest, latest time.Time) {
	minDays, maxDays := 5, 7
	if method == Express {
		minDays, maxDays = 2, 3
	}
	return from.AddDate(0, 0, minDays), from.AddDate(0, 0, maxDays)
}
