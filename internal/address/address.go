// Package address holds the shipping address model shared by the shipping,
// tax, checkout and payment packages.
package address

import (
	"fmt"
	"strings"

	"github.com/noah-isme/candle-checkout/internal/common"
)

// Country is an ISO 3166-1 alpha-2 code.
type Country string

// Supported destination countries.
const (
	MX Country = "MX"
	US Country = "US"
	CA Country = "CA"
)

var currencies = map[Country]string{
	MX: "MXN",
	US: "USD",
	CA: "CAD",
}

// Countries returns the supported destinations in display order.
func Countries() []Country {
	return []Country{MX, US, CA}
}

// Normalize upper-cases and trims the code.
func (c Country) Normalize() Country {
	return Country(strings.ToUpper(strings.TrimSpace(string(c))))
}

// Supported reports whether checkout can ship to c.
func (c Country) Supported() bool {
	_, ok := currencies[c.Normalize()]
	return ok
}

// Currency returns the native currency of c, or "" when unsupported.
func (c Country) Currency() string {
	return currencies[c.Normalize()]
}

// ParseCountry validates and normalizes a country code.
func ParseCountry(raw string) (Country, error) {
	c := Country(raw).Normalize()
	if !c.Supported() {
		return "", fmt.Errorf("country %q: %w", raw, common.ErrUnsupportedRegion)
	}
	return c, nil
}

// Shipping is the destination captured from the customer.
type Shipping struct {
	FirstName  string  `json:"firstName" validate:"required,max=50"`
	LastName   string  `json:"lastName" validate:"required,max=50"`
	Email      string  `json:"email" validate:"required,email"`
	Phone      string  `json:"phone,omitempty" validate:"omitempty,min=10,max=20"`
	Address1   string  `json:"address1" validate:"required,max=100"`
	Address2   string  `json:"address2,omitempty" validate:"max=100"`
	City       string  `json:"city" validate:"required,max=50"`
	State      string  `json:"state" validate:"required,max=50"`
	PostalCode string  `json:"postalCode" validate:"required,min=3,max=20"`
	Country    Country `json:"country" validate:"required,oneof=MX US CA"`
}

// FullName joins first and last name.
func (s Shipping) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Region returns the upper-cased state or province code.
func (s Shipping) Region() string {
	return strings.ToUpper(strings.TrimSpace(s.State))
}

const maxFieldLen = 200

// Sanitize trims every field, strips angle brackets and caps lengths. Country
// and state codes are upper-cased.
func Sanitize(s Shipping) Shipping {
	return Shipping{
		FirstName:  sanitizeString(s.FirstName),
		LastName:   sanitizeString(s.LastName),
		Email:      strings.ToLower(sanitizeString(s.Email)),
		Phone:      sanitizeString(s.Phone),
		Address1:   sanitizeString(s.Address1),
		Address2:   sanitizeString(s.Address2),
		City:       sanitizeString(s.City),
		State:      strings.ToUpper(sanitizeString(s.State)),
		PostalCode: sanitizeString(s.PostalCode),
		Country:    Country(sanitizeString(string(s.Country))).Normalize(),
	}
}

func sanitizeString(v string) string {
	v = strings.TrimSpace(v)
	v = strings.NewReplacer("<", "", ">", "").Replace(v)
	if len(v) > maxFieldLen {
		v = v[:maxFieldLen]
	}
	return v
}
