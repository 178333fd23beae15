// Package notify sends order confirmation emails through an asynq task queue.
package notify

import (
	"strings"

	"github.com/noah-isme/candle-checkout/internal/address"
)

// DefaultLanguage is used when a bundle for the requested language is missing.
const DefaultLanguage = "en"

// Bundle is the localized copy for confirmation emails.
type Bundle struct {
	Language     string `json:"language"`
	Subject      string `json:"subject"`
	Greeting     string `json:"greeting"`
	Intro        string `json:"intro"`
	OrderLabel   string `json:"orderLabel"`
	TotalLabel   string `json:"totalLabel"`
	ReceiptLabel string `json:"receiptLabel"`
	SignOff      string `json:"signOff"`
}

// ContentProvider returns localized copy. Unknown languages fall back to
// DefaultLanguage.
type ContentProvider interface {
	Bundle(language string) (Bundle, error)
}

// StaticContent serves bundles from memory.
type StaticContent map[string]Bundle

// DefaultContent holds the English and Spanish bundles.
func DefaultContent() StaticContent {
	return StaticContent{
		"en": {
			Language:     "en",
			Subject:      "Your order is confirmed",
			Greeting:     "Hi %s,",
			Intro:        "Thank you for your order. We are getting your candles ready.",
			OrderLabel:   "Order",
			TotalLabel:   "Total",
			ReceiptLabel: "View receipt",
			SignOff:      "See you soon",
		},
		"es": {
			Language:     "es",
			Subject:      "Tu pedido está confirmado",
			Greeting:     "Hola %s,",
			Intro:        "Gracias por tu pedido. Estamos preparando tus velas.",
			OrderLabel:   "Pedido",
			TotalLabel:   "Total",
			ReceiptLabel: "Ver recibo",
			SignOff:      "Hasta pronto",
		},
	}
}

// Bundle implements ContentProvider.
func (c StaticContent) Bundle(language string) (Bundle, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(language, "-_"); i > 0 {
		language = language[:i]
	}
	if b, ok := c[language]; ok {
		return b, nil
	}
	return c[DefaultLanguage], nil
}

// LanguageFor picks the email language from the destination country.
func LanguageFor(country address.Country) string {
	if country == address.MX {
		return "es"
	}
	return DefaultLanguage
}
