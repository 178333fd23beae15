package pricing

import (
	"strings"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"CAD": "CA$",
	"MXN": "MX$",
}

// Format renders an amount for display, e.g. "$1,392.00" or "MX$150.00".
func Format(m Money, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = currency + " "
	}
	sign := ""
	if m.IsNegative() {
		sign = "-"
		m = m.Neg()
	}
	fixed := m.StringFixed(2)
	whole, frac := fixed, ""
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		whole, frac = fixed[:i], fixed[i:]
	}
	return sign + symbol + groupThousands(whole) + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
