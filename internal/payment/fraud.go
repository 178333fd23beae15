package payment

import (
	"strings"

	"github.com/noah-isme/candle-checkout/internal/address"
)

// Suspicion reasons.
const (
	ReasonHighAmount       = "high_amount"
	ReasonDisposableEmail  = "disposable_email"
	ReasonCurrencyMismatch = "currency_mismatch"
)

var highAmounts = map[string]int64{
	"USD": 500_000,
	"MXN": 10_000_000,
	"CAD": 500_000,
}

var disposableDomains = map[string]struct{}{
	"tempmail.com":      {},
	"throwaway.email":   {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
}

// SuspiciousReasons flags charges worth a manual look. It never blocks.
func SuspiciousReasons(amount int64, currency, email string, country address.Country) []string {
	var reasons []string
	limit, ok := highAmounts[currency]
	if !ok {
		limit = 500_000
	}
	if amount > limit {
		reasons = append(reasons, ReasonHighAmount)
	}
	if at := strings.LastIndexByte(email, '@'); at >= 0 {
		if _, ok := disposableDomains[strings.ToLower(email[at+1:])]; ok {
			reasons = append(reasons, ReasonDisposableEmail)
		}
	}
	if expected := country.Currency(); expected != "" && expected != currency {
		reasons = append(reasons, ReasonCurrencyMismatch)
	}
	return reasons
}
