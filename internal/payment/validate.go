package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

// ProcessRequest is the body of POST /api/checkout/process-payment. Amount is
// in minor units.
type ProcessRequest struct {
	SourceID        string           `json:"sourceId"`
	Amount          int64            `json:"amount"`
	Currency        string           `json:"currency"`
	ShippingAddress address.Shipping `json:"shippingAddress"`
	IdempotencyKey  string           `json:"idempotencyKey"`
	OrderDetails    *OrderDetails    `json:"orderDetails,omitempty"`
}

// OrderDetails is the optional cart snapshot stored with the receipt.
type OrderDetails struct {
	Items  []cart.Item     `json:"items,omitempty"`
	Totals *pricing.Totals `json:"totals,omitempty"`
}

// AmountRange bounds a charge in minor units.
type AmountRange struct {
	Min int64
	Max int64
}

// DefaultLimits returns the per-currency charge bounds.
func DefaultLimits() map[string]AmountRange {
	return map[string]AmountRange{
		"USD": {Min: 100, Max: 1_000_000},
		"MXN": {Min: 2_000, Max: 20_000_000},
		"CAD": {Min: 100, Max: 1_000_000},
	}
}

// AmountError rejects a charge outside its currency bounds.
type AmountError struct {
	Message string
}

func (e *AmountError) Error() string { return e.Message }

func (e *AmountError) Unwrap() error { return common.ErrValidation }

// SupportedCurrency reports whether currency belongs to a supported country.
func SupportedCurrency(currency string) bool {
	for _, c := range address.Countries() {
		if c.Currency() == currency {
			return true
		}
	}
	return false
}

func normalizeRequest(req ProcessRequest) ProcessRequest {
	req.SourceID = strings.TrimSpace(req.SourceID)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.ShippingAddress = address.Sanitize(req.ShippingAddress)
	return req
}

// validate checks the request shape first and then the amount bounds, so
// bound messages are only reported for otherwise valid requests.
func (s *Service) validate(req ProcessRequest) error {
	var fields []common.FieldError
	if req.SourceID == "" {
		fields = append(fields, common.FieldError{Field: "sourceId", Message: "Payment source is required"})
	}
	if req.Amount <= 0 {
		fields = append(fields, common.FieldError{Field: "amount", Message: "Amount must be positive"})
	}
	if !SupportedCurrency(req.Currency) {
		fields = append(fields, common.FieldError{Field: "currency", Message: "Invalid currency"})
	}
	if err := s.validator().Engine().Var(req.IdempotencyKey, "required,uuid"); err != nil {
		fields = append(fields, common.FieldError{Field: "idempotencyKey", Message: "Invalid idempotency key"})
	}
	if err := s.validator().Validate(req.ShippingAddress); err != nil {
		var verr *common.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		for _, f := range verr.Fields {
			fields = append(fields, common.FieldError{Field: "shippingAddress." + f.Field, Message: f.Message})
		}
	}
	if len(fields) > 0 {
		return common.NewValidationError(fields...)
	}

	bounds, ok := s.limits()[req.Currency]
	if !ok {
		bounds = AmountRange{Min: 100, Max: 1_000_000}
	}
	if req.Amount < bounds.Min {
		return &AmountError{Message: fmt.Sprintf("Minimum amount is %s %s", pricing.FromMinorUnits(bounds.Min).StringFixed(2), req.Currency)}
	}
	if req.Amount > bounds.Max {
		return &AmountError{Message: fmt.Sprintf("Maximum amount is %s %s", pricing.FromMinorUnits(bounds.Max).StringFixed(2), req.Currency)}
	}
	return nil
}
