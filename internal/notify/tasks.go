package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/candle-checkout/internal/order"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

// TypeOrderConfirmation is the asynq task type for confirmation emails.
const TypeOrderConfirmation = "order:confirmation"

// ConfirmationPayload is the task body.
type ConfirmationPayload struct {
	OrderID    string `json:"orderId"`
	PaymentID  string `json:"paymentId"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Language   string `json:"language"`
	Total      string `json:"total"`
	ReceiptURL string `json:"receiptUrl,omitempty"`
}

// PayloadFromOrder builds the confirmation payload for a stored receipt.
func PayloadFromOrder(o order.Order) ConfirmationPayload {
	addr := o.Details.Shipping.Address
	id := o.OrderID
	if id == "" {
		id = o.PaymentID
	}
	return ConfirmationPayload{
		OrderID:    id,
		PaymentID:  o.PaymentID,
		Email:      strings.TrimSpace(addr.Email),
		Name:       strings.TrimSpace(addr.FirstName),
		Language:   LanguageFor(addr.Country),
		Total:      pricing.Format(o.Details.Totals.Total, o.Details.Totals.Currency),
		ReceiptURL: o.ReceiptURL,
	}
}

// NewConfirmationTask encodes p as an asynq task.
func NewConfirmationTask(p ConfirmationPayload) (*asynq.Task, error) {
	if p.OrderID == "" || p.Email == "" {
		return nil, fmt.Errorf("notify: confirmation needs an order id and a recipient")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("notify: encode confirmation: %w", err)
	}
	return asynq.NewTask(TypeOrderConfirmation, body), nil
}

// ParseConfirmationTask decodes a task built by NewConfirmationTask.
func ParseConfirmationTask(t *asynq.Task) (ConfirmationPayload, error) {
	var p ConfirmationPayload
	if t == nil || t.Type() != TypeOrderConfirmation {
		return p, fmt.Errorf("notify: unexpected task type")
	}
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("notify: decode confirmation: %w", err)
	}
	return p, nil
}
