// Package order persists checkout receipts for the confirmation page and
// serves order lookups.
package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

// DefaultRetention is how long a receipt stays retrievable.
const DefaultRetention = 24 * time.Hour

// ErrNotFound is returned when no receipt exists for a key.
var ErrNotFound = errors.New("order not found")

// ShippingInfo wraps the destination address.
type ShippingInfo struct {
	Address address.Shipping `json:"address"`
}

// Details is the cart snapshot attached to a receipt.
type Details struct {
	Items    []cart.Item    `json:"items"`
	Shipping ShippingInfo   `json:"shipping"`
	Totals   pricing.Totals `json:"totals"`
}

// Order is a completed checkout receipt.
type Order struct {
	PaymentID      string    `json:"paymentId"`
	OrderID        string    `json:"orderId,omitempty"`
	ReceiptURL     string    `json:"receiptUrl,omitempty"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Status         string    `json:"status,omitempty"`
	Details        Details   `json:"orderDetails"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Keys returns the distinct non-empty lookup keys of the receipt.
func (o Order) Keys() []string {
	keys := make([]string, 0, 2)
	for _, k := range []string{o.IdempotencyKey, o.OrderID} {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if len(keys) == 1 && keys[0] == k {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Store persists receipts with a fixed retention.
type Store interface {
	Set(ctx context.Context, key string, o Order) error
	Get(ctx context.Context, key string) (Order, error)
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
}

// SaveReceipt stores o under its idempotency key and its provider order id so
// either can be used for lookup.
func SaveReceipt(ctx context.Context, s Store, o Order) error {
	keys := o.Keys()
	if len(keys) == 0 {
		return errors.New("order: receipt has no lookup key")
	}
	for _, k := range keys {
		if err := s.Set(ctx, k, o); err != nil {
			return err
		}
	}
	return nil
}
