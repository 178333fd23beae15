package payment

import (
	"context"
	"errors"

	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/order"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

// OrderResolver rebuilds receipts from the provider's payment record. The
// provider knows only the charged total, so the breakdown is zero.
type OrderResolver struct {
	Provider Provider
}

// ResolveOrder implements order.Resolver. The lookup id is a payment id.
func (r OrderResolver) ResolveOrder(ctx context.Context, id string) (order.Order, bool, error) {
	if r.Provider == nil {
		return order.Order{}, false, nil
	}
	p, err := r.Provider.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return order.Order{}, false, nil
		}
		return order.Order{}, false, err
	}
	if p.Status != StatusCompleted {
		return order.Order{}, false, nil
	}
	currency := p.Currency
	if currency == "" {
		currency = pricing.DefaultCurrency
	}
	total := pricing.FromMinorUnits(p.AmountMinor)
	totals := pricing.Zero()
	totals.Total = total
	totals.Currency = currency
	return order.Order{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		ReceiptURL: p.ReceiptURL,
		Status:     p.Status,
		Details: order.Details{
			Items:    []cart.Item{},
			Shipping: order.ShippingInfo{Address: p.Address},
			Totals:   totals,
		},
		CreatedAt: p.CreatedAt,
	}, true, nil
}
