package payment

import (
	"context"
	"fmt"

	"github.com/noah-isme/candle-checkout/internal/checkout"
	"github.com/noah-isme/candle-checkout/internal/order"
)

// Pay runs the payment step of a checkout session: it gates on readiness,
// submits the session totals and confirms the session on success. A failed
// charge is recorded on the session payment state and leaves the session at
// the payment step so the customer can try again.
func (c *Controller) Pay(ctx context.Context, s *checkout.Session, tok Tokenizer) (Result, error) {
	if !s.IsReadyForPayment() {
		return Result{}, checkout.ErrNotReady
	}
	if s.State().CurrentStep == checkout.StepCart {
		if err := s.Advance(checkout.StepShipping); err != nil {
			return Result{}, err
		}
	}
	if err := s.Advance(checkout.StepPayment); err != nil {
		return Result{}, err
	}
	st := s.State()
	s.UpdatePayment(checkout.PaymentInfo{
		Method:   "card",
		Status:   checkout.PaymentProcessing,
		Amount:   st.Totals.Total,
		Currency: st.Totals.Currency,
	})

	totals := st.Totals
	res, err := c.Submit(ctx, tok, totals.Total, totals.Currency, st.Shipping.Address, &OrderDetails{
		Items:  st.Items,
		Totals: &totals,
	})
	if err != nil {
		s.UpdatePayment(checkout.PaymentInfo{
			Method:       "card",
			Status:       checkout.PaymentFailed,
			Amount:       totals.Total,
			Currency:     totals.Currency,
			ErrorMessage: err.Error(),
		})
		return Result{}, err
	}

	o := order.Order{
		PaymentID:      res.PaymentID,
		OrderID:        res.OrderID,
		ReceiptURL:     res.ReceiptURL,
		IdempotencyKey: res.IdempotencyKey,
		Status:         StatusCompleted,
		Details: order.Details{
			Items:    st.Items,
			Shipping: order.ShippingInfo{Address: st.Shipping.Address},
			Totals:   totals,
		},
	}
	if err := s.Confirm(o); err != nil {
		return res, fmt.Errorf("payment: confirm session: %w", err)
	}
	return res, nil
}
