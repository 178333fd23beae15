package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/order"
	"github.com/noah-isme/candle-checkout/internal/shipping"
	"github.com/noah-isme/candle-checkout/internal/tax"
)

func usAddress() address.Shipping {
	return address.Shipping{
		FirstName:  "Jane",
		LastName:   "Doe",
		Email:      "jane@example.com",
		Phone:      "4155550100",
		Address1:   "500 Market St",
		City:       "San Francisco",
		State:      "ca",
		PostalCode: "94105",
		Country:    address.US,
	}
}

func mxAddress() address.Shipping {
	return address.Shipping{
		FirstName:  "Ana",
		LastName:   "García",
		Email:      "ana@example.com",
		Phone:      "5551234567",
		Address1:   "Av. Reforma 222",
		City:       "CDMX",
		State:      "CMX",
		PostalCode: "06600",
		Country:    address.MX,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func standardRate(t *testing.T, addr address.Shipping, subtotal decimal.Decimal) shipping.Rate {
	t.Helper()
	rate, err := shipping.RateFor(addr.Country, shipping.Standard, &subtotal)
	require.NoError(t, err)
	return rate
}

type failingSource struct{}

func (failingSource) Snapshot(context.Context) ([]cart.Item, error) {
	return nil, errors.New("cart unavailable")
}

type failingTax struct{}

func (failingTax) Calculate(context.Context, address.Shipping, decimal.Decimal) (tax.Info, error) {
	return tax.Info{}, errors.New("tax service down")
}

func TestUSCheckoutTotals(t *testing.T) {
	items := cart.Static{{ID: "amber-noir", Title: "Amber Noir", PriceValue: dec("25"), Quantity: 2}}
	s := NewSession(items, tax.Table{}, address.NewValidator(true))
	addr := usAddress()

	s.UpdateShipping(context.Background(), addr, standardRate(t, addr, dec("50")))
	st := s.State()

	require.Empty(t, st.Error)
	require.False(t, st.IsLoading)
	require.True(t, st.Totals.Subtotal.Equal(dec("50")))
	require.True(t, st.Totals.Shipping.Equal(dec("15")))
	require.True(t, st.Totals.Tax.Equal(dec("4.7125")), st.Totals.Tax.String())
	require.True(t, st.Totals.Total.Equal(dec("69.7125")), st.Totals.Total.String())
	require.True(t, st.Totals.Consistent())
	require.Equal(t, "USD", st.Totals.Currency)
	require.Equal(t, "CA", st.Tax.Region)
	require.Equal(t, "$69.71", FormattedTotal(st))
	require.Equal(t, "Sales Tax (7.25%)", TaxDisplayText(st))
	require.True(t, s.IsReadyForPayment())
	require.Len(t, st.Shipping.AvailableRates, 1)
}

func TestMXFreeShippingTotals(t *testing.T) {
	items := cart.Static{{ID: "copal", Title: "Copal", PriceValue: dec("400"), Quantity: 3}}
	s := NewSession(items, nil, nil)
	addr := mxAddress()
	rates, err := shipping.Calculate(addr, ptr(dec("1200")))
	require.NoError(t, err)

	s.UpdateShipping(context.Background(), addr, rates[0], rates...)
	st := s.State()

	require.Empty(t, st.Error)
	require.True(t, st.Totals.Shipping.IsZero())
	require.True(t, st.Totals.Tax.Equal(dec("192")))
	require.True(t, st.Totals.Total.Equal(dec("1392")))
	require.Equal(t, "MXN", st.Totals.Currency)
	require.Equal(t, "MX$1,392.00", FormattedTotal(st))
	require.Equal(t, "IVA (16.00%)", TaxDisplayText(st))
	require.Len(t, st.Shipping.AvailableRates, 2)
}

func ptr[T any](v T) *T { return &v }

func TestUpdateShippingRecordsValidationError(t *testing.T) {
	items := cart.Static{{ID: "a", Title: "A", PriceValue: dec("10"), Quantity: 1}}
	s := NewSession(items, nil, address.NewValidator(true))
	addr := usAddress()
	addr.Email = "not-an-email"

	s.UpdateShipping(context.Background(), addr, standardRate(t, addr, dec("10")))
	st := s.State()

	require.Contains(t, st.Error, "Valid email is required")
	require.False(t, st.IsLoading)
	require.Nil(t, st.Shipping)
	require.True(t, st.Totals.Total.IsZero())
	require.False(t, s.IsReadyForPayment())
}

func TestUpdateShippingRejectsCurrencyMismatch(t *testing.T) {
	items := cart.Static{{ID: "a", Title: "A", PriceValue: dec("10"), Quantity: 1}}
	s := NewSession(items, nil, nil)
	mxRate := standardRate(t, mxAddress(), dec("10"))

	s.UpdateShipping(context.Background(), usAddress(), mxRate)
	require.Contains(t, s.State().Error, "does not match")
}

func TestCalculateTotalsFailureLeavesTotalsIntact(t *testing.T) {
	items := cart.Static{{ID: "a", Title: "A", PriceValue: dec("50"), Quantity: 1}}
	s := NewSession(items, nil, nil)
	addr := usAddress()
	s.UpdateShipping(context.Background(), addr, standardRate(t, addr, dec("50")))
	before := s.Totals()

	s.tax = failingTax{}
	err := s.CalculateTotals(context.Background())
	require.Error(t, err)

	st := s.State()
	require.Contains(t, st.Error, "tax service down")
	require.True(t, before.Total.Equal(st.Totals.Total))
	require.True(t, st.Totals.Consistent())
	require.False(t, s.IsReadyForPayment())
}

func TestCalculateTotalsCartFailure(t *testing.T) {
	s := NewSession(failingSource{}, nil, nil)
	err := s.CalculateTotals(context.Background())
	require.Error(t, err)
	require.Contains(t, s.State().Error, "cart unavailable")
}

func TestCalculateTotalsWithoutAddress(t *testing.T) {
	items := cart.Static{{ID: "a", Title: "A", PriceValue: dec("12.5"), Quantity: 2}}
	s := NewSession(items, nil, nil)
	require.NoError(t, s.CalculateTotals(context.Background()))
	st := s.State()
	require.True(t, st.Totals.Total.Equal(dec("25")))
	require.Nil(t, st.Tax)
	require.Equal(t, "Tax", TaxDisplayText(st))
	require.False(t, st.ReadyForPayment())
}

func TestAdvanceIsForwardOnly(t *testing.T) {
	items := cart.Static{{ID: "a", Title: "A", PriceValue: dec("80"), Quantity: 1}}
	s := NewSession(items, nil, nil)
	ctx := context.Background()

	require.ErrorIs(t, s.Advance(StepPayment), ErrInvalidTransition, "cannot skip shipping")
	require.NoError(t, s.Advance(StepShipping))
	require.NoError(t, s.Advance(StepShipping))
	require.ErrorIs(t, s.Advance(StepCart), ErrInvalidTransition)
	require.ErrorIs(t, s.Advance(StepPayment), ErrNotReady)
	require.ErrorIs(t, s.Advance(Step("bogus")), ErrInvalidTransition)

	addr := usAddress()
	s.UpdateShipping(ctx, addr, standardRate(t, addr, dec("80")))
	require.NoError(t, s.Advance(StepPayment))
	require.ErrorIs(t, s.Advance(StepShipping), ErrInvalidTransition)

	require.NoError(t, s.Confirm(order.Order{PaymentID: "pay_1"}))
	st := s.State()
	require.Equal(t, StepConfirmation, st.CurrentStep)
	require.Equal(t, "pay_1", st.Order.PaymentID)
	require.Equal(t, PaymentCompleted, st.Payment.Status)
	require.True(t, st.Payment.Amount.Equal(st.Totals.Total))

	require.ErrorIs(t, s.Confirm(order.Order{PaymentID: "pay_2"}), ErrInvalidTransition)

	s.Reset()
	st = s.State()
	require.Equal(t, StepCart, st.CurrentStep)
	require.Nil(t, st.Shipping)
	require.Nil(t, st.Order)
	require.True(t, st.Totals.Total.IsZero())
}

func TestStateIsACopy(t *testing.T) {
	items := cart.Static{{ID: "a", Title: "A", PriceValue: dec("80"), Quantity: 1}}
	s := NewSession(items, nil, nil)
	addr := usAddress()
	s.UpdateShipping(context.Background(), addr, standardRate(t, addr, dec("80")))

	st := s.State()
	st.Items[0].Quantity = 9
	st.Shipping.SelectedRate.Price = dec("999")
	st.Shipping.Address.City = "Elsewhere"

	again := s.State()
	require.Equal(t, 1, again.Items[0].Quantity)
	require.True(t, again.Shipping.SelectedRate.Price.IsZero(), "standard is free above the US threshold")
	require.Equal(t, "San Francisco", again.Shipping.Address.City)
}

func TestSubscribeReceivesEveryChange(t *testing.T) {
	items := cart.Static{{ID: "a", Title: "A", PriceValue: dec("10"), Quantity: 1}}
	s := NewSession(items, nil, nil)

	var (
		mu     sync.Mutex
		states []State
	)
	cancel := s.Subscribe(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	addr := usAddress()
	s.UpdateShipping(context.Background(), addr, standardRate(t, addr, dec("10")))

	mu.Lock()
	seen := len(states)
	require.GreaterOrEqual(t, seen, 3)
	require.True(t, states[0].IsLoading)
	last := states[seen-1]
	mu.Unlock()
	require.False(t, last.IsLoading)
	for _, st := range states {
		require.True(t, st.Totals.Consistent())
	}

	cancel()
	cancel()
	s.SetError("boom")
	mu.Lock()
	require.Len(t, states, seen)
	mu.Unlock()
}

func TestDispatchActions(t *testing.T) {
	s := NewSession(cart.Static{}, nil, nil)
	require.NoError(t, s.Dispatch(SetLoading(true)))
	require.True(t, s.State().IsLoading)
	require.NoError(t, s.Dispatch(SetError("oops")))
	require.Equal(t, "oops", s.State().Error)
	s.UpdatePayment(PaymentInfo{Method: "card", Status: PaymentProcessing})
	require.Equal(t, PaymentProcessing, s.State().Payment.Status)
	require.NoError(t, s.Dispatch(Reset{}))
	require.Equal(t, initialState().CurrentStep, s.State().CurrentStep)
}
