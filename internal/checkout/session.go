package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/order"
	"github.com/noah-isme/candle-checkout/internal/pricing"
	"github.com/noah-isme/candle-checkout/internal/shipping"
	"github.com/noah-isme/candle-checkout/internal/tax"
)

var (
	// ErrInvalidTransition is returned for backward or skipping step moves.
	ErrInvalidTransition = errors.New("checkout: invalid step transition")
	// ErrNotReady is returned when entering payment before the session is ready.
	ErrNotReady = fmt.Errorf("checkout: not ready for payment: %w", common.ErrValidation)
)

// Action mutates session state through Dispatch.
type Action interface {
	apply(s *State) error
}

// SetLoading toggles the loading flag.
type SetLoading bool

func (a SetLoading) apply(s *State) error { s.IsLoading = bool(a); return nil }

// SetError replaces the pending error message. An empty message clears it.
type SetError string

func (a SetError) apply(s *State) error { s.Error = string(a); return nil }

// UpdatePayment records the payment step outcome.
type UpdatePayment PaymentInfo

func (a UpdatePayment) apply(s *State) error {
	p := PaymentInfo(a)
	s.Payment = &p
	return nil
}

// Advance moves the session forward by at most one step.
type Advance Step

func (a Advance) apply(s *State) error {
	next := Step(a)
	to, ok := stepIndex[next]
	if !ok {
		return fmt.Errorf("%w: unknown step %q", ErrInvalidTransition, next)
	}
	from := stepIndex[s.CurrentStep]
	switch {
	case to == from:
		return nil
	case to != from+1:
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.CurrentStep, next)
	case next == StepPayment && !s.ReadyForPayment():
		return ErrNotReady
	}
	s.CurrentStep = next
	return nil
}

// Reset returns the session to its initial empty state.
type Reset struct{}

func (Reset) apply(s *State) error { *s = initialState(); return nil }

// Session coordinates one checkout. It assumes a single writer; readers get
// copies through State.
type Session struct {
	cart      cart.Source
	tax       tax.Calculator
	validator *address.Validator
	now       func() time.Time

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int
}

// NewSession builds a session over src. validator may be nil to skip address
// validation.
func NewSession(src cart.Source, calc tax.Calculator, validator *address.Validator) *Session {
	if calc == nil {
		calc = tax.Table{}
	}
	return &Session{
		cart:      src,
		tax:       calc,
		validator: validator,
		now:       time.Now,
		state:     initialState(),
		subs:      make(map[int]func(State)),
	}
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn to receive a copy of the state after every change.
// The returned func removes the subscription.
func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Dispatch applies a to the state. A failing action leaves the state untouched.
func (s *Session) Dispatch(a Action) error {
	return s.mutate(a.apply)
}

// mutate runs fn on a working copy and commits it only when fn succeeds, then
// notifies subscribers outside the lock.
func (s *Session) mutate(fn func(*State) error) error {
	s.mu.Lock()
	next := s.state.clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	snapshot := next.clone()
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snapshot.clone())
	}
	return nil
}

// Advance moves to step. Only the next step (or the current one) is accepted.
func (s *Session) Advance(step Step) error { return s.Dispatch(Advance(step)) }

// SetLoading toggles the loading flag.
func (s *Session) SetLoading(loading bool) { _ = s.Dispatch(SetLoading(loading)) }

// SetError sets or clears the pending error.
func (s *Session) SetError(msg string) { _ = s.Dispatch(SetError(msg)) }

// UpdatePayment records the payment outcome.
func (s *Session) UpdatePayment(p PaymentInfo) { _ = s.Dispatch(UpdatePayment(p)) }

// Reset returns to the initial state.
func (s *Session) Reset() { _ = s.Dispatch(Reset{}) }

// Totals returns the current totals.
func (s *Session) Totals() pricing.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Totals
}

// IsReadyForPayment is the gate every payment attempt must pass.
func (s *Session) IsReadyForPayment() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ReadyForPayment()
}

// UpdateShipping validates addr, stores it with the selected rate and
// recomputes totals. Failures are recorded in State.Error rather than returned.
// available defaults to just the selected rate.
func (s *Session) UpdateShipping(ctx context.Context, addr address.Shipping, rate shipping.Rate, available ...shipping.Rate) {
	_ = s.mutate(func(st *State) error {
		st.IsLoading = true
		st.Error = ""
		return nil
	})
	defer s.SetLoading(false)

	addr = address.Sanitize(addr)
	if s.validator != nil {
		if err := s.validator.Validate(addr); err != nil {
			s.SetError(err.Error())
			return
		}
	}
	if want := addr.Country.Currency(); want != "" && rate.Currency != "" && rate.Currency != want {
		s.SetError(fmt.Sprintf("shipping rate currency %s does not match destination currency %s", rate.Currency, want))
		return
	}
	if len(available) == 0 {
		available = []shipping.Rate{rate}
	}
	selected := rate
	_ = s.mutate(func(st *State) error {
		st.Shipping = &ShippingInfo{
			Address:        addr,
			SelectedRate:   &selected,
			AvailableRates: append([]shipping.Rate(nil), available...),
		}
		return nil
	})
	if err := s.CalculateTotals(ctx); err != nil {
		s.SetError(err.Error())
	}
}

// CalculateTotals recomputes subtotal from the cart, shipping from the
// selected rate and tax on subtotal+shipping when an address is known. The
// items, tax line and totals are written together; on failure nothing is
// written and the error is also recorded in State.Error.
func (s *Session) CalculateTotals(ctx context.Context) error {
	current := s.State()

	var items []cart.Item
	if s.cart != nil {
		snap, err := s.cart.Snapshot(ctx)
		if err != nil {
			err = fmt.Errorf("load cart: %w", err)
			s.SetError(err.Error())
			return err
		}
		items = snap
	}
	subtotal := cart.Subtotal(items)

	shippingCost := decimal.Zero
	currency := pricing.DefaultCurrency
	if current.Shipping != nil && current.Shipping.SelectedRate != nil {
		shippingCost = current.Shipping.SelectedRate.Price
		if current.Shipping.SelectedRate.Currency != "" {
			currency = current.Shipping.SelectedRate.Currency
		}
	}

	taxAmount := decimal.Zero
	var info *tax.Info
	if current.Shipping != nil && current.Shipping.Address.Country != "" {
		ti, err := s.tax.Calculate(ctx, current.Shipping.Address, subtotal.Add(shippingCost))
		if err != nil {
			err = fmt.Errorf("calculate tax: %w", err)
			s.SetError(err.Error())
			return err
		}
		info = &ti
		taxAmount = ti.Amount
	}

	totals := pricing.Compute(subtotal, shippingCost, taxAmount, currency)
	return s.mutate(func(st *State) error {
		st.Items = append([]cart.Item{}, items...)
		st.Tax = info
		st.Totals = totals
		return nil
	})
}

// Confirm records the completed order and moves to confirmation. The session
// must be at the payment step.
func (s *Session) Confirm(o order.Order) error {
	now := s.now()
	return s.mutate(func(st *State) error {
		if st.CurrentStep != StepPayment {
			return fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, st.CurrentStep)
		}
		ord := o
		st.Order = &ord
		st.Payment = &PaymentInfo{
			Method:      "card",
			Status:      PaymentCompleted,
			PaymentID:   o.PaymentID,
			Amount:      st.Totals.Total,
			Currency:    st.Totals.Currency,
			ProcessedAt: &now,
		}
		st.CurrentStep = StepConfirmation
		st.Error = ""
		return nil
	})
}
