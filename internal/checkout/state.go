// Package checkout holds the checkout session: the cart snapshot, shipping
// choice, tax line and totals for one checkout transaction.
package checkout

import (
	"time"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/order"
	"github.com/noah-isme/candle-checkout/internal/pricing"
	"github.com/noah-isme/candle-checkout/internal/shipping"
	"github.com/noah-isme/candle-checkout/internal/tax"
)

// Step is a checkout progress marker.
type Step string

// Steps in the only order a session may move through them.
const (
	StepCart         Step = "cart"
	StepShipping     Step = "shipping"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

var stepIndex = map[Step]int{
	StepCart:         0,
	StepShipping:     1,
	StepPayment:      2,
	StepConfirmation: 3,
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	_, ok := stepIndex[s]
	return ok
}

// ShippingInfo is the destination and chosen rate.
type ShippingInfo struct {
	Address        address.Shipping `json:"address"`
	SelectedRate   *shipping.Rate   `json:"selectedRate,omitempty"`
	AvailableRates []shipping.Rate  `json:"availableRates,omitempty"`
}

// PaymentStatus mirrors the controller status for display.
type PaymentStatus string

// Payment statuses.
const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

// PaymentInfo records the outcome of the payment step.
type PaymentInfo struct {
	Method       string        `json:"method"`
	Status       PaymentStatus `json:"status"`
	PaymentID    string        `json:"paymentId,omitempty"`
	Amount       pricing.Money `json:"amount"`
	Currency     string        `json:"currency"`
	ProcessedAt  *time.Time    `json:"processedAt,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// State is a snapshot of a checkout session.
type State struct {
	CurrentStep Step           `json:"currentStep"`
	Items       []cart.Item    `json:"items"`
	Shipping    *ShippingInfo  `json:"shipping,omitempty"`
	Tax         *tax.Info      `json:"tax,omitempty"`
	Payment     *PaymentInfo   `json:"payment,omitempty"`
	Totals      pricing.Totals `json:"totals"`
	Order       *order.Order   `json:"order,omitempty"`
	IsLoading   bool           `json:"isLoading"`
	Error       string         `json:"error,omitempty"`
}

func initialState() State {
	return State{
		CurrentStep: StepCart,
		Items:       []cart.Item{},
		Totals:      pricing.Zero(),
	}
}

// clone copies every slice and pointer so callers cannot mutate session state.
func (s State) clone() State {
	out := s
	out.Items = append([]cart.Item{}, s.Items...)
	if s.Shipping != nil {
		sh := *s.Shipping
		if s.Shipping.SelectedRate != nil {
			r := *s.Shipping.SelectedRate
			sh.SelectedRate = &r
		}
		sh.AvailableRates = append([]shipping.Rate(nil), s.Shipping.AvailableRates...)
		out.Shipping = &sh
	}
	if s.Tax != nil {
		t := *s.Tax
		out.Tax = &t
	}
	if s.Payment != nil {
		p := *s.Payment
		out.Payment = &p
	}
	if s.Order != nil {
		o := *s.Order
		o.Details.Items = append([]cart.Item(nil), s.Order.Details.Items...)
		out.Order = &o
	}
	return out
}

// ReadyForPayment is true when there are items, an address and a selected
// rate, nothing is loading and no error is pending.
func (s State) ReadyForPayment() bool {
	return len(s.Items) > 0 &&
		s.Shipping != nil &&
		s.Shipping.Address.Country != "" &&
		s.Shipping.SelectedRate != nil &&
		!s.IsLoading &&
		s.Error == ""
}

// FormattedTotal renders the total in the totals currency, e.g. "$69.71".
func FormattedTotal(s State) string {
	return pricing.Format(s.Totals.Total, s.Totals.Currency)
}

// TaxDisplayText renders "<name> (<rate>%)", or "Tax" before a tax line exists.
func TaxDisplayText(s State) string {
	if s.Tax == nil {
		return "Tax"
	}
	return s.Tax.Name + " (" + tax.FormatRate(s.Tax.Rate) + ")"
}
