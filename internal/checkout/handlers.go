package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/pricing"
	"github.com/noah-isme/candle-checkout/internal/shipping"
	"github.com/noah-isme/candle-checkout/internal/tax"
)

// QuoteHandler prices a cart for a destination without taking payment.
type QuoteHandler struct {
	Shipping  shipping.Client
	Tax       tax.Calculator
	Validator *address.Validator
}

type quoteReq struct {
	Items   []cart.Item      `json:"items"`
	Address address.Shipping `json:"address"`
	Method  shipping.Method  `json:"method"`
}

type quoteResp struct {
	Success        bool            `json:"success"`
	Rates          []shipping.Rate `json:"rates"`
	SelectedRate   *shipping.Rate  `json:"selectedRate"`
	Tax            *tax.Info       `json:"tax,omitempty"`
	TaxDisplay     string          `json:"taxDisplay"`
	Totals         pricing.Totals  `json:"totals"`
	FormattedTotal string          `json:"formattedTotal"`
}

// Quote handles POST /api/v1/checkout/quote.
func (h *QuoteHandler) Quote(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Shipping == nil {
		common.JSONError(w, http.StatusInternalServerError, "CHECKOUT_NOT_CONFIGURED", "quote handler unavailable", nil)
		return
	}
	var req quoteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.Fail(w, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if len(req.Items) == 0 {
		common.Fail(w, http.StatusBadRequest, "Cart is empty", nil)
		return
	}
	for _, it := range req.Items {
		if err := cart.ValidateItem(it); err != nil {
			common.Fail(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}
	addr := address.Sanitize(req.Address)
	if h.Validator != nil {
		if err := h.Validator.Validate(addr); err != nil {
			var verr *common.ValidationError
			if errors.As(err, &verr) {
				common.Fail(w, http.StatusBadRequest, "Invalid shipping address", verr.Fields)
				return
			}
			common.Fail(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	items := cart.Static(req.Items)
	subtotal := cart.Subtotal(items)
	rates, err := h.Shipping.Rates(r.Context(), shipping.RateReq{Address: addr, Subtotal: &subtotal})
	if err != nil {
		common.Fail(w, common.StatusFor(err), err.Error(), nil)
		return
	}
	method := req.Method
	if method == "" {
		method = shipping.Standard
	}
	var selected *shipping.Rate
	for i := range rates {
		if rates[i].Method == method {
			selected = &rates[i]
			break
		}
	}
	if selected == nil {
		common.Fail(w, http.StatusBadRequest, shipping.ErrUnknownMethod.Error(), nil)
		return
	}

	session := NewSession(items, h.Tax, nil)
	session.UpdateShipping(r.Context(), addr, *selected, rates...)
	state := session.State()
	if state.Error != "" {
		common.Fail(w, http.StatusBadRequest, state.Error, nil)
		return
	}
	common.JSON(w, http.StatusOK, quoteResp{
		Success:        true,
		Rates:          rates,
		SelectedRate:   state.Shipping.SelectedRate,
		Tax:            state.Tax,
		TaxDisplay:     TaxDisplayText(state),
		Totals:         state.Totals,
		FormattedTotal: FormattedTotal(state),
	})
}
