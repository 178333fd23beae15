package shipping

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

// Handler exposes the shipping quote endpoint.
type Handler struct {
	Client    Client
	Validator *address.Validator
}

type ratesReq struct {
	Address  address.Shipping `json:"address"`
	Subtotal *pricing.Money   `json:"subtotal,omitempty"`
}

type ratesResp struct {
	Success   bool           `json:"success"`
	Rates     []Rate         `json:"rates"`
	Threshold *pricing.Money `json:"freeShippingThreshold,omitempty"`
}

// Rates quotes standard and express shipping for the posted address.
func (h *Handler) Rates(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Client == nil {
		common.JSONError(w, http.StatusInternalServerError, "SHIPPING_NOT_CONFIGURED", "shipping handler unavailable", nil)
		return
	}
	var req ratesReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.Fail(w, http.StatusBadRequest, "invalid body", nil)
		return
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
	rates, err := h.Client.Rates(r.Context(), RateReq{Address: addr, Subtotal: req.Subtotal})
	if err != nil {
		common.Fail(w, common.StatusFor(err), err.Error(), nil)
		return
	}
	resp := ratesResp{Success: true, Rates: rates}
	if threshold, ok := FreeShippingThreshold(addr.Country); ok {
		resp.Threshold = &threshold
	}
	common.JSON(w, http.StatusOK, resp)
}
