package tax

import (
	"encoding/json"
	"net/http"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

// Handler exposes the tax quote endpoint.
type Handler struct {
	Calculator Calculator
}

type quoteReq struct {
	Address address.Shipping `json:"address"`
	Taxable pricing.Money    `json:"taxable"`
}

// Quote computes the tax line for {address, taxable}.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Calculator == nil {
		common.JSONError(w, http.StatusInternalServerError, "TAX_NOT_CONFIGURED", "tax handler unavailable", nil)
		return
	}
	var req quoteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.Fail(w, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if req.Taxable.IsNegative() {
		common.Fail(w, http.StatusBadRequest, "taxable amount must not be negative", nil)
		return
	}
	info, err := h.Calculator.Calculate(r.Context(), address.Sanitize(req.Address), req.Taxable)
	if err != nil {
		common.Fail(w, common.StatusFor(err), err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"tax":         info,
		"displayRate": FormatRate(info.Rate),
	})
}
