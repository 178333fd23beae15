package order

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/candle-checkout/internal/common"
)

// Handler serves order detail lookups for the confirmation page.
type Handler struct {
	Service *Service
}

// Get handles GET /api/checkout/order-details?orderId=&key=.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.Fail(w, http.StatusInternalServerError, "Failed to retrieve order details", nil)
		return
	}
	q := r.URL.Query()
	orderID := strings.TrimSpace(q.Get("orderId"))
	key := strings.TrimSpace(q.Get("key"))

	if fields := validateLookup(orderID, key); len(fields) > 0 {
		common.Fail(w, http.StatusBadRequest, "Invalid request parameters", fields)
		return
	}

	o, err := h.Service.Lookup(r.Context(), orderID, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.Fail(w, http.StatusNotFound, "Order not found", nil)
			return
		}
		h.Service.Logger.Error().Err(err).Msg("order_lookup_failed")
		common.Fail(w, http.StatusInternalServerError, "Failed to retrieve order details", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   o,
	})
}

func validateLookup(orderID, key string) []common.FieldError {
	var fields []common.FieldError
	if key != "" && !IsUUID(key) {
		fields = append(fields, common.FieldError{Field: "key", Message: "Invalid uuid"})
	}
	if orderID == "" && key == "" {
		fields = append(fields, common.FieldError{Field: "orderId", Message: "Either orderId or key must be provided"})
	}
	return fields
}

// IsUUID reports whether s is a hyphenated UUID string.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
