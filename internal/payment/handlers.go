package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/candle-checkout/internal/common"
)

// Handler exposes the payment submission endpoint.
type Handler struct {
	Svc *Service
}

// Process handles POST /api/checkout/process-payment. Rate limiting and its
// headers are applied by the route middleware.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h == nil || h.Svc == nil {
		common.Fail(w, http.StatusInternalServerError, "An unexpected error occurred. Please try again.", nil)
		return
	}
	var req ProcessRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		common.Fail(w, http.StatusBadRequest, "Invalid payment data", []common.FieldError{{Field: "body", Message: "Request body must be valid JSON with an integer amount"}})
		return
	}

	res, err := h.Svc.Process(r.Context(), req, Meta{ClientIP: common.ClientKey(r)})
	if err != nil {
		status, msg, details := failureResponse(err)
		common.Fail(w, status, msg, details)
		return
	}
	w.Header().Set("X-Processing-Time", strconv.FormatInt(time.Since(start).Milliseconds(), 10))
	common.JSON(w, http.StatusOK, res)
}

func failureResponse(err error) (int, string, any) {
	var verr *common.ValidationError
	var amountErr *AmountError
	var notCompleted *NotCompletedError
	var perr *ProviderError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "Invalid payment data", verr.Fields
	case errors.As(err, &amountErr):
		return http.StatusBadRequest, amountErr.Message, nil
	case errors.As(err, &notCompleted):
		return http.StatusBadRequest, "Payment could not be completed. Please try again.", nil
	case IsTransient(err):
		return http.StatusBadGateway, "Payment provider unavailable. Please try again.", nil
	case errors.As(err, &perr):
		status := common.StatusFor(err)
		if status >= http.StatusInternalServerError {
			return http.StatusInternalServerError, "Payment processing failed", nil
		}
		return status, perr.Error(), nil
	default:
		return http.StatusInternalServerError, "An unexpected error occurred. Please try again.", nil
	}
}
