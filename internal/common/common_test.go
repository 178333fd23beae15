package common_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/candle-checkout/internal/common"
)

func TestStatusForClassifiesWrappedErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("address: %w", common.ErrValidation), http.StatusBadRequest},
		{common.NewValidationError(common.FieldError{Field: "email", Message: "Valid email is required"}), http.StatusBadRequest},
		{&common.RateLimitError{RetryAfter: time.Second}, http.StatusTooManyRequests},
		{fmt.Errorf("square: %w", common.ErrTransientPayment), http.StatusBadGateway},
		{fmt.Errorf("tax: %w", common.ErrUnsupportedRegion), http.StatusBadRequest},
		{common.NewAppError("CONFLICT", "busy", http.StatusConflict, nil), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, common.StatusFor(tc.err), tc.err.Error())
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := common.NewValidationError(common.FieldError{Field: "city", Message: "City is required"})
	require.ErrorIs(t, err, common.ErrValidation)
	require.Equal(t, "validation failed: city: City is required", err.Error())
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", common.ClientKey(req))

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	bare.RemoteAddr = ""
	require.Equal(t, "unknown", common.ClientKey(bare))
}

func TestParsePaginationWindow(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products?page=2&limit=500", nil)
	page, perPage := common.ParsePagination(req, 10, 50)
	require.Equal(t, 2, page)
	require.Equal(t, 50, perPage)

	start, end := common.Pagination{Page: 2, PerPage: 4, TotalItems: 6}.Window()
	require.Equal(t, 4, start)
	require.Equal(t, 6, end)
}

func TestInMemoryEmailOutbox(t *testing.T) {
	mail := &common.InMemoryEmail{}
	require.NoError(t, mail.Send("a@example.com", "hi", "<p>x</p>"))
	require.Len(t, mail.Outbox(), 1)
	require.Equal(t, "hi", mail.Outbox()[0].Subject)
}
