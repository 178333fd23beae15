package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/payment"
	"github.com/noah-isme/candle-checkout/internal/resilience"
)

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newSquare(t *testing.T, url string, breaker *resilience.Breaker) *payment.Square {
	t.Helper()
	sq, err := payment.NewSquare(payment.SquareConfig{
		AccessToken: "sandbox-token",
		LocationID:  "L123",
		BaseURL:     url,
		Timeout:     2 * time.Second,
	}, breaker)
	require.NoError(t, err)
	return sq
}

func TestSquareCreatePayment(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/payments" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sandbox-token" || r.Header.Get("Square-Version") == "" {
			writeJSON(w, http.StatusUnauthorized, `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		writeJSON(w, http.StatusOK, `{"payment":{"id":"pay_1","status":"COMPLETED","order_id":"ord_1",
			"receipt_url":"https://squareup.com/receipt/preview/pay_1",
			"amount_money":{"amount":6971,"currency":"USD"},"buyer_email_address":"jane@example.com",
			"created_at":"2025-03-01T12:00:00Z"}}`)
	}))
	defer srv.Close()

	req := validRequest()
	p, err := newSquare(t, srv.URL, nil).CreatePayment(context.Background(), payment.Request{
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		AmountMinor:    req.Amount,
		Currency:       req.Currency,
		Address:        req.ShippingAddress,
	})
	require.NoError(t, err)
	require.Equal(t, "pay_1", p.ID)
	require.Equal(t, "ord_1", p.OrderID)
	require.Equal(t, payment.StatusCompleted, p.Status)
	require.Equal(t, int64(6971), p.AmountMinor)

	require.Equal(t, "L123", captured["location_id"])
	require.Equal(t, req.IdempotencyKey, captured["idempotency_key"])
	require.Equal(t, "jane@example.com", captured["buyer_email_address"])
	money := captured["amount_money"].(map[string]any)
	require.EqualValues(t, 6971, money["amount"])
	ship := captured["shipping_address"].(map[string]any)
	require.Equal(t, "San Francisco", ship["locality"])
	require.Equal(t, "CA", ship["administrative_district_level_1"])
}

func TestSquareErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"declined", http.StatusPaymentRequired, `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED","detail":"Card declined."}]}`, common.ErrPaymentDeclined},
		{"bad request", http.StatusBadRequest, `{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"INVALID_VALUE","detail":"Invalid amount."}]}`, common.ErrValidation},
		{"cvv on 400", http.StatusBadRequest, `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CVV_FAILURE","detail":"CVV failure."}]}`, common.ErrPaymentDeclined},
		{"unauthorized", http.StatusUnauthorized, `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`, common.ErrTerminalPayment},
		{"server error", http.StatusInternalServerError, `{"errors":[{"category":"API_ERROR","code":"INTERNAL_SERVER_ERROR"}]}`, common.ErrTransientPayment},
		{"throttled", http.StatusTooManyRequests, `{"errors":[{"category":"RATE_LIMIT_ERROR","code":"RATE_LIMITED"}]}`, common.ErrTransientPayment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tc.status, tc.body)
			}))
			defer srv.Close()
			_, err := newSquare(t, srv.URL, nil).CreatePayment(context.Background(), payment.Request{SourceID: "cnon:x", IdempotencyKey: "k", AmountMinor: 100, Currency: "USD"})
			require.ErrorIs(t, err, tc.want)
			var perr *payment.ProviderError
			require.True(t, errors.As(err, &perr))
			require.Equal(t, tc.status, perr.HTTPStatus)
		})
	}
}

func TestSquareBreakerOpensOnTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, `{"errors":[{"category":"API_ERROR","code":"SERVICE_UNAVAILABLE"}]}`)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(2, 0.5, time.Minute).WithTarget("square_test")
	sq := newSquare(t, srv.URL, breaker)
	req := payment.Request{SourceID: "cnon:x", IdempotencyKey: "k", AmountMinor: 100, Currency: "USD"}
	for i := 0; i < 2; i++ {
		_, err := sq.CreatePayment(context.Background(), req)
		require.ErrorIs(t, err, common.ErrTransientPayment)
	}
	require.Equal(t, resilience.Open, breaker.State())

	_, err := sq.CreatePayment(context.Background(), req)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.ErrorIs(t, err, common.ErrTransientPayment)
	require.Equal(t, int32(2), hits.Load())
}

func TestSquareDeclinesDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusPaymentRequired, `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"GENERIC_DECLINE"}]}`)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(2, 0.5, time.Minute).WithTarget("square_decline_test")
	sq := newSquare(t, srv.URL, breaker)
	for i := 0; i < 4; i++ {
		_, err := sq.CreatePayment(context.Background(), payment.Request{SourceID: "cnon:x", IdempotencyKey: "k"})
		require.ErrorIs(t, err, common.ErrPaymentDeclined)
	}
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestSquareGetPaymentAndResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/payments/pay_1":
			writeJSON(w, http.StatusOK, `{"payment":{"id":"pay_1","status":"COMPLETED","order_id":"ord_1",
				"amount_money":{"amount":139200,"currency":"MXN"},"buyer_email_address":"ana@example.com",
				"shipping_address":{"first_name":"Ana","address_line_1":"Av. Reforma 222","locality":"CDMX","country":"MX"}}}`)
		case "/v2/payments/pay_pending":
			writeJSON(w, http.StatusOK, `{"payment":{"id":"pay_pending","status":"APPROVED"}}`)
		default:
			writeJSON(w, http.StatusNotFound, `{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"NOT_FOUND","detail":"Not found"}]}`)
		}
	}))
	defer srv.Close()
	sq := newSquare(t, srv.URL, nil)

	_, err := sq.GetPayment(context.Background(), "missing")
	require.ErrorIs(t, err, payment.ErrPaymentNotFound)

	resolver := payment.OrderResolver{Provider: sq}
	o, found, err := resolver.ResolveOrder(context.Background(), "pay_1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "pay_1", o.PaymentID)
	require.Equal(t, "ord_1", o.OrderID)
	require.Equal(t, "MXN", o.Details.Totals.Currency)
	require.Equal(t, "1392", o.Details.Totals.Total.String())
	require.True(t, o.Details.Totals.Subtotal.IsZero())
	require.Equal(t, "ana@example.com", o.Details.Shipping.Address.Email)
	require.Equal(t, "CDMX", o.Details.Shipping.Address.City)
	require.NotNil(t, o.Details.Items)

	_, found, err = resolver.ResolveOrder(context.Background(), "pay_pending")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = resolver.ResolveOrder(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, found)
}

func TestNewSquareRequiresCredentials(t *testing.T) {
	_, err := payment.NewSquare(payment.SquareConfig{LocationID: "L"}, nil)
	require.Error(t, err)
	_, err = payment.NewSquare(payment.SquareConfig{AccessToken: "t"}, nil)
	require.Error(t, err)
}

func TestSandboxIdempotency(t *testing.T) {
	sb := payment.NewSandbox(nil)
	req := payment.Request{SourceID: payment.SandboxTokenOK, IdempotencyKey: "k1", AmountMinor: 500, Currency: "USD"}
	first, err := sb.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	again, err := sb.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	req.AmountMinor = 900
	_, err = sb.CreatePayment(context.Background(), req)
	require.ErrorIs(t, err, common.ErrValidation)

	got, err := sb.GetPayment(context.Background(), first.ID)
	require.NoError(t, err)
	require.Equal(t, first, got)
	_, err = sb.GetPayment(context.Background(), "nope")
	require.ErrorIs(t, err, payment.ErrPaymentNotFound)
}
