package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	order Order
	found bool
	err   error
	calls int
}

func (s *stubResolver) ResolveOrder(context.Context, string) (Order, bool, error) {
	s.calls++
	return s.order, s.found, s.err
}

type brokenStore struct{}

var errBroken = errors.New("connection refused")

func (brokenStore) Set(context.Context, string, Order) error      { return errBroken }
func (brokenStore) Get(context.Context, string) (Order, error)    { return Order{}, errBroken }
func (brokenStore) Delete(context.Context, string) error          { return errBroken }
func (brokenStore) Has(context.Context, string) (bool, error)     { return false, errBroken }

func TestServiceLookupPrefersStore(t *testing.T) {
	store := NewMemoryStore(0, nil)
	o := sampleOrder()
	require.NoError(t, SaveReceipt(context.Background(), store, o))
	resolver := &stubResolver{}
	svc := &Service{Store: store, Resolver: resolver, Logger: zerolog.Nop()}

	got, err := svc.Lookup(context.Background(), "", o.IdempotencyKey)
	require.NoError(t, err)
	require.Equal(t, o.PaymentID, got.PaymentID)

	got, err = svc.Lookup(context.Background(), "unknown", o.IdempotencyKey)
	require.NoError(t, err)
	require.Equal(t, o.PaymentID, got.PaymentID)
	require.Zero(t, resolver.calls)
}

func TestServiceLookupFallsBackToProvider(t *testing.T) {
	resolver := &stubResolver{order: Order{PaymentID: "pay_remote"}, found: true}
	svc := &Service{Store: NewMemoryStore(0, nil), Resolver: resolver, Logger: zerolog.Nop()}

	got, err := svc.Lookup(context.Background(), "pay_remote", "")
	require.NoError(t, err)
	require.Equal(t, "pay_remote", got.PaymentID)
	require.Equal(t, 1, resolver.calls)

	_, err = svc.Lookup(context.Background(), "", "1b4e28ba-2fa1-4d3b-a3f5-ef19b5a7633b")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, resolver.calls, "provider is only asked by order id")
}

func TestServiceLookupProviderErrorIsNotFound(t *testing.T) {
	resolver := &stubResolver{err: errors.New("square unavailable")}
	svc := &Service{Store: NewMemoryStore(0, nil), Resolver: resolver, Logger: zerolog.Nop()}
	_, err := svc.Lookup(context.Background(), "pay_x", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHandlerGet(t *testing.T) {
	store := NewMemoryStore(0, nil)
	o := sampleOrder()
	require.NoError(t, SaveReceipt(context.Background(), store, o))
	h := &Handler{Service: &Service{Store: store, Logger: zerolog.Nop()}}

	tests := []struct {
		name   string
		query  string
		status int
		error  string
	}{
		{name: "by order id", query: "?orderId=" + o.OrderID, status: http.StatusOK},
		{name: "by key", query: "?key=" + o.IdempotencyKey, status: http.StatusOK},
		{name: "missing params", query: "", status: http.StatusBadRequest, error: "Invalid request parameters"},
		{name: "bad key", query: "?key=not-a-uuid", status: http.StatusBadRequest, error: "Invalid request parameters"},
		{name: "unknown", query: "?orderId=nope", status: http.StatusNotFound, error: "Order not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/checkout/order-details"+tc.query, nil)
			rr := httptest.NewRecorder()
			h.Get(rr, req)
			require.Equal(t, tc.status, rr.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			if tc.status == http.StatusOK {
				require.Equal(t, true, body["success"])
				order := body["order"].(map[string]any)
				require.Equal(t, o.PaymentID, order["paymentId"])
				details := order["orderDetails"].(map[string]any)
				totals := details["totals"].(map[string]any)
				require.EqualValues(t, 65, totals["total"])
				return
			}
			require.Equal(t, false, body["success"])
			require.Equal(t, tc.error, body["error"])
		})
	}
}

func TestHandlerGetStoreFailure(t *testing.T) {
	h := &Handler{Service: &Service{Store: brokenStore{}, Logger: zerolog.Nop()}}
	req := httptest.NewRequest(http.MethodGet, "/api/checkout/order-details?orderId=x", nil)
	rr := httptest.NewRecorder()
	h.Get(rr, req)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestIsUUID(t *testing.T) {
	require.True(t, IsUUID("1b4e28ba-2fa1-4d3b-a3f5-ef19b5a7633b"))
	require.False(t, IsUUID("1b4e28ba2fa14d3ba3f5ef19b5a7633b"))
	require.False(t, IsUUID("urn:uuid:1b4e28ba-2fa1-4d3b-a3f5-ef19b5a7633b"))
}
