package order

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/candle-checkout/internal/address"
	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

func sampleOrder() Order {
	subtotal := pricing.FromFloat(65)
	return Order{
		PaymentID:      "pay_123",
		OrderID:        "ord_456",
		ReceiptURL:     "https://squareup.com/receipt/preview/pay_123",
		IdempotencyKey: "1b4e28ba-2fa1-4d3b-a3f5-ef19b5a7633b",
		Status:         "COMPLETED",
		Details: Details{
			Items: []cart.Item{{ID: "lavender-dream", Title: "Lavender Dream", PriceValue: pricing.FromFloat(25), Quantity: 2}},
			Shipping: ShippingInfo{Address: address.Shipping{
				FirstName: "Ana", LastName: "Ruiz", Email: "ana@example.com",
				Address1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701", Country: address.US,
			}},
			Totals: pricing.Compute(subtotal, decimal.Zero, decimal.Zero, "USD"),
		},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestOrderKeysDeduplicates(t *testing.T) {
	o := Order{IdempotencyKey: "k", OrderID: "k"}
	require.Equal(t, []string{"k"}, o.Keys())
	require.Empty(t, Order{}.Keys())
	require.Equal(t, []string{"k", "o"}, Order{IdempotencyKey: "k", OrderID: " o "}.Keys())
}

func TestMemoryStoreRoundTripAndExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore(time.Hour, clock.Now)
	ctx := context.Background()
	o := sampleOrder()

	require.NoError(t, SaveReceipt(ctx, store, o))
	require.Equal(t, 2, store.Size())

	byKey, err := store.Get(ctx, o.IdempotencyKey)
	require.NoError(t, err)
	require.Equal(t, o.PaymentID, byKey.PaymentID)
	byOrder, err := store.Get(ctx, o.OrderID)
	require.NoError(t, err)
	require.Equal(t, byKey, byOrder)

	ok, err := store.Has(ctx, o.OrderID)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(time.Hour)
	_, err = store.Get(ctx, o.OrderID)
	require.ErrorIs(t, err, ErrNotFound)
	ok, err = store.Has(ctx, o.IdempotencyKey)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, store.Size())
}

func TestMemoryStoreTimerEvicts(t *testing.T) {
	store := NewMemoryStore(20*time.Millisecond, nil)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", sampleOrder()))
	require.Eventually(t, func() bool { return store.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(time.Hour, nil)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", sampleOrder()))
	require.NoError(t, store.Delete(ctx, "k"))
	_, err := store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete(ctx, "missing"))
}

func TestSaveReceiptRequiresKey(t *testing.T) {
	err := SaveReceipt(context.Background(), NewMemoryStore(0, nil), Order{PaymentID: "p"})
	require.Error(t, err)
}

func TestRedisStoreRoundTripWithTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	store := NewRedisStore(client, "", 24*time.Hour)
	ctx := context.Background()
	o := sampleOrder()

	require.NoError(t, SaveReceipt(ctx, store, o))
	require.True(t, mr.Exists("order:"+o.OrderID))
	require.Equal(t, 24*time.Hour, mr.TTL("order:"+o.IdempotencyKey))

	got, err := store.Get(ctx, o.OrderID)
	require.NoError(t, err)
	require.Equal(t, o.PaymentID, got.PaymentID)
	require.True(t, o.Details.Totals.Total.Equal(got.Details.Totals.Total))
	require.Equal(t, "TX", got.Details.Shipping.Address.State)

	mr.FastForward(25 * time.Hour)
	_, err = store.Get(ctx, o.OrderID)
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Has(ctx, o.IdempotencyKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreDelete(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	store := NewRedisStore(client, "receipts:", time.Hour)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", sampleOrder()))
	require.NoError(t, store.Delete(ctx, "k"))
	require.False(t, mr.Exists("receipts:k"))
}
