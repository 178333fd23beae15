package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/candle-checkout/internal/pricing"
)

func TestComputeTotalsIsExact(t *testing.T) {
	subtotal := decimal.NewFromInt(50)
	shipping := decimal.NewFromInt(15)
	tax := subtotal.Add(shipping).Mul(decimal.RequireFromString("0.0725"))

	totals := pricing.Compute(subtotal, shipping, tax, "usd")
	require.True(t, tax.Equal(decimal.RequireFromString("4.7125")))
	require.True(t, totals.Total.Equal(decimal.RequireFromString("69.7125")), totals.Total.String())
	require.Equal(t, "USD", totals.Currency)
	require.True(t, totals.Consistent())
	require.Equal(t, int64(6971), pricing.ToMinorUnits(totals.Total))
}

func TestSubtotalSkipsNonPositiveQuantities(t *testing.T) {
	items := []pricing.Item{
		{Qty: 2, UnitPrice: decimal.RequireFromString("24.50")},
		{Qty: 0, UnitPrice: decimal.NewFromInt(100)},
		{Qty: 1, UnitPrice: decimal.NewFromInt(1)},
	}
	require.True(t, pricing.Subtotal(items).Equal(decimal.NewFromInt(50)))
}

func TestMinorUnitRoundTrip(t *testing.T) {
	require.Equal(t, int64(139200), pricing.ToMinorUnits(decimal.NewFromInt(1392)))
	require.Equal(t, int64(1), pricing.ToMinorUnits(decimal.RequireFromString("0.005")))
	require.True(t, pricing.FromMinorUnits(6971).Equal(decimal.RequireFromString("69.71")))
}

func TestZeroTotals(t *testing.T) {
	z := pricing.Zero()
	require.True(t, z.Total.IsZero())
	require.Equal(t, pricing.DefaultCurrency, z.Currency)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "$69.71", pricing.Format(decimal.RequireFromString("69.7125"), "USD"))
	require.Equal(t, "MX$1,392.00", pricing.Format(decimal.NewFromInt(1392), "MXN"))
	require.Equal(t, "CA$1,000,000.50", pricing.Format(decimal.RequireFromString("1000000.5"), "cad"))
	require.Equal(t, "EUR 3.00", pricing.Format(decimal.NewFromInt(3), "EUR"))
	require.Equal(t, "-$2.00", pricing.Format(decimal.NewFromInt(-2), "USD"))
}
