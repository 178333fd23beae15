package cart_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/candle-checkout/internal/cart"
	"github.com/noah-isme/candle-checkout/internal/common"
)

func lavender() cart.Product {
	return cart.Product{ID: "lavender-200g", Title: "Lavender", Price: "$25.00", PriceValue: decimal.NewFromInt(25)}
}

func TestAddIncrementsExistingLineAndCaps(t *testing.T) {
	c := cart.New()
	require.NoError(t, c.Add(lavender(), 4))
	require.NoError(t, c.Add(lavender(), 9))

	items := c.Items()
	require.Len(t, items, 1)
	require.Equal(t, cart.MaxQuantity, items[0].Quantity)
	require.True(t, c.Subtotal().Equal(decimal.NewFromInt(250)))
}

func TestAddRejectsInvalidProducts(t *testing.T) {
	c := cart.New()
	bad := lavender()
	bad.ID = "lavender 200g; drop"
	require.ErrorIs(t, c.Add(bad, 1), common.ErrValidation)

	neg := lavender()
	neg.PriceValue = decimal.NewFromInt(-1)
	require.ErrorIs(t, c.Add(neg, 1), cart.ErrInvalidProduct)
}

func TestUpdateQuantityAndRemove(t *testing.T) {
	c := cart.New()
	require.NoError(t, c.Add(lavender(), 1))
	require.NoError(t, c.UpdateQuantity("lavender-200g", 3))
	require.Equal(t, 3, c.Count())

	require.ErrorIs(t, c.UpdateQuantity("missing", 2), cart.ErrItemNotFound)

	require.NoError(t, c.UpdateQuantity("lavender-200g", 0))
	require.Empty(t, c.Items())
}

func TestSnapshotIsACopy(t *testing.T) {
	c := cart.New()
	require.NoError(t, c.Add(lavender(), 2))
	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	snap[0].Quantity = 9
	require.Equal(t, 2, c.Items()[0].Quantity)

	c.Clear()
	require.Zero(t, c.Count())
}

func TestSanitizeQuantity(t *testing.T) {
	require.Equal(t, 1, cart.SanitizeQuantity(-3))
	require.Equal(t, 10, cart.SanitizeQuantity(99))
	require.Equal(t, 5, cart.SanitizeQuantity(5))
}

func TestValidateItem(t *testing.T) {
	it := cart.Item{ID: "amber_1", PriceValue: decimal.NewFromInt(10), Quantity: 11}
	require.ErrorIs(t, cart.ValidateItem(it), common.ErrValidation)
	it.Quantity = 2
	require.NoError(t, cart.ValidateItem(it))
}
