// Package cart models the storefront cart that checkout snapshots.
package cart

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/pricing"
)

// Quantity bounds per line.
const (
	MinQuantity = 1
	MaxQuantity = 10
)

var (
	// ErrInvalidProduct is returned when a product id or price is malformed.
	ErrInvalidProduct = fmt.Errorf("invalid product: %w", common.ErrValidation)
	// ErrItemNotFound is returned when updating a line that is not in the cart.
	ErrItemNotFound = errors.New("cart item not found")

	productIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,100}$`)
)

// Product is the catalog view of a sellable candle.
type Product struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Variant     string        `json:"variant,omitempty"`
	Description string        `json:"description,omitempty"`
	Price       string        `json:"price"`
	PriceValue  pricing.Money `json:"priceValue"`
	Image       string        `json:"image,omitempty"`
}

// Item is a cart line.
type Item struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Variant    string        `json:"variant,omitempty"`
	PriceValue pricing.Money `json:"priceValue"`
	Quantity   int           `json:"quantity"`
	Image      string        `json:"image,omitempty"`
}

// LineTotal returns price times quantity.
func (i Item) LineTotal() pricing.Money {
	return i.PriceValue.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Source supplies the read-only item snapshot checkout computes totals from.
type Source interface {
	Snapshot(ctx context.Context) ([]Item, error)
}

// Static is a fixed snapshot, used for server-side quotes.
type Static []Item

// Snapshot implements Source.
func (s Static) Snapshot(context.Context) ([]Item, error) {
	return append([]Item(nil), s...), nil
}

// ValidProductID reports whether id is safe to use as a cart key.
func ValidProductID(id string) bool {
	return productIDPattern.MatchString(id)
}

// SanitizeQuantity clamps q into [MinQuantity, MaxQuantity].
func SanitizeQuantity(q int) int {
	if q < MinQuantity {
		return MinQuantity
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}

// ValidateItem checks a line received from a client.
func ValidateItem(it Item) error {
	if !ValidProductID(it.ID) {
		return fmt.Errorf("id %q: %w", it.ID, ErrInvalidProduct)
	}
	if it.PriceValue.IsNegative() {
		return fmt.Errorf("price for %q: %w", it.ID, ErrInvalidProduct)
	}
	if it.Quantity < MinQuantity || it.Quantity > MaxQuantity {
		return fmt.Errorf("quantity %d for %q must be between %d and %d: %w", it.Quantity, it.ID, MinQuantity, MaxQuantity, common.ErrValidation)
	}
	return nil
}

// Cart is a mutable, concurrency-safe cart.
type Cart struct {
	mu    sync.RWMutex
	items []Item
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// Add inserts product or increments its existing line, capped at MaxQuantity.
func (c *Cart) Add(p Product, quantity int) error {
	if !ValidProductID(p.ID) {
		return fmt.Errorf("id %q: %w", p.ID, ErrInvalidProduct)
	}
	if p.PriceValue.IsNegative() {
		return fmt.Errorf("price for %q: %w", p.ID, ErrInvalidProduct)
	}
	quantity = SanitizeQuantity(quantity)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == p.ID {
			c.items[i].Quantity = SanitizeQuantity(c.items[i].Quantity + quantity)
			return nil
		}
	}
	c.items = append(c.items, Item{
		ID:         p.ID,
		Title:      p.Title,
		Variant:    p.Variant,
		PriceValue: p.PriceValue,
		Quantity:   quantity,
		Image:      p.Image,
	})
	return nil
}

// Remove drops the line for id if present.
func (c *Cart) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// UpdateQuantity sets the quantity of an existing line. A quantity below one
// removes the line.
func (c *Cart) UpdateQuantity(id string, quantity int) error {
	if quantity < MinQuantity {
		c.Remove(id)
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Quantity = SanitizeQuantity(quantity)
			return nil
		}
	}
	return ErrItemNotFound
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// Items returns a copy of the lines.
func (c *Cart) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Item(nil), c.items...)
}

// Snapshot implements Source.
func (c *Cart) Snapshot(context.Context) ([]Item, error) {
	return c.Items(), nil
}

// Count returns the total number of units.
func (c *Cart) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// Subtotal sums the line totals.
func (c *Cart) Subtotal() pricing.Money {
	return Subtotal(c.Items())
}

// Subtotal sums the line totals of items.
func Subtotal(items []Item) pricing.Money {
	lines := make([]pricing.Item, 0, len(items))
	for _, it := range items {
		lines = append(lines, pricing.Item{Qty: it.Quantity, UnitPrice: it.PriceValue})
	}
	return pricing.Subtotal(lines)
}
