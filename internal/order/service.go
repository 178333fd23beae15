package order

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// Resolver rebuilds a receipt from the payment provider when the store has
// none. found is false when the provider has no completed payment for id.
type Resolver interface {
	ResolveOrder(ctx context.Context, orderID string) (o Order, found bool, err error)
}

// Service looks up receipts.
type Service struct {
	Store    Store
	Resolver Resolver
	Logger   zerolog.Logger
}

// Lookup checks the store by orderID, then by key, then falls back to the
// provider when an orderID was given. Provider failures are logged and
// reported as ErrNotFound.
func (s *Service) Lookup(ctx context.Context, orderID, key string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	key = strings.TrimSpace(key)

	for _, k := range []string{orderID, key} {
		if k == "" || s.Store == nil {
			continue
		}
		o, err := s.Store.Get(ctx, k)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Order{}, err
		}
	}

	if orderID != "" && s.Resolver != nil {
		o, found, err := s.Resolver.ResolveOrder(ctx, orderID)
		if err != nil {
			s.Logger.Warn().Err(err).Str("order_id", orderID).Msg("order_provider_lookup_failed")
		} else if found {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}
