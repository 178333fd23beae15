package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/candle-checkout/internal/cart"
)

// DefaultCacheKey holds the cached product list.
const DefaultCacheKey = "catalog:products"

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client disables caching.
func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate drops key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// CachedProvider serves the product list from Redis and refills it from Next
// on a miss. Cache failures fall through to Next.
type CachedProvider struct {
	Next   Provider
	Cache  *Cache
	Key    string
	Logger zerolog.Logger
}

// ListProducts implements Provider.
func (p CachedProvider) ListProducts(ctx context.Context) ([]cart.Product, error) {
	if p.Next == nil {
		return nil, errors.New("catalog: provider not configured")
	}
	key := p.Key
	if key == "" {
		key = DefaultCacheKey
	}
	var cached []cart.Product
	hit, err := p.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		p.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_read_failed")
	}
	if hit {
		return cached, nil
	}
	products, err := p.Next.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Cache.SetJSON(ctx, key, products); err != nil {
		p.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_write_failed")
	}
	return products, nil
}
