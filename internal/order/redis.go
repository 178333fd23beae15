package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/candle-checkout/internal/obs"
)

// RedisStore keeps receipts as JSON values with a TTL so every instance sees
// the same orders.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore constructs a store. prefix defaults to "order:".
func NewRedisStore(client *redis.Client, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "order:"
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{client: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, o Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	err = s.client.Set(ctx, s.key(key), data, s.retention).Err()
	obs.CountOrderStoreOp("redis", "set", err)
	return err
}

// Get implements Store. A missing key maps to ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) (Order, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			obs.CountOrderStoreOp("redis", "get", ErrNotFound)
			return Order{}, ErrNotFound
		}
		obs.CountOrderStoreOp("redis", "get", err)
		return Order{}, err
	}
	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return Order{}, err
	}
	obs.CountOrderStoreOp("redis", "get", nil)
	return o, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	err := s.client.Del(ctx, s.key(key)).Err()
	obs.CountOrderStoreOp("redis", "delete", err)
	return err
}

// Has implements Store.
func (s *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
